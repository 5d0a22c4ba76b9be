package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/boxtariffs/boxtariffs/internal/tariffs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeTariffSync is the task type for the tariff sync-and-export run.
	TaskTypeTariffSync = "tariffs:sync"
)

// TariffSyncPayload selects the tariff date to synchronize. An empty date
// means the current date at execution time.
type TariffSyncPayload struct {
	Date string `json:"date"`
}

// NewTariffSyncTask constructs an Asynq task for a tariff sync run.
func NewTariffSyncTask(payload TariffSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeTariffSync, data), nil
}

// NewTariffSyncHandler returns the handler processing TaskTypeTariffSync tasks.
func NewTariffSyncHandler(svc *tariffs.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload TariffSyncPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		date := payload.Date
		if date == "" {
			date = svc.Today()
		}
		result, err := svc.SyncAndExport(ctx, date)
		if err != nil {
			logger.Error("scheduled tariff sync failed",
				slog.String("date", date),
				slog.Any("error", err))
			return err
		}
		attrs := []any{
			slog.String("date", result.Date),
			slog.Int("warehouses", result.WarehouseCount),
		}
		if result.Export != nil {
			attrs = append(attrs,
				slog.Int("destinations_exported", result.Export.Exported),
				slog.Int("destinations_failed", result.Export.Failed))
		}
		logger.Info("scheduled tariff sync finished", attrs...)
		return nil
	}
}
