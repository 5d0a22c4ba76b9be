package tariffs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/boxtariffs/boxtariffs/internal/export"
	"github.com/boxtariffs/boxtariffs/internal/observability"
	"github.com/boxtariffs/boxtariffs/internal/retry"
)

// ErrInvalidDate rejects dates that are not YYYY-MM-DD before any I/O.
var ErrInvalidDate = errors.New("tariffs: invalid date, expected YYYY-MM-DD")

// Fetcher pulls the raw upstream payload for one date.
type Fetcher interface {
	FetchBoxTariffs(ctx context.Context, date string) (*BoxTariffs, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	FindDate(ctx context.Context, date string) (TariffDate, error)
	FindDateDetail(ctx context.Context, date string) (TariffDateDetail, error)
	ListDates(ctx context.Context) ([]TariffDate, error)
	WarehousesByDate(ctx context.Context, date string) ([]TariffWarehouse, error)
	ListWarehouses(ctx context.Context) ([]TariffWarehouse, error)
	ReplaceForDate(ctx context.Context, date string, dtNextBox, dtTillMax *string, warehouses []TariffWarehouse) (bool, error)
	ExportRows(ctx context.Context, dateFilter string, sort SortSpec) ([]ExportRow, error)
}

// RowExporter writes formatted rows to all configured destinations.
type RowExporter interface {
	ExportAll(ctx context.Context, header []string, rows [][]string) (export.Outcome, error)
}

// Locker guards one date's sync critical section.
type Locker interface {
	Acquire(ctx context.Context, date string) (func(), error)
}

// WorkflowResult is the combined sync-and-export outcome. Export is nil
// when there was nothing to export.
type WorkflowResult struct {
	SyncResult
	Export *export.Outcome `json:"export"`
}

// ServiceOptions carries the optional collaborators and settings.
type ServiceOptions struct {
	Locker           Locker
	Metrics          *observability.Metrics
	Logger           *slog.Logger
	Retry            retry.Options
	Sort             SortSpec
	DecimalSeparator string
	Now              func() time.Time
}

// Service implements the sync-and-export workflow over the tariff store.
type Service struct {
	store    Store
	client   Fetcher
	exporter RowExporter
	locker   Locker
	metrics  *observability.Metrics
	logger   *slog.Logger

	retryOpts retry.Options
	sort      SortSpec
	separator string
	now       func() time.Time
}

// NewService constructs the tariff service with explicit dependencies.
func NewService(store Store, client Fetcher, exporter RowExporter, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	retryOpts := opts.Retry
	if retryOpts.MaxAttempts == 0 {
		retryOpts = retry.DefaultOptions()
	}
	separator := opts.DecimalSeparator
	if separator == "" {
		separator = ","
	}
	return &Service{
		store:     store,
		client:    client,
		exporter:  exporter,
		locker:    opts.Locker,
		metrics:   opts.Metrics,
		logger:    logger,
		retryOpts: retryOpts,
		sort:      opts.Sort,
		separator: separator,
		now:       now,
	}
}

// Today returns the current UTC date in the canonical format.
func (s *Service) Today() string {
	return s.now().UTC().Format(dateLayout)
}

// ValidateDate checks the canonical YYYY-MM-DD format.
func ValidateDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Sync fetches the upstream payload for date and atomically replaces the
// persisted warehouse set. Network failures are retried; malformed
// payloads surface immediately. A concurrent sync for the same date
// fails fast with shared.ErrSyncInProgress from the locker.
func (s *Service) Sync(ctx context.Context, date string) (SyncResult, error) {
	if err := ValidateDate(date); err != nil {
		return SyncResult{}, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, date)
		if err != nil {
			return SyncResult{}, err
		}
		defer release()
	}

	s.logger.Info("syncing tariffs", slog.String("date", date))

	payload, err := retry.Do(ctx, s.logger, "fetch box tariffs", s.retryOpts,
		func(ctx context.Context) (*BoxTariffs, error) {
			p, err := s.client.FetchBoxTariffs(ctx, date)
			if errors.Is(err, ErrMalformedResponse) {
				// Retrying will not fix malformed data.
				return nil, retry.Permanent(err)
			}
			return p, err
		})
	if err != nil {
		s.metrics.ObserveSyncRun("error")
		return SyncResult{}, err
	}

	dtNextBox := ParseDate(payload.DtNextBox)
	dtTillMax := ParseDate(payload.DtTillMax)
	warehouses := normalizeWarehouses(date, payload.Warehouses)

	isUpdate, err := s.store.ReplaceForDate(ctx, date, dtNextBox, dtTillMax, warehouses)
	if err != nil {
		s.metrics.ObserveSyncRun("error")
		return SyncResult{}, fmt.Errorf("tariffs: replace for date %s: %w", date, err)
	}

	s.metrics.ObserveSyncRun("success")
	s.metrics.AddWarehousesReplaced(len(warehouses))
	s.logger.Info("sync completed",
		slog.String("date", date),
		slog.Int("warehouses", len(warehouses)),
		slog.Bool("is_update", isUpdate))

	return SyncResult{Date: date, WarehouseCount: len(warehouses), IsUpdate: isUpdate}, nil
}

// GetExportRows returns the ordered export row set, optionally filtered
// to one date. An empty dateFilter selects all dates.
func (s *Service) GetExportRows(ctx context.Context, dateFilter string) ([]ExportRow, error) {
	if dateFilter != "" {
		if err := ValidateDate(dateFilter); err != nil {
			return nil, err
		}
	}
	return s.store.ExportRows(ctx, dateFilter, s.sort)
}

// Export formats rows per the presentation rules and writes them to every
// configured destination.
func (s *Service) Export(ctx context.Context, rows []ExportRow) (export.Outcome, error) {
	outcome, err := s.exporter.ExportAll(ctx, ExportHeader(), FormatExportRows(rows, s.separator))
	if err != nil {
		return outcome, err
	}
	s.metrics.ObserveExport(outcome.Exported, outcome.Failed, outcome.RowsExported)
	return outcome, nil
}

// SyncAndExport runs the full workflow for one date. A sync failure
// propagates unchanged; an exporter configuration failure is converted
// into a failed export outcome so the durable sync result still reaches
// the caller.
func (s *Service) SyncAndExport(ctx context.Context, date string) (WorkflowResult, error) {
	logger := s.logger.With(slog.String("run_id", uuid.NewString()), slog.String("date", date))
	logger.Info("starting sync and export workflow")

	syncResult, err := s.Sync(ctx, date)
	if err != nil {
		return WorkflowResult{}, err
	}

	rows, err := s.GetExportRows(ctx, date)
	if err != nil {
		return WorkflowResult{}, fmt.Errorf("tariffs: load export rows: %w", err)
	}

	if len(rows) == 0 {
		logger.Warn("no rows to export")
		return WorkflowResult{SyncResult: syncResult}, nil
	}

	outcome, err := s.Export(ctx, rows)
	if err != nil {
		logger.Error("export failed", slog.Any("error", err))
		outcome = export.Outcome{
			Success:      false,
			Errors:       []string{err.Error()},
			RowsExported: len(rows),
		}
	} else {
		logger.Info("export completed",
			slog.Int("exported", outcome.Exported),
			slog.Int("failed", outcome.Failed))
	}

	return WorkflowResult{SyncResult: syncResult, Export: &outcome}, nil
}

// SyncAndExportToday runs the workflow for the current UTC date.
func (s *Service) SyncAndExportToday(ctx context.Context) (WorkflowResult, error) {
	return s.SyncAndExport(ctx, s.Today())
}

// FindDateDetail exposes the per-date read path to the HTTP layer.
func (s *Service) FindDateDetail(ctx context.Context, date string) (TariffDateDetail, error) {
	if err := ValidateDate(date); err != nil {
		return TariffDateDetail{}, err
	}
	return s.store.FindDateDetail(ctx, date)
}

// FindDate returns one date's metadata record.
func (s *Service) FindDate(ctx context.Context, date string) (TariffDate, error) {
	if err := ValidateDate(date); err != nil {
		return TariffDate{}, err
	}
	return s.store.FindDate(ctx, date)
}

// ListDates returns all tariff dates, newest first.
func (s *Service) ListDates(ctx context.Context) ([]TariffDate, error) {
	return s.store.ListDates(ctx)
}

// WarehousesByDate returns the warehouse rows for one date.
func (s *Service) WarehousesByDate(ctx context.Context, date string) ([]TariffWarehouse, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	return s.store.WarehousesByDate(ctx, date)
}

// ListWarehouses returns every persisted warehouse row.
func (s *Service) ListWarehouses(ctx context.Context) ([]TariffWarehouse, error) {
	return s.store.ListWarehouses(ctx)
}

func normalizeWarehouses(date string, records []WarehouseRecord) []TariffWarehouse {
	warehouses := make([]TariffWarehouse, 0, len(records))
	for _, r := range records {
		warehouses = append(warehouses, TariffWarehouse{
			TariffDate:                     date,
			BoxDeliveryBase:                ParseNumber(string(r.BoxDeliveryBase)),
			BoxDeliveryCoefExpr:            ParseNumber(string(r.BoxDeliveryCoefExpr)),
			BoxDeliveryLiter:               ParseNumber(string(r.BoxDeliveryLiter)),
			BoxDeliveryMarketplaceBase:     ParseNumber(string(r.BoxDeliveryMarketplaceBase)),
			BoxDeliveryMarketplaceCoefExpr: ParseNumber(string(r.BoxDeliveryMarketplaceCoefExpr)),
			BoxDeliveryMarketplaceLiter:    ParseNumber(string(r.BoxDeliveryMarketplaceLiter)),
			BoxStorageBase:                 ParseNumber(string(r.BoxStorageBase)),
			BoxStorageCoefExpr:             ParseNumber(string(r.BoxStorageCoefExpr)),
			BoxStorageLiter:                ParseNumber(string(r.BoxStorageLiter)),
			GeoName:                        optionalString(r.GeoName),
			WarehouseName:                  optionalString(r.WarehouseName),
		})
	}
	return warehouses
}
