package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boxtariffs/boxtariffs/internal/tariffs"
)

// RunSync performs a one-shot sync-and-export for the given date and
// prints the outcome. An empty date means today.
func RunSync(ctx context.Context, svc *tariffs.Service, logger *slog.Logger, date string) error {
	if date == "" {
		date = svc.Today()
	}
	result, err := svc.SyncAndExport(ctx, date)
	if err != nil {
		return fmt.Errorf("sync %s: %w", date, err)
	}
	fmt.Printf("synced %s: %d warehouses (update=%t)\n", result.Date, result.WarehouseCount, result.IsUpdate)
	if result.Export == nil {
		fmt.Println("export skipped: no rows")
		return nil
	}
	printOutcome(result.Export.Exported, result.Export.Failed, result.Export.RowsExported, result.Export.Errors)
	return nil
}

// RunExport re-publishes the stored view without contacting the upstream
// provider. An empty date exports every stored date.
func RunExport(ctx context.Context, svc *tariffs.Service, logger *slog.Logger, date string) error {
	rows, err := svc.GetExportRows(ctx, date)
	if err != nil {
		return fmt.Errorf("load export rows: %w", err)
	}
	if len(rows) == 0 {
		return errors.New("no rows to export")
	}
	outcome, err := svc.Export(ctx, rows)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	printOutcome(outcome.Exported, outcome.Failed, outcome.RowsExported, outcome.Errors)
	if !outcome.Success {
		return errors.New("export finished with failed destinations")
	}
	return nil
}

func printOutcome(exported, failed, rows int, errs []string) {
	fmt.Printf("exported %d rows to %d destinations (%d failed)\n", rows, exported, failed)
	for _, msg := range errs {
		fmt.Printf("  %s\n", msg)
	}
}
