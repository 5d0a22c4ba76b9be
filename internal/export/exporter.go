// Package export writes tariff rows to the configured spreadsheet
// destinations, isolating per-destination failures.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boxtariffs/boxtariffs/internal/retry"
)

// Fail-fast configuration errors surfaced before any destination is touched.
var (
	ErrNoDestinations = errors.New("export: no spreadsheet destinations configured")
	ErrNoCredentials  = errors.New("export: spreadsheet credentials unavailable")
)

// Outcome aggregates the result of one export run across destinations.
type Outcome struct {
	Success      bool     `json:"success"`
	Exported     int      `json:"exported"`
	Failed       int      `json:"failed"`
	Errors       []string `json:"errors"`
	RowsExported int      `json:"rowsExported"`
}

// SheetWriter is the narrow surface the exporter needs from a spreadsheet
// client: wipe a destination, write the header row, append data rows.
type SheetWriter interface {
	Clear(ctx context.Context, spreadsheetID string) error
	WriteHeader(ctx context.Context, spreadsheetID string, header []string) error
	AppendRows(ctx context.Context, spreadsheetID string, rows [][]string) error
}

// Config holds the externally assembled export settings.
type Config struct {
	SpreadsheetIDs []string
	// DestinationDelay is inserted between successive destinations, not
	// after the last, to respect downstream rate limits.
	DestinationDelay time.Duration
	Retry            retry.Options
}

// Exporter writes rows to every configured destination sequentially.
type Exporter struct {
	writer SheetWriter
	cfg    Config
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewExporter constructs an exporter. A nil writer means credentials were
// unavailable at startup; ExportAll then fails fast with ErrNoCredentials.
func NewExporter(writer SheetWriter, cfg Config, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		writer: writer,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// ExportAll clears each destination, writes the header and then the rows,
// retrying each destination as a unit. One destination exhausting its
// retries is recorded in the outcome and does not stop the others.
// Success is true iff no destination failed.
func (e *Exporter) ExportAll(ctx context.Context, header []string, rows [][]string) (Outcome, error) {
	if len(e.cfg.SpreadsheetIDs) == 0 {
		return Outcome{}, ErrNoDestinations
	}
	if e.writer == nil {
		return Outcome{}, ErrNoCredentials
	}

	outcome := Outcome{RowsExported: len(rows), Errors: []string{}}

	for i, spreadsheetID := range e.cfg.SpreadsheetIDs {
		err := e.exportOne(ctx, spreadsheetID, header, rows)
		if err != nil {
			outcome.Failed++
			msg := fmt.Sprintf("failed to export to %s: %v", spreadsheetID, err)
			e.logger.Error("destination export failed",
				slog.String("spreadsheet_id", spreadsheetID),
				slog.Any("error", err))
			outcome.Errors = append(outcome.Errors, msg)
		} else {
			outcome.Exported++
			e.logger.Info("destination export completed",
				slog.String("spreadsheet_id", spreadsheetID),
				slog.Int("rows", len(rows)))
		}

		if i < len(e.cfg.SpreadsheetIDs)-1 && e.cfg.DestinationDelay > 0 {
			if err := e.sleep(ctx, e.cfg.DestinationDelay); err != nil {
				return outcome, err
			}
		}
	}

	outcome.Success = outcome.Failed == 0
	return outcome, nil
}

func (e *Exporter) exportOne(ctx context.Context, spreadsheetID string, header []string, rows [][]string) error {
	_, err := retry.Do(ctx, e.logger, "export to spreadsheet "+spreadsheetID, e.cfg.Retry,
		func(ctx context.Context) (struct{}, error) {
			if err := e.writer.Clear(ctx, spreadsheetID); err != nil {
				return struct{}{}, fmt.Errorf("clear: %w", err)
			}
			if err := e.writer.WriteHeader(ctx, spreadsheetID, header); err != nil {
				return struct{}{}, fmt.Errorf("write header: %w", err)
			}
			if len(rows) == 0 {
				return struct{}{}, nil
			}
			if err := e.writer.AppendRows(ctx, spreadsheetID, rows); err != nil {
				return struct{}{}, fmt.Errorf("append rows: %w", err)
			}
			return struct{}{}, nil
		})
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
