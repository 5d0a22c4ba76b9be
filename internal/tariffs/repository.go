package tariffs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boxtariffs/boxtariffs/internal/platform/db"
)

// ErrDateNotFound is returned when no tariff data exists for a date.
var ErrDateNotFound = errors.New("tariffs: date not found")

// DefaultSortColumn is used when the configured export sort column is not
// on the whitelist.
const DefaultSortColumn = "boxDeliveryCoefExpr"

// exportSortColumns is the fixed whitelist of warehouse columns eligible
// for dynamic sorting. The resolved name is the only configuration-derived
// fragment ever interpolated into a query.
var exportSortColumns = map[string]struct{}{
	"boxDeliveryBase":                {},
	"boxDeliveryCoefExpr":            {},
	"boxDeliveryLiter":               {},
	"boxDeliveryMarketplaceBase":     {},
	"boxDeliveryMarketplaceCoefExpr": {},
	"boxDeliveryMarketplaceLiter":    {},
	"boxStorageBase":                 {},
	"boxStorageCoefExpr":             {},
	"boxStorageLiter":                {},
	"geoName":                        {},
	"warehouseName":                  {},
}

// SortSpec describes the export ordering taken from configuration.
type SortSpec struct {
	Column    string
	Ascending bool
}

// ResolveSortColumn validates requested against the whitelist, falling
// back to DefaultSortColumn with a warning when it does not match.
func ResolveSortColumn(requested string, logger *slog.Logger) string {
	if _, ok := exportSortColumns[requested]; ok {
		return requested
	}
	if logger != nil {
		logger.Warn("export sort column not on whitelist, using default",
			slog.String("requested", requested),
			slog.String("default", DefaultSortColumn))
	}
	return DefaultSortColumn
}

// Repository persists tariff dates and warehouses in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs a tariff repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

const warehouseColumns = `tariff_date, "boxDeliveryBase", "boxDeliveryCoefExpr", "boxDeliveryLiter",
	"boxDeliveryMarketplaceBase", "boxDeliveryMarketplaceCoefExpr", "boxDeliveryMarketplaceLiter",
	"boxStorageBase", "boxStorageCoefExpr", "boxStorageLiter", "geoName", "warehouseName",
	created_at, updated_at`

// FindDate returns the metadata record for one date.
func (r *Repository) FindDate(ctx context.Context, date string) (TariffDate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT date, "dtNextBox", "dtTillMax", created_at, updated_at FROM tariff_dates WHERE date = $1`, date)
	td, err := scanTariffDate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TariffDate{}, ErrDateNotFound
	}
	return td, err
}

// ListDates returns all tariff dates, newest first.
func (r *Repository) ListDates(ctx context.Context) ([]TariffDate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT date, "dtNextBox", "dtTillMax", created_at, updated_at FROM tariff_dates ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("tariffs: list dates: %w", err)
	}
	defer rows.Close()

	var dates []TariffDate
	for rows.Next() {
		td, err := scanTariffDate(rows)
		if err != nil {
			return nil, fmt.Errorf("tariffs: scan date: %w", err)
		}
		dates = append(dates, td)
	}
	return dates, rows.Err()
}

// WarehousesByDate returns the warehouse rows for one date.
func (r *Repository) WarehousesByDate(ctx context.Context, date string) ([]TariffWarehouse, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+warehouseColumns+` FROM tariff_warehouses WHERE tariff_date = $1`, date)
	if err != nil {
		return nil, fmt.Errorf("tariffs: warehouses by date: %w", err)
	}
	defer rows.Close()
	return collectWarehouses(rows)
}

// ListWarehouses returns every warehouse row across all dates.
func (r *Repository) ListWarehouses(ctx context.Context) ([]TariffWarehouse, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+warehouseColumns+` FROM tariff_warehouses`)
	if err != nil {
		return nil, fmt.Errorf("tariffs: list warehouses: %w", err)
	}
	defer rows.Close()
	return collectWarehouses(rows)
}

// FindDateDetail returns a date with its warehouses, or ErrDateNotFound.
func (r *Repository) FindDateDetail(ctx context.Context, date string) (TariffDateDetail, error) {
	td, err := r.FindDate(ctx, date)
	if err != nil {
		return TariffDateDetail{}, err
	}
	warehouses, err := r.WarehousesByDate(ctx, date)
	if err != nil {
		return TariffDateDetail{}, err
	}
	return TariffDateDetail{TariffDate: td, Warehouses: warehouses}, nil
}

// ReplaceForDate atomically replaces the warehouse set for one date. The
// metadata record is updated in place when it already exists, otherwise
// inserted; either way the previous warehouse rows are deleted and the
// new set bulk-inserted within the same transaction. Returns whether an
// existing date record was updated.
func (r *Repository) ReplaceForDate(ctx context.Context, date string, dtNextBox, dtTillMax *string, warehouses []TariffWarehouse) (bool, error) {
	var isUpdate bool

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tariff_dates WHERE date = $1)`, date).Scan(&exists); err != nil {
			return fmt.Errorf("tariffs: check date: %w", err)
		}

		if exists {
			isUpdate = true
			if _, err := tx.Exec(ctx,
				`UPDATE tariff_dates SET "dtNextBox" = $2, "dtTillMax" = $3, updated_at = now() WHERE date = $1`,
				date, dtNextBox, dtTillMax); err != nil {
				return fmt.Errorf("tariffs: update date: %w", err)
			}

			tag, err := tx.Exec(ctx, `DELETE FROM tariff_warehouses WHERE tariff_date = $1`, date)
			if err != nil {
				return fmt.Errorf("tariffs: delete warehouses: %w", err)
			}
			if tag.RowsAffected() > 0 {
				r.logger.Info("deleted existing warehouse rows",
					slog.String("date", date),
					slog.Int64("count", tag.RowsAffected()))
			}
		} else {
			if _, err := tx.Exec(ctx,
				`INSERT INTO tariff_dates (date, "dtNextBox", "dtTillMax") VALUES ($1, $2, $3)`,
				date, dtNextBox, dtTillMax); err != nil {
				return fmt.Errorf("tariffs: insert date: %w", err)
			}
		}

		if len(warehouses) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, w := range warehouses {
			batch.Queue(`INSERT INTO tariff_warehouses
				(tariff_date, "boxDeliveryBase", "boxDeliveryCoefExpr", "boxDeliveryLiter",
				 "boxDeliveryMarketplaceBase", "boxDeliveryMarketplaceCoefExpr", "boxDeliveryMarketplaceLiter",
				 "boxStorageBase", "boxStorageCoefExpr", "boxStorageLiter", "geoName", "warehouseName")
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				date,
				w.BoxDeliveryBase, w.BoxDeliveryCoefExpr, w.BoxDeliveryLiter,
				w.BoxDeliveryMarketplaceBase, w.BoxDeliveryMarketplaceCoefExpr, w.BoxDeliveryMarketplaceLiter,
				w.BoxStorageBase, w.BoxStorageCoefExpr, w.BoxStorageLiter,
				w.GeoName, w.WarehouseName)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("tariffs: insert warehouses: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return isUpdate, nil
}

// ExportRows runs the left join of tariff_dates to tariff_warehouses with
// the configured ordering. An empty dateFilter selects all dates. The
// sort column is resolved against the whitelist before query assembly;
// null sort values always come last.
func (r *Repository) ExportRows(ctx context.Context, dateFilter string, sort SortSpec) ([]ExportRow, error) {
	query := `SELECT
		tariff_dates.updated_at,
		tariff_dates."dtNextBox",
		tariff_dates."dtTillMax",
		tariff_warehouses.tariff_date,
		tariff_warehouses."boxDeliveryBase",
		tariff_warehouses."boxDeliveryCoefExpr",
		tariff_warehouses."boxDeliveryLiter",
		tariff_warehouses."boxDeliveryMarketplaceBase",
		tariff_warehouses."boxDeliveryMarketplaceCoefExpr",
		tariff_warehouses."boxDeliveryMarketplaceLiter",
		tariff_warehouses."boxStorageBase",
		tariff_warehouses."boxStorageCoefExpr",
		tariff_warehouses."boxStorageLiter",
		tariff_warehouses."geoName",
		tariff_warehouses."warehouseName"
	FROM tariff_dates
	LEFT JOIN tariff_warehouses ON tariff_dates.date = tariff_warehouses.tariff_date`

	args := []any{}
	if dateFilter != "" {
		query += ` WHERE tariff_dates.date = $1`
		args = append(args, dateFilter)
	}

	column := ResolveSortColumn(sort.Column, r.logger)
	direction := "DESC"
	if sort.Ascending {
		direction = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY tariff_warehouses.%q %s NULLS LAST`, column, direction)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tariffs: export rows: %w", err)
	}
	defer rows.Close()

	var result []ExportRow
	for rows.Next() {
		var (
			row        ExportRow
			dtNextBox  pgtype.Date
			dtTillMax  pgtype.Date
			tariffDate pgtype.Date
		)
		if err := rows.Scan(
			&row.UpdatedAt, &dtNextBox, &dtTillMax, &tariffDate,
			&row.BoxDeliveryBase, &row.BoxDeliveryCoefExpr, &row.BoxDeliveryLiter,
			&row.BoxDeliveryMarketplaceBase, &row.BoxDeliveryMarketplaceCoefExpr, &row.BoxDeliveryMarketplaceLiter,
			&row.BoxStorageBase, &row.BoxStorageCoefExpr, &row.BoxStorageLiter,
			&row.GeoName, &row.WarehouseName,
		); err != nil {
			return nil, fmt.Errorf("tariffs: scan export row: %w", err)
		}
		row.DtNextBox = dateToString(dtNextBox)
		row.DtTillMax = dateToString(dtTillMax)
		row.TariffDate = dateToString(tariffDate)
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanTariffDate(row pgx.Row) (TariffDate, error) {
	var (
		td        TariffDate
		date      pgtype.Date
		dtNextBox pgtype.Date
		dtTillMax pgtype.Date
	)
	if err := row.Scan(&date, &dtNextBox, &dtTillMax, &td.CreatedAt, &td.UpdatedAt); err != nil {
		return TariffDate{}, err
	}
	if date.Valid {
		td.Date = date.Time.Format(dateLayout)
	}
	td.DtNextBox = dateToString(dtNextBox)
	td.DtTillMax = dateToString(dtTillMax)
	return td, nil
}

func collectWarehouses(rows pgx.Rows) ([]TariffWarehouse, error) {
	var warehouses []TariffWarehouse
	for rows.Next() {
		var (
			w          TariffWarehouse
			tariffDate pgtype.Date
		)
		if err := rows.Scan(
			&tariffDate,
			&w.BoxDeliveryBase, &w.BoxDeliveryCoefExpr, &w.BoxDeliveryLiter,
			&w.BoxDeliveryMarketplaceBase, &w.BoxDeliveryMarketplaceCoefExpr, &w.BoxDeliveryMarketplaceLiter,
			&w.BoxStorageBase, &w.BoxStorageCoefExpr, &w.BoxStorageLiter,
			&w.GeoName, &w.WarehouseName,
			&w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("tariffs: scan warehouse: %w", err)
		}
		if tariffDate.Valid {
			w.TariffDate = tariffDate.Time.Format(dateLayout)
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

const dateLayout = "2006-01-02"

func dateToString(d pgtype.Date) *string {
	if !d.Valid {
		return nil
	}
	s := d.Time.Format(dateLayout)
	return &s
}
