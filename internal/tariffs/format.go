package tariffs

import (
	"time"

	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02 15:04:05"

// ExportHeader is the fixed header row written to every destination.
func ExportHeader() []string {
	return []string{
		"updated_at",
		"dtNextBox",
		"dtTillMax",
		"tariff_date",
		"boxDeliveryBase",
		"boxDeliveryCoefExpr",
		"boxDeliveryLiter",
		"boxDeliveryMarketplaceBase",
		"boxDeliveryMarketplaceCoefExpr",
		"boxDeliveryMarketplaceLiter",
		"boxStorageBase",
		"boxStorageCoefExpr",
		"boxStorageLiter",
		"geoName",
		"warehouseName",
	}
}

// FormatExportRows renders rows for spreadsheet consumption: dates as
// YYYY-MM-DD, timestamps as YYYY-MM-DD HH:MM:SS in UTC, decimals with the
// configured separator, nulls as empty strings.
func FormatExportRows(rows []ExportRow, decimalSeparator string) [][]string {
	formatted := make([][]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, []string{
			formatTimestamp(row.UpdatedAt),
			formatDate(row.DtNextBox),
			formatDate(row.DtTillMax),
			formatDate(row.TariffDate),
			formatDecimal(row.BoxDeliveryBase, decimalSeparator),
			formatDecimal(row.BoxDeliveryCoefExpr, decimalSeparator),
			formatDecimal(row.BoxDeliveryLiter, decimalSeparator),
			formatDecimal(row.BoxDeliveryMarketplaceBase, decimalSeparator),
			formatDecimal(row.BoxDeliveryMarketplaceCoefExpr, decimalSeparator),
			formatDecimal(row.BoxDeliveryMarketplaceLiter, decimalSeparator),
			formatDecimal(row.BoxStorageBase, decimalSeparator),
			formatDecimal(row.BoxStorageCoefExpr, decimalSeparator),
			formatDecimal(row.BoxStorageLiter, decimalSeparator),
			deref(row.GeoName),
			deref(row.WarehouseName),
		})
	}
	return formatted
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func formatDate(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDecimal(d decimal.NullDecimal, separator string) string {
	if !d.Valid {
		return ""
	}
	canonical := d.Decimal.String()
	if separator == "" || separator == "." {
		return canonical
	}
	out := make([]byte, 0, len(canonical)+len(separator))
	for i := 0; i < len(canonical); i++ {
		if canonical[i] == '.' {
			out = append(out, separator...)
			continue
		}
		out = append(out, canonical[i])
	}
	return string(out)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
