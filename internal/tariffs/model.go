// Package tariffs implements the warehouse box-tariff sync and export domain.
package tariffs

import (
	"time"

	"github.com/shopspring/decimal"
)

// TariffDate is the per-date tariff metadata record. Date is the primary
// identity, formatted YYYY-MM-DD.
type TariffDate struct {
	Date      string    `json:"date"`
	DtNextBox *string   `json:"dtNextBox"`
	DtTillMax *string   `json:"dtTillMax"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TariffWarehouse is one warehouse tariff row owned by a TariffDate. The
// decimal fields carry 3-decimal precision and are null when the upstream
// provider reported the value as unknown.
type TariffWarehouse struct {
	TariffDate                     string              `json:"tariff_date"`
	BoxDeliveryBase                decimal.NullDecimal `json:"boxDeliveryBase"`
	BoxDeliveryCoefExpr            decimal.NullDecimal `json:"boxDeliveryCoefExpr"`
	BoxDeliveryLiter               decimal.NullDecimal `json:"boxDeliveryLiter"`
	BoxDeliveryMarketplaceBase     decimal.NullDecimal `json:"boxDeliveryMarketplaceBase"`
	BoxDeliveryMarketplaceCoefExpr decimal.NullDecimal `json:"boxDeliveryMarketplaceCoefExpr"`
	BoxDeliveryMarketplaceLiter    decimal.NullDecimal `json:"boxDeliveryMarketplaceLiter"`
	BoxStorageBase                 decimal.NullDecimal `json:"boxStorageBase"`
	BoxStorageCoefExpr             decimal.NullDecimal `json:"boxStorageCoefExpr"`
	BoxStorageLiter                decimal.NullDecimal `json:"boxStorageLiter"`
	GeoName                        *string             `json:"geoName"`
	WarehouseName                  *string             `json:"warehouseName"`
	CreatedAt                      time.Time           `json:"created_at"`
	UpdatedAt                      time.Time           `json:"updated_at"`
}

// TariffDateDetail combines a date record with its warehouses.
type TariffDateDetail struct {
	TariffDate
	Warehouses []TariffWarehouse `json:"warehouses"`
}

// ExportRow is the joined projection written to spreadsheet destinations.
// Warehouse-side fields are null for dates without warehouses (left join).
type ExportRow struct {
	UpdatedAt                      time.Time
	DtNextBox                      *string
	DtTillMax                      *string
	TariffDate                     *string
	BoxDeliveryBase                decimal.NullDecimal
	BoxDeliveryCoefExpr            decimal.NullDecimal
	BoxDeliveryLiter               decimal.NullDecimal
	BoxDeliveryMarketplaceBase     decimal.NullDecimal
	BoxDeliveryMarketplaceCoefExpr decimal.NullDecimal
	BoxDeliveryMarketplaceLiter    decimal.NullDecimal
	BoxStorageBase                 decimal.NullDecimal
	BoxStorageCoefExpr             decimal.NullDecimal
	BoxStorageLiter                decimal.NullDecimal
	GeoName                        *string
	WarehouseName                  *string
}

// SyncResult reports the outcome of one sync run for a date.
type SyncResult struct {
	Date           string `json:"date"`
	WarehouseCount int    `json:"warehousesCount"`
	IsUpdate       bool   `json:"isUpdate"`
}
