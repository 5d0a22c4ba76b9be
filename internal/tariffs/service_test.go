package tariffs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxtariffs/boxtariffs/internal/export"
	"github.com/boxtariffs/boxtariffs/internal/retry"
	"github.com/boxtariffs/boxtariffs/internal/shared"
)

type stubFetcher struct {
	payloads map[string]*BoxTariffs
	err      error
	failures int
	calls    int
}

func (f *stubFetcher) FetchBoxTariffs(ctx context.Context, date string) (*BoxTariffs, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.payloads[date]; ok {
		return p, nil
	}
	return &BoxTariffs{}, nil
}

type stubStore struct {
	warehouses map[string][]TariffWarehouse
	dates      map[string]TariffDate
	exportRows []ExportRow
	replaceErr error
	lastSort   SortSpec
}

func newStubStore() *stubStore {
	return &stubStore{
		warehouses: map[string][]TariffWarehouse{},
		dates:      map[string]TariffDate{},
	}
}

func (s *stubStore) FindDate(ctx context.Context, date string) (TariffDate, error) {
	td, ok := s.dates[date]
	if !ok {
		return TariffDate{}, ErrDateNotFound
	}
	return td, nil
}

func (s *stubStore) FindDateDetail(ctx context.Context, date string) (TariffDateDetail, error) {
	td, err := s.FindDate(ctx, date)
	if err != nil {
		return TariffDateDetail{}, err
	}
	return TariffDateDetail{TariffDate: td, Warehouses: s.warehouses[date]}, nil
}

func (s *stubStore) ListDates(ctx context.Context) ([]TariffDate, error) {
	var dates []TariffDate
	for _, td := range s.dates {
		dates = append(dates, td)
	}
	return dates, nil
}

func (s *stubStore) WarehousesByDate(ctx context.Context, date string) ([]TariffWarehouse, error) {
	return s.warehouses[date], nil
}

func (s *stubStore) ListWarehouses(ctx context.Context) ([]TariffWarehouse, error) {
	var all []TariffWarehouse
	for _, ws := range s.warehouses {
		all = append(all, ws...)
	}
	return all, nil
}

func (s *stubStore) ReplaceForDate(ctx context.Context, date string, dtNextBox, dtTillMax *string, warehouses []TariffWarehouse) (bool, error) {
	if s.replaceErr != nil {
		return false, s.replaceErr
	}
	_, isUpdate := s.dates[date]
	s.dates[date] = TariffDate{Date: date, DtNextBox: dtNextBox, DtTillMax: dtTillMax}
	s.warehouses[date] = warehouses
	return isUpdate, nil
}

func (s *stubStore) ExportRows(ctx context.Context, dateFilter string, sort SortSpec) ([]ExportRow, error) {
	s.lastSort = sort
	return s.exportRows, nil
}

type stubExporter struct {
	outcome    export.Outcome
	err        error
	calls      int
	lastHeader []string
	lastRows   [][]string
}

func (e *stubExporter) ExportAll(ctx context.Context, header []string, rows [][]string) (export.Outcome, error) {
	e.calls++
	e.lastHeader = header
	e.lastRows = rows
	if e.err != nil {
		return export.Outcome{}, e.err
	}
	out := e.outcome
	out.RowsExported = len(rows)
	return out, nil
}

func fastRetry() retry.Options {
	return retry.Options{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Millisecond}
}

func newTestService(store *stubStore, fetcher *stubFetcher, exporter *stubExporter) *Service {
	return NewService(store, fetcher, exporter, ServiceOptions{Retry: fastRetry()})
}

func samplePayload() *BoxTariffs {
	return &BoxTariffs{
		DtNextBox: "2026-02-01",
		DtTillMax: "-",
		Warehouses: []WarehouseRecord{
			{
				BoxDeliveryBase:     "47,5",
				BoxDeliveryCoefExpr: "160",
				BoxStorageBase:      "-",
				GeoName:             "Moscow region",
				WarehouseName:       "Koledino",
			},
			{
				BoxDeliveryBase: "12",
				WarehouseName:   "Kazan",
			},
		},
	}
}

func TestSyncPersistsNormalizedPayload(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()}}
	svc := newTestService(store, fetcher, &stubExporter{})

	result, err := svc.Sync(context.Background(), "2026-01-15")
	require.NoError(t, err)

	assert.Equal(t, "2026-01-15", result.Date)
	assert.Equal(t, 2, result.WarehouseCount)
	assert.False(t, result.IsUpdate)

	td := store.dates["2026-01-15"]
	require.NotNil(t, td.DtNextBox)
	assert.Equal(t, "2026-02-01", *td.DtNextBox)
	assert.Nil(t, td.DtTillMax, "sentinel date normalizes to null")

	ws := store.warehouses["2026-01-15"]
	require.Len(t, ws, 2)
	require.True(t, ws[0].BoxDeliveryBase.Valid)
	assert.Equal(t, "47.5", ws[0].BoxDeliveryBase.Decimal.String())
	assert.False(t, ws[0].BoxStorageBase.Valid)
	require.NotNil(t, ws[0].WarehouseName)
	assert.Equal(t, "Koledino", *ws[0].WarehouseName)
	assert.Nil(t, ws[1].GeoName)
}

func TestSyncReplaceIsIdempotentPerDate(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()}}
	svc := newTestService(store, fetcher, &stubExporter{})

	_, err := svc.Sync(context.Background(), "2026-01-15")
	require.NoError(t, err)

	// Second sync for the same date with a smaller payload leaves no residue.
	fetcher.payloads["2026-01-15"] = &BoxTariffs{
		Warehouses: []WarehouseRecord{{BoxDeliveryBase: "99", WarehouseName: "Tula"}},
	}
	result, err := svc.Sync(context.Background(), "2026-01-15")
	require.NoError(t, err)

	assert.True(t, result.IsUpdate)
	assert.Equal(t, 1, result.WarehouseCount)
	require.Len(t, store.warehouses["2026-01-15"], 1)
	assert.Equal(t, "Tula", *store.warehouses["2026-01-15"][0].WarehouseName)
}

func TestSyncEmptyWarehouseListIsValid(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": {DtNextBox: "2026-02-01"}}}
	svc := newTestService(store, fetcher, &stubExporter{})

	result, err := svc.Sync(context.Background(), "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, 0, result.WarehouseCount)
	assert.Empty(t, store.warehouses["2026-01-15"])
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{
		payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()},
		failures: 2,
	}
	svc := newTestService(store, fetcher, &stubExporter{})

	_, err := svc.Sync(context.Background(), "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.calls)
}

func TestSyncDoesNotRetryMalformedResponse(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{err: fmt.Errorf("%w: missing envelope", ErrMalformedResponse)}
	svc := newTestService(store, fetcher, &stubExporter{})

	_, err := svc.Sync(context.Background(), "2026-01-15")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 1, fetcher.calls)
}

func TestSyncInvalidDateFailsBeforeFetch(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := newTestService(newStubStore(), fetcher, &stubExporter{})

	_, err := svc.Sync(context.Background(), "15-01-2026")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Equal(t, 0, fetcher.calls)
}

type stubLocker struct {
	err      error
	released bool
}

func (l *stubLocker) Acquire(ctx context.Context, date string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func() { l.released = true }, nil
}

func TestSyncLockConflictFailsFast(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := NewService(newStubStore(), fetcher, &stubExporter{}, ServiceOptions{
		Retry:  fastRetry(),
		Locker: &stubLocker{err: shared.ErrSyncInProgress},
	})

	_, err := svc.Sync(context.Background(), "2026-01-15")
	assert.ErrorIs(t, err, shared.ErrSyncInProgress)
	assert.Equal(t, 0, fetcher.calls)
}

func TestSyncReleasesLock(t *testing.T) {
	locker := &stubLocker{}
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()}}
	svc := NewService(newStubStore(), fetcher, &stubExporter{}, ServiceOptions{
		Retry:  fastRetry(),
		Locker: locker,
	})

	_, err := svc.Sync(context.Background(), "2026-01-15")
	require.NoError(t, err)
	assert.True(t, locker.released)
}

func TestSyncAndExportHappyPath(t *testing.T) {
	store := newStubStore()
	store.exportRows = []ExportRow{
		{UpdatedAt: time.Now(), WarehouseName: strptr("Koledino")},
		{UpdatedAt: time.Now(), WarehouseName: strptr("Kazan")},
	}
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()}}
	exporter := &stubExporter{outcome: export.Outcome{Success: true, Exported: 2}}
	svc := newTestService(store, fetcher, exporter)

	result, err := svc.SyncAndExport(context.Background(), "2026-01-15")
	require.NoError(t, err)

	assert.Equal(t, 2, result.WarehouseCount)
	require.NotNil(t, result.Export)
	assert.True(t, result.Export.Success)
	assert.Equal(t, 2, result.Export.RowsExported)
	assert.Equal(t, 1, exporter.calls)
	assert.Equal(t, ExportHeader(), exporter.lastHeader)
	require.Len(t, exporter.lastRows, 2)
}

func TestSyncAndExportZeroRowsSkipsExporter(t *testing.T) {
	store := newStubStore()
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": {}}}
	exporter := &stubExporter{}
	svc := newTestService(store, fetcher, exporter)

	result, err := svc.SyncAndExport(context.Background(), "2026-01-15")
	require.NoError(t, err)

	assert.Nil(t, result.Export)
	assert.Equal(t, 0, exporter.calls)
}

func TestSyncAndExportSyncFailurePropagates(t *testing.T) {
	store := newStubStore()
	store.replaceErr = errors.New("tx aborted")
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()}}
	exporter := &stubExporter{}
	svc := newTestService(store, fetcher, exporter)

	_, err := svc.SyncAndExport(context.Background(), "2026-01-15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx aborted")
	assert.Equal(t, 0, exporter.calls)
}

func TestSyncAndExportConvertsExporterConfigError(t *testing.T) {
	store := newStubStore()
	store.exportRows = []ExportRow{{}, {}, {}}
	fetcher := &stubFetcher{payloads: map[string]*BoxTariffs{"2026-01-15": samplePayload()}}
	exporter := &stubExporter{err: export.ErrNoDestinations}
	svc := newTestService(store, fetcher, exporter)

	result, err := svc.SyncAndExport(context.Background(), "2026-01-15")
	require.NoError(t, err, "the durable sync result still reaches the caller")

	require.NotNil(t, result.Export)
	assert.False(t, result.Export.Success)
	assert.Equal(t, 0, result.Export.Exported)
	assert.Equal(t, 0, result.Export.Failed)
	assert.Equal(t, 3, result.Export.RowsExported)
	require.Len(t, result.Export.Errors, 1)
	assert.Contains(t, result.Export.Errors[0], "no spreadsheet destinations")
}

func TestGetExportRowsUsesConfiguredSort(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, &stubFetcher{}, &stubExporter{}, ServiceOptions{
		Retry: fastRetry(),
		Sort:  SortSpec{Column: "warehouseName", Ascending: true},
	})

	_, err := svc.GetExportRows(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, SortSpec{Column: "warehouseName", Ascending: true}, store.lastSort)
}

func TestGetExportRowsValidatesDateFilter(t *testing.T) {
	svc := newTestService(newStubStore(), &stubFetcher{}, &stubExporter{})
	_, err := svc.GetExportRows(context.Background(), "not-a-date")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestTodayUsesInjectedClock(t *testing.T) {
	svc := NewService(newStubStore(), &stubFetcher{}, &stubExporter{}, ServiceOptions{
		Now: func() time.Time { return time.Date(2026, 1, 15, 23, 30, 0, 0, time.FixedZone("UTC+3", 3*3600)) },
	})
	assert.Equal(t, "2026-01-15", svc.Today())
}
