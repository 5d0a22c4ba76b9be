package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxtariffs/boxtariffs/internal/retry"
)

type fakeWriter struct {
	failIDs  map[string]error
	cleared  []string
	headers  map[string][]string
	appended map[string][][]string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		failIDs:  map[string]error{},
		headers:  map[string][]string{},
		appended: map[string][][]string{},
	}
}

func (f *fakeWriter) Clear(ctx context.Context, id string) error {
	if err := f.failIDs[id]; err != nil {
		return err
	}
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeWriter) WriteHeader(ctx context.Context, id string, header []string) error {
	f.headers[id] = header
	return nil
}

func (f *fakeWriter) AppendRows(ctx context.Context, id string, rows [][]string) error {
	f.appended[id] = rows
	return nil
}

func testConfig(ids ...string) Config {
	return Config{
		SpreadsheetIDs:   ids,
		DestinationDelay: time.Millisecond,
		Retry:            retry.Options{MaxAttempts: 2, BaseDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: time.Millisecond},
	}
}

func TestExportAllSuccess(t *testing.T) {
	writer := newFakeWriter()
	exporter := NewExporter(writer, testConfig("sheet-a", "sheet-b"), nil)

	header := []string{"updated_at", "warehouseName"}
	rows := [][]string{{"2026-01-15 09:00:00", "Koledino"}}

	outcome, err := exporter.ExportAll(context.Background(), header, rows)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Exported)
	assert.Equal(t, 0, outcome.Failed)
	assert.Empty(t, outcome.Errors)
	assert.Equal(t, 1, outcome.RowsExported)

	assert.Equal(t, []string{"sheet-a", "sheet-b"}, writer.cleared)
	assert.Equal(t, header, writer.headers["sheet-a"])
	assert.Equal(t, rows, writer.appended["sheet-b"])
}

func TestExportAllPartialFailure(t *testing.T) {
	writer := newFakeWriter()
	writer.failIDs["sheet-b"] = errors.New("quota exceeded")
	exporter := NewExporter(writer, testConfig("sheet-a", "sheet-b", "sheet-c"), nil)

	rows := [][]string{{"row"}}
	outcome, err := exporter.ExportAll(context.Background(), []string{"h"}, rows)
	require.NoError(t, err)

	assert.False(t, outcome.Success)
	assert.Equal(t, 2, outcome.Exported)
	assert.Equal(t, 1, outcome.Failed)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "sheet-b")
	assert.Contains(t, outcome.Errors[0], "quota exceeded")

	// The healthy destinations still received the full row set.
	assert.Equal(t, rows, writer.appended["sheet-a"])
	assert.Equal(t, rows, writer.appended["sheet-c"])
}

func TestExportAllNoDestinations(t *testing.T) {
	exporter := NewExporter(newFakeWriter(), testConfig(), nil)
	_, err := exporter.ExportAll(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoDestinations)
}

func TestExportAllMissingCredentials(t *testing.T) {
	exporter := NewExporter(nil, testConfig("sheet-a"), nil)
	_, err := exporter.ExportAll(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExportAllDelaysBetweenDestinationsOnly(t *testing.T) {
	writer := newFakeWriter()
	cfg := testConfig("a", "b", "c")
	exporter := NewExporter(writer, cfg, nil)

	var sleeps int
	exporter.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		assert.Equal(t, cfg.DestinationDelay, d)
		return nil
	}

	_, err := exporter.ExportAll(context.Background(), []string{"h"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sleeps, "no delay after the last destination")
}

func TestExportAllRetriesPerDestination(t *testing.T) {
	writer := newFakeWriter()
	attempts := 0
	failing := &flakyWriter{inner: writer, failures: 1, attempts: &attempts}
	exporter := NewExporter(failing, testConfig("sheet-a"), nil)

	outcome, err := exporter.ExportAll(context.Background(), []string{"h"}, [][]string{{"r"}})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 2, attempts, "first attempt fails, retry succeeds")
}

type flakyWriter struct {
	inner    *fakeWriter
	failures int
	attempts *int
}

func (f *flakyWriter) Clear(ctx context.Context, id string) error {
	*f.attempts++
	if *f.attempts <= f.failures {
		return errors.New("transient")
	}
	return f.inner.Clear(ctx, id)
}

func (f *flakyWriter) WriteHeader(ctx context.Context, id string, header []string) error {
	return f.inner.WriteHeader(ctx, id, header)
}

func (f *flakyWriter) AppendRows(ctx context.Context, id string, rows [][]string) error {
	return f.inner.AppendRows(ctx, id, rows)
}
