// Package sheets wraps the Google Sheets API behind the narrow surface
// the exporter needs.
package sheets

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// clearRange covers the whole default sheet; exports never use more than
// the fifteen header columns.
const clearRange = "A:Z"

// Client talks to the Google Sheets API using a service-account key file.
type Client struct {
	svc *gsheets.Service
}

// NewClient authenticates with the service-account credential file at
// keyFilePath. Missing files are rejected up front so callers can degrade
// to a credentials-unavailable exporter instead of failing mid-export.
func NewClient(ctx context.Context, keyFilePath string) (*Client, error) {
	if _, err := os.Stat(keyFilePath); err != nil {
		return nil, fmt.Errorf("platform/sheets: service account key file: %w", err)
	}

	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(keyFilePath),
		option.WithScopes(gsheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("platform/sheets: new service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Clear wipes all existing content from the destination sheet.
func (c *Client) Clear(ctx context.Context, spreadsheetID string) error {
	_, err := c.svc.Spreadsheets.Values.
		Clear(spreadsheetID, clearRange, &gsheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("platform/sheets: clear %s: %w", spreadsheetID, err)
	}
	return nil
}

// WriteHeader writes the header row at A1.
func (c *Client) WriteHeader(ctx context.Context, spreadsheetID string, header []string) error {
	vr := &gsheets.ValueRange{Values: [][]any{toValues(header)}}
	_, err := c.svc.Spreadsheets.Values.
		Update(spreadsheetID, "A1", vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("platform/sheets: write header %s: %w", spreadsheetID, err)
	}
	return nil
}

// AppendRows appends data rows below the existing content.
func (c *Client) AppendRows(ctx context.Context, spreadsheetID string, rows [][]string) error {
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, toValues(row))
	}
	vr := &gsheets.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.
		Append(spreadsheetID, "A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("platform/sheets: append rows %s: %w", spreadsheetID, err)
	}
	return nil
}

func toValues(row []string) []any {
	values := make([]any, len(row))
	for i, cell := range row {
		values[i] = cell
	}
	return values
}
