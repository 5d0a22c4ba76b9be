package tariffs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrMalformedResponse marks upstream payloads that decode badly or lack
// the expected envelope. These are never retried.
var ErrMalformedResponse = errors.New("tariffs: malformed upstream response")

// flexString decodes a JSON field that may arrive as a string or a bare
// number, keeping the raw token for later normalization.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// BoxTariffs is the decoded per-date upstream payload.
type BoxTariffs struct {
	DtNextBox  string
	DtTillMax  string
	Warehouses []WarehouseRecord
}

// WarehouseRecord carries the raw per-warehouse values as reported
// upstream: plain numbers, comma-decimal strings, or the unknown sentinel.
type WarehouseRecord struct {
	BoxDeliveryBase                flexString `json:"boxDeliveryBase"`
	BoxDeliveryCoefExpr            flexString `json:"boxDeliveryCoefExpr"`
	BoxDeliveryLiter               flexString `json:"boxDeliveryLiter"`
	BoxDeliveryMarketplaceBase     flexString `json:"boxDeliveryMarketplaceBase"`
	BoxDeliveryMarketplaceCoefExpr flexString `json:"boxDeliveryMarketplaceCoefExpr"`
	BoxDeliveryMarketplaceLiter    flexString `json:"boxDeliveryMarketplaceLiter"`
	BoxStorageBase                 flexString `json:"boxStorageBase"`
	BoxStorageCoefExpr             flexString `json:"boxStorageCoefExpr"`
	BoxStorageLiter                flexString `json:"boxStorageLiter"`
	GeoName                        string     `json:"geoName"`
	WarehouseName                  string     `json:"warehouseName"`
}

type boxTariffsResponse struct {
	Response *struct {
		Data *struct {
			DtNextBox     flexString        `json:"dtNextBox"`
			DtTillMax     flexString        `json:"dtTillMax"`
			WarehouseList []WarehouseRecord `json:"warehouseList"`
		} `json:"data"`
	} `json:"response"`
}

// Client fetches box tariffs from the upstream provider API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs an upstream API client. The token is sent as the
// Authorization header on every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchBoxTariffs requests the tariff payload for one calendar date.
// Transport failures and non-2xx statuses are returned as-is so callers
// can retry them; undecodable payloads are marked permanent.
func (c *Client) FetchBoxTariffs(ctx context.Context, date string) (*BoxTariffs, error) {
	endpoint := fmt.Sprintf("%s/tariffs/box?date=%s", c.baseURL, url.QueryEscape(date))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("tariffs: build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tariffs: fetch box tariffs: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tariffs: upstream returned status %d", resp.StatusCode)
	}

	var payload boxTariffsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Response == nil || payload.Response.Data == nil {
		return nil, fmt.Errorf("%w: missing response.data envelope", ErrMalformedResponse)
	}

	data := payload.Response.Data
	return &BoxTariffs{
		DtNextBox:  string(data.DtNextBox),
		DtTillMax:  string(data.DtTillMax),
		Warehouses: data.WarehouseList,
	}, nil
}
