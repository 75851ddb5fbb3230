// Package rates fetches live GBP exchange rates from an open.er-api.com
// shaped endpoint.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pkordes/tripmate/internal/domain"
)

// DefaultURL returns rates per one GBP.
const DefaultURL = "https://open.er-api.com/v6/latest/GBP"

// Client queries the rate source.
type Client struct {
	url  string
	http *http.Client
	now  func() time.Time
}

// NewClient returns a Client. Empty url uses DefaultURL.
func NewClient(url string, httpClient *http.Client) *Client {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: url, http: httpClient, now: time.Now}
}

type latestResponse struct {
	Result    string                     `json:"result"`
	BaseCode  string                     `json:"base_code"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	ErrorType string                     `json:"error-type"`
}

// Latest returns current rates. The result is a live reading:
// ManualOverride is false and LastUpdated is now.
func (c *Client) Latest(ctx context.Context) (domain.ExchangeRates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w: decode: %v", domain.ErrUpstream, err)
	}
	if body.Result != "success" {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w: result %q %s", domain.ErrUpstream, body.Result, body.ErrorType)
	}
	if body.BaseCode != "" && body.BaseCode != string(domain.BaseCurrency) {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w: base %q", domain.ErrUpstream, body.BaseCode)
	}

	thb, okTHB := body.Rates[string(domain.THB)]
	qar, okQAR := body.Rates[string(domain.QAR)]
	if !okTHB || !okQAR || !thb.IsPositive() || !qar.IsPositive() {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Client.Latest: %w: missing THB or QAR", domain.ErrUpstream)
	}

	now := c.now().UTC()
	return domain.ExchangeRates{
		GBP:         decimal.NewFromInt(1),
		THB:         thb,
		QAR:         qar,
		LastUpdated: &now,
	}, nil
}

// Refresh applies live rates to s unless the user pinned them with a
// manual override. A fetch failure leaves s untouched. It reports whether
// s changed.
func (c *Client) Refresh(ctx context.Context, s *domain.TripState) (bool, error) {
	if s.ExchangeRates.ManualOverride {
		return false, nil
	}
	live, err := c.Latest(ctx)
	if err != nil {
		return false, err
	}
	s.ExchangeRates = live
	return true, nil
}

// Manual pins rates to user-supplied values.
func Manual(thb, qar decimal.Decimal, now time.Time) (domain.ExchangeRates, error) {
	if !thb.IsPositive() || !qar.IsPositive() {
		return domain.ExchangeRates{}, fmt.Errorf("rates.Manual: %w: rates must be positive", domain.ErrValidation)
	}
	t := now.UTC()
	return domain.ExchangeRates{
		GBP:            decimal.NewFromInt(1),
		THB:            thb,
		QAR:            qar,
		LastUpdated:    &t,
		ManualOverride: true,
	}, nil
}
