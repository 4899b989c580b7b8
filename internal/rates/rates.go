// Package rates provides crypto prices from an external oracle, with a redis
// cache in front so the oracle is not hit on every quote.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Source is the price oracle contract. Prices are in USD per unit.
type Source interface {
	GetCryptoPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// HTTPSource queries a price API over HTTP.
type HTTPSource struct {
	BaseURL string

	HTTPClient *http.Client
}

// NewHTTPSource creates a price source for the given API URL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) GetCryptoPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v1/prices?symbol=%s", s.BaseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "create request")
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "price request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price oracle returned status %d", resp.StatusCode)
	}

	var result struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, errors.Wrap(err, "decode price response")
	}

	if !result.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("price oracle returned non-positive price for %s", symbol)
	}

	return result.Price, nil
}
