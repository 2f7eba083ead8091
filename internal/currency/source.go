package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Source supplies the latest exchange rates for a base currency, keyed
// by target currency code.
type Source interface {
	Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// HTTPSource fetches rates from an exchangerate-api style endpoint:
// GET {baseURL}/{base} returning {"result": "success",
// "conversion_rates": {"KZT": 450.1, ...}}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates an HTTPSource. The timeout bounds the whole
// request; rate fetches sit on the user's critical path and must stay
// sub-second.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type ratesResponse struct {
	Result          string                 `json:"result"`
	ConversionRates map[string]json.Number `json:"conversion_rates"`
}

// Rates fetches the latest rates for base, filtered to the supported
// currency set.
func (s *HTTPSource) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, base)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rate source error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding rates: %w", err)
	}
	if parsed.Result != "" && parsed.Result != "success" {
		return nil, fmt.Errorf("rate source returned result %q", parsed.Result)
	}

	rates := make(map[string]decimal.Decimal)
	for code, num := range parsed.ConversionRates {
		if !IsSupported(code) {
			continue
		}
		rate, err := decimal.NewFromString(num.String())
		if err != nil {
			continue
		}
		if rate.IsPositive() {
			rates[code] = rate
		}
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("rate source returned no usable rates for %s", base)
	}
	return rates, nil
}
