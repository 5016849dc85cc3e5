package market

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// BaseCurrency is the currency every rate is quoted against.
const BaseCurrency = "USD"

// Rates is the latest exchange rate table.
type Rates struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

// Rate returns the rate for code relative to the base currency. The base
// currency itself is 1.
func (r *Rates) Rate(code string) (float64, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == r.base() {
		return 1, true
	}
	v, ok := r.Rates[code]
	return v, ok
}

// Codes returns every currency code in the table, base included, sorted.
func (r *Rates) Codes() []string {
	out := make([]string, 0, len(r.Rates)+1)
	out = append(out, r.base())
	for code := range r.Rates {
		if code != r.base() {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Rates) base() string {
	if r.Base == "" {
		return BaseCurrency
	}
	return strings.ToUpper(r.Base)
}

// Convert converts amount from one currency to another through the base
// currency: amount * rates[to] / rates[from].
func Convert(r *Rates, amount float64, from, to string) (float64, error) {
	fromRate, ok := r.Rate(from)
	if !ok || fromRate == 0 {
		return 0, errors.NewUnknownCurrencyError(from)
	}
	toRate, ok := r.Rate(to)
	if !ok {
		return 0, errors.NewUnknownCurrencyError(to)
	}
	return amount * toRate / fromRate, nil
}

// Forex returns the latest USD-based rates.
func (c *Client) Forex(ctx context.Context) (*Rates, error) {
	body, err := c.get(ctx, VendorFrankfurter, "forex", c.frankfurterURL+"/latest?from="+BaseCurrency, "application/json")
	if err != nil {
		return nil, err
	}

	var rates Rates
	if err := json.Unmarshal(body, &rates); err != nil {
		return nil, decodeError(VendorFrankfurter, err)
	}
	if len(rates.Rates) == 0 {
		return nil, errors.NewUpstreamNoDataError(VendorFrankfurter, "latest rates")
	}
	return &rates, nil
}
