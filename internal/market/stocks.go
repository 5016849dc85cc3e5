package market

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// DefaultSymbol is charted when no symbol is given.
const DefaultSymbol = "AAPL"

// CandleDays is the number of trading days in a chart.
const CandleDays = 7

// Listing is a tracked stock.
type Listing struct {
	ID     string
	Ticker string
	Name   string
}

// Listings are the stocks the dashboard tracks, in display order.
var Listings = []Listing{
	{ID: "aapl", Ticker: "AAPL.US", Name: "Apple Inc."},
	{ID: "msft", Ticker: "MSFT.US", Name: "Microsoft"},
	{ID: "tsla", Ticker: "TSLA.US", Name: "Tesla"},
}

// Stock is one row of the stocks table.
type Stock struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
	Volume float64 `json:"volume"`
}

// Up reports whether the stock is trading above its open.
func (s Stock) Up() bool { return s.Change >= 0 }

// Candle is one trading day of a chart.
type Candle struct {
	Day   string  `json:"day"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Body  float64 `json:"body"`
	Up    bool    `json:"up"`
}

// Stocks quotes every listing concurrently. Listings whose quote cannot be
// parsed are left out; a failed request fails the whole call.
func (c *Client) Stocks(ctx context.Context) ([]Stock, error) {
	type result struct {
		stock Stock
		ok    bool
		err   error
	}
	results := make([]result, len(Listings))

	var wg sync.WaitGroup
	for i, l := range Listings {
		wg.Add(1)
		go func(i int, l Listing) {
			defer wg.Done()
			s, ok, err := c.quote(ctx, l)
			results[i] = result{stock: s, ok: ok, err: err}
		}(i, l)
	}
	wg.Wait()

	stocks := make([]Stock, 0, len(Listings))
	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if !r.ok {
			c.logger.WithContext(ctx).Warn("skipping unparsable quote", "symbol", Listings[i].Ticker)
			continue
		}
		stocks = append(stocks, r.stock)
	}
	return stocks, nil
}

func (c *Client) quote(ctx context.Context, l Listing) (Stock, bool, error) {
	u := c.stooqURL + "/q/l/?s=" + url.QueryEscape(strings.ToLower(l.Ticker)) + "&i=d"
	body, err := c.get(ctx, VendorStooq, "quote", u, "text/csv")
	if err != nil {
		return Stock{}, false, err
	}
	s, ok := parseQuote(body, l)
	return s, ok, nil
}

// parseQuote reads the first line of a headerless quote CSV:
// symbol,date,time,open,high,low,close,volume.
func parseQuote(body []byte, l Listing) (Stock, bool) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rec, err := r.Read()
	if err != nil || len(rec) < 8 {
		return Stock{}, false
	}
	open, err1 := parseFloat(rec[3])
	closing, err2 := parseFloat(rec[6])
	volume, err3 := parseFloat(rec[7])
	if err1 != nil || err2 != nil || err3 != nil || open == 0 {
		return Stock{}, false
	}

	return Stock{
		ID:     l.ID,
		Symbol: strings.SplitN(l.Ticker, ".", 2)[0],
		Name:   l.Name,
		Price:  closing,
		Change: (closing - open) / open * 100,
		Volume: volume,
	}, true
}

// OHLC returns up to CandleDays daily candles for symbol, oldest first. The
// vendor's final row can be a partial session and is dropped.
func (c *Client) OHLC(ctx context.Context, symbol string) ([]Candle, error) {
	symbol = NormalizeSymbol(symbol)
	u := c.stooqURL + "/q/d/l/?s=" + url.QueryEscape(strings.ToLower(symbol)+".us") + "&i=d"
	body, err := c.get(ctx, VendorStooq, "ohlc", u, "text/csv")
	if err != nil {
		return nil, err
	}

	candles, err := parseDaily(body)
	if err != nil {
		return nil, decodeError(VendorStooq, err)
	}
	if len(candles) == 0 {
		return nil, errors.NewUpstreamNoDataError(VendorStooq, symbol)
	}
	return candles, nil
}

// NormalizeSymbol upper-cases symbol and applies the default.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return DefaultSymbol
	}
	return symbol
}

// parseDaily reads a date,open,high,low,close[,volume] CSV. The header and
// rows that do not parse are skipped.
func parseDaily(body []byte) ([]Candle, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []Candle
	for _, rec := range records {
		if cndl, ok := parseCandle(rec); ok {
			rows = append(rows, cndl)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	rows = rows[:len(rows)-1]
	if len(rows) > CandleDays {
		rows = rows[len(rows)-CandleDays:]
	}
	return rows, nil
}

func parseCandle(rec []string) (Candle, bool) {
	if len(rec) < 5 {
		return Candle{}, false
	}
	day, err := time.Parse("2006-01-02", rec[0])
	if err != nil {
		return Candle{}, false
	}
	var v [4]float64
	for i := range v {
		f, err := parseFloat(rec[i+1])
		if err != nil {
			return Candle{}, false
		}
		v[i] = f
	}
	open, high, low, closing := v[0], v[1], v[2], v[3]
	return Candle{
		Day:   day.Format("Jan 2"),
		Open:  open,
		High:  high,
		Low:   low,
		Close: closing,
		Body:  math.Abs(closing - open),
		Up:    closing >= open,
	}, true
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func decodeError(vendor string, err error) error {
	return errors.NewUpstreamDecodeError(vendor, err)
}
