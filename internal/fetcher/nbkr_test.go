package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const dailyXML = `<?xml version="1.0" encoding="UTF-8"?>
<CurrencyRates Name="Daily Exchange Rates" Date="01.09.2026">
  <Currency ISOCode="USD"><Nominal>1</Nominal><Value>87,4500</Value></Currency>
  <Currency ISOCode="EUR"><Nominal>1</Nominal><Value>95,2000</Value></Currency>
  <Currency ISOCode="KZT"><Nominal>100</Nominal><Value>16,2000</Value></Currency>
  <Currency ISOCode="GBP"><Nominal>1</Nominal><Value>110,0000</Value></Currency>
</CurrencyRates>`

const goldHTML = `<html><body>
<table>
<tr><th>Масса</th><th>Покупка</th><th>Продажа</th></tr>
<tr><td>1</td><td>9500,00</td><td>9700,00</td></tr>
<tr><td>31,1035</td><td>295000,50</td><td>299000,00</td></tr>
<tr><td>итого</td><td>-</td><td>-</td></tr>
</table>
</body></html>`

func newTestNBKR(t *testing.T, handler http.HandlerFunc) *NBKR {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewNBKR(NBKROptions{
		BaseURL:    srv.URL,
		Timeout:    time.Second,
		UserAgent:  "test",
		Currencies: []string{"USD", "EUR", "KZT"},
	}, noopLogger())
}

func TestFetchRatesNormalizesAndFilters(t *testing.T) {
	n := newTestNBKR(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "daily.xml") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(dailyXML))
	})

	rates, err := n.FetchRates(context.Background())
	if err != nil {
		t.Fatalf("FetchRates failed: %v", err)
	}
	if len(rates) != 3 {
		t.Fatalf("expected 3 rates (GBP filtered out), got %d", len(rates))
	}

	byCode := make(map[string]string)
	for _, rate := range rates {
		byCode[rate.Currency] = rate.Rate
	}

	usd, err := ParseRate(byCode["USD"])
	if err != nil {
		t.Fatalf("USD rate should parse: %v", err)
	}
	if !usd.Equal(decimal.RequireFromString("87.45")) {
		t.Fatalf("USD rate mismatch: %s", usd)
	}

	// KZT is quoted per 100 units and must come back per unit.
	kzt, err := ParseRate(byCode["KZT"])
	if err != nil {
		t.Fatalf("KZT rate should parse: %v", err)
	}
	if !kzt.Equal(decimal.RequireFromString("0.162")) {
		t.Fatalf("KZT rate should be divided by nominal, got %s", kzt)
	}
}

func TestFetchRatesHTTPError(t *testing.T) {
	n := newTestNBKR(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := n.FetchRates(context.Background())
	if err == nil {
		t.Fatal("expected error for HTTP 503")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Source != "rates" {
		t.Fatalf("unexpected source: %s", fetchErr.Source)
	}
}

func TestFetchGoldPrices(t *testing.T) {
	n := newTestNBKR(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(goldHTML))
	})

	prices, err := n.FetchGoldPrices(context.Background())
	if err != nil {
		t.Fatalf("FetchGoldPrices failed: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 bullion rows, got %d", len(prices))
	}
	if prices[0].Mass != "1" || prices[0].BuyPrice != "9500,00" {
		t.Fatalf("unexpected first row: %+v", prices[0])
	}
}

func TestFetchGoldPricesNoRows(t *testing.T) {
	n := newTestNBKR(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>nothing here</body></html>"))
	})

	if _, err := n.FetchGoldPrices(context.Background()); err == nil {
		t.Fatal("expected error when no bullion rows found")
	}
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"87,4500", "87.45", true},
		{"87.4500", "87.45", true},
		{" 1 234,5 ", "1234.5", true},
		{"abc", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, err := ParseRate(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseRate(%q) error = %v, ok = %v", tc.in, err, tc.ok)
		}
		if err == nil && !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("ParseRate(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
