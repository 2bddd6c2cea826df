package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rate is one currency observation from the data source. The rate is kept
// as the source string; NBKR publishes comma decimal separators.
type Rate struct {
	Currency string
	Rate     string
}

// GoldPrice is one bullion bar row from the data source.
type GoldPrice struct {
	Mass      string
	BuyPrice  string
	SellPrice string
}

// RateFetcher retrieves the current exchange rates against KGS.
type RateFetcher interface {
	FetchRates(ctx context.Context) ([]Rate, error)
}

// GoldFetcher retrieves measured gold bullion prices.
type GoldFetcher interface {
	FetchGoldPrices(ctx context.Context) ([]GoldPrice, error)
}

// Fetcher combines both data source capabilities.
type Fetcher interface {
	RateFetcher
	GoldFetcher
}

// FetchError marks a data source failure; callers abort the current
// cycle and wait for the next scheduled trigger.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseRate normalises a source rate string (either decimal separator,
// possible grouping spaces) into a decimal.
func ParseRate(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	return decimal.NewFromString(cleaned)
}
