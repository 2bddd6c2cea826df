package fetcher

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	dailyRatesPath = "/XML/daily.xml"
)

// goldPaths are checked in order; NBKR moves the bullion table around.
var goldPaths = []string{
	"/index1.jsp?item=1563&lang=RUS",
	"/index1.jsp?item=1564&lang=RUS",
}

// NBKROptions parameterise the NBKR data source fetcher.
type NBKROptions struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	Currencies []string
}

// NBKR fetches exchange rates and gold prices from the National Bank of
// the Kyrgyz Republic.
type NBKR struct {
	opts    NBKROptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	wanted  map[string]struct{}
}

// NewNBKR constructs an NBKR fetcher.
func NewNBKR(opts NBKROptions, logger zerolog.Logger) *NBKR {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.nbkr.kg"
	}

	wanted := make(map[string]struct{}, len(opts.Currencies))
	for _, code := range opts.Currencies {
		wanted[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}

	return &NBKR{
		opts:    opts,
		logger:  logger.With().Str("component", "nbkr_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		wanted:  wanted,
	}
}

type dailyRatesXML struct {
	XMLName    xml.Name `xml:"CurrencyRates"`
	Date       string   `xml:"Date,attr"`
	Currencies []struct {
		ISOCode string `xml:"ISOCode,attr"`
		Nominal string `xml:"Nominal"`
		Value   string `xml:"Value"`
	} `xml:"Currency"`
}

// FetchRates retrieves the daily KGS exchange rates for the configured
// currency set.
func (n *NBKR) FetchRates(ctx context.Context) ([]Rate, error) {
	payload, err := n.get(ctx, n.baseURL+dailyRatesPath)
	if err != nil {
		return nil, &FetchError{Source: "rates", Err: err}
	}

	var doc dailyRatesXML
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, &FetchError{Source: "rates", Err: fmt.Errorf("decode daily rates: %w", err)}
	}

	rates := make([]Rate, 0, len(n.wanted))
	for _, entry := range doc.Currencies {
		code := strings.ToUpper(strings.TrimSpace(entry.ISOCode))
		if len(n.wanted) > 0 {
			if _, ok := n.wanted[code]; !ok {
				continue
			}
		}

		value, parseErr := ParseRate(entry.Value)
		if parseErr != nil {
			n.logger.Warn().Str("currency", code).Str("value", entry.Value).Msg("skipping unparsable rate")
			continue
		}

		// Rates are quoted per Nominal units (e.g. 100 KZT).
		if nominal, nomErr := ParseRate(entry.Nominal); nomErr == nil && !nominal.IsZero() && !nominal.Equal(decimal.NewFromInt(1)) {
			value = value.Div(nominal)
		}

		rates = append(rates, Rate{Currency: code, Rate: value.String()})
	}

	if len(rates) == 0 {
		return nil, &FetchError{Source: "rates", Err: errors.New("no rates found in daily feed")}
	}

	n.logger.Debug().Int("count", len(rates)).Str("feed_date", doc.Date).Msg("rates fetched")
	return rates, nil
}

var (
	rowPattern  = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellPattern = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)
	tagPattern  = regexp.MustCompile(`(?s)<[^>]*>`)
	numPattern  = regexp.MustCompile(`^\d+(?:[.,]\d+)?$`)
)

// FetchGoldPrices scans the bullion price table. Rows are accepted when all
// three cells (mass, buy, sell) look numeric.
func (n *NBKR) FetchGoldPrices(ctx context.Context) ([]GoldPrice, error) {
	var lastErr error
	for _, path := range goldPaths {
		payload, err := n.get(ctx, n.baseURL+path)
		if err != nil {
			lastErr = err
			continue
		}

		prices := parseGoldTable(string(payload))
		if len(prices) > 0 {
			n.logger.Debug().Int("count", len(prices)).Str("path", path).Msg("gold prices fetched")
			return prices, nil
		}
		lastErr = errors.New("no bullion rows found")
	}

	return nil, &FetchError{Source: "gold", Err: lastErr}
}

func parseGoldTable(html string) []GoldPrice {
	var prices []GoldPrice
	for _, row := range rowPattern.FindAllStringSubmatch(html, -1) {
		cells := cellPattern.FindAllStringSubmatch(row[1], -1)
		if len(cells) < 3 {
			continue
		}

		mass := cleanCell(cells[0][1])
		buy := cleanCell(cells[1][1])
		sell := cleanCell(cells[2][1])

		if numPattern.MatchString(mass) && isPriceLike(buy) && isPriceLike(sell) {
			prices = append(prices, GoldPrice{Mass: mass, BuyPrice: buy, SellPrice: sell})
		}
	}
	return prices
}

func cleanCell(raw string) string {
	text := tagPattern.ReplaceAllString(raw, "")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, " ", " ")
	return strings.TrimSpace(text)
}

func isPriceLike(s string) bool {
	if s == "" {
		return false
	}
	compact := strings.ReplaceAll(s, " ", "")
	return numPattern.MatchString(compact)
}

func (n *NBKR) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(n.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nbkr responded %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

var _ Fetcher = (*NBKR)(nil)
