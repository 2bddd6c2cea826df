package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currency-rate-alerts/internal/alerts"
	"currency-rate-alerts/internal/dispatch"
	"currency-rate-alerts/internal/fetcher"
	"currency-rate-alerts/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Trigger records one alert that qualified during a cycle.
type Trigger struct {
	Alert     storage.Alert
	OldRate   decimal.Decimal
	NewRate   decimal.Decimal
	ChangePct decimal.Decimal
}

// CycleStats describes the most recent completed cycle.
type CycleStats struct {
	TrackedCurrencies int
	ActiveAlerts      int
	TriggeredAlerts   int
	LastCycle         time.Time
}

// Options tune the monitor.
type Options struct {
	// HistoryThresholdPct is the minimum change, in percent, that gets an
	// observation appended to the rate-history log.
	HistoryThresholdPct decimal.Decimal
}

// Monitor runs the periodic fetch-diff-match-notify cycle.
type Monitor struct {
	fetcher fetcher.RateFetcher
	alerts  *alerts.Service
	history storage.RateHistoryStore
	cache   *SnapshotCache
	sender  dispatch.Sender
	opts    Options
	logger  zerolog.Logger

	mu    sync.Mutex
	stats CycleStats
}

// New constructs the rate monitor.
func New(rates fetcher.RateFetcher, alertSvc *alerts.Service, history storage.RateHistoryStore, cache *SnapshotCache, sender dispatch.Sender, opts Options, logger zerolog.Logger) *Monitor {
	if opts.HistoryThresholdPct.IsZero() {
		opts.HistoryThresholdPct = decimal.NewFromFloat(0.1)
	}
	return &Monitor{
		fetcher: rates,
		alerts:  alertSvc,
		history: history,
		cache:   cache,
		sender:  sender,
		opts:    opts,
		logger:  logger.With().Str("component", "monitor").Logger(),
	}
}

// Cycle executes one monitoring pass. A fetch failure aborts the cycle
// without touching the snapshot cache or the history log.
func (m *Monitor) Cycle(ctx context.Context, _ time.Time) error {
	rates, err := m.fetcher.FetchRates(ctx)
	if err != nil {
		return fmt.Errorf("monitor cycle: %w", err)
	}

	activeAlerts, err := m.alerts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("monitor cycle: %w", err)
	}

	now := time.Now().UTC()
	triggers := m.evaluate(ctx, rates, activeAlerts, now)

	sent := m.notify(ctx, triggers)

	m.mu.Lock()
	m.stats = CycleStats{
		TrackedCurrencies: m.cache.Len(),
		ActiveAlerts:      len(activeAlerts),
		TriggeredAlerts:   len(triggers),
		LastCycle:         now,
	}
	m.mu.Unlock()

	m.logger.Info().
		Int("currencies", m.cache.Len()).
		Int("active_alerts", len(activeAlerts)).
		Int("triggered", len(triggers)).
		Int("notified_users", sent).
		Msg("cycle completed")
	return nil
}

// evaluate diffs each parseable rate against the previous snapshot,
// appends material moves to history, and collects qualifying alerts. The
// snapshot is always overwritten; a currency without a baseline only seeds
// one.
func (m *Monitor) evaluate(ctx context.Context, rates []fetcher.Rate, activeAlerts []storage.Alert, now time.Time) []Trigger {
	var triggers []Trigger

	for _, rate := range rates {
		newRate, err := fetcher.ParseRate(rate.Rate)
		if err != nil {
			m.logger.Warn().Str("currency", rate.Currency).Str("rate", rate.Rate).Msg("skipping unparsable rate")
			continue
		}

		prev, hasBaseline := m.cache.Get(rate.Currency)
		if hasBaseline && !prev.Rate.IsZero() {
			changePct := newRate.Sub(prev.Rate).Div(prev.Rate).Mul(hundred).Abs()

			if changePct.GreaterThanOrEqual(m.opts.HistoryThresholdPct) {
				m.appendHistory(ctx, rate.Currency, newRate, changePct)
			}

			for _, alert := range activeAlerts {
				if alert.Currency != rate.Currency {
					continue
				}
				// Every qualifying threshold fires, not just the tightest.
				if alert.ThresholdPct.LessThanOrEqual(changePct) {
					triggers = append(triggers, Trigger{
						Alert:     alert,
						OldRate:   prev.Rate,
						NewRate:   newRate,
						ChangePct: changePct,
					})
				}
			}
		}

		m.cache.Set(rate.Currency, newRate, now)
	}

	return triggers
}

// notify groups triggers per user, sends one combined message each, and
// stamps last_triggered_at only after a successful send. Returns the number
// of users notified.
func (m *Monitor) notify(ctx context.Context, triggers []Trigger) int {
	if len(triggers) == 0 {
		return 0
	}

	grouped := make(map[int64][]Trigger)
	order := make([]int64, 0)
	for _, trigger := range triggers {
		userID := trigger.Alert.UserID
		if _, seen := grouped[userID]; !seen {
			order = append(order, userID)
		}
		grouped[userID] = append(grouped[userID], trigger)
	}

	sent := 0
	for _, userID := range order {
		userTriggers := grouped[userID]
		message := renderAlertMessage(userTriggers)

		outcome := m.sender.Send(ctx, userID, message)
		if outcome != dispatch.Delivered {
			m.logger.Warn().
				Int64("user_id", userID).
				Stringer("outcome", outcome).
				Int("triggers", len(userTriggers)).
				Msg("alert notification not delivered")
			continue
		}

		ids := make([]int64, 0, len(userTriggers))
		for _, trigger := range userTriggers {
			ids = append(ids, trigger.Alert.ID)
		}
		m.alerts.MarkTriggered(ctx, ids)
		sent++
	}

	return sent
}

// Stats returns the most recent cycle statistics.
func (m *Monitor) Stats() CycleStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// CurrentRate returns the KGS rate for a currency, preferring the snapshot
// and falling back to a live fetch on a cold cache. It never seeds the
// snapshot: baselines belong to the cycle.
func (m *Monitor) CurrentRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	if snap, ok := m.cache.Get(currency); ok && !snap.Rate.IsZero() {
		return snap.Rate, nil
	}

	rates, err := m.fetcher.FetchRates(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	for _, rate := range rates {
		if rate.Currency != currency {
			continue
		}
		parsed, parseErr := fetcher.ParseRate(rate.Rate)
		if parseErr != nil {
			return decimal.Decimal{}, fmt.Errorf("parse rate for %s: %w", currency, parseErr)
		}
		return parsed, nil
	}
	return decimal.Decimal{}, fmt.Errorf("currency %s not present in feed", currency)
}

// Convert converts an amount of the given currency into KGS using the
// current rate. Returns the converted amount and the rate used.
func (m *Monitor) Convert(ctx context.Context, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	rate, err := m.CurrentRate(ctx, currency)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	return amount.Mul(rate), rate, nil
}

func (m *Monitor) appendHistory(ctx context.Context, currency string, rate, changePct decimal.Decimal) {
	if m.history == nil {
		return
	}
	entry := storage.RateHistoryEntry{Currency: currency, Rate: rate, ChangePct: changePct}
	if _, err := m.history.InsertRateHistory(ctx, entry); err != nil {
		m.logger.Error().Err(err).Str("currency", currency).Msg("failed to append rate history")
	}
}
