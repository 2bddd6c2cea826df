package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currency-rate-alerts/internal/alerts"
	"currency-rate-alerts/internal/storage"
)

type alertStoreStub struct {
	upserts []storage.Alert
}

func (s *alertStoreStub) UpsertAlert(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (storage.Alert, bool, error) {
	alert := storage.Alert{
		ID:           int64(len(s.upserts) + 1),
		UserID:       userID,
		Currency:     currency,
		ThresholdPct: threshold,
		Active:       true,
	}
	s.upserts = append(s.upserts, alert)
	return alert, true, nil
}

func (s *alertStoreStub) ListUserAlerts(ctx context.Context, userID int64) ([]storage.Alert, error) {
	return nil, nil
}

func (s *alertStoreStub) ListActiveAlerts(ctx context.Context) ([]storage.Alert, error) {
	return nil, nil
}

func (s *alertStoreStub) DeactivateAlertByID(ctx context.Context, alertID, userID int64) (bool, error) {
	return false, nil
}

func (s *alertStoreStub) DeactivateAlertByTuple(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (bool, error) {
	return false, nil
}

func (s *alertStoreStub) MarkAlertsTriggered(ctx context.Context, alertIDs []int64) error {
	return nil
}

func (s *alertStoreStub) AlertStats(ctx context.Context) (storage.AlertStats, error) {
	return storage.AlertStats{}, nil
}

func (s *alertStoreStub) DeleteInactiveAlertsBefore(ctx context.Context, olderThan time.Time) error {
	return nil
}

var _ storage.AlertStore = (*alertStoreStub)(nil)

// rateProviderStub matches currency codes exactly, like the monitor's
// snapshot and feed lookups do.
type rateProviderStub struct {
	rates map[string]decimal.Decimal
	err   error
}

func (r *rateProviderStub) Convert(ctx context.Context, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if r.err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, r.err
	}
	rate, ok := r.rates[currency]
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("currency %s not present in feed", currency)
	}
	return amount.Mul(rate), rate, nil
}

func usdProvider() *rateProviderStub {
	return &rateProviderStub{rates: map[string]decimal.Decimal{"USD": decimal.RequireFromString("87.5")}}
}

func newTestController(rates *rateProviderStub) (*Controller, *StateStore, *alertStoreStub) {
	states := NewStateStore(10 * time.Minute)
	store := &alertStoreStub{}
	svc := alerts.NewService(store, []string{"USD", "EUR"}, zerolog.Nop())
	return NewController(states, svc, rates, zerolog.Nop()), states, store
}

func TestStateTTLExpiresLazilyOnRead(t *testing.T) {
	store := NewStateStore(10 * time.Minute)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Set(10, ActionAwaitAmount, "USD")

	current = current.Add(9 * time.Minute)
	if _, ok := store.Get(10); !ok {
		t.Fatal("state within the TTL should be live")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := store.Get(10); ok {
		t.Fatal("state past the TTL should be treated as absent")
	}
	if store.Len() != 0 {
		t.Fatal("expired state should be deleted on read")
	}
}

func TestSweepRemovesOnlyExpiredStates(t *testing.T) {
	store := NewStateStore(10 * time.Minute)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Set(10, ActionAwaitAmount, "USD")
	current = current.Add(11 * time.Minute)
	store.Set(11, ActionAwaitPercentage, "EUR")

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected one expired state removed, got %d", removed)
	}
	if _, ok := store.Get(11); !ok {
		t.Fatal("live state must survive the sweep")
	}
}

func TestSetOverwritesPreviousState(t *testing.T) {
	store := NewStateStore(10 * time.Minute)
	store.Set(10, ActionAwaitAmount, "USD")
	store.Set(10, ActionAwaitPercentage, "EUR")

	state, ok := store.Get(10)
	if !ok {
		t.Fatal("state should exist")
	}
	if state.Action != ActionAwaitPercentage || state.Currency != "EUR" {
		t.Fatalf("last write should win, got %+v", state)
	}
}

func TestConversionFlow(t *testing.T) {
	ctrl, states, _ := newTestController(usdProvider())
	ctx := context.Background()

	if err := ctrl.StartConversion(10, "USD"); err != nil {
		t.Fatalf("StartConversion failed: %v", err)
	}

	result, err := ctrl.HandleInput(ctx, 10, "100,50")
	if err != nil {
		t.Fatalf("HandleInput failed: %v", err)
	}
	if result.Kind != ResultConverted {
		t.Fatalf("expected ResultConverted, got %v", result.Kind)
	}
	if !result.Amount.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("comma amount should be accepted, got %s", result.Amount)
	}
	if !result.Converted.Equal(decimal.RequireFromString("8793.75")) {
		t.Fatalf("unexpected conversion result: %s", result.Converted)
	}
	if states.Len() != 0 {
		t.Fatal("completed flow should clear the state")
	}
}

func TestConversionFlowNormalizesCurrencyCase(t *testing.T) {
	ctrl, states, _ := newTestController(usdProvider())
	ctx := context.Background()

	// The rate lookup matches codes exactly, so a raw lowercase code
	// accepted at start must reach it uppercased.
	if err := ctrl.StartConversion(10, "usd"); err != nil {
		t.Fatalf("StartConversion failed: %v", err)
	}

	state, ok := states.Get(10)
	if !ok || state.Currency != "USD" {
		t.Fatalf("stored currency should be normalized to USD, got %+v", state)
	}

	result, err := ctrl.HandleInput(ctx, 10, "100")
	if err != nil {
		t.Fatalf("HandleInput failed: %v", err)
	}
	if result.Kind != ResultConverted {
		t.Fatalf("expected ResultConverted, got %v", result.Kind)
	}
	if result.Currency != "USD" {
		t.Fatalf("result currency should be normalized, got %q", result.Currency)
	}
	if !result.Converted.Equal(decimal.RequireFromString("8750")) {
		t.Fatalf("unexpected conversion result: %s", result.Converted)
	}
}

func TestConversionRetryKeepsState(t *testing.T) {
	ctrl, states, _ := newTestController(usdProvider())
	ctx := context.Background()

	if err := ctrl.StartConversion(10, "USD"); err != nil {
		t.Fatalf("StartConversion failed: %v", err)
	}

	for _, input := range []string{"abc", "-5", "0", "1000000001"} {
		result, err := ctrl.HandleInput(ctx, 10, input)
		if err != nil {
			t.Fatalf("HandleInput(%q) failed: %v", input, err)
		}
		if result.Kind != ResultRetry {
			t.Fatalf("input %q should ask for a retry, got %v", input, result.Kind)
		}
	}
	if states.Len() != 1 {
		t.Fatal("invalid input must leave the flow in place")
	}
}

func TestConversionRateFailureKeepsState(t *testing.T) {
	ctrl, states, _ := newTestController(&rateProviderStub{err: errors.New("feed down")})
	ctx := context.Background()

	if err := ctrl.StartConversion(10, "USD"); err != nil {
		t.Fatalf("StartConversion failed: %v", err)
	}

	if _, err := ctrl.HandleInput(ctx, 10, "100"); err == nil {
		t.Fatal("a rate fetch failure should surface as an error")
	}
	if states.Len() != 1 {
		t.Fatal("a data source failure must keep the state for a retry")
	}
}

func TestAlertFlow(t *testing.T) {
	ctrl, states, store := newTestController(usdProvider())
	ctx := context.Background()

	if err := ctrl.StartAlert(10, "EUR"); err != nil {
		t.Fatalf("StartAlert failed: %v", err)
	}

	// Out-of-range percentages re-prompt without creating anything.
	result, err := ctrl.HandleInput(ctx, 10, "150")
	if err != nil {
		t.Fatalf("HandleInput failed: %v", err)
	}
	if result.Kind != ResultRetry {
		t.Fatalf("expected ResultRetry for 150%%, got %v", result.Kind)
	}
	if len(store.upserts) != 0 {
		t.Fatal("retry must not create an alert")
	}

	result, err = ctrl.HandleInput(ctx, 10, "2,5")
	if err != nil {
		t.Fatalf("HandleInput failed: %v", err)
	}
	if result.Kind != ResultAlertCreated || !result.Created {
		t.Fatalf("expected a created alert, got %+v", result)
	}
	if len(store.upserts) != 1 || !store.upserts[0].ThresholdPct.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected upsert: %+v", store.upserts)
	}
	if states.Len() != 0 {
		t.Fatal("completed flow should clear the state")
	}
}

func TestStartWithUnsupportedCurrency(t *testing.T) {
	ctrl, states, _ := newTestController(&rateProviderStub{})

	err := ctrl.StartConversion(10, "JPY")
	var validationErr *alerts.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if states.Len() != 0 {
		t.Fatal("a rejected start must not leave state behind")
	}
}

func TestCancel(t *testing.T) {
	ctrl, _, _ := newTestController(&rateProviderStub{})

	if ctrl.Cancel(10) {
		t.Fatal("cancelling with no flow should report false")
	}
	if err := ctrl.StartAlert(10, "USD"); err != nil {
		t.Fatalf("StartAlert failed: %v", err)
	}
	if !ctrl.Cancel(10) {
		t.Fatal("cancelling an active flow should report true")
	}

	result, err := ctrl.HandleInput(context.Background(), 10, "2.5")
	if err != nil {
		t.Fatalf("HandleInput failed: %v", err)
	}
	if result.Kind != ResultNone {
		t.Fatalf("cancelled flow should ignore input, got %v", result.Kind)
	}
}
