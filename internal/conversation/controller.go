package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currency-rate-alerts/internal/alerts"
)

var maxAmount = decimal.NewFromInt(1_000_000_000)

// RateProvider supplies the current KGS conversion rate for a currency.
type RateProvider interface {
	Convert(ctx context.Context, currency string, amount decimal.Decimal) (converted, rate decimal.Decimal, err error)
}

// ResultKind classifies the outcome of handling one user input.
type ResultKind int

const (
	// ResultNone means no guided flow was in progress for the user.
	ResultNone ResultKind = iota
	// ResultRetry means the input was invalid; the flow state is unchanged
	// and the user should be re-prompted.
	ResultRetry
	// ResultConverted means the conversion flow completed.
	ResultConverted
	// ResultAlertCreated means the alert flow completed.
	ResultAlertCreated
)

// Result is the typed outcome handed back to the command layer.
type Result struct {
	Kind     ResultKind
	Currency string
	// Conversion flow.
	Amount    decimal.Decimal
	Converted decimal.Decimal
	Rate      decimal.Decimal
	// Alert flow.
	ThresholdPct decimal.Decimal
	Created      bool
	// Retry.
	Reason string
}

// Controller drives the multi-step guided flows: amount entry for currency
// conversion and percentage entry for alert creation.
type Controller struct {
	states *StateStore
	alerts *alerts.Service
	rates  RateProvider
	logger zerolog.Logger
}

// NewController constructs the conversation controller.
func NewController(states *StateStore, alertSvc *alerts.Service, rates RateProvider, logger zerolog.Logger) *Controller {
	return &Controller{
		states: states,
		alerts: alertSvc,
		rates:  rates,
		logger: logger.With().Str("component", "conversation").Logger(),
	}
}

// StartConversion begins the amount-entry flow for a chosen currency. The
// stored code is normalized so it matches snapshot and feed keys later on.
func (c *Controller) StartConversion(userID int64, currency string) error {
	code := normalizeCurrency(currency)
	if !c.alerts.Supports(code) {
		return &alerts.ValidationError{Field: "currency", Reason: fmt.Sprintf("%s is not supported", code)}
	}
	c.states.Set(userID, ActionAwaitAmount, code)
	return nil
}

// StartAlert begins the percentage-entry flow for a chosen currency.
func (c *Controller) StartAlert(userID int64, currency string) error {
	code := normalizeCurrency(currency)
	if !c.alerts.Supports(code) {
		return &alerts.ValidationError{Field: "currency", Reason: fmt.Sprintf("%s is not supported", code)}
	}
	c.states.Set(userID, ActionAwaitPercentage, code)
	return nil
}

// Cancel aborts any in-flight flow. Returns whether one was active.
func (c *Controller) Cancel(userID int64) bool {
	return c.states.Clear(userID)
}

// HandleInput advances the user's flow with one free-text input. Invalid
// input leaves the state untouched and asks for a retry; valid input
// completes the flow and clears the state.
func (c *Controller) HandleInput(ctx context.Context, userID int64, input string) (Result, error) {
	state, ok := c.states.Get(userID)
	if !ok {
		return Result{Kind: ResultNone}, nil
	}

	switch state.Action {
	case ActionAwaitAmount:
		return c.handleAmount(ctx, userID, state, input)
	case ActionAwaitPercentage:
		return c.handlePercentage(ctx, userID, state, input)
	default:
		c.states.Clear(userID)
		return Result{Kind: ResultNone}, nil
	}
}

func (c *Controller) handleAmount(ctx context.Context, userID int64, state State, input string) (Result, error) {
	amount, err := decimal.NewFromString(normalizeNumber(input))
	if err != nil || amount.Sign() <= 0 || amount.GreaterThan(maxAmount) {
		return Result{
			Kind:     ResultRetry,
			Currency: state.Currency,
			Reason:   "amount must be a positive number up to 1000000000",
		}, nil
	}

	converted, rate, err := c.rates.Convert(ctx, state.Currency, amount)
	if err != nil {
		// Data source problem, not user error: keep the state so the user
		// can retry the same amount.
		return Result{}, fmt.Errorf("convert %s: %w", state.Currency, err)
	}

	c.states.Clear(userID)
	c.logger.Debug().Int64("user_id", userID).Str("currency", state.Currency).Msg("conversion flow completed")
	return Result{
		Kind:      ResultConverted,
		Currency:  state.Currency,
		Amount:    amount,
		Converted: converted,
		Rate:      rate,
	}, nil
}

func (c *Controller) handlePercentage(ctx context.Context, userID int64, state State, input string) (Result, error) {
	threshold, err := decimal.NewFromString(normalizeNumber(input))
	if err != nil {
		return Result{
			Kind:     ResultRetry,
			Currency: state.Currency,
			Reason:   "percentage must be a number",
		}, nil
	}
	if validateErr := alerts.ValidateThreshold(threshold); validateErr != nil {
		return Result{
			Kind:     ResultRetry,
			Currency: state.Currency,
			Reason:   "percentage must be greater than 0 and at most 100",
		}, nil
	}

	created, err := c.alerts.Add(ctx, userID, state.Currency, threshold)
	if err != nil {
		return Result{}, err
	}

	c.states.Clear(userID)
	c.logger.Debug().Int64("user_id", userID).Str("currency", state.Currency).Msg("alert flow completed")
	return Result{
		Kind:         ResultAlertCreated,
		Currency:     state.Currency,
		ThresholdPct: threshold,
		Created:      created,
	}, nil
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeNumber(input string) string {
	cleaned := make([]rune, 0, len(input))
	for _, r := range input {
		switch r {
		case ' ', ' ':
			continue
		case ',':
			cleaned = append(cleaned, '.')
		default:
			cleaned = append(cleaned, r)
		}
	}
	return string(cleaned)
}
