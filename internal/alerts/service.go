package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"currency-rate-alerts/internal/storage"
)

var maxThreshold = decimal.NewFromInt(100)

// ValidationError reports bad user input; it is surfaced to the requester
// rather than logged and swallowed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Service implements threshold-alert rules on top of the alert store:
// supported-currency and threshold validation, idempotent creation, and
// owner-checked removal.
type Service struct {
	store     storage.AlertStore
	supported map[string]struct{}
	logger    zerolog.Logger
}

// NewService constructs the alert service for the given supported currency set.
func NewService(store storage.AlertStore, currencies []string, logger zerolog.Logger) *Service {
	supported := make(map[string]struct{}, len(currencies))
	for _, code := range currencies {
		supported[normalizeCurrency(code)] = struct{}{}
	}
	return &Service{
		store:     store,
		supported: supported,
		logger:    logger.With().Str("component", "alerts").Logger(),
	}
}

// Supports reports whether a currency code belongs to the supported set.
func (s *Service) Supports(currency string) bool {
	_, ok := s.supported[normalizeCurrency(currency)]
	return ok
}

// ValidateThreshold checks a percentage lies in (0, 100].
func ValidateThreshold(threshold decimal.Decimal) error {
	if threshold.Sign() <= 0 || threshold.GreaterThan(maxThreshold) {
		return &ValidationError{Field: "threshold", Reason: "must be greater than 0 and at most 100"}
	}
	return nil
}

// Add upserts an alert. It returns true when a new rule was created and
// false when an identical tuple already existed and was refreshed.
func (s *Service) Add(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (bool, error) {
	code := normalizeCurrency(currency)
	if !s.Supports(code) {
		return false, &ValidationError{Field: "currency", Reason: fmt.Sprintf("%s is not supported", code)}
	}
	if err := ValidateThreshold(threshold); err != nil {
		return false, err
	}

	alert, created, err := s.store.UpsertAlert(ctx, userID, code, threshold)
	if err != nil {
		return false, fmt.Errorf("add alert: %w", err)
	}

	s.logger.Info().
		Int64("user_id", userID).
		Str("currency", code).
		Str("threshold_pct", threshold.String()).
		Bool("created", created).
		Int64("alert_id", alert.ID).
		Msg("alert upserted")
	return created, nil
}

// ListForUser returns a user's active alerts, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]storage.Alert, error) {
	alerts, err := s.store.ListUserAlerts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user alerts: %w", err)
	}
	return alerts, nil
}

// ListActive returns every active alert for the monitoring cycle.
func (s *Service) ListActive(ctx context.Context) ([]storage.Alert, error) {
	alerts, err := s.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return alerts, nil
}

// RemoveByID soft-deletes an alert owned by the user. Removing a non-owned
// or nonexistent alert returns false without error.
func (s *Service) RemoveByID(ctx context.Context, alertID, userID int64) (bool, error) {
	removed, err := s.store.DeactivateAlertByID(ctx, alertID, userID)
	if err != nil {
		return false, fmt.Errorf("remove alert: %w", err)
	}
	return removed, nil
}

// RemoveByTuple soft-deletes the alert addressed by its unique tuple.
func (s *Service) RemoveByTuple(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (bool, error) {
	removed, err := s.store.DeactivateAlertByTuple(ctx, userID, normalizeCurrency(currency), threshold)
	if err != nil {
		return false, fmt.Errorf("remove alert by tuple: %w", err)
	}
	return removed, nil
}

// MarkTriggered stamps last_triggered_at. Failures are logged and swallowed:
// book-keeping must not block notification delivery.
func (s *Service) MarkTriggered(ctx context.Context, alertIDs []int64) {
	if len(alertIDs) == 0 {
		return
	}
	if err := s.store.MarkAlertsTriggered(ctx, alertIDs); err != nil {
		s.logger.Error().Err(err).Ints64("alert_ids", alertIDs).Msg("failed to mark alerts triggered")
	}
}

// Stats aggregates active alert counts.
func (s *Service) Stats(ctx context.Context) (storage.AlertStats, error) {
	return s.store.AlertStats(ctx)
}

// SweepInactive hard-deletes soft-deleted rows older than the retention window.
func (s *Service) SweepInactive(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	if err := s.store.DeleteInactiveAlertsBefore(ctx, cutoff); err != nil {
		return fmt.Errorf("sweep inactive alerts: %w", err)
	}
	return nil
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
