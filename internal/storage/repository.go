package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertAlertSQL = `INSERT INTO alerts (
        user_id,
        currency,
        threshold_pct,
        active,
        created_at
    ) VALUES (
        $1,$2,$3,TRUE,now()
    )
    ON CONFLICT (user_id, currency, threshold_pct) DO UPDATE
    SET active = TRUE,
        created_at = now()
    RETURNING id, user_id, currency, threshold_pct, active, created_at, last_triggered_at, (xmax = 0) AS inserted;`

	listUserAlertsSQL = `SELECT
        id, user_id, currency, threshold_pct, active, created_at, last_triggered_at
    FROM alerts
    WHERE user_id = $1
      AND active
    ORDER BY created_at DESC;`

	listActiveAlertsSQL = `SELECT
        id, user_id, currency, threshold_pct, active, created_at, last_triggered_at
    FROM alerts
    WHERE active
    ORDER BY user_id, currency;`

	deactivateAlertByIDSQL = `UPDATE alerts
    SET active = FALSE
    WHERE id = $1 AND user_id = $2 AND active;`

	deactivateAlertByTupleSQL = `UPDATE alerts
    SET active = FALSE
    WHERE user_id = $1 AND currency = $2 AND threshold_pct = $3 AND active;`

	markAlertsTriggeredSQL = `UPDATE alerts
    SET last_triggered_at = now()
    WHERE id = ANY($1);`

	alertStatsSQL = `SELECT COUNT(*), COUNT(DISTINCT user_id)
    FROM alerts
    WHERE active;`

	deleteInactiveAlertsBeforeSQL = `DELETE FROM alerts
    WHERE NOT active AND created_at < $1;`

	insertRateHistorySQL = `INSERT INTO rate_history (
        currency, rate, change_pct
    ) VALUES (
        $1,$2,$3
    ) RETURNING id, observed_at;`

	listRateHistoryBetweenSQL = `SELECT
        id, currency, rate, change_pct, observed_at
    FROM rate_history
    WHERE currency = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentRateHistorySQL = `SELECT
        id, currency, rate, change_pct, observed_at
    FROM rate_history
    ORDER BY observed_at DESC
    LIMIT $1;`

	upsertSubscriberSQL = `INSERT INTO subscribers (
        id, first_name, last_name, username, active, subscribed_at
    ) VALUES (
        $1,$2,$3,$4,TRUE,now()
    )
    ON CONFLICT (id) DO UPDATE
    SET first_name = EXCLUDED.first_name,
        last_name  = EXCLUDED.last_name,
        username   = EXCLUDED.username,
        active     = TRUE;`

	deactivateSubscriberSQL = `UPDATE subscribers
    SET active = FALSE
    WHERE id = $1 AND active;`

	listActiveSubscribersSQL = `SELECT
        id, first_name, last_name, username, active, subscribed_at
    FROM subscribers
    WHERE active
    ORDER BY subscribed_at;`

	countActiveSubscribersSQL = `SELECT COUNT(*) FROM subscribers WHERE active;`

	upsertGroupSQL = `INSERT INTO group_subscribers (
        chat_id, chat_title, chat_type, registered_by, active, subscribed_at
    ) VALUES (
        $1,$2,$3,$4,TRUE,now()
    )
    ON CONFLICT (chat_id) DO UPDATE
    SET chat_title = EXCLUDED.chat_title,
        chat_type  = EXCLUDED.chat_type,
        active     = TRUE;`

	deactivateGroupSQL = `UPDATE group_subscribers
    SET active = FALSE
    WHERE chat_id = $1 AND active;`

	listActiveGroupsSQL = `SELECT
        chat_id, chat_title, chat_type, registered_by, active, subscribed_at
    FROM group_subscribers
    WHERE active
    ORDER BY subscribed_at;`

	countActiveGroupsSQL = `SELECT COUNT(*) FROM group_subscribers WHERE active;`
)

// AlertStore defines persistence operations for threshold alerts.
type AlertStore interface {
	UpsertAlert(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (Alert, bool, error)
	ListUserAlerts(ctx context.Context, userID int64) ([]Alert, error)
	ListActiveAlerts(ctx context.Context) ([]Alert, error)
	DeactivateAlertByID(ctx context.Context, alertID, userID int64) (bool, error)
	DeactivateAlertByTuple(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (bool, error)
	MarkAlertsTriggered(ctx context.Context, alertIDs []int64) error
	AlertStats(ctx context.Context) (AlertStats, error)
	DeleteInactiveAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// RateHistoryStore defines persistence operations for the rate-history log.
type RateHistoryStore interface {
	InsertRateHistory(ctx context.Context, entry RateHistoryEntry) (RateHistoryEntry, error)
	ListRateHistoryBetween(ctx context.Context, currency string, from, to time.Time) ([]RateHistoryEntry, error)
	ListRecentRateHistory(ctx context.Context, limit int) ([]RateHistoryEntry, error)
}

// RecipientStore defines persistence operations for broadcast recipients.
type RecipientStore interface {
	UpsertSubscriber(ctx context.Context, sub Subscriber) error
	DeactivateSubscriber(ctx context.Context, userID int64) (bool, error)
	ListActiveSubscribers(ctx context.Context) ([]Subscriber, error)
	CountActiveSubscribers(ctx context.Context) (int64, error)
	UpsertGroup(ctx context.Context, group GroupSubscriber) error
	DeactivateGroup(ctx context.Context, chatID int64) (bool, error)
	ListActiveGroups(ctx context.Context) ([]GroupSubscriber, error)
	CountActiveGroups(ctx context.Context) (int64, error)
}

// Store aggregates access to alerts, rate history, and recipients.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertAlert inserts or refreshes an alert row. The second return value is
// true when a new row was created and false when an existing tuple was
// merely reactivated.
func (s *Store) UpsertAlert(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (Alert, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, false, err
	}

	row := pool.QueryRow(ctx, upsertAlertSQL, userID, currency, threshold.String())

	var (
		alert        Alert
		thresholdStr string
		inserted     bool
	)
	if scanErr := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Currency,
		&thresholdStr,
		&alert.Active,
		&alert.CreatedAt,
		&alert.LastTriggeredAt,
		&inserted,
	); scanErr != nil {
		return Alert{}, false, fmt.Errorf("upsert alert: %w", scanErr)
	}

	alert.ThresholdPct, err = decimal.NewFromString(thresholdStr)
	if err != nil {
		return Alert{}, false, fmt.Errorf("parse threshold pct: %w", err)
	}

	return alert, inserted, nil
}

// ListUserAlerts lists a user's active alerts, newest first.
func (s *Store) ListUserAlerts(ctx context.Context, userID int64) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listUserAlertsSQL, userID)
	if queryErr != nil {
		return nil, fmt.Errorf("list user alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ListActiveAlerts lists every active alert; called once per monitoring cycle.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// DeactivateAlertByID soft-deletes an alert the user owns.
func (s *Store) DeactivateAlertByID(ctx context.Context, alertID, userID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateAlertByIDSQL, alertID, userID)
	if execErr != nil {
		return false, fmt.Errorf("deactivate alert by id: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// DeactivateAlertByTuple soft-deletes an alert addressed by its unique tuple.
func (s *Store) DeactivateAlertByTuple(ctx context.Context, userID int64, currency string, threshold decimal.Decimal) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateAlertByTupleSQL, userID, currency, threshold.String())
	if execErr != nil {
		return false, fmt.Errorf("deactivate alert by tuple: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// MarkAlertsTriggered stamps last_triggered_at for the given alerts.
func (s *Store) MarkAlertsTriggered(ctx context.Context, alertIDs []int64) error {
	if len(alertIDs) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markAlertsTriggeredSQL, alertIDs); execErr != nil {
		return fmt.Errorf("mark alerts triggered: %w", execErr)
	}
	return nil
}

// AlertStats aggregates active alert counts.
func (s *Store) AlertStats(ctx context.Context) (AlertStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertStats{}, err
	}
	var stats AlertStats
	if scanErr := pool.QueryRow(ctx, alertStatsSQL).Scan(&stats.TotalActive, &stats.DistinctUsers); scanErr != nil {
		return AlertStats{}, fmt.Errorf("alert stats: %w", scanErr)
	}
	return stats, nil
}

// DeleteInactiveAlertsBefore hard-deletes long-inactive alert rows.
func (s *Store) DeleteInactiveAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteInactiveAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete inactive alerts before: %w", execErr)
	}
	return nil
}

// InsertRateHistory appends a materially-changed observation.
func (s *Store) InsertRateHistory(ctx context.Context, entry RateHistoryEntry) (RateHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return RateHistoryEntry{}, err
	}

	row := pool.QueryRow(ctx, insertRateHistorySQL, entry.Currency, entry.Rate.String(), entry.ChangePct.String())
	if scanErr := row.Scan(&entry.ID, &entry.ObservedAt); scanErr != nil {
		return RateHistoryEntry{}, fmt.Errorf("insert rate history: %w", scanErr)
	}
	return entry, nil
}

// ListRateHistoryBetween lists history rows for a currency within a window.
func (s *Store) ListRateHistoryBetween(ctx context.Context, currency string, from, to time.Time) ([]RateHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRateHistoryBetweenSQL, currency, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list rate history between: %w", queryErr)
	}
	defer rows.Close()

	return collectHistory(rows)
}

// ListRecentRateHistory lists the most recent history rows.
func (s *Store) ListRecentRateHistory(ctx context.Context, limit int) ([]RateHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRateHistorySQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent rate history: %w", queryErr)
	}
	defer rows.Close()

	return collectHistory(rows)
}

// UpsertSubscriber registers or re-activates an individual recipient.
func (s *Store) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSubscriberSQL, sub.ID, sub.FirstName, sub.LastName, sub.Username); execErr != nil {
		return fmt.Errorf("upsert subscriber: %w", execErr)
	}
	return nil
}

// DeactivateSubscriber soft-deletes an individual recipient.
func (s *Store) DeactivateSubscriber(ctx context.Context, userID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateSubscriberSQL, userID)
	if execErr != nil {
		return false, fmt.Errorf("deactivate subscriber: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ListActiveSubscribers lists individual broadcast recipients.
func (s *Store) ListActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveSubscribersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active subscribers: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscriber, 0)
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ID, &sub.FirstName, &sub.LastName, &sub.Username, &sub.Active, &sub.SubscribedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

// CountActiveSubscribers counts individual broadcast recipients.
func (s *Store) CountActiveSubscribers(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countActiveSubscribersSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count active subscribers: %w", scanErr)
	}
	return count, nil
}

// UpsertGroup registers or re-activates a group recipient.
func (s *Store) UpsertGroup(ctx context.Context, group GroupSubscriber) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertGroupSQL, group.ChatID, group.ChatTitle, group.ChatType, group.RegisteredBy); execErr != nil {
		return fmt.Errorf("upsert group: %w", execErr)
	}
	return nil
}

// DeactivateGroup soft-deletes a group recipient.
func (s *Store) DeactivateGroup(ctx context.Context, chatID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, deactivateGroupSQL, chatID)
	if execErr != nil {
		return false, fmt.Errorf("deactivate group: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// ListActiveGroups lists group broadcast recipients.
func (s *Store) ListActiveGroups(ctx context.Context) ([]GroupSubscriber, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveGroupsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active groups: %w", queryErr)
	}
	defer rows.Close()

	groups := make([]GroupSubscriber, 0)
	for rows.Next() {
		var group GroupSubscriber
		if err := rows.Scan(&group.ChatID, &group.ChatTitle, &group.ChatType, &group.RegisteredBy, &group.Active, &group.SubscribedAt); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return groups, nil
}

// CountActiveGroups counts group broadcast recipients.
func (s *Store) CountActiveGroups(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countActiveGroupsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count active groups: %w", scanErr)
	}
	return count, nil
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	alerts := make([]Alert, 0)
	for rows.Next() {
		var (
			alert        Alert
			thresholdStr string
		)
		if err := rows.Scan(
			&alert.ID,
			&alert.UserID,
			&alert.Currency,
			&thresholdStr,
			&alert.Active,
			&alert.CreatedAt,
			&alert.LastTriggeredAt,
		); err != nil {
			return nil, err
		}

		threshold, convErr := decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse threshold pct: %w", convErr)
		}
		alert.ThresholdPct = threshold

		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectHistory(rows pgx.Rows) ([]RateHistoryEntry, error) {
	entries := make([]RateHistoryEntry, 0)
	for rows.Next() {
		var (
			entry     RateHistoryEntry
			rateStr   string
			changeStr string
		)
		if err := rows.Scan(&entry.ID, &entry.Currency, &rateStr, &changeStr, &entry.ObservedAt); err != nil {
			return nil, err
		}

		var convErr error
		entry.Rate, convErr = decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse rate: %w", convErr)
		}
		entry.ChangePct, convErr = decimal.NewFromString(changeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}

		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

var (
	_ AlertStore       = (*Store)(nil)
	_ RateHistoryStore = (*Store)(nil)
	_ RecipientStore   = (*Store)(nil)
)
