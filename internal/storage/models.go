package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert is a stored threshold-alert rule. At most one active row exists per
// (UserID, Currency, ThresholdPct) tuple.
type Alert struct {
	ID              int64
	UserID          int64
	Currency        string
	ThresholdPct    decimal.Decimal
	Active          bool
	CreatedAt       time.Time
	LastTriggeredAt *time.Time
}

// RateHistoryEntry is an audit row appended when a currency moved
// materially since the previous observation.
type RateHistoryEntry struct {
	ID         int64
	Currency   string
	Rate       decimal.Decimal
	ChangePct  decimal.Decimal
	ObservedAt time.Time
}

// Subscriber is an individual broadcast recipient.
type Subscriber struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	Active       bool
	SubscribedAt time.Time
}

// GroupSubscriber is a group-chat broadcast recipient.
type GroupSubscriber struct {
	ChatID       int64
	ChatTitle    string
	ChatType     string
	RegisteredBy int64
	Active       bool
	SubscribedAt time.Time
}

// AlertStats aggregates alert usage for the stats surface.
type AlertStats struct {
	TotalActive   int64
	DistinctUsers int64
}
