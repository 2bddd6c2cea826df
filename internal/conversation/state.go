package conversation

import (
	"sync"
	"time"
)

// Action names the input a guided flow is waiting for.
type Action string

const (
	// ActionAwaitAmount waits for a numeric amount to convert.
	ActionAwaitAmount Action = "awaiting_amount"
	// ActionAwaitPercentage waits for an alert threshold percentage.
	ActionAwaitPercentage Action = "awaiting_percentage"
)

// State is one user's in-flight guided flow. Last write wins.
type State struct {
	UserID    int64
	Action    Action
	Currency  string
	CreatedAt time.Time
}

// StateStore is an in-memory per-user state table with TTL expiry. Expiry
// is lazy on read: a state older than the TTL is treated as absent even
// before the sweep removes it.
type StateStore struct {
	mu     sync.Mutex
	states map[int64]State
	ttl    time.Duration
	now    func() time.Time
}

// NewStateStore constructs a store with the given TTL.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{
		states: make(map[int64]State),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Set records a user's state, overwriting any previous one.
func (s *StateStore) Set(userID int64, action Action, currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = State{
		UserID:    userID,
		Action:    action,
		Currency:  currency,
		CreatedAt: s.now(),
	}
}

// Get returns the user's live state. Expired states are dropped on read.
func (s *StateStore) Get(userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return State{}, false
	}
	if s.expired(state) {
		delete(s.states, userID)
		return State{}, false
	}
	return state, true
}

// Clear removes the user's state. Returns whether a live state existed.
func (s *StateStore) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return false
	}
	delete(s.states, userID)
	return !s.expired(state)
}

// Sweep removes every expired state and returns how many were dropped.
// It is a memory-reclamation pass; Get is the source of truth for expiry.
func (s *StateStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, state := range s.states {
		if s.expired(state) {
			delete(s.states, userID)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored states, expired or not.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *StateStore) expired(state State) bool {
	return s.now().Sub(state.CreatedAt) > s.ttl
}
