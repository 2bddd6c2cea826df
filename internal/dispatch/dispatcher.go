package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"currency-rate-alerts/internal/telegram"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// Delivered means the transport accepted the message.
	Delivered Outcome = iota
	// TransientFailure is a network or server error; retry in a later cycle.
	TransientFailure
	// PermanentFailure means the recipient is structurally unreachable and
	// callers may prune it.
	PermanentFailure
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return "unknown"
	}
}

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipientID int64, text string) Outcome
}

// Transport is the chat-platform send contract the dispatcher wraps.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Options tune dispatcher behaviour.
type Options struct {
	// Pacing is the mandatory delay between consecutive sends, applied
	// between distinct recipients and between messages to one recipient.
	Pacing time.Duration
	// SendTimeout bounds a single transport call so one unreachable
	// recipient cannot stall a fan-out.
	SendTimeout time.Duration
}

// Dispatcher serialises sends through the transport with pacing and
// failure classification. It performs no retries; retry policy belongs to
// the caller.
type Dispatcher struct {
	transport Transport
	opts      Options
	logger    zerolog.Logger

	mu       sync.Mutex
	lastSend time.Time
}

// New constructs a Dispatcher.
func New(transport Transport, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		transport: transport,
		opts:      opts,
		logger:    logger.With().Str("component", "dispatch").Logger(),
	}
}

// Send delivers one message, honouring pacing, and classifies the result.
func (d *Dispatcher) Send(ctx context.Context, recipientID int64, text string) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.pace(ctx); err != nil {
		return TransientFailure
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	err := d.transport.SendMessage(sendCtx, recipientID, text)
	cancel()
	d.lastSend = time.Now()

	if err == nil {
		return Delivered
	}

	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.Permanent() {
		d.logger.Warn().Err(err).Int64("recipient_id", recipientID).Msg("permanent delivery failure")
		return PermanentFailure
	}

	d.logger.Error().Err(err).Int64("recipient_id", recipientID).Msg("transient delivery failure")
	return TransientFailure
}

// pace waits out the remainder of the inter-send delay.
func (d *Dispatcher) pace(ctx context.Context) error {
	if d.opts.Pacing <= 0 || d.lastSend.IsZero() {
		return nil
	}

	wait := d.opts.Pacing - time.Since(d.lastSend)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Sender = (*Dispatcher)(nil)
