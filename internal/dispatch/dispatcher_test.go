package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"currency-rate-alerts/internal/telegram"
)

// fakeTransport returns queued errors in order.
type fakeTransport struct {
	errs  []error
	calls int
	sent  []int64
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, chatID)
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	return err
}

func TestSendClassifiesOutcomes(t *testing.T) {
	transport := &fakeTransport{errs: []error{
		nil,
		&telegram.APIError{Code: 403, Description: "blocked"},
		&telegram.APIError{Code: 500, Description: "server error"},
		errors.New("dial tcp: connection refused"),
	}}
	d := New(transport, Options{}, zerolog.Nop())

	cases := []Outcome{Delivered, PermanentFailure, TransientFailure, TransientFailure}
	for i, want := range cases {
		if got := d.Send(context.Background(), int64(i), "msg"); got != want {
			t.Fatalf("send %d: outcome = %s, want %s", i, got, want)
		}
	}
	if transport.calls != 4 {
		t.Fatalf("expected 4 transport calls, got %d", transport.calls)
	}
}

func TestSendAppliesPacingBetweenSends(t *testing.T) {
	transport := &fakeTransport{}
	d := New(transport, Options{Pacing: 30 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	d.Send(context.Background(), 1, "first")
	d.Send(context.Background(), 1, "second")
	d.Send(context.Background(), 2, "third")
	elapsed := time.Since(start)

	// Two inter-send gaps; the first send is not delayed.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("pacing not applied: elapsed %s", elapsed)
	}
}

func TestSendCancelledContextIsTransient(t *testing.T) {
	transport := &fakeTransport{}
	d := New(transport, Options{Pacing: time.Minute}, zerolog.Nop())

	// First send sets lastSend so the second must wait out the pacing.
	d.Send(context.Background(), 1, "first")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := d.Send(ctx, 2, "second"); got != TransientFailure {
		t.Fatalf("cancelled send outcome = %s, want %s", got, TransientFailure)
	}
	if transport.calls != 1 {
		t.Fatal("transport must not be called after cancellation during pacing")
	}
}
