package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"currency-rate-alerts/internal/dispatch"
	"currency-rate-alerts/internal/fetcher"
	"currency-rate-alerts/internal/storage"
)

type fakeSource struct {
	rates    []fetcher.Rate
	ratesErr error
	gold     []fetcher.GoldPrice
	goldErr  error
}

func (f *fakeSource) FetchRates(ctx context.Context) ([]fetcher.Rate, error) {
	return f.rates, f.ratesErr
}

func (f *fakeSource) FetchGoldPrices(ctx context.Context) ([]fetcher.GoldPrice, error) {
	return f.gold, f.goldErr
}

type fakeRecipients struct {
	subs        []storage.Subscriber
	groups      []storage.GroupSubscriber
	deactivated []int64
}

func (f *fakeRecipients) UpsertSubscriber(ctx context.Context, sub storage.Subscriber) error {
	return nil
}

func (f *fakeRecipients) DeactivateSubscriber(ctx context.Context, userID int64) (bool, error) {
	return false, nil
}

func (f *fakeRecipients) ListActiveSubscribers(ctx context.Context) ([]storage.Subscriber, error) {
	return f.subs, nil
}

func (f *fakeRecipients) CountActiveSubscribers(ctx context.Context) (int64, error) {
	return int64(len(f.subs)), nil
}

func (f *fakeRecipients) UpsertGroup(ctx context.Context, group storage.GroupSubscriber) error {
	return nil
}

func (f *fakeRecipients) DeactivateGroup(ctx context.Context, chatID int64) (bool, error) {
	f.deactivated = append(f.deactivated, chatID)
	return true, nil
}

func (f *fakeRecipients) ListActiveGroups(ctx context.Context) ([]storage.GroupSubscriber, error) {
	return f.groups, nil
}

func (f *fakeRecipients) CountActiveGroups(ctx context.Context) (int64, error) {
	return int64(len(f.groups)), nil
}

var _ storage.RecipientStore = (*fakeRecipients)(nil)

type recordingSender struct {
	outcomes map[int64]dispatch.Outcome
	sent     []sentBody
}

type sentBody struct {
	recipientID int64
	text        string
}

func (s *recordingSender) Send(ctx context.Context, recipientID int64, text string) dispatch.Outcome {
	s.sent = append(s.sent, sentBody{recipientID: recipientID, text: text})
	if outcome, ok := s.outcomes[recipientID]; ok {
		return outcome
	}
	return dispatch.Delivered
}

func goodSource() *fakeSource {
	return &fakeSource{
		rates: []fetcher.Rate{{Currency: "USD", Rate: "87.50"}},
		gold:  []fetcher.GoldPrice{{Mass: "1", BuyPrice: "8000", SellPrice: "8200"}},
	}
}

func TestRunDeliversBothDigests(t *testing.T) {
	recipients := &fakeRecipients{subs: []storage.Subscriber{{ID: 10}}}
	sender := &recordingSender{}
	b := New(goodSource(), recipients, sender, zerolog.Nop())

	if err := b.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected rate and gold digests, got %d messages", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].text, "USD") {
		t.Fatalf("first message should be the rate digest: %q", sender.sent[0].text)
	}
	if !strings.Contains(sender.sent[1].text, "слитков") {
		t.Fatalf("second message should be the gold digest: %q", sender.sent[1].text)
	}
}

func TestGoldFailureStillDeliversRateDigest(t *testing.T) {
	source := goodSource()
	source.gold = nil
	source.goldErr = errors.New("gold page unavailable")

	recipients := &fakeRecipients{subs: []storage.Subscriber{{ID: 10}}}
	sender := &recordingSender{}
	b := New(source, recipients, sender, zerolog.Nop())

	if err := b.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected only the rate digest, got %d messages", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].text, "USD") {
		t.Fatalf("surviving digest should be the rate digest: %q", sender.sent[0].text)
	}
}

func TestBothFailuresSendFallback(t *testing.T) {
	source := &fakeSource{
		ratesErr: errors.New("rates unavailable"),
		goldErr:  errors.New("gold unavailable"),
	}
	recipients := &fakeRecipients{subs: []storage.Subscriber{{ID: 10}}}
	sender := &recordingSender{}
	b := New(source, recipients, sender, zerolog.Nop())

	if err := b.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one fallback message, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].text, "не удалось получить") {
		t.Fatalf("expected the fallback body, got %q", sender.sent[0].text)
	}
}

func TestGroupDeactivatedOnPermanentFailure(t *testing.T) {
	recipients := &fakeRecipients{
		groups: []storage.GroupSubscriber{
			{ChatID: -100, ChatTitle: "dead group"},
			{ChatID: -200, ChatTitle: "live group"},
		},
	}
	sender := &recordingSender{outcomes: map[int64]dispatch.Outcome{-100: dispatch.PermanentFailure}}
	b := New(goodSource(), recipients, sender, zerolog.Nop())

	if err := b.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(recipients.deactivated) != 1 || recipients.deactivated[0] != -100 {
		t.Fatalf("only the failed group should be deactivated, got %v", recipients.deactivated)
	}

	// Fan-out continued to the healthy group after the failure.
	delivered := 0
	for _, msg := range sender.sent {
		if msg.recipientID == -200 {
			delivered++
		}
	}
	if delivered != 2 {
		t.Fatalf("healthy group should receive both digests, got %d", delivered)
	}
}

func TestIndividualPermanentFailureIsNotPruned(t *testing.T) {
	recipients := &fakeRecipients{subs: []storage.Subscriber{{ID: 10}, {ID: 11}}}
	sender := &recordingSender{outcomes: map[int64]dispatch.Outcome{10: dispatch.PermanentFailure}}
	b := New(goodSource(), recipients, sender, zerolog.Nop())

	if err := b.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(recipients.deactivated) != 0 {
		t.Fatalf("individual recipients must never be auto-deactivated, got %v", recipients.deactivated)
	}

	delivered := 0
	for _, msg := range sender.sent {
		if msg.recipientID == 11 {
			delivered++
		}
	}
	if delivered != 2 {
		t.Fatalf("delivery to the next subscriber should continue, got %d", delivered)
	}
}

func TestGroupGreetingCarriesChatTitle(t *testing.T) {
	recipients := &fakeRecipients{groups: []storage.GroupSubscriber{{ChatID: -100, ChatTitle: "Финансы КР"}}}
	sender := &recordingSender{}
	b := New(goodSource(), recipients, sender, zerolog.Nop())

	if err := b.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sender.sent) == 0 || !strings.Contains(sender.sent[0].text, "Финансы КР") {
		t.Fatalf("group digest should greet by chat title, got %+v", sender.sent)
	}
}
