package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"currency-rate-alerts/internal/dispatch"
	"currency-rate-alerts/internal/fetcher"
	"currency-rate-alerts/internal/storage"
)

// Broadcaster assembles the daily digest and fans it out to all active
// recipients. Group recipients that fail permanently are deactivated;
// individual recipients are kept for manual review.
type Broadcaster struct {
	fetcher    fetcher.Fetcher
	recipients storage.RecipientStore
	sender     dispatch.Sender
	logger     zerolog.Logger
}

// New constructs the broadcaster.
func New(source fetcher.Fetcher, recipients storage.RecipientStore, sender dispatch.Sender, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		fetcher:    source,
		recipients: recipients,
		sender:     sender,
		logger:     logger.With().Str("component", "broadcast").Logger(),
	}
}

// digest carries the per-run message bodies. Bodies are built once; the
// greeting is swapped per group recipient.
type digest struct {
	rates    string
	gold     string
	fallback bool
	date     time.Time
}

func (d digest) bodies(greeting string) []string {
	if d.fallback {
		return []string{renderFallback(greeting)}
	}
	var bodies []string
	if d.rates != "" {
		bodies = append(bodies, greeting+"\n\n"+d.rates)
	}
	if d.gold != "" {
		bodies = append(bodies, d.gold)
	}
	return bodies
}

// Run executes one daily broadcast.
func (b *Broadcaster) Run(ctx context.Context, _ time.Time) error {
	d := b.buildDigest(ctx)

	subs, err := b.recipients.ListActiveSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	b.logger.Info().Int("subscribers", len(subs)).Bool("fallback", d.fallback).Msg("broadcasting to individual recipients")

	for _, sub := range subs {
		b.deliver(ctx, sub.ID, d.bodies(defaultGreeting()))
	}

	groups, err := b.recipients.ListActiveGroups(ctx)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	b.logger.Info().Int("groups", len(groups)).Msg("broadcasting to group recipients")

	for _, group := range groups {
		if pruned := b.deliver(ctx, group.ChatID, d.bodies(groupGreeting(group.ChatTitle))); pruned {
			if _, err := b.recipients.DeactivateGroup(ctx, group.ChatID); err != nil {
				b.logger.Error().Err(err).Int64("chat_id", group.ChatID).Msg("failed to deactivate group")
			} else {
				b.logger.Warn().Int64("chat_id", group.ChatID).Msg("group deactivated after permanent failure")
			}
		}
	}

	return nil
}

// buildDigest fetches each digest independently: a failed digest is
// skipped, and only when both fail does the fixed fallback take over.
func (b *Broadcaster) buildDigest(ctx context.Context) digest {
	now := time.Now()
	d := digest{date: now}

	rates, ratesErr := b.fetcher.FetchRates(ctx)
	if ratesErr != nil {
		b.logger.Error().Err(ratesErr).Msg("rate digest unavailable")
	} else {
		d.rates = renderRateDigest(rates, now)
	}

	gold, goldErr := b.fetcher.FetchGoldPrices(ctx)
	if goldErr != nil {
		b.logger.Error().Err(goldErr).Msg("gold digest unavailable")
	} else {
		d.gold = renderGoldDigest(gold, now)
	}

	if ratesErr != nil && goldErr != nil {
		d.fallback = true
	}
	return d
}

// deliver sends each body to one recipient. It reports whether a permanent
// failure occurred; remaining bodies for that recipient are skipped, but a
// failure never aborts the rest of the fan-out.
func (b *Broadcaster) deliver(ctx context.Context, recipientID int64, bodies []string) (permanent bool) {
	for _, body := range bodies {
		switch b.sender.Send(ctx, recipientID, body) {
		case dispatch.Delivered:
		case dispatch.PermanentFailure:
			return true
		case dispatch.TransientFailure:
			// Dropped for this run; no retry here.
			b.logger.Warn().Int64("recipient_id", recipientID).Msg("digest dropped after transient failure")
			return false
		}
	}
	return false
}
