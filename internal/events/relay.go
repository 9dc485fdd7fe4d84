package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Outbox interface {
	Process(ctx context.Context, limit int, fn func(context.Context, Event) error) (int, error)
}

// Relay moves committed events from the outbox to the publisher.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	batchSize int
	logger    zerolog.Logger
}

func NewRelay(outbox Outbox, publisher Publisher, batchSize int, logger zerolog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "relay").Logger(),
	}
}

// RunOnce drains the outbox until a batch comes back short or publishing fails.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.outbox.Process(ctx, r.batchSize, func(ctx context.Context, ev Event) error {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				return fmt.Errorf("publish event %d (%s): %w", ev.ID, ev.Type, err)
			}
			return nil
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < r.batchSize {
			return total, nil
		}
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("relay stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Relay) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := r.RunOnce(runCtx)
	if err != nil {
		r.logger.Error().Err(err).Int("published", n).Msg("relay run failed")
		return
	}
	if n > 0 {
		r.logger.Info().Int("published", n).Dur("took", time.Since(start)).Msg("relay run complete")
	}
}
