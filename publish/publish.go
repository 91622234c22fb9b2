// Package publish delivers events to the configured target relays.
// A fan-out counts as successful when at least one target accepted the
// event; per-target outcomes are logged. A failed fan-out is retried
// exactly once more, then the event is dropped with a log.
package publish

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/errors"
	"github.com/c360/relaybridge/metric"
	"github.com/c360/relaybridge/pkg/retry"
)

// Sender delivers one event to one relay URL.
type Sender interface {
	Send(ctx context.Context, url string, ev *nostr.Event) error
}

// PoolSender sends through a shared go-nostr connection pool, reusing
// relay connections across events.
type PoolSender struct {
	pool *nostr.SimplePool
}

// NewPoolSender creates a Sender backed by a SimplePool bound to ctx.
func NewPoolSender(ctx context.Context) *PoolSender {
	return &PoolSender{pool: nostr.NewSimplePool(ctx)}
}

func (s *PoolSender) Send(ctx context.Context, url string, ev *nostr.Event) error {
	relay, err := s.pool.EnsureRelay(url)
	if err != nil {
		return errors.WrapTransient(err, "publish", "Send", "connecting to target")
	}
	if err := relay.Publish(ctx, *ev); err != nil {
		return errors.WrapTransient(err, "publish", "Send", "publishing event")
	}
	return nil
}

// Publisher fans events out to all target relays.
type Publisher struct {
	targets  []string
	sender   Sender
	retryCfg retry.Config
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// New creates a Publisher for the given targets. logger and metrics may
// be nil.
func New(targets []string, sender Sender, logger *slog.Logger, metrics *metric.Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		targets:  targets,
		sender:   sender,
		retryCfg: retry.Publish(),
		logger:   logger,
		metrics:  metrics,
	}
}

// Publish delivers ev to every target, waits for all attempts to settle
// and succeeds when at least one target accepted. On overall failure the
// whole fan-out is retried once more before the event is dropped.
func (p *Publisher) Publish(ctx context.Context, ev *nostr.Event) error {
	err := retry.Do(ctx, p.retryCfg, func() error {
		return p.fanOut(ctx, ev)
	})
	if err != nil {
		p.logger.Warn("dropping event after publish retries",
			"id", ev.ID,
			"kind", ev.Kind,
			"error", err)
		return errors.WrapTransient(errors.ErrPublishFailed, "publish", "Publish", "all targets failed")
	}
	return nil
}

// PublishAfter waits for the delay, then publishes. Used for original
// notes so time-critical annotations can arrive slightly ahead of or
// alongside the note.
func (p *Publisher) PublishAfter(ctx context.Context, ev *nostr.Event, delay time.Duration) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return p.Publish(ctx, ev)
}

func (p *Publisher) fanOut(ctx context.Context, ev *nostr.Event) error {
	var wg sync.WaitGroup
	outcomes := make([]error, len(p.targets))

	for i, target := range p.targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			outcomes[i] = p.sender.Send(ctx, target, ev)
		}(i, target)
	}
	wg.Wait()

	accepted := 0
	for i, err := range outcomes {
		if err == nil {
			accepted++
			continue
		}
		p.logger.Debug("target rejected event",
			"target", p.targets[i],
			"id", ev.ID,
			"error", err)
	}

	if p.metrics != nil {
		outcome := "accepted"
		if accepted == 0 {
			outcome = "failed"
		}
		p.metrics.PublishAttempts.WithLabelValues(outcome).Inc()
	}

	if accepted == 0 {
		return errors.WrapTransient(errors.ErrPublishFailed, "publish", "fanOut", "no target accepted")
	}

	p.logger.Debug("event published",
		"id", ev.ID,
		"kind", ev.Kind,
		"accepted", accepted,
		"targets", len(p.targets))
	return nil
}
