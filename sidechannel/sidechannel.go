// Package sidechannel mirrors admitted events and classification results
// to NATS brokers. Mirroring is best-effort broadcast: a failing broker
// is logged and skipped, it never blocks the publish path or the other
// brokers.
package sidechannel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/relaybridge/errors"
	"github.com/c360/relaybridge/metric"
)

// Side-channel subjects, one per classification kind plus the raw event
// feed. Media safety splits into flagged/unflagged by the aggregate
// unsafe verdict.
const (
	SubjectEvents        = "nostr.events"
	SubjectLanguage      = "nostr.classification.language"
	SubjectHateSpeech    = "nostr.classification.hatespeech"
	SubjectSentiment     = "nostr.classification.sentiment"
	SubjectTopic         = "nostr.classification.topic"
	SubjectNsfwFlagged   = "nostr.classification.nsfw.flagged"
	SubjectNsfwUnflagged = "nostr.classification.nsfw.unflagged"
)

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger used for connect and publish outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics enables per-subject publish counters.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(b *Broker) {
		b.metrics = metrics
	}
}

// WithReconnectWait overrides the reconnect wait between attempts.
func WithReconnectWait(wait time.Duration) Option {
	return func(b *Broker) {
		b.reconnectWait = wait
	}
}

// Broker holds one connection per configured broker URL.
type Broker struct {
	conns   []*nats.Conn
	logger  *slog.Logger
	metrics *metric.Metrics

	reconnectWait time.Duration

	closeMu sync.Mutex
	closed  bool
}

// Connect dials every broker URL. Individual connect failures are logged
// and the surviving connections used; only zero survivors is an error.
func Connect(urls []string, opts ...Option) (*Broker, error) {
	b := &Broker{
		logger:        slog.Default(),
		reconnectWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, url := range urls {
		conn, err := nats.Connect(url,
			nats.Name("relaybridge"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(b.reconnectWait),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				b.logger.Warn("side-channel broker disconnected", "url", url, "error", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				b.logger.Info("side-channel broker reconnected", "url", url)
			}),
		)
		if err != nil {
			b.logger.Warn("side-channel broker unavailable", "url", url, "error", err)
			continue
		}
		b.logger.Info("side-channel broker connected", "url", url)
		b.conns = append(b.conns, conn)
	}

	if len(urls) > 0 && len(b.conns) == 0 {
		return nil, errors.WrapTransient(errors.ErrBrokerUnavailable, "sidechannel", "Connect", "no broker reachable")
	}
	return b, nil
}

// Publish fans data out to every connected broker, fire and forget.
// Per-broker failures are logged and isolated.
func (b *Broker) Publish(subject string, data []byte) {
	for _, conn := range b.conns {
		if err := conn.Publish(subject, data); err != nil {
			b.logger.Debug("side-channel publish failed",
				"subject", subject,
				"url", conn.ConnectedUrl(),
				"error", err)
			continue
		}
	}

	if b.metrics != nil && len(b.conns) > 0 {
		b.metrics.SidechannelPublished.WithLabelValues(subject).Inc()
	}
}

// Connected returns the number of live broker connections.
func (b *Broker) Connected() int {
	n := 0
	for _, conn := range b.conns {
		if conn.IsConnected() {
			n++
		}
	}
	return n
}

// Close drains all connections. Safe to call more than once.
func (b *Broker) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, conn := range b.conns {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
}
