package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/errors"
	"github.com/c360/relaybridge/pkg/retry"
)

// ConnState tracks where a source connection is in its lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateOpen
	StateSubscribed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Conn is one live connection to a source relay.
type Conn interface {
	// Subscribe opens a subscription and returns its event stream and an
	// unsubscribe function.
	Subscribe(ctx context.Context, filters nostr.Filters, label string) (<-chan *nostr.Event, func(), error)
	// Done is closed when the connection is lost.
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a connection to a source relay URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// relayConn adapts a go-nostr relay connection.
type relayConn struct {
	relay *nostr.Relay
}

func (c *relayConn) Subscribe(ctx context.Context, filters nostr.Filters, label string) (<-chan *nostr.Event, func(), error) {
	sub, err := c.relay.Subscribe(ctx, filters, nostr.WithLabel(label))
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "ingest", "Subscribe", "opening subscription")
	}
	return sub.Events, sub.Unsub, nil
}

func (c *relayConn) Done() <-chan struct{} {
	return c.relay.Context().Done()
}

func (c *relayConn) Close() error {
	return c.relay.Close()
}

// DialRelay is the production Dialer backed by go-nostr.
func DialRelay(ctx context.Context, url string) (Conn, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, errors.WrapTransient(err, "ingest", "DialRelay", "connecting to source")
	}
	return &relayConn{relay: relay}, nil
}

// Keep-alive parameters. Idle sources that drop silent clients see a
// short-lived low-limit subscription on this cadence.
const (
	keepAliveInterval = 25 * time.Second
	keepAliveLinger   = 5 * time.Second
)

// source runs the connection lifecycle for one relay URL.
type source struct {
	url     string
	dialer  Dialer
	deliver func(ev *nostr.Event, sourceURL string)
	logger  *slog.Logger

	onStateChange func(url string, state ConnState)
}

// run reconnects forever until ctx is cancelled.
func (s *source) run(ctx context.Context) {
	for ctx.Err() == nil {
		s.setState(StateDisconnected)
		conn := s.connect(ctx)
		if conn == nil {
			return // ctx cancelled
		}

		s.serve(ctx, conn)
		conn.Close()
	}
	s.setState(StateDisconnected)
}

// connect dials with persistent backoff until a connection is made or
// ctx is cancelled.
func (s *source) connect(ctx context.Context) Conn {
	s.setState(StateConnecting)

	for ctx.Err() == nil {
		conn, err := retry.DoWithResult(ctx, retry.Connection(), func() (Conn, error) {
			return s.dialer(ctx, s.url)
		})
		if err == nil {
			s.setState(StateOpen)
			return conn
		}
		s.logger.Warn("source connect attempts exhausted, continuing", "relay", s.url, "error", err)
	}
	return nil
}

// serve subscribes and pumps events until the connection drops.
func (s *source) serve(ctx context.Context, conn Conn) {
	since := nostr.Now()
	events, unsub, err := conn.Subscribe(ctx, nostr.Filters{{Since: &since}}, newSubLabel())
	if err != nil {
		s.logger.Warn("source subscribe failed", "relay", s.url, "error", err)
		return
	}
	defer unsub()

	s.setState(StateSubscribed)
	s.logger.Info("source subscribed", "relay", s.url)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			s.logger.Warn("source connection lost", "relay", s.url)
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Warn("source subscription closed", "relay", s.url)
				return
			}
			if ev != nil {
				s.deliver(ev, s.url)
			}
		case <-keepAlive.C:
			s.sendKeepAlive(ctx, conn)
		}
	}
}

// sendKeepAlive opens a short-lived low-limit subscription and drops it
// again. This is a liveness mechanism, not a data path; its events are
// discarded.
func (s *source) sendKeepAlive(ctx context.Context, conn Conn) {
	kaCtx, cancel := context.WithTimeout(ctx, keepAliveLinger)

	events, unsub, err := conn.Subscribe(kaCtx, nostr.Filters{{Kinds: []int{1}, Limit: 1}}, newSubLabel())
	if err != nil {
		cancel()
		s.logger.Debug("keep-alive subscribe failed", "relay", s.url, "error", err)
		return
	}

	go func() {
		defer cancel()
		defer unsub()
		for {
			select {
			case <-kaCtx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
			}
		}
	}()
}

func (s *source) setState(state ConnState) {
	if s.onStateChange != nil {
		s.onStateChange(s.url, state)
	}
}

// newSubLabel returns a short random subscription label.
func newSubLabel() string {
	return uuid.NewString()[:4]
}
