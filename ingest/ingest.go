// Package ingest owns the source relay connections and the bounded queue
// between them and the processing pipeline. Incoming events are queued
// with explicit backpressure: when the queue is full the event is dropped
// and counted rather than blocking the subscription reader.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/errors"
	"github.com/c360/relaybridge/gate"
	"github.com/c360/relaybridge/metric"
	"github.com/c360/relaybridge/orchestrator"
	"github.com/c360/relaybridge/pkg/worker"
	"github.com/c360/relaybridge/publish"
	"github.com/c360/relaybridge/sidechannel"
)

// Item is one event queued for admission, with its source relay.
type Item struct {
	Event  *nostr.Event
	Source string
}

// Config tunes the ingest queue.
type Config struct {
	Workers       int
	QueueSize     int
	StatsInterval time.Duration
}

// DefaultConfig returns the default queue sizing.
func DefaultConfig() Config {
	return Config{
		Workers:       10,
		QueueSize:     1000,
		StatsInterval: 60 * time.Second,
	}
}

// Ingestor connects to the source relays and drives admitted events
// through the gate into classification and republish.
type Ingestor struct {
	cfg     Config
	sources []string
	dialer  Dialer

	gate      *gate.Gate
	orch      *orchestrator.Orchestrator
	publisher *publish.Publisher
	broker    *sidechannel.Broker // optional
	metrics   *metric.Metrics     // optional
	registry  *metric.MetricsRegistry
	logger    *slog.Logger

	pool *worker.Pool[Item]

	// Guard against concurrent re-initialization of the source pool.
	running atomic.Bool

	stateMu    sync.Mutex
	subscribed map[string]bool

	lifecycleMu sync.Mutex
	shutdown    chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup
}

// New creates an Ingestor. broker, metrics and registry may be nil.
func New(
	cfg Config,
	sources []string,
	dialer Dialer,
	g *gate.Gate,
	orch *orchestrator.Orchestrator,
	publisher *publish.Publisher,
	broker *sidechannel.Broker,
	metrics *metric.Metrics,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if dialer == nil {
		dialer = DialRelay
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultConfig().StatsInterval
	}

	in := &Ingestor{
		cfg:        cfg,
		sources:    sources,
		dialer:     dialer,
		gate:       g,
		orch:       orch,
		publisher:  publisher,
		broker:     broker,
		metrics:    metrics,
		registry:   registry,
		logger:     logger,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		subscribed: make(map[string]bool),
	}

	var poolOpts []worker.Option[Item]
	if registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[Item](registry, "ingest"))
	}
	in.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, in.process, poolOpts...)

	return in
}

// Start connects to all sources and begins processing. Re-entrant calls
// while running are rejected.
func (in *Ingestor) Start(ctx context.Context) error {
	if !in.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ingest", "Start", "already running")
	}

	in.lifecycleMu.Lock()
	defer in.lifecycleMu.Unlock()

	if err := in.pool.Start(ctx); err != nil {
		in.running.Store(false)
		return errors.Wrap(err, "ingest", "Start", "starting worker pool")
	}

	for _, url := range in.sources {
		src := &source{
			url:           url,
			dialer:        in.dialer,
			deliver:       in.enqueue,
			logger:        in.logger,
			onStateChange: in.trackState,
		}
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			src.run(ctx)
		}()
	}

	in.wg.Add(1)
	go in.statsLoop(ctx)

	in.logger.Info("ingest started", "sources", len(in.sources), "workers", in.cfg.Workers)
	return nil
}

// Stop drains the queue and waits for the source goroutines.
func (in *Ingestor) Stop(timeout time.Duration) error {
	in.lifecycleMu.Lock()
	defer in.lifecycleMu.Unlock()

	if !in.running.Load() {
		return nil
	}

	close(in.shutdown)

	waitDone := make(chan struct{})
	go func() {
		in.wg.Wait()
		close(waitDone)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-waitDone:
	case <-timer.C:
		in.logger.Warn("timeout waiting for source goroutines")
	}

	err := in.pool.Stop(timeout)
	in.running.Store(false)
	close(in.done)
	return err
}

// enqueue submits an event to the bounded queue. A full queue drops the
// event; the drop is visible in the pool counters and metrics.
func (in *Ingestor) enqueue(ev *nostr.Event, sourceURL string) {
	if err := in.pool.Submit(Item{Event: ev, Source: sourceURL}); err != nil {
		in.logger.Debug("ingest queue full, dropping event", "relay", sourceURL, "id", ev.ID)
	}
}

// process runs the admission gate and dispatches by kind. Runs on the
// worker pool.
func (in *Ingestor) process(ctx context.Context, item Item) error {
	verdict := in.gate.Admit(item.Event, item.Source)
	if verdict != gate.Accepted {
		return nil
	}

	in.mirrorEvent(item.Event)

	if item.Event.Kind == nostr.KindTextNote {
		in.orch.ProcessNote(ctx, item.Event)
		return nil
	}

	// Other kinds bypass classification and the publish delay.
	if err := in.publisher.Publish(ctx, item.Event); err != nil {
		return errors.Wrap(err, "ingest", "process", "forwarding event")
	}
	return nil
}

// mirrorEvent sends every admitted event to the raw side-channel feed
// before any kind-specific routing.
func (in *Ingestor) mirrorEvent(ev *nostr.Event) {
	if in.broker == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	in.broker.Publish(sidechannel.SubjectEvents, data)
}

func (in *Ingestor) trackState(url string, state ConnState) {
	in.logger.Debug("source state change", "relay", url, "state", state.String())

	in.stateMu.Lock()
	was := in.subscribed[url]
	now := state == StateSubscribed
	in.subscribed[url] = now
	in.stateMu.Unlock()

	if in.metrics == nil || was == now {
		return
	}
	if now {
		in.metrics.SourcesConnected.Inc()
	} else {
		in.metrics.SourcesConnected.Dec()
	}
}

// statsLoop logs the per-source event counters and queue stats.
func (in *Ingestor) statsLoop(ctx context.Context) {
	defer in.wg.Done()

	ticker := time.NewTicker(in.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-in.shutdown:
			return
		case <-ticker.C:
			counters := in.gate.CounterSnapshot()
			pool := in.pool.Stats()
			in.logger.Info("event counter stats per relay",
				"counters", counters,
				"queued", pool.QueueDepth,
				"submitted", pool.Submitted,
				"processed", pool.Processed,
				"dropped", pool.Dropped)
		}
	}
}
