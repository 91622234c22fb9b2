// Package gate implements the admission check every incoming event passes
// before any classification or republish work happens: per-source
// counting, duplicate collapse, structure validation, signature
// verification and the freshness window, in that order.
package gate

import (
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/c360/relaybridge/metric"
	"github.com/c360/relaybridge/pkg/cache"
)

// Verdict is the outcome of an admission check.
type Verdict int

const (
	Accepted Verdict = iota
	DuplicateID
	InvalidStructure
	InvalidSignature
	Stale
)

// String returns the rejection reason label used in logs and metrics.
func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case DuplicateID:
		return "duplicate"
	case InvalidStructure:
		return "invalid_structure"
	case InvalidSignature:
		return "invalid_signature"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// InvalidEventRecorder receives events that failed signature verification
// for offline inspection.
type InvalidEventRecorder interface {
	Record(ev *nostr.Event, sourceURL string)
}

// LogRecorder records invalid events through slog.
type LogRecorder struct {
	Logger *slog.Logger
}

func (r *LogRecorder) Record(ev *nostr.Event, sourceURL string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("invalid event signature",
		"id", ev.ID,
		"pubkey", ev.PubKey,
		"kind", ev.Kind,
		"relay", sourceURL)
}

// Gate owns the dedup cache and per-source counters.
type Gate struct {
	dedup           cache.Cache[struct{}]
	freshnessWindow time.Duration
	recorder        InvalidEventRecorder
	metrics         *metric.Metrics

	countersMu sync.Mutex
	counters   map[string]int64

	now func() time.Time
}

// New creates a Gate. The dedup cache is owned by the caller; metrics and
// recorder may be nil.
func New(dedup cache.Cache[struct{}], freshnessWindow time.Duration, recorder InvalidEventRecorder, metrics *metric.Metrics) *Gate {
	if recorder == nil {
		recorder = &LogRecorder{}
	}
	return &Gate{
		dedup:           dedup,
		freshnessWindow: freshnessWindow,
		recorder:        recorder,
		metrics:         metrics,
		counters:        make(map[string]int64),
		now:             time.Now,
	}
}

// Admit runs the admission checks in order and returns the verdict.
// The event id is inserted into the dedup cache before any further check
// so concurrent deliveries of the same id collapse to one admission.
func (g *Gate) Admit(ev *nostr.Event, sourceURL string) Verdict {
	g.countSource(sourceURL)
	if g.metrics != nil {
		g.metrics.EventsReceived.WithLabelValues(sourceURL).Inc()
	}

	inserted, err := g.dedup.SetIfAbsent(ev.ID, struct{}{})
	if err != nil || !inserted {
		return g.reject(DuplicateID)
	}

	if !validStructure(ev) {
		return g.reject(InvalidStructure)
	}

	if ok, err := ev.CheckSignature(); err != nil || !ok {
		// Evict so a corrected resend of the same id is not blocked.
		g.dedup.Delete(ev.ID)
		g.recorder.Record(ev, sourceURL)
		return g.reject(InvalidSignature)
	}

	cutoff := g.now().Add(-g.freshnessWindow).Unix()
	if int64(ev.CreatedAt) < cutoff {
		return g.reject(Stale)
	}

	if g.metrics != nil {
		g.metrics.EventsAdmitted.Inc()
	}
	return Accepted
}

func (g *Gate) reject(v Verdict) Verdict {
	if g.metrics != nil {
		g.metrics.EventsRejected.WithLabelValues(v.String()).Inc()
	}
	return v
}

func (g *Gate) countSource(sourceURL string) {
	g.countersMu.Lock()
	g.counters[sourceURL]++
	g.countersMu.Unlock()
}

// CounterSnapshot returns a copy of the per-source event counters.
func (g *Gate) CounterSnapshot() map[string]int64 {
	g.countersMu.Lock()
	defer g.countersMu.Unlock()

	snapshot := make(map[string]int64, len(g.counters))
	for k, v := range g.counters {
		snapshot[k] = v
	}
	return snapshot
}

var (
	hex64Pattern  = regexp.MustCompile(`^[0-9a-f]{64}$`)
	hex128Pattern = regexp.MustCompile(`^[0-9a-f]{128}$`)
)

// validStructure checks the required fields are present and well-typed.
// The id must match the event's computed hash; signature validity is
// checked separately.
func validStructure(ev *nostr.Event) bool {
	if ev == nil {
		return false
	}
	if !hex64Pattern.MatchString(ev.ID) || !hex64Pattern.MatchString(ev.PubKey) {
		return false
	}
	if !hex128Pattern.MatchString(ev.Sig) {
		return false
	}
	if ev.Kind < 0 || ev.CreatedAt <= 0 {
		return false
	}
	for _, tag := range ev.Tags {
		if len(tag) == 0 {
			return false
		}
	}
	return ev.ID == ev.GetID()
}
