// Package relaybridge implements a relay-to-relay classification bridge
// for Nostr events. It subscribes to a set of source relays, admits each
// incoming event through a dedup/structure/signature/freshness gate, runs
// admitted text notes through external classification services and
// republishes the original events together with signed annotation events
// to a set of target relays.
//
// # Pipeline
//
// Events flow through the bridge in a fixed order:
//
//	source relays -> ingest -> gate -> orchestrator -> publish -> target relays
//	                                  |
//	                                  +-> sidechannel (optional NATS mirror)
//
// The ingest package owns the relay subscriptions and a bounded worker
// queue; a full queue drops events rather than blocking the subscription
// reader. The gate package collapses duplicate event ids, validates
// structure and signatures and rejects stale events. The orchestrator
// runs the classification stages for each admitted text note:
//
//   - media safety (NSFW) over media URLs found in the note
//   - language detection over the normalized note text
//   - hate speech, gated on the note being English
//   - sentiment and topic, deferred until the note republish settles
//
// Each stage produces a kind 9978 annotation event signed with the
// bridge's key and addressed to the original note. Stage failures
// degrade to documented defaults; a failing classifier never blocks the
// note itself from being republished.
//
// # Supporting packages
//
// The classifier package holds the HTTP clients for the external
// classification services, sharing one connection pool and a global
// in-flight limiter. The normalizer and notemeta packages prepare note
// text and extract media URLs and tag-derived flags. The annotation
// package builds and validates the signed annotation events.
//
// Generic infrastructure lives under pkg/: a TTL+LRU cache used for
// event-id deduplication, a bounded worker pool and a retry helper with
// per-concern presets. The metric package exposes the pipeline metrics
// over Prometheus, and the sidechannel package mirrors events and
// classification results to NATS subjects for downstream consumers.
package relaybridge
