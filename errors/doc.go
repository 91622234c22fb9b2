// Package errors defines the error taxonomy of the relay bridge.
//
// Errors fall into three classes:
//
//   - Transient: temporary external failures (classifier HTTP calls, relay
//     publishes, broker connections). Callers retry within a bounded policy
//     and then degrade to a documented default or drop-with-log.
//   - Invalid: per-event rejections (bad structure, bad signature, stale
//     timestamp, duplicate id) and annotations that fail self-validation.
//     These drop the single event and never propagate.
//   - Fatal: startup configuration errors. These abort the process before
//     any partial start.
//
// Wrapping follows the "component.method: action failed: %w" convention:
//
//	return errors.WrapTransient(err, "Publisher", "Publish", "deliver to targets")
//
// Nothing in the classification or publish path is allowed to crash the
// process; only startup configuration errors are fatal.
package errors
