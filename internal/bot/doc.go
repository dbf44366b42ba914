// Package bot runs the publish pipeline: one tick selects an image, composes
// the status, uploads the media and publishes it.
//
// # Tick
//
// A tick is a small state machine:
//
//	taxonomy → selecting → composing → uploading → publishing → recording → done
//
// Every stage except composing can fail, and a failure ends the tick with a
// *TickError naming the stage. The ledger is a value (state.Ledger), so a
// failed tick cannot touch it: Tick returns the input ledger, and only a
// successful publish returns ledger.With(vkID) together with the history
// record. Tick never writes files; RunOnce hands the result to a Store.
//
// Instance limits are best effort. When /api/v2/instance fails the status is
// composed without a length limit, which always selects the richest tier.
//
// # Sensitive Content
//
// With config.SensitiveSpoiler (the default) sensitive images are posted with the
// sensitive flag and a spoiler listing the warning tags. config.SensitiveSkip turns
// them into a per-tick selection filter instead: the image is passed over and
// left out of the ledger, so switching the policy back later makes it
// eligible again.
//
// # Scheduling
//
// Run blocks until its context is cancelled. It ticks on a cron expression
// (gronx) when one is configured, otherwise on a fixed interval, default two
// hours; PostImmediately adds a tick at startup. Ticks run sequentially and
// the next slot is computed from the previous slot, so a slow tick delays but
// never overlaps the next one.
//
// # Metrics
//
// Prometheus collectors are registered with promauto:
//
//   - rikipost_ticks_total{stage}: ticks by final stage, "done" on success
//   - rikipost_tick_duration_sec
//   - rikipost_published_tier_total{tier}
//   - rikipost_ledger_size
//   - rikipost_last_published_timestamp_seconds
//
// RunMetrics serves them on /metrics.
package bot
