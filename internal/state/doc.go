// Package state holds the dedup ledger and the publish history.
//
// # Ledger
//
// Ledger is an immutable set of stable image ids (the booru's vk_id). A tick
// receives the current ledger, and only a successful publish produces a new
// one via With. Nothing in the package mutates a Ledger in place, so the
// "unchanged on failure" rule holds by construction: the caller keeps the
// value it passed in.
//
// # Files
//
// Store persists two files:
//
//   - the ledger, a JSON object {"skippedVkIds": [...]} rewritten atomically
//     (temp file + rename) on every commit
//   - the history log, one PublishRecord per line, append-only
//
// Commit writes the ledger before appending history. The history log is a
// write-only audit trail for the bot itself; ReadHistory exists for the
// history browser and keeps only the last N records in a ring buffer.
//
// # Concurrency
//
// Store serialises its own file access with a mutex. Ticks never overlap, so
// the lock only matters when the history browser reads while a daemon writes
// in the same process.
package state
