// Package app is the composition root of rikipost.
//
// New turns a validated config.Config into a wired bot: one booru client
// (rate limited, shared by the taxonomy fetch, the selection strategy and the
// catalog cache), one Mastodon client feeding both the instance limits and
// the publisher, a state.Store for the ledger and history files, and the
// selection strategy named by selection.strategy.
//
// # Commands
//
// Each CLI command maps to one method:
//
//   - Run: initialise state, start the metrics server when metrics_listen is
//     set, then tick on the schedule until the context is cancelled
//   - Tick: publish exactly one image and commit it
//   - Preview: select and compose without uploading; needs no access token
//   - History: read the tail of the history log
//   - RefreshCatalog: rebuild the catalog cache regardless of its age
//
// Run and Tick require the service credentials (config.ValidatePublishing).
// Preview works with only the service URL, which it uses to read instance
// limits, or with no service at all, in which case the richest text tier is
// shown.
//
// # Errors
//
// Configuration and wiring problems are returned from New before anything
// touches the network. Tick failures are *bot.TickError values naming the
// stage that failed; under Run they are logged and the loop carries on.
package app
