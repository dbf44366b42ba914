// Package config loads the rikipost configuration.
//
// # Resolution Order
//
// Load builds a Config in layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. The TOML file, by default $XDG_CONFIG_HOME/rikipost/config.toml
//  3. Environment variables, passed in as a LookupFunc
//
// A missing config file is not an error; a bot configured purely through the
// environment (or a .env file loaded by the caller) works out of the box.
// Empty or whitespace-only values never override a lower layer.
//
// # Environment
//
//   - MASTODON_BASE_URL, MASTODON_USERNAME, MASTODON_ACCESS_TOKEN
//   - STATE_FILENAME, HISTORY_FILENAME, BOORU_DB_FILENAME
//   - POST_IMMEDIATELY (strconv.ParseBool syntax)
//   - RIKIPOST_BOORU_URL, RIKIPOST_STRATEGY, RIKIPOST_SENSITIVE_POLICY
//   - RIKIPOST_INTERVAL, RIKIPOST_CRON, RIKIPOST_METRICS_LISTEN
//
// # TOML Format
//
//	metrics_listen = "127.0.0.1:9464"
//
//	[mastodon]
//	base_url = "https://mastodon.example"
//	username = "rikibot"
//	access_token = "..."
//
//	[schedule]
//	cron = "0 */2 * * *"      # wins over interval
//	interval = "2h"
//	post_immediately = true
//
//	[selection]
//	strategy = "post-scan"     # or "descending"
//	sensitive_policy = "skip"  # or "spoiler"
//	catalog_max_age = "24h"
//
//	[artists]
//	artist_foo = ["https://foo.example"]
//
// # Paths
//
// State files default to $XDG_STATE_HOME/rikipost. Tilde paths are expanded
// and every file path is made absolute.
//
// # Validation
//
// Validate checks what every command needs; ValidatePublishing additionally
// requires the Mastodon credentials. Both report every problem at once via
// errors.Join.
package config
