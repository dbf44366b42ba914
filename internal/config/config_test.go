package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"), nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Booru.BaseURL != defaultBooruURL {
		t.Fatalf("Booru.BaseURL = %q, want %q", cfg.Booru.BaseURL, defaultBooruURL)
	}
	if cfg.Schedule.Interval != defaultInterval {
		t.Fatalf("Schedule.Interval = %v, want %v", cfg.Schedule.Interval, defaultInterval)
	}
	if cfg.Selection.Strategy != StrategyDescending {
		t.Fatalf("Selection.Strategy = %q, want %q", cfg.Selection.Strategy, StrategyDescending)
	}
	if cfg.Selection.SensitivePolicy != SensitiveSpoiler {
		t.Fatalf("Selection.SensitivePolicy = %q, want %q", cfg.Selection.SensitivePolicy, SensitiveSpoiler)
	}
	if filepath.Base(cfg.Files.Ledger) != ledgerFileName {
		t.Fatalf("Files.Ledger = %q, want it to end in %q", cfg.Files.Ledger, ledgerFileName)
	}
	if !filepath.IsAbs(cfg.Files.History) {
		t.Fatalf("Files.History = %q, want absolute path", cfg.Files.History)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate on defaults returned error: %v", err)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, `
metrics_listen = " 127.0.0.1:9464 "

[mastodon]
base_url = "  https://mastodon.example  "
access_token = "secret"

[files]
ledger = "  ~/.rikipost/state.json  "

[schedule]
interval = "30m"
post_immediately = true

[selection]
strategy = "post-scan"
sensitive_policy = "skip"
catalog_max_age = "12h"
floor = 100

[artists]
artist_foo = [" https://foo.example ", ""]

[ui]
theme = "Slate"
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Mastodon.BaseURL != "https://mastodon.example" {
		t.Fatalf("Mastodon.BaseURL = %q, want %q", cfg.Mastodon.BaseURL, "https://mastodon.example")
	}
	if cfg.MetricsListen != "127.0.0.1:9464" {
		t.Fatalf("MetricsListen = %q, want %q", cfg.MetricsListen, "127.0.0.1:9464")
	}
	if want := filepath.Join(home, ".rikipost", "state.json"); cfg.Files.Ledger != want {
		t.Fatalf("Files.Ledger = %q, want %q", cfg.Files.Ledger, want)
	}
	if cfg.Schedule.Interval != 30*time.Minute || !cfg.Schedule.PostImmediately {
		t.Fatalf("Schedule = %+v, want 30m interval with immediate post", cfg.Schedule)
	}
	if cfg.Selection.Strategy != StrategyPostScan || cfg.Selection.SensitivePolicy != SensitiveSkip {
		t.Fatalf("Selection = %+v, want post-scan/skip", cfg.Selection)
	}
	if cfg.Selection.CatalogMaxAge != 12*time.Hour || cfg.Selection.Floor != 100 {
		t.Fatalf("Selection = %+v, want 12h max age and floor 100", cfg.Selection)
	}
	links := cfg.Compose.Artists["artist_foo"]
	if len(links) != 1 || links[0] != "https://foo.example" {
		t.Fatalf("Artists[artist_foo] = %q, want one trimmed link", links)
	}
	if cfg.Theme != "Slate" {
		t.Fatalf("Theme = %q, want %q", cfg.Theme, "Slate")
	}
	if err := cfg.ValidatePublishing(); err != nil {
		t.Fatalf("ValidatePublishing returned error: %v", err)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, `
[mastodon]
base_url = "https://file.example"
`)
	dir := t.TempDir()

	cfg, err := Load(path, envMap(map[string]string{
		"MASTODON_BASE_URL":     "https://env.example",
		"MASTODON_ACCESS_TOKEN": "token",
		"STATE_FILENAME":        filepath.Join(dir, "s.json"),
		"BOORU_DB_FILENAME":     filepath.Join(dir, "b.json"),
		"POST_IMMEDIATELY":      "true",
		"RIKIPOST_CRON":         "0 */2 * * *",
		"RIKIPOST_INTERVAL":     "   ",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Mastodon.BaseURL != "https://env.example" {
		t.Fatalf("Mastodon.BaseURL = %q, want env value", cfg.Mastodon.BaseURL)
	}
	if cfg.Files.Ledger != filepath.Join(dir, "s.json") || cfg.Files.Catalog != filepath.Join(dir, "b.json") {
		t.Fatalf("Files = %+v, want env paths", cfg.Files)
	}
	if !cfg.Schedule.PostImmediately || cfg.Schedule.Cron != "0 */2 * * *" {
		t.Fatalf("Schedule = %+v, want cron and immediate post", cfg.Schedule)
	}
	if cfg.Schedule.Interval != defaultInterval {
		t.Fatalf("Schedule.Interval = %v, want default %v", cfg.Schedule.Interval, defaultInterval)
	}
}

func TestLoad_InvalidValuesFail(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
		want string
	}{
		{name: "toml", body: `metrics_listen = [`, want: "parse config"},
		{name: "duration", body: "[schedule]\ninterval = \"soon\"", want: "schedule.interval"},
		{name: "bool env", env: map[string]string{"POST_IMMEDIATELY": "maybe"}, want: "POST_IMMEDIATELY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), envMap(tt.env))
			if err == nil {
				t.Fatalf("Load returned nil error, want %s error", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Selection.Strategy = "random"
	cfg.Selection.SensitivePolicy = "hide"
	cfg.Schedule.Cron = "every tuesday"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("Validate returned nil error")
	}
	for _, want := range []string{"selection.strategy", "selection.sensitive_policy", "schedule.cron"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate error = %q, want it to mention %q", err.Error(), want)
		}
	}
}

func TestValidatePublishing_RequiresCredentials(t *testing.T) {
	cfg := Default()

	err := cfg.ValidatePublishing()
	if err == nil {
		t.Fatalf("ValidatePublishing returned nil error")
	}
	if !strings.Contains(err.Error(), "MASTODON_ACCESS_TOKEN") || !strings.Contains(err.Error(), "MASTODON_BASE_URL") {
		t.Fatalf("ValidatePublishing error = %q, want both credentials named", err.Error())
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
