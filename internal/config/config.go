package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
)

// Strategy names.
const (
	StrategyDescending = "descending"
	StrategyPostScan   = "post-scan"
)

// Sensitive content policies.
const (
	SensitiveSpoiler = "spoiler"
	SensitiveSkip    = "skip"
)

const (
	appName               = "rikipost"
	defaultBooruURL       = "https://rikibooru.host/rikibooru"
	defaultRequestsPerSec = 2.0
	defaultInterval       = 2 * time.Hour
	defaultCatalogMaxAge  = 24 * time.Hour
	defaultCatalogQuery   = "-"
	defaultUploadAttempts = 10
	defaultVisibility     = "public"
	defaultLanguage       = "ru"
	defaultPairingSlug    = "пейр"
	defaultTheme          = "Dracula"
	ledgerFileName        = "state.json"
	historyFileName       = "history.jsonl"
	catalogFileName       = "booru.json"
)

// Config is the resolved bot configuration.
type Config struct {
	Mastodon  Mastodon
	Booru     Booru
	Files     Files
	Schedule  Schedule
	Selection Selection
	Compose   Compose
	Publish   Publish

	// MetricsListen is the promhttp address; empty disables the endpoint.
	MetricsListen string
	// Theme names the history browser palette.
	Theme string
}

// Mastodon holds the service account.
type Mastodon struct {
	BaseURL     string
	Username    string
	AccessToken string
}

// Booru points at the image catalog.
type Booru struct {
	BaseURL           string
	RequestsPerSecond float64
}

// Files are the state locations.
type Files struct {
	Ledger  string
	History string
	Catalog string
}

// Schedule controls the run loop. A non-empty Cron wins over Interval.
type Schedule struct {
	Interval        time.Duration
	Cron            string
	PostImmediately bool
}

// Selection picks and filters candidates.
type Selection struct {
	Strategy        string
	Floor           int64
	CatalogMaxAge   time.Duration
	CatalogQuery    string
	SensitivePolicy string
	PairingSlug     string
}

// Compose holds the franchise names and artist links.
type Compose struct {
	CharacterName string
	PluralName    string
	Hashtag       string
	Visibility    string
	Language      string
	Artists       map[string][]string
}

// Publish tunes uploads.
type Publish struct {
	UploadAttempts int
}

type rawConfig struct {
	Mastodon struct {
		BaseURL     string `toml:"base_url"`
		Username    string `toml:"username"`
		AccessToken string `toml:"access_token"`
	} `toml:"mastodon"`
	Booru struct {
		BaseURL           string  `toml:"base_url"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
	} `toml:"booru"`
	Files struct {
		Ledger  string `toml:"ledger"`
		History string `toml:"history"`
		Catalog string `toml:"catalog"`
	} `toml:"files"`
	Schedule struct {
		Interval        string `toml:"interval"`
		Cron            string `toml:"cron"`
		PostImmediately bool   `toml:"post_immediately"`
	} `toml:"schedule"`
	Selection struct {
		Strategy        string `toml:"strategy"`
		Floor           int64  `toml:"floor"`
		CatalogMaxAge   string `toml:"catalog_max_age"`
		CatalogQuery    string `toml:"catalog_query"`
		SensitivePolicy string `toml:"sensitive_policy"`
		PairingSlug     string `toml:"pairing_slug"`
	} `toml:"selection"`
	Compose struct {
		CharacterName string `toml:"character_name"`
		PluralName    string `toml:"plural_name"`
		Hashtag       string `toml:"hashtag"`
		Visibility    string `toml:"visibility"`
		Language      string `toml:"language"`
	} `toml:"compose"`
	Publish struct {
		UploadAttempts int `toml:"upload_attempts"`
	} `toml:"publish"`
	Artists       map[string][]string `toml:"artists"`
	MetricsListen string              `toml:"metrics_listen"`
	UI            struct {
		Theme string `toml:"theme"`
	} `toml:"ui"`
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Booru: Booru{BaseURL: defaultBooruURL, RequestsPerSecond: defaultRequestsPerSec},
		Files: Files{
			Ledger:  filepath.Join(xdg.StateHome, appName, ledgerFileName),
			History: filepath.Join(xdg.StateHome, appName, historyFileName),
			Catalog: filepath.Join(xdg.StateHome, appName, catalogFileName),
		},
		Schedule: Schedule{Interval: defaultInterval},
		Selection: Selection{
			Strategy:        StrategyDescending,
			CatalogMaxAge:   defaultCatalogMaxAge,
			CatalogQuery:    defaultCatalogQuery,
			SensitivePolicy: SensitiveSpoiler,
			PairingSlug:     defaultPairingSlug,
		},
		Compose: Compose{
			Visibility: defaultVisibility,
			Language:   defaultLanguage,
		},
		Publish: Publish{UploadAttempts: defaultUploadAttempts},
		Theme:   defaultTheme,
	}
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// Load reads the TOML file at path (DefaultPath when empty), then applies
// environment overrides from lookup. A missing file is not an error.
func Load(path string, lookup LookupFunc) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer func() { _ = file.Close() }()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var raw rawConfig
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := cfg.apply(raw); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return Config{}, err
		}
	}

	cfg.Files.Ledger = mustExpand(cfg.Files.Ledger)
	cfg.Files.History = mustExpand(cfg.Files.History)
	cfg.Files.Catalog = mustExpand(cfg.Files.Catalog)
	return cfg, nil
}

func (c *Config) apply(raw rawConfig) error {
	setString(&c.Mastodon.BaseURL, raw.Mastodon.BaseURL)
	setString(&c.Mastodon.Username, raw.Mastodon.Username)
	setString(&c.Mastodon.AccessToken, raw.Mastodon.AccessToken)
	setString(&c.Booru.BaseURL, raw.Booru.BaseURL)
	if raw.Booru.RequestsPerSecond > 0 {
		c.Booru.RequestsPerSecond = raw.Booru.RequestsPerSecond
	}
	setString(&c.Files.Ledger, raw.Files.Ledger)
	setString(&c.Files.History, raw.Files.History)
	setString(&c.Files.Catalog, raw.Files.Catalog)

	if err := setDuration(&c.Schedule.Interval, "schedule.interval", raw.Schedule.Interval); err != nil {
		return err
	}
	setString(&c.Schedule.Cron, raw.Schedule.Cron)
	c.Schedule.PostImmediately = raw.Schedule.PostImmediately

	setString(&c.Selection.Strategy, raw.Selection.Strategy)
	c.Selection.Floor = raw.Selection.Floor
	if err := setDuration(&c.Selection.CatalogMaxAge, "selection.catalog_max_age", raw.Selection.CatalogMaxAge); err != nil {
		return err
	}
	setString(&c.Selection.CatalogQuery, raw.Selection.CatalogQuery)
	setString(&c.Selection.SensitivePolicy, raw.Selection.SensitivePolicy)
	setString(&c.Selection.PairingSlug, raw.Selection.PairingSlug)

	setString(&c.Compose.CharacterName, raw.Compose.CharacterName)
	setString(&c.Compose.PluralName, raw.Compose.PluralName)
	setString(&c.Compose.Hashtag, raw.Compose.Hashtag)
	setString(&c.Compose.Visibility, raw.Compose.Visibility)
	setString(&c.Compose.Language, raw.Compose.Language)
	if len(raw.Artists) > 0 {
		c.Compose.Artists = make(map[string][]string, len(raw.Artists))
		for slug, links := range raw.Artists {
			c.Compose.Artists[strings.TrimSpace(slug)] = trimAll(links)
		}
	}

	if raw.Publish.UploadAttempts > 0 {
		c.Publish.UploadAttempts = raw.Publish.UploadAttempts
	}
	setString(&c.MetricsListen, raw.MetricsListen)
	setString(&c.Theme, raw.UI.Theme)
	return nil
}

// applyEnv applies the variables understood by the bot. The unprefixed names
// are kept for existing .env files.
func (c *Config) applyEnv(lookup LookupFunc) error {
	env := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	setString(&c.Mastodon.BaseURL, env("MASTODON_BASE_URL"))
	setString(&c.Mastodon.Username, env("MASTODON_USERNAME"))
	setString(&c.Mastodon.AccessToken, env("MASTODON_ACCESS_TOKEN"))
	setString(&c.Files.Catalog, env("BOORU_DB_FILENAME"))
	setString(&c.Files.Ledger, env("STATE_FILENAME"))
	setString(&c.Files.History, env("HISTORY_FILENAME"))
	setString(&c.Booru.BaseURL, env("RIKIPOST_BOORU_URL"))
	setString(&c.Selection.Strategy, env("RIKIPOST_STRATEGY"))
	setString(&c.Selection.SensitivePolicy, env("RIKIPOST_SENSITIVE_POLICY"))
	setString(&c.Schedule.Cron, env("RIKIPOST_CRON"))
	setString(&c.MetricsListen, env("RIKIPOST_METRICS_LISTEN"))
	if err := setDuration(&c.Schedule.Interval, "RIKIPOST_INTERVAL", env("RIKIPOST_INTERVAL")); err != nil {
		return err
	}
	if raw := strings.TrimSpace(env("POST_IMMEDIATELY")); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("POST_IMMEDIATELY: %w", err)
		}
		c.Schedule.PostImmediately = on
	}
	return nil
}

// Validate checks the settings every command relies on.
func (c Config) Validate() error {
	var errs []error
	if _, err := parseHTTPURL(c.Booru.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("booru.base_url: %w", err))
	}
	switch c.Selection.Strategy {
	case StrategyDescending, StrategyPostScan:
	default:
		errs = append(errs, fmt.Errorf("selection.strategy %q: want %s or %s", c.Selection.Strategy, StrategyDescending, StrategyPostScan))
	}
	switch c.Selection.SensitivePolicy {
	case SensitiveSpoiler, SensitiveSkip:
	default:
		errs = append(errs, fmt.Errorf("selection.sensitive_policy %q: want %s or %s", c.Selection.SensitivePolicy, SensitiveSpoiler, SensitiveSkip))
	}
	if c.Selection.Floor < 0 {
		errs = append(errs, fmt.Errorf("selection.floor must not be negative"))
	}
	if c.Schedule.Cron != "" && !gronx.IsValid(c.Schedule.Cron) {
		errs = append(errs, fmt.Errorf("schedule.cron %q is not a valid cron expression", c.Schedule.Cron))
	}
	if c.Schedule.Cron == "" && c.Schedule.Interval <= 0 {
		errs = append(errs, fmt.Errorf("schedule.interval must be positive"))
	}
	if c.Publish.UploadAttempts < 1 {
		errs = append(errs, fmt.Errorf("publish.upload_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

// ValidatePublishing additionally requires the service credentials.
func (c Config) ValidatePublishing() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseHTTPURL(c.Mastodon.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("mastodon base url (MASTODON_BASE_URL): %w", err))
	}
	if strings.TrimSpace(c.Mastodon.AccessToken) == "" {
		errs = append(errs, errors.New("mastodon access token (MASTODON_ACCESS_TOKEN) is required"))
	}
	return errors.Join(errs...)
}

func parseHTTPURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("is empty")
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(DefaultPath())
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
