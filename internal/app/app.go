package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/carlmjohnson/versioninfo"

	"github.com/five82/rikipost/internal/booru"
	"github.com/five82/rikipost/internal/bot"
	"github.com/five82/rikipost/internal/catalog"
	"github.com/five82/rikipost/internal/compose"
	"github.com/five82/rikipost/internal/config"
	"github.com/five82/rikipost/internal/mastodon"
	"github.com/five82/rikipost/internal/publish"
	"github.com/five82/rikipost/internal/selector"
	"github.com/five82/rikipost/internal/state"
	"github.com/five82/rikipost/internal/taxonomy"
)

// Options configure the application.
type Options struct {
	Config config.Config
	Logger *slog.Logger
	// HTTPClient is shared by both API clients; nil uses their defaults.
	HTTPClient *http.Client
}

// App owns the wired collaborators of one bot account.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	booru    *booru.Client
	mastodon *mastodon.Client // nil without a service URL
	store    *state.Store
	catalog  *catalog.Cache // nil for the descending strategy
	bot      *bot.Bot
}

// New validates the configuration and wires every component.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ua := UserAgent(cfg.Mastodon)
	booruClient, err := booru.NewClient(booru.Options{
		BaseURL:           cfg.Booru.BaseURL,
		UserAgent:         ua,
		RequestsPerSecond: cfg.Booru.RequestsPerSecond,
		HTTPClient:        opts.HTTPClient,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init booru client: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		booru:  booruClient,
		store:  state.NewStore(cfg.Files.Ledger, cfg.Files.History),
	}

	botOpts := bot.Options{
		Taxonomy: booruClient,
		Compose: compose.Options{
			Franchise: compose.Franchise{
				CharacterName: cfg.Compose.CharacterName,
				PluralName:    cfg.Compose.PluralName,
				Hashtag:       cfg.Compose.Hashtag,
			},
			Artists: cfg.Compose.Artists,
		},
		Index:           taxonomy.Options{PairingSlug: cfg.Selection.PairingSlug},
		SensitivePolicy: cfg.Selection.SensitivePolicy,
		Logger:          logger,
	}

	if cfg.Mastodon.BaseURL != "" {
		a.mastodon, err = mastodon.NewClient(mastodon.Options{
			BaseURL:     cfg.Mastodon.BaseURL,
			AccessToken: cfg.Mastodon.AccessToken,
			UserAgent:   ua,
			HTTPClient:  opts.HTTPClient,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init mastodon client: %w", err)
		}
		botOpts.Instance = a.mastodon
		policy := publish.DefaultPolicy()
		if cfg.Publish.UploadAttempts > 0 {
			policy.MaxAttempts = cfg.Publish.UploadAttempts
		}
		botOpts.Poster = publish.New(a.mastodon, publish.Options{
			Policy:     policy,
			Visibility: cfg.Compose.Visibility,
			Language:   cfg.Compose.Language,
			Logger:     logger,
		})
	}

	switch cfg.Selection.Strategy {
	case config.StrategyPostScan:
		a.catalog = catalog.New(booruClient, catalog.Options{
			Path:   cfg.Files.Catalog,
			MaxAge: cfg.Selection.CatalogMaxAge,
			Query:  cfg.Selection.CatalogQuery,
			Logger: logger,
		})
		botOpts.Strategy = selector.NewPostScan(a.catalog, booruClient, selector.PostScanOptions{Logger: logger})
	default:
		botOpts.Strategy = selector.NewDescendingScan(booruClient, selector.DescendingOptions{
			Floor:  cfg.Selection.Floor,
			Logger: logger,
		})
	}

	a.bot, err = bot.New(botOpts)
	if err != nil {
		return nil, fmt.Errorf("init bot: %w", err)
	}
	return a, nil
}

// UserAgent identifies the bot to both services, pointing back at the
// account it posts to.
func UserAgent(m config.Mastodon) string {
	ua := "rikipost/" + versioninfo.Short()
	base := strings.TrimRight(m.BaseURL, "/")
	if base == "" {
		return ua
	}
	if m.Username == "" {
		return fmt.Sprintf("%s (+%s)", ua, base)
	}
	return fmt.Sprintf("%s (+%s/@%s)", ua, base, strings.TrimPrefix(m.Username, "@"))
}

// Init creates the state files, and the catalog cache for post-scan, when
// they do not exist yet.
func (a *App) Init(ctx context.Context) error {
	if err := a.store.Init(); err != nil {
		return fmt.Errorf("init state: %w", err)
	}
	if a.catalog != nil {
		if err := a.catalog.Init(ctx); err != nil {
			return fmt.Errorf("init catalog: %w", err)
		}
	}
	return nil
}

// Run initialises state and ticks on the configured schedule until ctx is
// cancelled. The metrics server, when configured, runs alongside.
func (a *App) Run(ctx context.Context) error {
	if err := a.cfg.ValidatePublishing(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := a.Init(ctx); err != nil {
		return err
	}
	if listen := a.cfg.MetricsListen; listen != "" {
		go func() {
			a.logger.Info("serving metrics", "listen", listen)
			if err := bot.RunMetrics(ctx, listen); err != nil {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
	}
	return a.bot.Run(ctx, a.store, bot.Schedule{
		Interval:        a.cfg.Schedule.Interval,
		Cron:            a.cfg.Schedule.Cron,
		PostImmediately: a.cfg.Schedule.PostImmediately,
	})
}

// Tick publishes one image now and returns its history record.
func (a *App) Tick(ctx context.Context) (state.PublishRecord, error) {
	if err := a.cfg.ValidatePublishing(); err != nil {
		return state.PublishRecord{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := a.Init(ctx); err != nil {
		return state.PublishRecord{}, err
	}
	ledger, err := a.store.LoadLedger()
	if err != nil {
		return state.PublishRecord{}, fmt.Errorf("load ledger: %w", err)
	}
	res, err := a.bot.RunOnce(ctx, a.store, ledger)
	return res.Record, err
}

// Preview selects and composes the next post without uploading anything.
func (a *App) Preview(ctx context.Context) (bot.Draft, error) {
	ledger, err := a.store.LoadLedger()
	if err != nil {
		return bot.Draft{}, fmt.Errorf("load ledger: %w", err)
	}
	return a.bot.Draft(ctx, ledger)
}

// History returns up to max of the newest records, oldest first, and the
// number of log lines that did not decode.
func (a *App) History(max int) ([]state.PublishRecord, int, error) {
	return a.store.ReadHistory(max)
}

// RefreshCatalog rebuilds the catalog cache regardless of its age.
func (a *App) RefreshCatalog(ctx context.Context) (catalog.Snapshot, error) {
	c := a.catalog
	if c == nil {
		c = catalog.New(a.booru, catalog.Options{
			Path:   a.cfg.Files.Catalog,
			MaxAge: a.cfg.Selection.CatalogMaxAge,
			Query:  a.cfg.Selection.CatalogQuery,
			Logger: a.logger,
		})
	}
	return c.Refresh(ctx)
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config { return a.cfg }
