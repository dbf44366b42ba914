package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/five82/rikipost/internal/app"
	"github.com/five82/rikipost/internal/config"
	"github.com/five82/rikipost/internal/ui"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cliApp := &cli.App{
		Name:    "rikipost",
		Usage:   "post Rikibooru images to a Mastodon account",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to config.toml",
				Value:   config.DefaultPath(),
				EnvVars: []string{"RIKIPOST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "dotenv file loaded before reading the environment (optional)",
				Value:   ".env",
				EnvVars: []string{"RIKIPOST_ENV_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "info",
				EnvVars: []string{"RIKIPOST_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "log output format: text or json",
				Value:   "text",
				EnvVars: []string{"RIKIPOST_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "publish on the configured schedule until interrupted",
				Action: runBot,
			},
			{
				Name:   "tick",
				Usage:  "publish one image now",
				Action: runTick,
			},
			{
				Name:   "preview",
				Usage:  "select and compose the next post without publishing it",
				Action: runPreview,
			},
			{
				Name:  "history",
				Usage: "browse published statuses",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "number of most recent records to show",
						Value: 200,
					},
					&cli.BoolFlag{
						Name:  "plain",
						Usage: "print tab-separated lines instead of opening the browser",
					},
				},
				Action: runHistory,
			},
			{
				Name:   "refresh-catalog",
				Usage:  "rebuild the local catalog cache",
				Action: runRefreshCatalog,
			},
		},
		DefaultCommand: "run",
	}

	if err := cliApp.RunContext(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "rikipost: %v\n", err)
		return 1
	}
	return 0
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cctx.String("log-format")) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadApp reads .env, the config file and the environment, then wires the
// application.
func loadApp(cctx *cli.Context) (*app.App, error) {
	logger := configLogger(cctx, os.Stderr)

	if envFile := cctx.String("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(cctx.String("config"), os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(app.Options{Config: cfg, Logger: logger})
}

func runBot(cctx *cli.Context) error {
	a, err := loadApp(cctx)
	if err != nil {
		return err
	}
	return a.Run(cctx.Context)
}

func runTick(cctx *cli.Context) error {
	a, err := loadApp(cctx)
	if err != nil {
		return err
	}
	rec, err := a.Tick(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Printf("published %d as %s\n", rec.Image.VKID, rec.RemotePostURL)
	return nil
}

func runPreview(cctx *cli.Context) error {
	a, err := loadApp(cctx)
	if err != nil {
		return err
	}
	draft, err := a.Preview(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Println(ui.RenderPreview(draft, a.Config().Theme, 0))
	return nil
}

func runHistory(cctx *cli.Context) error {
	a, err := loadApp(cctx)
	if err != nil {
		return err
	}
	records, skipped, err := a.History(cctx.Int("limit"))
	if err != nil {
		return err
	}
	if skipped > 0 {
		slog.Warn("history lines could not be decoded", "skipped", skipped)
	}
	if cctx.Bool("plain") {
		fmt.Print(ui.PlainHistory(records))
		return nil
	}
	return ui.RunHistory(records, a.Config().Theme)
}

func runRefreshCatalog(cctx *cli.Context) error {
	a, err := loadApp(cctx)
	if err != nil {
		return err
	}
	snap, err := a.RefreshCatalog(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Printf("catalog refreshed: %s images\n", humanize.Comma(int64(len(snap.Images))))
	return nil
}
