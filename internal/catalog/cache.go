// Package catalog keeps a local copy of the booru catalog for the post-scan
// selector. The copy lives in one JSON file, {"updatedAt": <unix ms>,
// "images": [...]}, and is refreshed from the catalog query once it is older
// than the freshness window.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/five82/rikipost/internal/booru"
	"github.com/five82/rikipost/internal/state"
)

const (
	// DefaultMaxAge is the freshness window.
	DefaultMaxAge = 24 * time.Hour
	// DefaultQuery lists the whole catalog.
	DefaultQuery = "-"
)

// ErrNoSnapshot is returned by Load when the cache file does not exist.
var ErrNoSnapshot = errors.New("catalog cache not found")

// Querier runs catalog queries. *booru.Client satisfies it.
type Querier interface {
	QueryCatalog(ctx context.Context, q booru.CatalogQuery) ([]booru.Image, error)
}

// Snapshot is one cached copy of the catalog.
type Snapshot struct {
	UpdatedAt time.Time
	Images    []booru.Image
}

type snapshotFile struct {
	UpdatedAt int64         `json:"updatedAt"`
	Images    []booru.Image `json:"images"`
}

// MarshalJSON writes UpdatedAt as unix milliseconds.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	images := s.Images
	if images == nil {
		images = []booru.Image{}
	}
	return json.Marshal(snapshotFile{UpdatedAt: s.UpdatedAt.UnixMilli(), Images: images})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.UpdatedAt = time.UnixMilli(raw.UpdatedAt)
	s.Images = raw.Images
	return nil
}

// Options configure a Cache.
type Options struct {
	Path   string
	MaxAge time.Duration
	Query  string
	Now    func() time.Time
	Logger *slog.Logger
}

// Cache is the file-backed catalog.
type Cache struct {
	querier Querier
	path    string
	maxAge  time.Duration
	query   string
	now     func() time.Time
	logger  *slog.Logger

	mu sync.Mutex
}

// New builds a Cache. Zero options take the package defaults.
func New(querier Querier, opts Options) *Cache {
	c := &Cache{
		querier: querier,
		path:    opts.Path,
		maxAge:  opts.MaxAge,
		query:   opts.Query,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.query == "" {
		c.query = DefaultQuery
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "catalog")
	return c
}

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Load reads the cache file without touching the network.
func (c *Cache) Load() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Stale reports whether snap is older than the freshness window.
func (c *Cache) Stale(snap Snapshot) bool {
	return c.now().Sub(snap.UpdatedAt) >= c.maxAge
}

// Refresh queries the booru and replaces the cache file.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh(ctx)
}

// Init creates the cache file when it does not exist yet.
func (c *Cache) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.load(); err == nil {
		return nil
	} else if !errors.Is(err, ErrNoSnapshot) {
		return err
	}
	_, err := c.refresh(ctx)
	return err
}

// Fresh returns a snapshot within the freshness window, refreshing it when
// needed. A failed refresh falls back to the stale copy when there is one.
func (c *Cache) Fresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load()
	switch {
	case err == nil && !c.Stale(snap):
		return snap, nil
	case err != nil && !errors.Is(err, ErrNoSnapshot):
		c.logger.Warn("catalog cache unreadable, refreshing", "path", c.path, "error", err)
	}

	fresh, rerr := c.refresh(ctx)
	if rerr == nil {
		return fresh, nil
	}
	if err == nil {
		c.logger.Warn("catalog refresh failed, using stale cache",
			"age", humanize.Time(snap.UpdatedAt),
			"images", len(snap.Images),
			"error", rerr,
		)
		return snap, nil
	}
	return Snapshot{}, rerr
}

// Images satisfies the post-scan catalog source.
func (c *Cache) Images(ctx context.Context) ([]booru.Image, error) {
	snap, err := c.Fresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Images, nil
}

func (c *Cache) load() (Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("read catalog cache: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse catalog cache %s: %w", c.path, err)
	}
	return snap, nil
}

func (c *Cache) refresh(ctx context.Context) (Snapshot, error) {
	started := c.now()
	images, err := c.querier.QueryCatalog(ctx, booru.CatalogQuery{Query: c.query})
	if err != nil {
		return Snapshot{}, fmt.Errorf("refresh catalog: %w", err)
	}
	snap := Snapshot{UpdatedAt: c.now(), Images: images}
	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode catalog cache: %w", err)
	}
	if err := state.WriteFileAtomic(c.path, data); err != nil {
		return Snapshot{}, fmt.Errorf("write catalog cache: %w", err)
	}
	c.logger.Info("catalog refreshed",
		"images", len(images),
		"size", humanize.Bytes(uint64(len(data))),
		"took", c.now().Sub(started).Round(time.Millisecond),
	)
	return snap, nil
}
