package selector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/PuerkitoBio/purell"
	"github.com/samber/lo"

	"github.com/five82/rikipost/internal/booru"
)

const postURLFlags = purell.FlagsSafe | purell.FlagRemoveFragment | purell.FlagRemoveTrailingSlash | purell.FlagRemoveWWW

// Catalog lists the images the post scan walks, newest first.
type Catalog interface {
	Images(ctx context.Context) ([]booru.Image, error)
}

// PostSource fetches every image of one source post.
type PostSource interface {
	MediaFetcher
	FetchPost(ctx context.Context, postURL string) ([]booru.Image, error)
}

// PostScanOptions tune a PostScan.
type PostScanOptions struct {
	Logger *slog.Logger
}

// PostScan selects from the cached catalog one source post at a time.
type PostScan struct {
	catalog Catalog
	source  PostSource
	logger  *slog.Logger
}

// NewPostScan builds the strategy.
func NewPostScan(catalog Catalog, source PostSource, opts PostScanOptions) *PostScan {
	return &PostScan{
		catalog: catalog,
		source:  source,
		logger:  loggerOrDefault(opts.Logger).With("strategy", "post-scan"),
	}
}

// Select walks the catalog. Catalog errors are fatal; failures on a single
// post or media download skip that candidate.
func (s *PostScan) Select(ctx context.Context, req Request) (Candidate, error) {
	images, err := s.catalog.Images(ctx)
	if err != nil {
		return Candidate{}, fmt.Errorf("load catalog: %w", err)
	}

	visited := make(map[string]struct{})
	for _, entry := range images {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		if req.Ledger.Contains(entry.VKID) {
			continue
		}
		key := normalizePostURL(entry.PostURL)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		records, err := s.source.FetchPost(ctx, entry.PostURL)
		if err != nil {
			s.logger.Warn("post fetch failed, skipping", "post", entry.PostURL, "error", err)
			continue
		}
		if c, ok := s.selectFromPost(ctx, req, entry.PostURL, records); ok {
			return c, nil
		}
	}
	return Candidate{}, fmt.Errorf("%w: %d catalog entries, %d posts visited", ErrNoSuitableImage, len(images), len(visited))
}

func (s *PostScan) selectFromPost(ctx context.Context, req Request, postURL string, records []booru.Image) (Candidate, bool) {
	sibling, ok := lo.Find(records, func(img booru.Image) bool { return img.HasTags() })
	if !ok {
		s.logger.Debug("post awaiting moderation", "post", postURL, "images", len(records))
		return Candidate{}, false
	}

	for _, rec := range records {
		if req.Ledger.Contains(rec.VKID) {
			continue
		}
		img := rec.Clone()
		inherited := false
		if !img.HasTags() {
			img.Tags = slices.Clone(sibling.Tags)
			inherited = true
		}
		if !req.Filter.allows(img) {
			continue
		}
		media, err := s.source.FetchMedia(ctx, img)
		if err != nil {
			s.logger.Warn("media fetch failed, trying next image", "vk_id", img.VKID, "post", postURL, "error", err)
			continue
		}
		s.logger.Info("candidate selected", "vk_id", img.VKID, "post", postURL, "inherited_tags", inherited)
		return Candidate{Image: img, Media: media, Inherited: inherited}, true
	}
	return Candidate{}, false
}

func normalizePostURL(raw string) string {
	clean, err := purell.NormalizeURLString(raw, postURLFlags)
	if err != nil {
		return raw
	}
	return clean
}
