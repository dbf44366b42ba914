package selector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/five82/rikipost/internal/booru"
)

// ImageSource fetches single images by catalog position.
type ImageSource interface {
	MediaFetcher
	FetchImage(ctx context.Context, seq int64) (booru.Image, error)
}

// DescendingOptions tune a DescendingScan.
type DescendingOptions struct {
	// Floor is the lowest sequence position scanned.
	Floor  int64
	Logger *slog.Logger
}

// DescendingScan selects the newest unpublished tagged image.
type DescendingScan struct {
	source ImageSource
	floor  int64
	logger *slog.Logger
}

// NewDescendingScan builds the strategy over source.
func NewDescendingScan(source ImageSource, opts DescendingOptions) *DescendingScan {
	floor := opts.Floor
	if floor < 0 {
		floor = 0
	}
	return &DescendingScan{
		source: source,
		floor:  floor,
		logger: loggerOrDefault(opts.Logger).With("strategy", "descending"),
	}
}

// Select scans from req.Total-1 down to the floor.
func (s *DescendingScan) Select(ctx context.Context, req Request) (Candidate, error) {
	var published, untagged, filtered int
	for seq := req.Total - 1; seq >= s.floor; seq-- {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		img, err := s.source.FetchImage(ctx, seq)
		if err != nil {
			return Candidate{}, fmt.Errorf("scan position %d: %w", seq, err)
		}
		switch {
		case req.Ledger.Contains(img.VKID):
			published++
			continue
		case !img.HasTags():
			untagged++
			s.logger.Debug("image awaiting moderation", "vk_id", img.VKID, "seq", seq)
			continue
		case !req.Filter.allows(img):
			filtered++
			continue
		}

		media, err := s.source.FetchMedia(ctx, img)
		if err != nil {
			return Candidate{}, fmt.Errorf("scan position %d: %w", seq, err)
		}
		s.logger.Info("candidate selected",
			"vk_id", img.VKID,
			"seq", seq,
			"published_skipped", published,
			"untagged_skipped", untagged,
			"filtered", filtered,
		)
		return Candidate{Image: img, Media: media}, nil
	}
	return Candidate{}, fmt.Errorf("%w: scanned down to position %d (%d published, %d untagged, %d filtered)",
		ErrNoSuitableImage, s.floor, published, untagged, filtered)
}
