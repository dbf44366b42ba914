// Package selector finds the next image to publish.
//
// Two strategies share one contract. Select returns a Candidate whose stable
// id is not in the ledger and whose tag set is non-empty, or an error wrapping
// ErrNoSuitableImage once the source is exhausted. Untagged images are never
// recorded anywhere; moderators tag them eventually and a later tick picks
// them up.
//
// DescendingScan walks catalog sequence positions from the newest image
// downwards and treats every fetch failure as fatal. PostScan walks the
// cached catalog post by post, inherits tags between siblings of the same
// post, and logs and skips broken posts and media.
package selector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/five82/rikipost/internal/booru"
	"github.com/five82/rikipost/internal/state"
)

// ErrNoSuitableImage is returned when the whole source was scanned without an
// eligible image.
var ErrNoSuitableImage = errors.New("no suitable image found")

// Candidate is a selected image with its downloaded media.
type Candidate struct {
	Image booru.Image
	Media booru.Media
	// Inherited reports that Image.Tags were copied from a sibling.
	Inherited bool
}

// Request carries the per-tick inputs of a selection.
type Request struct {
	Ledger state.Ledger
	// Total is the catalog size from the taxonomy header.
	Total int64
	// Filter, when set, vetoes otherwise eligible images.
	Filter Filter
}

// Strategy selects one candidate per tick.
type Strategy interface {
	Select(ctx context.Context, req Request) (Candidate, error)
}

// Filter reports whether an otherwise eligible image may be posted this
// tick. Rejected images are left for a later tick and never recorded.
type Filter func(booru.Image) bool

// MediaFetcher downloads image bytes.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, img booru.Image) (booru.Media, error)
}

func (f Filter) allows(img booru.Image) bool {
	return f == nil || f(img)
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
