package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/five82/rikipost/internal/booru"
	"github.com/five82/rikipost/internal/compose"
	"github.com/five82/rikipost/internal/config"
	"github.com/five82/rikipost/internal/mastodon"
	"github.com/five82/rikipost/internal/publish"
	"github.com/five82/rikipost/internal/selector"
	"github.com/five82/rikipost/internal/state"
	"github.com/five82/rikipost/internal/taxonomy"
)

// Stage names one step of a tick.
type Stage string

const (
	StageTaxonomy   Stage = "taxonomy"
	StageSelecting  Stage = "selecting"
	StageComposing  Stage = "composing"
	StageUploading  Stage = "uploading"
	StagePublishing Stage = "publishing"
	StageRecording  Stage = "recording"
	StageDone       Stage = "done"
)

// TickError is a failed tick. The ledger handed to Tick is unchanged.
type TickError struct {
	Stage Stage
	Err   error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick failed while %s: %v", e.Stage, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

// TaxonomySource fetches the booru taxonomy.
type TaxonomySource interface {
	FetchTaxonomy(ctx context.Context) (booru.Taxonomy, error)
}

// InstanceSource reports the service limits.
type InstanceSource interface {
	FetchInstance(ctx context.Context) (mastodon.Instance, error)
}

// Poster uploads media and publishes a status.
type Poster interface {
	PostWithAttachments(ctx context.Context, msg compose.Message, media []mastodon.MediaUpload) (mastodon.Status, error)
}

// Options wire a Bot.
type Options struct {
	Taxonomy TaxonomySource
	// Instance is optional; without it every post uses the richest tier.
	Instance  InstanceSource
	Strategy  selector.Strategy
	Poster    Poster
	Compose   compose.Options
	Index     taxonomy.Options
	// SensitivePolicy is config.SensitiveSpoiler (default) or
	// config.SensitiveSkip.
	SensitivePolicy string
	Now             func() time.Time
	Logger          *slog.Logger
}

// Bot runs the publish pipeline.
type Bot struct {
	taxonomy  TaxonomySource
	instance  InstanceSource
	strategy  selector.Strategy
	poster    Poster
	compose   compose.Options
	indexOpts taxonomy.Options
	skip      bool
	now       func() time.Time
	logger    *slog.Logger
}

// New validates opts and builds a Bot.
func New(opts Options) (*Bot, error) {
	switch {
	case opts.Taxonomy == nil:
		return nil, errors.New("bot: taxonomy source is required")
	case opts.Strategy == nil:
		return nil, errors.New("bot: selection strategy is required")
	}
	var skip bool
	switch opts.SensitivePolicy {
	case "", config.SensitiveSpoiler:
	case config.SensitiveSkip:
		skip = true
	default:
		return nil, fmt.Errorf("bot: unknown sensitive policy %q", opts.SensitivePolicy)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		taxonomy:  opts.Taxonomy,
		instance:  opts.Instance,
		strategy:  opts.Strategy,
		poster:    opts.Poster,
		compose:   opts.Compose,
		indexOpts: opts.Index,
		skip:      skip,
		now:       now,
		logger:    logger.With("component", "bot"),
	}, nil
}

// Result is the outcome of a successful tick.
type Result struct {
	Ledger  state.Ledger
	Record  state.PublishRecord
	Message compose.Message
}

// Draft is a selected and composed post that has not been uploaded.
type Draft struct {
	Candidate selector.Candidate
	Message   compose.Message
	Limits    compose.Limits
	Index     *taxonomy.Index
}

// Tick selects, composes, uploads and publishes one image. On success the
// returned ledger also contains the published image. On failure the error is
// a *TickError and Result.Ledger is the input ledger.
func (b *Bot) Tick(ctx context.Context, ledger state.Ledger) (Result, error) {
	if b.poster == nil {
		return Result{Ledger: ledger}, &TickError{Stage: StageUploading, Err: errors.New("no poster configured")}
	}
	draft, err := b.Draft(ctx, ledger)
	if err != nil {
		return Result{Ledger: ledger}, err
	}

	img := draft.Candidate.Image
	b.enter(StageUploading, img.VKID)
	upload := mastodon.MediaUpload{
		Data:        draft.Candidate.Media.Data,
		Filename:    draft.Candidate.Media.Filename,
		MimeType:    draft.Candidate.Media.MimeType,
		Description: draft.Message.MediaDescription,
	}
	status, err := b.poster.PostWithAttachments(ctx, draft.Message, []mastodon.MediaUpload{upload})
	if err != nil {
		stage := StageUploading
		if errors.Is(err, publish.ErrPublishRejected) {
			stage = StagePublishing
		}
		return Result{Ledger: ledger}, &TickError{Stage: stage, Err: err}
	}

	b.enter(StageRecording, img.VKID)
	res := Result{
		Ledger: ledger.With(img.VKID),
		Record: state.PublishRecord{
			Image:         img,
			RemotePostID:  status.ID,
			RemotePostURL: status.URL,
			PublishedAt:   b.now().UTC(),
			Tier:          draft.Message.Tier,
			Sensitive:     draft.Message.Sensitive,
		},
		Message: draft.Message,
	}
	b.enter(StageDone, img.VKID)
	publishedTiers.WithLabelValues(strconv.Itoa(draft.Message.Tier)).Inc()
	b.logger.Info("image published",
		"vk_id", img.VKID,
		"status_id", status.ID,
		"url", status.URL,
		"tier", draft.Message.Tier,
		"ledger_size", res.Ledger.Len(),
	)
	return res, nil
}

// Draft runs the tick up to composition without touching the service's
// write API.
func (b *Bot) Draft(ctx context.Context, ledger state.Ledger) (Draft, error) {
	b.enter(StageTaxonomy, 0)
	tax, err := b.taxonomy.FetchTaxonomy(ctx)
	if err != nil {
		return Draft{}, &TickError{Stage: StageTaxonomy, Err: err}
	}
	idx, err := taxonomy.Build(tax, b.indexOpts)
	if err != nil {
		return Draft{}, &TickError{Stage: StageTaxonomy, Err: err}
	}
	if updated, ok := idx.UpdatedAt(); ok {
		b.logger.Debug("taxonomy loaded", "catalog_size", idx.Total(), "updated", updated)
	}

	b.enter(StageSelecting, 0)
	req := selector.Request{Ledger: ledger, Total: idx.Total()}
	if b.skip {
		req.Filter = func(img booru.Image) bool {
			return len(idx.SensitiveTags(img.Tags)) == 0
		}
	}
	cand, err := b.strategy.Select(ctx, req)
	if err != nil {
		return Draft{}, &TickError{Stage: StageSelecting, Err: err}
	}
	if ledger.Contains(cand.Image.VKID) {
		return Draft{}, &TickError{Stage: StageSelecting, Err: fmt.Errorf("strategy returned published image %d", cand.Image.VKID)}
	}

	b.enter(StageComposing, cand.Image.VKID)
	limits := b.limits(ctx)
	msg := compose.New(idx, b.compose).Compose(cand.Image, limits)
	return Draft{Candidate: cand, Message: msg, Limits: limits, Index: idx}, nil
}

func (b *Bot) enter(stage Stage, vkID int64) {
	if vkID == 0 {
		b.logger.Debug("tick stage", "stage", stage)
		return
	}
	b.logger.Debug("tick stage", "stage", stage, "vk_id", vkID)
}

func (b *Bot) limits(ctx context.Context) compose.Limits {
	if b.instance == nil {
		return compose.Limits{}
	}
	inst, err := b.instance.FetchInstance(ctx)
	if err != nil {
		b.logger.Warn("instance limits unavailable, using the full text", "error", err)
		return compose.Limits{}
	}
	return compose.Limits{
		MaxCharacters:            inst.Configuration.Statuses.MaxCharacters,
		CharactersReservedPerURL: inst.Configuration.Statuses.CharactersReservedPerURL,
	}
}
