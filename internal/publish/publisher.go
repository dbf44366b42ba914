// Package publish uploads attachments and posts the composed status.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/five82/rikipost/internal/compose"
	"github.com/five82/rikipost/internal/mastodon"
)

// ErrPublishRejected marks a status the service did not accept.
var ErrPublishRejected = errors.New("publish rejected")

// Service is the slice of the Mastodon client the Publisher needs.
type Service interface {
	UploadMedia(ctx context.Context, media mastodon.MediaUpload) (mastodon.Attachment, error)
	CreateStatus(ctx context.Context, status mastodon.StatusRequest) (mastodon.Status, error)
}

// Options configure a Publisher.
type Options struct {
	Policy     Policy // zero value uses DefaultPolicy
	Visibility string // default public
	Language   string // default ru
	Logger     *slog.Logger
}

// Publisher uploads media with bounded retry and publishes once.
type Publisher struct {
	service    Service
	policy     Policy
	visibility string
	language   string
	logger     *slog.Logger
}

// New builds a Publisher over service.
func New(service Service, opts Options) *Publisher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.Logger == nil {
		policy.Logger = logger
	}
	userFailure := policy.OnFailure
	policy.OnFailure = func(attempt int, err error) {
		uploadFailures.Inc()
		if userFailure != nil {
			userFailure(attempt, err)
		}
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = mastodon.VisibilityPublic
	}
	language := opts.Language
	if language == "" {
		language = "ru"
	}
	return &Publisher{
		service:    service,
		policy:     policy,
		visibility: visibility,
		language:   language,
		logger:     logger.With("component", "publisher"),
	}
}

// UploadAttachment uploads media under the retry policy and returns the
// media id. On exhaustion the error is an *ExhaustedError wrapping the last
// failure.
func (p *Publisher) UploadAttachment(ctx context.Context, media mastodon.MediaUpload) (string, error) {
	var id string
	err := p.policy.Do(ctx, "upload "+media.Filename, func(ctx context.Context, attempt int) error {
		uploadAttempts.Inc()
		att, err := p.service.UploadMedia(ctx, media)
		if err != nil {
			return err
		}
		id = att.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("media uploaded", "file", media.Filename, "media_id", id)
	return id, nil
}

// Publish posts msg with the given attachments. It makes exactly one attempt:
// retrying blind could publish the same image twice.
func (p *Publisher) Publish(ctx context.Context, msg compose.Message, mediaIDs []string) (mastodon.Status, error) {
	req := mastodon.StatusRequest{
		Status:      msg.Text,
		MediaIDs:    mediaIDs,
		Sensitive:   msg.Sensitive,
		SpoilerText: msg.SpoilerText,
		Visibility:  p.visibility,
		Language:    p.language,
	}
	status, err := p.service.CreateStatus(ctx, req)
	if err != nil {
		return mastodon.Status{}, fmt.Errorf("%w: %w", ErrPublishRejected, err)
	}
	p.logger.Info("status published", "status_id", status.ID, "url", status.URL, "tier", msg.Tier, "sensitive", msg.Sensitive)
	return status, nil
}

// PostWithAttachments uploads every attachment in order, then publishes once.
// The returned ids follow the input order.
func (p *Publisher) PostWithAttachments(ctx context.Context, msg compose.Message, media []mastodon.MediaUpload) (mastodon.Status, error) {
	ids := make([]string, 0, len(media))
	for _, m := range media {
		id, err := p.UploadAttachment(ctx, m)
		if err != nil {
			return mastodon.Status{}, err
		}
		ids = append(ids, id)
	}
	return p.Publish(ctx, msg, ids)
}
