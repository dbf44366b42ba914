package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/rikipost/internal/compose"
	"github.com/five82/rikipost/internal/mastodon"
)

type fakeService struct {
	uploadErrs []error // consumed per call; nil entries succeed
	uploads    []string
	statusErr  error
	statuses   []mastodon.StatusRequest
}

func (f *fakeService) UploadMedia(_ context.Context, media mastodon.MediaUpload) (mastodon.Attachment, error) {
	call := len(f.uploads)
	f.uploads = append(f.uploads, media.Filename)
	if call < len(f.uploadErrs) && f.uploadErrs[call] != nil {
		return mastodon.Attachment{}, f.uploadErrs[call]
	}
	return mastodon.Attachment{ID: fmt.Sprintf("media-%d", call)}, nil
}

func (f *fakeService) CreateStatus(_ context.Context, status mastodon.StatusRequest) (mastodon.Status, error) {
	f.statuses = append(f.statuses, status)
	if f.statusErr != nil {
		return mastodon.Status{}, f.statusErr
	}
	return mastodon.Status{ID: "status-1", URL: "https://example.social/@bot/1"}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUploadAttachment_ExhaustsAfterTenAttempts(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = fmt.Errorf("upload %d: %w", i+1, errors.New("boom"))
	}
	last := errors.New("final failure")
	errs[9] = last
	svc := &fakeService{uploadErrs: errs}
	p := New(svc, Options{Logger: quietLogger()})

	_, err := p.UploadAttachment(context.Background(), mastodon.MediaUpload{Filename: "a.jpg"})

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 10, exhausted.Attempts)
	assert.ErrorIs(t, err, last)
	assert.Len(t, svc.uploads, 10)
}

func TestUploadAttachment_SucceedsOnThirdAttempt(t *testing.T) {
	var failures []int
	svc := &fakeService{uploadErrs: []error{errors.New("one"), errors.New("two")}}
	p := New(svc, Options{
		Logger: quietLogger(),
		Policy: Policy{MaxAttempts: 10, OnFailure: func(attempt int, _ error) {
			failures = append(failures, attempt)
		}},
	})

	id, err := p.UploadAttachment(context.Background(), mastodon.MediaUpload{Filename: "a.jpg"})

	require.NoError(t, err)
	assert.Equal(t, "media-2", id)
	assert.Equal(t, []int{1, 2}, failures)
}

func TestNew_ZeroMaxAttemptsKeepsCallbacks(t *testing.T) {
	errs := make([]error, DefaultMaxAttempts)
	for i := range errs {
		errs[i] = fmt.Errorf("attempt %d", i+1)
	}
	var failures []int
	svc := &fakeService{uploadErrs: errs}
	p := New(svc, Options{
		Logger: quietLogger(),
		Policy: Policy{OnFailure: func(attempt int, _ error) {
			failures = append(failures, attempt)
		}},
	})

	_, err := p.UploadAttachment(context.Background(), mastodon.MediaUpload{Filename: "a.jpg"})

	require.Error(t, err)
	assert.Len(t, svc.uploads, DefaultMaxAttempts)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, failures)
	assert.Contains(t, err.Error(), "attempt 10")
}

func TestPolicyDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		MaxAttempts: 5,
		Delay:       func(int) time.Duration { return time.Hour },
		Logger:      quietLogger(),
	}

	err := policy.Do(ctx, "op", func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_ZeroValueMakesOneAttempt(t *testing.T) {
	calls := 0
	err := Policy{Logger: quietLogger()}.Do(context.Background(), "op", func(context.Context, int) error {
		calls++
		return errors.New("fail")
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, calls)
}

func TestPostWithAttachments_PreservesUploadOrder(t *testing.T) {
	svc := &fakeService{}
	p := New(svc, Options{Logger: quietLogger()})
	msg := compose.Message{Text: "hello", Sensitive: true, SpoilerText: "nsfw", Tier: 1}

	status, err := p.PostWithAttachments(context.Background(), msg, []mastodon.MediaUpload{
		{Filename: "first.jpg"},
		{Filename: "second.png"},
	})

	require.NoError(t, err)
	assert.Equal(t, "status-1", status.ID)
	assert.Equal(t, []string{"first.jpg", "second.png"}, svc.uploads)
	require.Len(t, svc.statuses, 1)
	req := svc.statuses[0]
	assert.Equal(t, []string{"media-0", "media-1"}, req.MediaIDs)
	assert.Equal(t, "hello", req.Status)
	assert.True(t, req.Sensitive)
	assert.Equal(t, "nsfw", req.SpoilerText)
	assert.Equal(t, mastodon.VisibilityPublic, req.Visibility)
	assert.Equal(t, "ru", req.Language)
}

func TestPostWithAttachments_UploadFailureSkipsPublish(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("nope")
	}
	svc := &fakeService{uploadErrs: errs}
	p := New(svc, Options{Logger: quietLogger()})

	_, err := p.PostWithAttachments(context.Background(), compose.Message{Text: "x"}, []mastodon.MediaUpload{{Filename: "a.jpg"}})

	require.Error(t, err)
	assert.Empty(t, svc.statuses)
}

func TestPublish_SingleAttempt(t *testing.T) {
	rejection := &mastodon.APIError{Endpoint: "/api/v1/statuses", StatusCode: 422, Message: "Validation failed"}
	svc := &fakeService{statusErr: rejection}
	p := New(svc, Options{Logger: quietLogger()})

	_, err := p.Publish(context.Background(), compose.Message{Text: "x"}, []string{"m1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublishRejected)
	var apiErr *mastodon.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.StatusCode)
	assert.Len(t, svc.statuses, 1)
}
