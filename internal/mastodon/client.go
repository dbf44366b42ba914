// Package mastodon is a minimal client for the Mastodon status and media API.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	defaultUserAgent = "rikipost/dev"
	requestTimeout   = 60 * time.Second
)

// Options configure a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	UserAgent   string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to a single Mastodon account.
type Client struct {
	baseURL   *url.URL
	token     string
	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

// ErrNoToken is returned by authenticated calls on a client built without an
// access token.
var ErrNoToken = errors.New("mastodon access token is required")

// NewClient builds a Client. BaseURL is required; without AccessToken only
// FetchInstance works.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("mastodon base url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse mastodon url %q: %w", opts.BaseURL, err)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   base,
		token:     strings.TrimSpace(opts.AccessToken),
		http:      httpClient,
		userAgent: ua,
		logger:    logger.With("component", "mastodon"),
	}, nil
}

// FetchInstance retrieves the instance configuration. It does not need the
// access token.
func (c *Client) FetchInstance(ctx context.Context) (Instance, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v2/instance", nil)
	if err != nil {
		return Instance{}, err
	}
	var payload Instance
	if err := c.do(req, false, &payload); err != nil {
		return Instance{}, fmt.Errorf("fetch instance: %w", err)
	}
	return payload, nil
}

// UploadMedia sends one attachment as multipart form data. It makes exactly
// one attempt.
func (c *Client) UploadMedia(ctx context.Context, media MediaUpload) (Attachment, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, media.Filename))
	contentType := media.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return Attachment{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return Attachment{}, fmt.Errorf("write file part: %w", err)
	}
	if media.Description != "" {
		if err := writer.WriteField("description", media.Description); err != nil {
			return Attachment{}, fmt.Errorf("write description: %w", err)
		}
	}
	if media.Focus != "" {
		if err := writer.WriteField("focus", media.Focus); err != nil {
			return Attachment{}, fmt.Errorf("write focus: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Attachment{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v2/media", body)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug("uploading media", "file", media.Filename, "mime", contentType, "size", humanize.Bytes(uint64(len(media.Data))))
	var payload Attachment
	if err := c.do(req, true, &payload); err != nil {
		return Attachment{}, fmt.Errorf("upload media: %w", err)
	}
	if payload.ID == "" {
		return Attachment{}, errors.New("upload media: response without id")
	}
	return payload, nil
}

// CreateStatus publishes a status. Each call carries a fresh Idempotency-Key,
// so the server never merges two separate calls.
func (c *Client) CreateStatus(ctx context.Context, status StatusRequest) (Status, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return Status{}, fmt.Errorf("encode status: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/statuses", bytes.NewReader(data))
	if err != nil {
		return Status{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	var payload Status
	if err := c.do(req, true, &payload); err != nil {
		return Status{}, fmt.Errorf("create status: %w", err)
	}
	if payload.ID == "" {
		return Status{}, errors.New("create status: response without id")
	}
	return payload, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) do(req *http.Request, auth bool, dest any) error {
	if auth {
		if c.token == "" {
			return ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return parseAPIError(req.URL.Path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
