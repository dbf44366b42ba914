package booru

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/go-querystring/query"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the booru answers with an empty result for a
// single-image lookup.
var ErrNotFound = errors.New("booru image not found")

const (
	defaultBaseURL   = "https://rikibooru.host/rikibooru"
	defaultUserAgent = "rikipost/dev"
	requestTimeout   = 30 * time.Second
	maxMediaBytes    = 64 << 20
)

// Options configure a Client.
type Options struct {
	BaseURL           string
	UserAgent         string
	RequestsPerSecond float64 // zero or negative disables limiting
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client talks to the Rikibooru HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewClient builds a Client from opts, filling defaults for empty fields.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: ua,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.With("component", "booru"),
	}, nil
}

// FetchTaxonomy retrieves the tag taxonomy and catalog header.
func (c *Client) FetchTaxonomy(ctx context.Context) (Taxonomy, error) {
	var payload Taxonomy
	if err := c.getJSON(ctx, c.endpoint("metadata", nil), &payload); err != nil {
		return Taxonomy{}, fmt.Errorf("fetch taxonomy: %w", err)
	}
	return payload, nil
}

// FetchImage retrieves the image at catalog sequence position seq.
func (c *Client) FetchImage(ctx context.Context, seq int64) (Image, error) {
	var payload []Image
	rel := c.endpoint("getRandomArt="+strconv.FormatInt(seq, 10), nil)
	if err := c.getJSON(ctx, rel, &payload); err != nil {
		return Image{}, fmt.Errorf("fetch image %d: %w", seq, err)
	}
	if len(payload) == 0 {
		return Image{}, fmt.Errorf("fetch image %d: %w", seq, ErrNotFound)
	}
	img := payload[0]
	if err := img.Validate(); err != nil {
		return Image{}, fmt.Errorf("fetch image %d: %w", seq, err)
	}
	return img, nil
}

// QueryCatalog runs a catalog search. The query "-" lists every image.
func (c *Client) QueryCatalog(ctx context.Context, q CatalogQuery) ([]Image, error) {
	values, err := query.Values(q)
	if err != nil {
		return nil, fmt.Errorf("encode catalog query: %w", err)
	}
	var payload []Image
	if err := c.getJSON(ctx, c.endpoint("queryImages", values), &payload); err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	return validImages(c.logger, payload), nil
}

type postQuery struct {
	Link string `url:"link"`
}

// FetchPost retrieves every image attached to the source post at postURL.
func (c *Client) FetchPost(ctx context.Context, postURL string) ([]Image, error) {
	values, err := query.Values(postQuery{Link: postURL})
	if err != nil {
		return nil, fmt.Errorf("encode post query: %w", err)
	}
	var payload []Image
	if err := c.getJSON(ctx, c.endpoint("getImagesFromVkPost", values), &payload); err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", postURL, err)
	}
	return validImages(c.logger, payload), nil
}

// FetchMedia downloads the image bytes. The filename is the last path segment
// of the picture URL; the MIME type comes from Content-Type or is sniffed.
func (c *Client) FetchMedia(ctx context.Context, img Image) (Media, error) {
	src, err := url.Parse(img.PictureURL)
	if err != nil {
		return Media{}, fmt.Errorf("parse picture url %q: %w", img.PictureURL, err)
	}
	resp, err := c.get(ctx, src, "*/*")
	if err != nil {
		return Media{}, fmt.Errorf("fetch media %d: %w", img.VKID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return Media{}, fmt.Errorf("read media %d: %w", img.VKID, err)
	}
	if len(data) == 0 {
		return Media{}, fmt.Errorf("fetch media %d: empty body", img.VKID)
	}
	if len(data) > maxMediaBytes {
		return Media{}, fmt.Errorf("fetch media %d: larger than %s", img.VKID, humanize.IBytes(maxMediaBytes))
	}

	media := Media{
		Data:     data,
		Filename: mediaFilename(src, img.VKID),
		MimeType: mediaType(resp.Header.Get("Content-Type"), data),
	}
	c.logger.Debug("media fetched", "vk_id", img.VKID, "file", media.Filename, "mime", media.MimeType, "size", humanize.Bytes(uint64(len(data))))
	return media, nil
}

func (c *Client) endpoint(name string, values url.Values) *url.URL {
	u := c.baseURL.JoinPath(name)
	if values != nil {
		u.RawQuery = values.Encode()
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, u *url.URL, dest any) error {
	resp, err := c.get(ctx, u, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, u *url.URL, accept string) (*http.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("booru %s returned status %d: %s", u.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// validImages drops records that fail validation so a single bad row does not
// poison a whole catalog page.
func validImages(logger *slog.Logger, images []Image) []Image {
	out := images[:0]
	for _, img := range images {
		if err := img.Validate(); err != nil {
			logger.Warn("dropping invalid image record", "error", err)
			continue
		}
		out = append(out, img)
	}
	return out
}

func mediaFilename(src *url.URL, vkID int64) string {
	name := path.Base(src.Path)
	if name == "" || name == "." || name == "/" {
		return strconv.FormatInt(vkID, 10)
	}
	return name
}

func mediaType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(mimetype.Detect(data).String())
	return mt
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse booru url %q: %w", raw, err)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
