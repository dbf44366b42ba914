package booru

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// taxonomyElements is the header plus the five tag groups.
const taxonomyElements = 6

// ErrMalformedResponse marks a payload that decoded but does not match the
// expected schema.
var ErrMalformedResponse = errors.New("malformed booru response")

// Taxonomy mirrors the /metadata payload. On the wire it is a JSON array:
// [header, characters, types, content warnings, themes, crossovers].
type Taxonomy struct {
	Header     Header
	Characters TagGroup
	Types      TagGroup
	Warnings   TagGroup
	Themes     TagGroup
	Crossovers TagGroup
}

// Header carries catalog-wide counters.
type Header struct {
	Date               string `json:"data"` // sic, upstream field name
	FinishedPercentage string `json:"finished_percentage"`
	SumCount           int64  `json:"sum_count"`
	LastModified       string `json:"last_modified"`
}

// TagGroup is one categorized set of tags.
type TagGroup struct {
	Tags []Tag `json:"tags"`
}

// Tag describes a single taxonomy entry.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"tag"`
	Count int64  `json:"qty"`
	Color string `json:"color"`
}

// Groups returns the five tag groups in document order.
func (t Taxonomy) Groups() []TagGroup {
	return []TagGroup{t.Characters, t.Types, t.Warnings, t.Themes, t.Crossovers}
}

// UnmarshalJSON decodes the positional array form and rejects payloads with
// missing or mistyped elements.
func (t *Taxonomy) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: taxonomy is not an array: %v", ErrMalformedResponse, err)
	}
	if len(raw) < taxonomyElements {
		return fmt.Errorf("%w: taxonomy has %d elements, want %d", ErrMalformedResponse, len(raw), taxonomyElements)
	}

	var out Taxonomy
	if err := json.Unmarshal(raw[0], &out.Header); err != nil {
		return fmt.Errorf("%w: taxonomy header: %v", ErrMalformedResponse, err)
	}
	groups := []*TagGroup{&out.Characters, &out.Types, &out.Warnings, &out.Themes, &out.Crossovers}
	for i, group := range groups {
		if err := decodeGroup(raw[i+1], group); err != nil {
			return fmt.Errorf("%w: taxonomy group %d: %v", ErrMalformedResponse, i+1, err)
		}
	}
	*t = out
	return nil
}

// MarshalJSON writes the positional array form accepted by UnmarshalJSON.
func (t Taxonomy) MarshalJSON() ([]byte, error) {
	items := []any{t.Header}
	for _, group := range t.Groups() {
		tags := group.Tags
		if tags == nil {
			tags = []Tag{}
		}
		items = append(items, TagGroup{Tags: tags})
	}
	return json.Marshal(items)
}

func decodeGroup(raw json.RawMessage, group *TagGroup) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.New("group is null")
	}
	if err := json.Unmarshal(raw, group); err != nil {
		return err
	}
	if group.Tags == nil {
		return errors.New("missing tags array")
	}
	for _, tag := range group.Tags {
		if strings.TrimSpace(tag.Slug) == "" {
			return fmt.Errorf("tag %d has empty slug", tag.ID)
		}
	}
	return nil
}

// Image is a single catalog image as returned by the per-image, catalog and
// post endpoints. VKID is the stable identifier; the sequence number used to
// address /getRandomArt is not stable across requests and is never stored.
type Image struct {
	VKID       int64           `json:"vk_id"`
	PictureURL string          `json:"linktopic"`
	PostURL    string          `json:"linktopost"`
	Tags       []string        `json:"tags"`
	ParentID   json.RawMessage `json:"parent_id,omitempty"`
}

// HasTags reports whether moderators have tagged the image yet.
func (i Image) HasTags() bool {
	return len(i.Tags) > 0
}

// Clone returns a copy that does not share the tag slice.
func (i Image) Clone() Image {
	dup := i
	if i.Tags != nil {
		dup.Tags = append([]string(nil), i.Tags...)
	}
	if i.ParentID != nil {
		dup.ParentID = append(json.RawMessage(nil), i.ParentID...)
	}
	return dup
}

// Validate checks the fields the bot relies on.
func (i Image) Validate() error {
	switch {
	case i.VKID == 0:
		return fmt.Errorf("%w: image without vk_id", ErrMalformedResponse)
	case strings.TrimSpace(i.PictureURL) == "":
		return fmt.Errorf("%w: image %d without linktopic", ErrMalformedResponse, i.VKID)
	case strings.TrimSpace(i.PostURL) == "":
		return fmt.Errorf("%w: image %d without linktopost", ErrMalformedResponse, i.VKID)
	}
	return nil
}

// Media is the raw image payload ready for upload.
type Media struct {
	Data     []byte
	Filename string
	MimeType string
}

// CatalogQuery is encoded into the catalog search query string.
type CatalogQuery struct {
	Query string `url:"query"`
}
