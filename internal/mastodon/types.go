package mastodon

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Visibility values accepted by /api/v1/statuses.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
	VisibilityDirect   = "direct"
)

// Instance mirrors the subset of /api/v2/instance the bot reads.
type Instance struct {
	Domain        string        `json:"domain"`
	Title         string        `json:"title"`
	Configuration Configuration `json:"configuration"`
}

// Configuration holds server-side limits.
type Configuration struct {
	Statuses         StatusLimits `json:"statuses"`
	MediaAttachments MediaLimits  `json:"media_attachments"`
}

// StatusLimits bounds a status body.
type StatusLimits struct {
	MaxCharacters            int `json:"max_characters"`
	MaxMediaAttachments      int `json:"max_media_attachments"`
	CharactersReservedPerURL int `json:"characters_reserved_per_url"`
}

// MediaLimits bounds uploads.
type MediaLimits struct {
	SupportedMimeTypes []string `json:"supported_mime_types"`
	ImageSizeLimit     int64    `json:"image_size_limit"`
	ImageMatrixLimit   int64    `json:"image_matrix_limit"`
}

// MediaUpload is one attachment to send to /api/v2/media.
type MediaUpload struct {
	Data        []byte
	Filename    string
	MimeType    string
	Description string
	Focus       string // "-0.5,0.5"
}

// Attachment is the uploaded media as acknowledged by the server.
type Attachment struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url"`
}

// StatusRequest is the JSON body of /api/v1/statuses.
type StatusRequest struct {
	Status      string   `json:"status,omitempty"`
	MediaIDs    []string `json:"media_ids,omitempty"`
	Sensitive   bool     `json:"sensitive,omitempty"`
	SpoilerText string   `json:"spoiler_text,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
	Language    string   `json:"language,omitempty"` // ISO 639
	ScheduledAt string   `json:"scheduled_at,omitempty"`
}

// Status is a created status.
type Status struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	URI         string `json:"uri,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	ScheduledAt string `json:"scheduled_at,omitempty"`
}

// APIError is a non-success response from the server.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mastodon %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("mastodon %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func parseAPIError(endpoint string, status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Endpoint: endpoint, StatusCode: status, Message: msg}
}
