package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(Options{BaseURL: server.URL, AccessToken: "secret", UserAgent: "rikipost/test"})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Options{AccessToken: "x"})
	assert.Error(t, err)

	c, err := NewClient(Options{BaseURL: "mastodon.example/", AccessToken: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://mastodon.example", c.baseURL.String())
}

func TestCreateStatus_WithoutTokenFailsBeforeRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)
	c, err := NewClient(Options{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = c.CreateStatus(context.Background(), StatusRequest{Status: "x"})

	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, called)
}

func TestUploadMedia_SendsMultipartFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/media", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "rikipost/test", r.Header.Get("User-Agent"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "pic.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		assert.Equal(t, "bytes", string(data))
		assert.Equal(t, "Крош; Нюша", r.FormValue("description"))
		assert.Empty(t, r.FormValue("focus"))

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Attachment{ID: "m1", Type: "image"})
	})

	att, err := c.UploadMedia(context.Background(), MediaUpload{
		Data:        []byte("bytes"),
		Filename:    "pic.jpg",
		MimeType:    "image/jpeg",
		Description: "Крош; Нюша",
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", att.ID)
}

func TestCreateStatus_SendsJSONWithIdempotencyKey(t *testing.T) {
	var keys []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/statuses", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		keys = append(keys, r.Header.Get("Idempotency-Key"))

		var got StatusRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, StatusRequest{
			Status:      "hello",
			MediaIDs:    []string{"m1", "m2"},
			Sensitive:   true,
			SpoilerText: "nsfw",
			Visibility:  VisibilityPublic,
			Language:    "ru",
		}, got)
		_ = json.NewEncoder(w).Encode(Status{ID: "109", URL: "https://mastodon.example/@bot/109"})
	})

	req := StatusRequest{
		Status:      "hello",
		MediaIDs:    []string{"m1", "m2"},
		Sensitive:   true,
		SpoilerText: "nsfw",
		Visibility:  VisibilityPublic,
		Language:    "ru",
	}
	status, err := c.CreateStatus(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "109", status.ID)

	_, err = c.CreateStatus(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1])
}

func TestCreateStatus_RejectionIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"Validation failed: Text character limit of 500 exceeded"}`))
	})

	_, err := c.CreateStatus(context.Background(), StatusRequest{Status: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "error %v is not an APIError", err)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "character limit")
}

func TestFetchInstance_DecodesLimitsWithoutAuth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/instance", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"domain":"mastodon.example","configuration":{"statuses":{"max_characters":500,"max_media_attachments":4,"characters_reserved_per_url":23}}}`))
	})

	inst, err := c.FetchInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500, inst.Configuration.Statuses.MaxCharacters)
	assert.Equal(t, 23, inst.Configuration.Statuses.CharactersReservedPerURL)
}
