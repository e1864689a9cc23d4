package transcode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientOptions{BaseURL: srv.URL + "/api/", Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestClientSubmit(t *testing.T) {
	var got SubmitRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transcode", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		assert.NoError(t, err)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"taskId":"task-1"}`))
	})

	id, err := c.Submit(context.Background(), SubmitRequest{SourceCID: "uSRC", Formats: []string{"720p"}, Encrypted: true})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)
	assert.Equal(t, "uSRC", got.SourceCID)
	assert.Equal(t, []string{"720p"}, got.Formats)
	assert.True(t, got.Encrypted)
}

func TestClientSubmitRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad cid"}`))
	})
	_, err := c.Submit(context.Background(), SubmitRequest{SourceCID: "x"})
	require.Error(t, err)
	assert.True(t, IsService(err))
	assert.Contains(t, err.Error(), "bad cid")
	assert.Contains(t, err.Error(), "400")
}

func TestClientPoll(t *testing.T) {
	body := `{"progress":"42"}`
	status := http.StatusOK
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transcode/task%2F1", r.URL.EscapedPath())
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	ctx := context.Background()

	resp, err := c.Poll(ctx, "task/1")
	require.NoError(t, err)
	assert.Equal(t, 42, resp.Progress)
	assert.False(t, resp.HasMetadata)

	body = `{"progress":100,"metadata":[{"type":"video/mp4","cid":"r1","label":"720p"}]}`
	resp, err = c.Poll(ctx, "task/1")
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Progress)
	require.True(t, resp.HasMetadata)
	require.Len(t, resp.Metadata, 1)
	assert.Equal(t, "r1", resp.Metadata[0].CID)
	assert.Equal(t, "720p", resp.Metadata[0].Label)

	status, body = http.StatusNotFound, ""
	_, err = c.Poll(ctx, "task/1")
	assert.ErrorIs(t, err, ErrNotMaterialized)

	status = http.StatusInternalServerError
	_, err = c.Poll(ctx, "task/1")
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindService, e.Kind)
	assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
	assert.Equal(t, "task/1", e.TaskID)

	status, body = http.StatusOK, `{"state":"running"}`
	_, err = c.Poll(ctx, "task/1")
	assert.True(t, IsService(err))
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: url})
	require.NoError(t, err)
	_, err = c.Poll(context.Background(), "t")
	assert.True(t, IsTransport(err))
	assert.True(t, Retryable(err))
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err)
	_, err = NewClient(ClientOptions{BaseURL: "ftp://example"})
	assert.Error(t, err)
}
