package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/cidutil"
	"xdao.co/mediacid/config"
	"xdao.co/mediacid/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Keys.Dir = t.TempDir()
	return &cfg
}

func TestNewWithoutTranscoder(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pipeline)
	assert.Nil(t, a.Poller)
	assert.NotNil(t, a.Merger)
	assert.NotNil(t, a.Content)
	_, err = a.RequirePipeline()
	assert.Error(t, err)

	id, err := a.Content.Upload(context.Background(), []byte("clip"), true)
	require.NoError(t, err)
	got, err := a.Content.Download(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "clip", string(got))
}

func TestNewOpensSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.StoreSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "meta.db")
	cfg.Store.Scope = "alice"

	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)

	ref := cidcodec.Plain{CID: cidutil.CIDv1RawSHA256([]byte("src"))}
	require.NoError(t, a.Merger.Save(context.Background(), ref, nil))
	require.NoError(t, a.Close())
}

func TestPipelineAgainstHTTPService(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/transcode":
			_, _ = w.Write([]byte(`{"taskId":"t-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/transcode/t-1":
			if polls.Add(1) < 2 {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"progress":100,"metadata":[{"type":"video/mp4","cid":"r1"}]}`))
		default:
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Transcoder.BaseURL = srv.URL
	a, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	svc, err := a.RequirePipeline()
	require.NoError(t, err)

	ref := cidcodec.Plain{CID: cidutil.CIDv1RawSHA256([]byte("movie"))}
	_, created, err := svc.Submit(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, created)

	res, err := svc.Step(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomePending, res.Outcome)

	res, err = svc.Step(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeMerged, res.Outcome)

	entries, err := a.Merger.Load(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].CID)
}
