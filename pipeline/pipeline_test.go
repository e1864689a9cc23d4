package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/media"
	"xdao.co/mediacid/metastore"
	"xdao.co/mediacid/transcode"
)

type scriptedTranscoder struct {
	mu      sync.Mutex
	submits []transcode.SubmitRequest
	polls   int
	// notFound is the number of polls answered as not materialized.
	notFound int
	result   []media.Entry
}

func (s *scriptedTranscoder) Submit(_ context.Context, req transcode.SubmitRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, req)
	return "task-1", nil
}

func (s *scriptedTranscoder) Poll(context.Context, string) (transcode.PollResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.polls <= s.notFound {
		return transcode.PollResponse{}, transcode.ErrNotMaterialized
	}
	return transcode.PollResponse{Progress: 100, HasMetadata: true, Metadata: s.result}, nil
}

func (s *scriptedTranscoder) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type flakyStore struct {
	metastore.Store
	mu      sync.Mutex
	failPut bool
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failPut && strings.HasPrefix(key, media.RecordPrefix)
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

func newService(t *testing.T, store metastore.Store, tc transcode.Service) *Service {
	t.Helper()
	svc, err := New(Options{
		Tracker:    transcode.NewTracker(store, tc, nil),
		Merger:     media.NewMerger(store, nil),
		Transcoder: tc,
		Formats:    []string{"720p"},
	})
	require.NoError(t, err)
	return svc
}

func encryptedRef(t *testing.T) cidcodec.Encrypted {
	t.Helper()
	k, err := cidcodec.GenerateKey(nil)
	require.NoError(t, err)
	l := cidcodec.Layout{Marker: cidcodec.MarkerEncryptedStatic, Algorithm: cidcodec.AlgorithmXChaCha20Poly1305, ChunkSizeExp: 18}
	l.BlobHash[0] = cidcodec.HashTypeSHA256
	l.BlobHash[1] = 0x77
	ref, err := cidcodec.NewEncrypted(l.Encode(), k)
	require.NoError(t, err)
	return ref
}

func TestSubmitCallsServiceOnce(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{}
	svc := newService(t, metastore.NewMemory(), tc)
	ref := cidcodec.Plain{CID: "bafysource"}

	job, created, err := svc.Submit(ctx, ref)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "task-1", job.TaskID)

	_, created, err = svc.Submit(ctx, ref)
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, tc.submits, 1)
	assert.Equal(t, []string{"720p"}, tc.submits[0].Formats)
	assert.False(t, tc.submits[0].Encrypted)
}

func TestSubmitEncryptedSendsKeyButStoresStrippedKey(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{}
	store := metastore.NewMemory()
	svc := newService(t, store, tc)

	full, err := ParseRef("s5://" + encryptedRef(t).String() + ".mp4")
	require.NoError(t, err)
	ref, ok := full.(cidcodec.Encrypted)
	require.True(t, ok)

	_, created, err := svc.Submit(ctx, ref)
	require.NoError(t, err)
	require.True(t, created)

	require.Len(t, tc.submits, 1)
	assert.True(t, tc.submits[0].Encrypted)
	key, err := cidcodec.ExtractKey(tc.submits[0].SourceCID)
	require.NoError(t, err)
	assert.Equal(t, ref.Key.String(), key)

	_, err = store.Get(ctx, transcode.PendingKey(ref.StoreKey()))
	require.NoError(t, err)
	assert.NotContains(t, ref.StoreKey(), ".mp4")
}

func TestStepMergesAndCompletes(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{notFound: 1, result: []media.Entry{{CID: "A", Type: "video/mp4"}}}
	store := metastore.NewMemory()
	svc := newService(t, store, tc)
	ref := cidcodec.Plain{CID: "bafysource"}

	require.NoError(t, svc.Merger().Save(ctx, ref, []media.Entry{{CID: "B", Type: "audio/mp4", Kind: media.KindAudio}}))
	_, _, err := svc.Submit(ctx, ref)
	require.NoError(t, err)

	res, err := svc.Step(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, res.Outcome)
	assert.False(t, res.HasProgress)

	res, err = svc.Step(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, []string{"A", "B"}, cids(res.Entries))

	_, ok, err := svc.Tracker().Pending(ctx, ref.StoreKey())
	require.NoError(t, err)
	assert.False(t, ok)

	res, err = svc.Step(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, res.Outcome)
	assert.Equal(t, 2, tc.pollCount())
}

func TestStepRetriesAfterFailedMergeWrite(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{result: []media.Entry{{CID: "A", Type: "video/mp4"}}}
	store := &flakyStore{Store: metastore.NewMemory(), failPut: true}
	svc := newService(t, store, tc)
	ref := cidcodec.Plain{CID: "bafysource"}
	_, _, err := svc.Submit(ctx, ref)
	require.NoError(t, err)

	_, err = svc.Step(ctx, ref)
	require.Error(t, err)
	_, ok, err := svc.Tracker().Pending(ctx, ref.StoreKey())
	require.NoError(t, err)
	assert.True(t, ok, "pending record must survive a failed merge")

	store.mu.Lock()
	store.failPut = false
	store.mu.Unlock()

	res, err := svc.Step(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, []string{"A"}, cids(res.Entries))
}

func TestStepReconcilesAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := metastore.NewMemory()
	ref := cidcodec.Plain{CID: "bafysource"}

	first := newService(t, store, &scriptedTranscoder{result: []media.Entry{{CID: "A", Type: "video/mp4"}}})
	_, _, err := first.Submit(ctx, ref)
	require.NoError(t, err)
	// The merge landed and was flagged, but the process stopped before Complete.
	res, err := first.Tracker().Poll(ctx, ref.StoreKey())
	require.NoError(t, err)
	require.Equal(t, transcode.StatusReadyToMerge, res.Status)
	_, err = first.Merger().MergeAndStore(ctx, ref, res.Entries)
	require.NoError(t, err)
	require.NoError(t, first.Tracker().MarkMerged(ctx, ref.StoreKey()))

	tc := &scriptedTranscoder{}
	restarted := newService(t, store, tc)
	step, err := restarted.Step(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, step.Outcome)
	assert.Zero(t, tc.pollCount())

	entries, err := restarted.Merger().Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, cids(entries))
}

func TestStepInFreshProcessMergesIntoExistingMedia(t *testing.T) {
	ctx := context.Background()
	store := metastore.NewMemory()
	ref := cidcodec.Plain{CID: "bafysource"}

	submitter := newService(t, store, &scriptedTranscoder{})
	require.NoError(t, submitter.Merger().Save(ctx, ref, []media.Entry{{CID: "old", Type: "video/mp4"}}))
	_, created, err := submitter.Submit(ctx, ref)
	require.NoError(t, err)
	require.True(t, created)

	tc := &scriptedTranscoder{result: []media.Entry{{CID: "new-1080p", Type: "video/mp4"}}}
	watcher := newService(t, store, tc)
	res, err := watcher.Step(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, 1, tc.pollCount())
	assert.Equal(t, []string{"new-1080p", "old"}, cids(res.Entries))

	entries, err := watcher.Merger().Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"new-1080p", "old"}, cids(entries))
	_, ok, err := watcher.Tracker().Pending(ctx, ref.StoreKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStepInFreshProcessDoesNotMergeTwice(t *testing.T) {
	ctx := context.Background()
	store := metastore.NewMemory()
	ref := cidcodec.Plain{CID: "bafysource"}
	result := []media.Entry{{CID: "new-1080p", Type: "video/mp4"}}

	first := newService(t, store, &scriptedTranscoder{result: result})
	require.NoError(t, first.Merger().Save(ctx, ref, []media.Entry{{CID: "old", Type: "video/mp4"}}))
	_, _, err := first.Submit(ctx, ref)
	require.NoError(t, err)
	// The record write landed; the process stopped before flagging the job.
	_, err = first.Merger().MergeAndStore(ctx, ref, result)
	require.NoError(t, err)

	tc := &scriptedTranscoder{result: result}
	restarted := newService(t, store, tc)
	res, err := restarted.Step(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeMerged, res.Outcome)

	entries, err := restarted.Merger().Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"new-1080p", "old"}, cids(entries))
	_, ok, err := restarted.Tracker().Pending(ctx, ref.StoreKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPollerRunsUntilMerged(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{notFound: 3, result: []media.Entry{{CID: "r1", Type: "video/mp4"}}}
	svc := newService(t, metastore.NewMemory(), tc)
	ref := cidcodec.Plain{CID: "bafysource"}
	_, _, err := svc.Submit(ctx, ref)
	require.NoError(t, err)

	p := NewPoller(svc, PollerOptions{Interval: time.Millisecond})
	h, started := p.Start(ctx, ref)
	require.True(t, started)
	_, again := p.Start(ctx, ref)
	assert.False(t, again)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := Wait(waitCtx, h)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, []string{"r1"}, cids(res.Entries))
	assert.Equal(t, 4, tc.pollCount())
	assert.False(t, p.Active(ref.StoreKey()))
}

func TestPollerStopKeepsPendingRecord(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{notFound: 1 << 30}
	svc := newService(t, metastore.NewMemory(), tc)
	ref := cidcodec.Plain{CID: "bafysource"}
	_, _, err := svc.Submit(ctx, ref)
	require.NoError(t, err)

	p := NewPoller(svc, PollerOptions{Interval: time.Millisecond})
	h, _ := p.Start(ctx, ref)
	require.Eventually(t, func() bool { return tc.pollCount() > 2 }, 5*time.Second, time.Millisecond)
	assert.True(t, p.Active(ref.StoreKey()))

	p.Stop(ref.StoreKey())
	assert.False(t, p.Active(ref.StoreKey()))
	_, err = h.Result()
	assert.ErrorIs(t, err, context.Canceled)

	_, ok, err := svc.Tracker().Pending(ctx, ref.StoreKey())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPollerTimeout(t *testing.T) {
	ctx := context.Background()
	tc := &scriptedTranscoder{notFound: 1 << 30}
	svc := newService(t, metastore.NewMemory(), tc)
	ref := cidcodec.Plain{CID: "bafysource"}
	_, _, err := svc.Submit(ctx, ref)
	require.NoError(t, err)

	p := NewPoller(svc, PollerOptions{Interval: time.Millisecond, Timeout: 20 * time.Millisecond})
	h, _ := p.Start(ctx, ref)
	<-h.Done()
	_, err = h.Result()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	p.StopAll()
}

func cids(entries []media.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.CID)
	}
	return out
}
