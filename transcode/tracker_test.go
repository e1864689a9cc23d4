package transcode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mediacid/media"
	"xdao.co/mediacid/metastore"
)

// fakeService replays scripted poll responses.
type fakeService struct {
	mu      sync.Mutex
	polls   int
	script  []func() (PollResponse, error)
	submits []SubmitRequest
}

func (f *fakeService) Submit(_ context.Context, req SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	return "task-1", nil
}

func (f *fakeService) Poll(context.Context, string) (PollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i]()
}

func respond(progress int, entries ...media.Entry) func() (PollResponse, error) {
	return func() (PollResponse, error) {
		return PollResponse{Progress: progress, HasMetadata: entries != nil, Metadata: entries}, nil
	}
}

func fail(err error) func() (PollResponse, error) {
	return func() (PollResponse, error) { return PollResponse{}, err }
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := metastore.NewMemory()
	tr := NewTracker(store, &fakeService{}, nil)

	job, created, err := tr.Submit(ctx, "uK", "task-1", true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "task-1", job.TaskID)
	assert.True(t, job.Encrypted)
	assert.False(t, job.SubmittedAt.IsZero())

	job, created, err = tr.Submit(ctx, "uK", "task-2", false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "task-1", job.TaskID)

	stored, ok, err := tr.Pending(ctx, "uK")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "task-1", stored.TaskID)
	assert.True(t, stored.Encrypted)
}

func TestPollWithoutJob(t *testing.T) {
	tr := NewTracker(metastore.NewMemory(), &fakeService{}, nil)
	_, err := tr.Poll(context.Background(), "uK")
	assert.ErrorIs(t, err, ErrNoPendingJob)
}

func TestPollDeliversOnce(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{script: []func() (PollResponse, error){
		respond(10),
		respond(100, media.Entry{CID: "r1", Type: "video/mp4"}),
	}}
	tr := NewTracker(metastore.NewMemory(), svc, nil)
	_, _, err := tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	res, err := tr.Poll(ctx, "uK")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, 10, res.Progress)
	p, ok := tr.Progress("uK")
	assert.True(t, ok)
	assert.Equal(t, 10, p)

	res, err = tr.Poll(ctx, "uK")
	require.NoError(t, err)
	assert.Equal(t, StatusReadyToMerge, res.Status)
	require.Len(t, res.Entries, 1)

	res, err = tr.Poll(ctx, "uK")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingMerge, res.Status)
	assert.Empty(t, res.Entries)
	assert.Equal(t, 2, svc.polls)
}

func TestProgressHundredWithoutMetadataStaysPending(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{script: []func() (PollResponse, error){respond(100)}}
	tr := NewTracker(metastore.NewMemory(), svc, nil)
	_, _, err := tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	res, err := tr.Poll(ctx, "uK")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, 100, res.Progress)
}

func TestPollErrorsKeepRecord(t *testing.T) {
	ctx := context.Background()
	svcErr := &Error{Kind: KindService, StatusCode: http.StatusBadGateway, Message: "poll rejected"}
	svc := &fakeService{script: []func() (PollResponse, error){
		fail(svcErr),
		fail(errors.New("connection reset")),
	}}
	store := metastore.NewMemory()
	tr := NewTracker(store, svc, nil)
	_, _, err := tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	_, err = tr.Poll(ctx, "uK")
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindService, e.Kind)
	assert.Equal(t, "uK", e.Key)
	assert.Equal(t, "task-1", e.TaskID)

	_, err = tr.Poll(ctx, "uK")
	assert.True(t, IsTransport(err))

	_, ok, err := tr.Pending(ctx, "uK")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMergeCompletionOrdering(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{script: []func() (PollResponse, error){
		respond(100, media.Entry{CID: "r1", Type: "video/mp4"}),
	}}
	store := metastore.NewMemory()
	tr := NewTracker(store, svc, nil)
	_, _, err := tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	assert.True(t, IsDuplicateMerge(tr.MarkMerged(ctx, "uK")))
	assert.True(t, IsDuplicateMerge(tr.Complete(ctx, "uK")))

	res, err := tr.Poll(ctx, "uK")
	require.NoError(t, err)
	require.Equal(t, StatusReadyToMerge, res.Status)

	assert.True(t, IsDuplicateMerge(tr.Complete(ctx, "uK")))
	require.NoError(t, tr.MarkMerged(ctx, "uK"))
	assert.True(t, IsDuplicateMerge(tr.MarkMerged(ctx, "uK")))

	job, ok, err := tr.Pending(ctx, "uK")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, job.Merged, "merge flag persisted before Complete")
	assert.Equal(t, "task-1", job.TaskID)

	require.NoError(t, tr.Complete(ctx, "uK"))

	_, ok, err = tr.Pending(ctx, "uK")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, IsDuplicateMerge(tr.Complete(ctx, "uK")))
}

func TestRedeliverAfterFailedMerge(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{script: []func() (PollResponse, error){
		respond(100, media.Entry{CID: "r1", Type: "video/mp4"}),
	}}
	tr := NewTracker(metastore.NewMemory(), svc, nil)
	_, _, err := tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	res, err := tr.Poll(ctx, "uK")
	require.NoError(t, err)
	require.Equal(t, StatusReadyToMerge, res.Status)

	tr.Redeliver("uK")
	res, err = tr.Poll(ctx, "uK")
	require.NoError(t, err)
	assert.Equal(t, StatusReadyToMerge, res.Status)
	assert.Equal(t, 2, svc.polls)
}

func TestReconcileDropsRecord(t *testing.T) {
	ctx := context.Background()
	store := metastore.NewMemory()
	tr := NewTracker(store, &fakeService{}, nil)
	_, _, err := tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	// A fresh tracker sees only the persisted record.
	restarted := NewTracker(store, &fakeService{}, nil)
	require.NoError(t, restarted.Reconcile(ctx, "uK"))
	_, ok, err := restarted.Pending(ctx, "uK")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Three 404 polls, then a finished job: one delivery, then awaiting merge.
func TestTrackerAgainstHTTPService(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 3 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"progress":100,"metadata":[{"type":"video/mp4","cid":"r1"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()
	tr := NewTracker(metastore.NewMemory(), client, nil)
	_, _, err = tr.Submit(ctx, "uK", "task-1", false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := tr.Poll(ctx, "uK")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		assert.False(t, res.HasProgress)
	}
	_, ok := tr.Progress("uK")
	assert.False(t, ok)

	res, err := tr.Poll(ctx, "uK")
	require.NoError(t, err)
	require.Equal(t, StatusReadyToMerge, res.Status)
	assert.Equal(t, []media.Entry{{Type: "video/mp4", CID: "r1"}}, res.Entries)

	res, err = tr.Poll(ctx, "uK")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingMerge, res.Status)
	assert.Equal(t, 4, calls)
}
