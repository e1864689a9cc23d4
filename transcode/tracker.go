// Package transcode tracks asynchronous transcoding jobs.
//
// A job is identified by the key-stripped CID of its source blob. Submit
// persists a pending record in the metadata store; Poll observes the service
// until the result is ready; the caller merges the result and then calls
// MarkMerged and Complete, which deletes the pending record. Delivery of a
// ready result happens once per process, so a slow merge is never started
// twice. MarkMerged also flags the pending record as merged, so a process that
// finds a flagged record left behind can call Reconcile instead of polling.
package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/media"
	"xdao.co/mediacid/metastore"
)

// PendingPrefix namespaces pending records inside the metadata store.
const PendingPrefix = "transcode/pending/"

// PendingKey returns the store key of the pending record for storeKey.
func PendingKey(storeKey string) string { return PendingPrefix + storeKey }

// PendingJob is the persisted record of a submitted job.
type PendingJob struct {
	TaskID      string    `json:"taskId"`
	Encrypted   bool      `json:"isEncrypted"`
	SubmittedAt time.Time `json:"submittedAt,omitzero"`
	// Merged is set once the result is in the metadata record and only the
	// delete of this record is outstanding.
	Merged bool `json:"merged,omitempty"`
}

type Status int

const (
	// StatusPending: the job is still running or not yet known to the service.
	StatusPending Status = iota
	// StatusReadyToMerge: Entries holds the result. Delivered once.
	StatusReadyToMerge
	// StatusAwaitingMerge: the result was already delivered and the merge has
	// not been completed yet. No service call was made.
	StatusAwaitingMerge
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReadyToMerge:
		return "ready"
	case StatusAwaitingMerge:
		return "awaiting-merge"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// PollResult is the outcome of one Poll.
type PollResult struct {
	Status Status
	// Progress is 0..100. HasProgress is false while the job is not materialized.
	Progress    int
	HasProgress bool
	Entries     []media.Entry
}

type phase int

const (
	phasePolling phase = iota
	phaseDelivered
	phaseMerged
)

// jobState is the in-memory side of a job. adopted marks a job this process
// did not submit.
type jobState struct {
	phase       phase
	progress    int
	hasProgress bool
	adopted     bool
}

// Tracker owns the pending-job state machine. It is safe for concurrent use;
// callers serialize polls for a single key.
type Tracker struct {
	store   metastore.Store
	service Service
	logger  hclog.Logger
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*jobState
}

func NewTracker(store metastore.Store, service Service, logger hclog.Logger) *Tracker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Tracker{
		store:   store,
		service: service,
		logger:  logger.Named("tracker"),
		now:     time.Now,
		jobs:    map[string]*jobState{},
	}
}

// Pending reads the persisted record for storeKey.
func (t *Tracker) Pending(ctx context.Context, storeKey string) (PendingJob, bool, error) {
	raw, err := t.store.Get(ctx, PendingKey(storeKey))
	if metastore.IsNotFound(err) {
		return PendingJob{}, false, nil
	}
	if err != nil {
		return PendingJob{}, false, fmt.Errorf("read pending job: %w", err)
	}
	job, err := decodePending(storeKey, raw)
	if err != nil {
		return PendingJob{}, false, err
	}
	return job, true, nil
}

func decodePending(storeKey string, raw []byte) (PendingJob, error) {
	var job PendingJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return PendingJob{}, fmt.Errorf("decode pending job %q: %w", storeKey, err)
	}
	if job.TaskID == "" {
		return PendingJob{}, fmt.Errorf("pending job %q has no task id", storeKey)
	}
	return job, nil
}

// Submit records taskID as the pending job for storeKey. When a record
// already exists it is left untouched and created is false.
func (t *Tracker) Submit(ctx context.Context, storeKey, taskID string, encrypted bool) (job PendingJob, created bool, err error) {
	if storeKey == "" || taskID == "" {
		return PendingJob{}, false, errors.New("transcode: store key and task id are required")
	}
	err = metastore.Update(ctx, t.store, PendingKey(storeKey), func(raw []byte, exists bool) ([]byte, error) {
		if exists {
			existing, err := decodePending(storeKey, raw)
			if err != nil {
				return nil, err
			}
			job = existing
			return nil, metastore.ErrSkipWrite
		}
		job = PendingJob{TaskID: taskID, Encrypted: encrypted, SubmittedAt: t.now().UTC()}
		created = true
		return json.Marshal(job)
	})
	if err != nil {
		return PendingJob{}, false, fmt.Errorf("write pending job: %w", err)
	}
	if !created {
		t.logger.Debug("duplicate submit ignored", "store_key", storeKey, "task_id", job.TaskID)
		return job, false, nil
	}
	t.mu.Lock()
	t.jobs[storeKey] = &jobState{}
	t.mu.Unlock()
	t.logger.Info("job submitted", "store_key", storeKey, "task_id", taskID, "encrypted", encrypted)
	return job, true, nil
}

func (t *Tracker) state(storeKey string) *jobState {
	st, ok := t.jobs[storeKey]
	if !ok {
		st = &jobState{adopted: true}
		t.jobs[storeKey] = st
	}
	return st
}

// Poll asks the service about the pending job for storeKey. It returns
// ErrNoPendingJob when no record exists. Service and transport failures are
// returned as *Error and leave the record in place.
func (t *Tracker) Poll(ctx context.Context, storeKey string) (PollResult, error) {
	t.mu.Lock()
	if st, ok := t.jobs[storeKey]; ok && st.phase != phasePolling {
		res := PollResult{Status: StatusAwaitingMerge, Progress: st.progress, HasProgress: st.hasProgress}
		t.mu.Unlock()
		return res, nil
	}
	t.mu.Unlock()

	job, ok, err := t.Pending(ctx, storeKey)
	if err != nil {
		return PollResult{}, err
	}
	if !ok {
		return PollResult{}, ErrNoPendingJob
	}

	resp, err := t.service.Poll(ctx, job.TaskID)
	if errors.Is(err, ErrNotMaterialized) {
		t.logger.Trace("job not materialized", "store_key", storeKey, "task_id", job.TaskID)
		t.mu.Lock()
		t.state(storeKey)
		t.mu.Unlock()
		return PollResult{Status: StatusPending}, nil
	}
	if err != nil {
		var te *Error
		if !errors.As(err, &te) && ctx.Err() == nil {
			err = &Error{Kind: KindTransport, Message: "poll failed", Cause: err}
		}
		var e *Error
		if errors.As(err, &e) {
			e.Key = storeKey
			if e.TaskID == "" {
				e.TaskID = job.TaskID
			}
		}
		return PollResult{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(storeKey)
	if st.phase != phasePolling {
		// A concurrent poll delivered first.
		return PollResult{Status: StatusAwaitingMerge, Progress: st.progress, HasProgress: st.hasProgress}, nil
	}
	st.progress, st.hasProgress = resp.Progress, true
	if resp.Progress < 100 || !resp.HasMetadata {
		return PollResult{Status: StatusPending, Progress: resp.Progress, HasProgress: true}, nil
	}
	st.phase = phaseDelivered
	t.logger.Info("job ready", "store_key", storeKey, "task_id", job.TaskID, "entries", len(resp.Metadata))
	return PollResult{Status: StatusReadyToMerge, Progress: 100, HasProgress: true, Entries: resp.Metadata}, nil
}

// MarkMerged records that the delivered result of storeKey was durably merged
// and flags the pending record. A failed flag write is logged, not returned:
// the merge already happened and Complete still removes the record.
func (t *Tracker) MarkMerged(ctx context.Context, storeKey string) error {
	t.mu.Lock()
	st, ok := t.jobs[storeKey]
	if !ok || st.phase != phaseDelivered {
		t.mu.Unlock()
		return duplicateMerge(storeKey, "merge recorded without a delivered result")
	}
	st.phase = phaseMerged
	t.mu.Unlock()

	if err := t.flagMerged(ctx, storeKey); err != nil {
		t.logger.Warn("could not flag pending job as merged", "store_key", storeKey, "error", err)
	}
	return nil
}

func (t *Tracker) flagMerged(ctx context.Context, storeKey string) error {
	return metastore.Update(ctx, t.store, PendingKey(storeKey), func(raw []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, metastore.ErrSkipWrite
		}
		job, err := decodePending(storeKey, raw)
		if err != nil {
			return nil, err
		}
		job.Merged = true
		return json.Marshal(job)
	})
}

// Redeliver returns a delivered but unmerged job to polling, so the next Poll
// fetches the result again. Used when the merge itself failed.
func (t *Tracker) Redeliver(storeKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.jobs[storeKey]; ok && st.phase == phaseDelivered {
		st.phase = phasePolling
	}
}

// Complete deletes the pending record of a merged job. If the delete fails
// the job stays merged and Complete may be retried.
func (t *Tracker) Complete(ctx context.Context, storeKey string) error {
	t.mu.Lock()
	st, ok := t.jobs[storeKey]
	if !ok || st.phase != phaseMerged {
		t.mu.Unlock()
		return duplicateMerge(storeKey, "complete without a recorded merge")
	}
	t.mu.Unlock()

	if err := t.store.Delete(ctx, PendingKey(storeKey)); err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	t.mu.Lock()
	delete(t.jobs, storeKey)
	t.mu.Unlock()
	t.logger.Info("job completed", "store_key", storeKey)
	return nil
}

// Reconcile drops a pending record whose result is already merged, which
// happens when a process stopped between MarkMerged and Complete. Callers
// check PendingJob.Merged first.
func (t *Tracker) Reconcile(ctx context.Context, storeKey string) error {
	if err := t.store.Delete(ctx, PendingKey(storeKey)); err != nil {
		return fmt.Errorf("delete pending job: %w", err)
	}
	t.mu.Lock()
	delete(t.jobs, storeKey)
	t.mu.Unlock()
	t.logger.Info("pending job reconciled", "store_key", storeKey)
	return nil
}

// Progress returns the last observed progress for storeKey.
func (t *Tracker) Progress(storeKey string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[storeKey]
	if !ok || !st.hasProgress {
		return 0, false
	}
	return st.progress, true
}

// Forget drops in-memory state for storeKey without touching the store.
func (t *Tracker) Forget(storeKey string) {
	t.mu.Lock()
	delete(t.jobs, storeKey)
	t.mu.Unlock()
}

// Tracked reports whether this process holds in-memory state for storeKey.
// A pending record without state was left behind by an earlier process.
func (t *Tracker) Tracked(storeKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.jobs[storeKey]
	return ok
}

// Adopted reports whether the job for storeKey was submitted by an earlier
// process and picked up here by Poll.
func (t *Tracker) Adopted(storeKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[storeKey]
	return ok && st.adopted
}

// Merged reports whether storeKey was merged but not yet completed.
func (t *Tracker) Merged(storeKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[storeKey]
	return ok && st.phase == phaseMerged
}
