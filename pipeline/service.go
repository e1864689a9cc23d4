// Package pipeline drives transcode jobs from submission to a merged
// metadata record.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/ciduri"
	"xdao.co/mediacid/media"
	"xdao.co/mediacid/transcode"
)

type Outcome int

const (
	// OutcomePending: the job is still running.
	OutcomePending Outcome = iota
	// OutcomeAwaitingMerge: another caller holds the delivered result.
	OutcomeAwaitingMerge
	// OutcomeMerged: the result was merged and the pending record removed.
	OutcomeMerged
	// OutcomeReconciled: a pending record flagged as merged by an earlier
	// process was removed without polling.
	OutcomeReconciled
	// OutcomeIdle: no job is pending for the identifier.
	OutcomeIdle
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAwaitingMerge:
		return "awaiting-merge"
	case OutcomeMerged:
		return "merged"
	case OutcomeReconciled:
		return "reconciled"
	case OutcomeIdle:
		return "idle"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Done reports whether polling can stop.
func (o Outcome) Done() bool {
	return o == OutcomeMerged || o == OutcomeReconciled || o == OutcomeIdle
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Outcome     Outcome
	Progress    int
	HasProgress bool
	// Entries is the merged record after OutcomeMerged.
	Entries []media.Entry
}

type Options struct {
	Tracker    *transcode.Tracker
	Merger     *media.Merger
	Transcoder transcode.Service
	Formats    []string
	UseGPU     bool
	Logger     hclog.Logger
}

// Service submits jobs and advances them one step at a time.
type Service struct {
	tracker    *transcode.Tracker
	merger     *media.Merger
	transcoder transcode.Service
	formats    []string
	useGPU     bool
	logger     hclog.Logger
}

func New(opts Options) (*Service, error) {
	if opts.Tracker == nil || opts.Merger == nil || opts.Transcoder == nil {
		return nil, errors.New("pipeline: tracker, merger and transcoder are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		tracker:    opts.Tracker,
		merger:     opts.Merger,
		transcoder: opts.Transcoder,
		formats:    append([]string(nil), opts.Formats...),
		useGPU:     opts.UseGPU,
		logger:     logger.Named("pipeline"),
	}, nil
}

func (s *Service) Tracker() *transcode.Tracker { return s.tracker }
func (s *Service) Merger() *media.Merger       { return s.merger }

// ParseRef accepts an identifier in any decoration (scheme, extension).
func ParseRef(id string) (cidcodec.Ref, error) {
	id = ciduri.RemoveSchemePrefix(id)
	if id == "" {
		return nil, errors.New("pipeline: empty identifier")
	}
	return cidcodec.Parse(id)
}

// Submit asks the transcoder for renditions of ref unless a job is already
// pending, in which case the existing record is returned with created=false.
func (s *Service) Submit(ctx context.Context, ref cidcodec.Ref) (transcode.PendingJob, bool, error) {
	key := ref.StoreKey()
	if job, ok, err := s.tracker.Pending(ctx, key); err != nil || ok {
		return job, false, err
	}
	_, encrypted := ref.(cidcodec.Encrypted)
	taskID, err := s.transcoder.Submit(ctx, transcode.SubmitRequest{
		SourceCID: ciduri.Normalize(ref.String()),
		Formats:   s.formats,
		Encrypted: encrypted,
		UseGPU:    s.useGPU,
	})
	if err != nil {
		return transcode.PendingJob{}, false, err
	}
	return s.tracker.Submit(ctx, key, taskID, encrypted)
}

// Step polls the job for ref once and, when its result is ready, merges it
// into the stored record and completes the job. The record write always
// happens before the pending record is deleted.
func (s *Service) Step(ctx context.Context, ref cidcodec.Ref) (StepResult, error) {
	key := ref.StoreKey()

	if s.tracker.Merged(key) {
		if err := s.tracker.Complete(ctx, key); err != nil {
			return StepResult{}, err
		}
		entries, err := s.merger.Load(ctx, ref)
		if err != nil {
			return StepResult{}, err
		}
		return StepResult{Outcome: OutcomeMerged, Progress: 100, HasProgress: true, Entries: entries}, nil
	}

	if !s.tracker.Tracked(key) {
		job, ok, err := s.tracker.Pending(ctx, key)
		if err != nil {
			return StepResult{}, err
		}
		if !ok {
			return StepResult{Outcome: OutcomeIdle}, nil
		}
		if job.Merged {
			if err := s.tracker.Reconcile(ctx, key); err != nil {
				return StepResult{}, err
			}
			return StepResult{Outcome: OutcomeReconciled}, nil
		}
	}

	res, err := s.tracker.Poll(ctx, key)
	if errors.Is(err, transcode.ErrNoPendingJob) {
		return StepResult{Outcome: OutcomeIdle}, nil
	}
	if err != nil {
		return StepResult{}, err
	}

	switch res.Status {
	case transcode.StatusPending:
		return StepResult{Outcome: OutcomePending, Progress: res.Progress, HasProgress: res.HasProgress}, nil
	case transcode.StatusAwaitingMerge:
		return StepResult{Outcome: OutcomeAwaitingMerge, Progress: res.Progress, HasProgress: res.HasProgress}, nil
	case transcode.StatusReadyToMerge:
	default:
		return StepResult{}, fmt.Errorf("pipeline: unexpected poll status %s", res.Status)
	}

	merged, err := s.merge(ctx, ref, res.Entries)
	if err != nil {
		s.tracker.Redeliver(key)
		return StepResult{}, fmt.Errorf("merge %s: %w", key, err)
	}
	if err := s.tracker.MarkMerged(ctx, key); err != nil {
		return StepResult{}, err
	}
	if err := s.tracker.Complete(ctx, key); err != nil {
		return StepResult{}, err
	}
	s.logger.Info("transcode merged", "store_key", key, "entries", len(merged))
	return StepResult{Outcome: OutcomeMerged, Progress: 100, HasProgress: true, Entries: merged}, nil
}

// merge writes entries into the record of ref. For a job submitted by an
// earlier process the record may already hold the result, written just before
// that process stopped; it is then left as is.
func (s *Service) merge(ctx context.Context, ref cidcodec.Ref, entries []media.Entry) ([]media.Entry, error) {
	key := ref.StoreKey()
	if s.tracker.Adopted(key) {
		existing, err := s.merger.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 && media.ContainsAll(existing, entries) {
			s.logger.Info("adopted job result already merged", "store_key", key)
			return existing, nil
		}
	}
	return s.merger.MergeAndStore(ctx, ref, entries)
}
