package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/transcode"
)

// Stepper advances one job by one poll.
type Stepper interface {
	Step(ctx context.Context, ref cidcodec.Ref) (StepResult, error)
}

type PollerOptions struct {
	// Interval between polls of one job. Defaults to 5s.
	Interval time.Duration
	// Timeout bounds a whole loop. Zero means no limit.
	Timeout time.Duration
	Logger  hclog.Logger
}

// Handle is a running poll loop for one identifier.
type Handle struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	last   StepResult
	result StepResult
	err    error
}

func (h *Handle) Key() string { return h.key }

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the final step and the error that ended the loop. Valid
// after Done is closed.
func (h *Handle) Result() (StepResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Last returns the most recent step observed by the loop.
func (h *Handle) Last() StepResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Poller runs at most one poll loop per store key. Polls of one key are
// serialized; keys are independent.
type Poller struct {
	stepper  Stepper
	interval time.Duration
	timeout  time.Duration
	logger   hclog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	wg      sync.WaitGroup
}

func NewPoller(stepper Stepper, opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Poller{
		stepper:  stepper,
		interval: interval,
		timeout:  opts.Timeout,
		logger:   logger.Named("poller"),
		handles:  map[string]*Handle{},
	}
}

// Start launches a loop for ref. If one is already running for the same
// store key, that handle is returned with started=false.
func (p *Poller) Start(ctx context.Context, ref cidcodec.Ref) (h *Handle, started bool) {
	key := ref.StoreKey()
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[key]; ok {
		return h, false
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	h = &Handle{key: key, cancel: cancel, done: make(chan struct{})}
	p.handles[key] = h

	p.wg.Add(1)
	go p.loop(runCtx, ref, h)
	return h, true
}

// Stop cancels the loop for storeKey and waits for it to exit. The pending
// record is kept.
func (p *Poller) Stop(storeKey string) {
	p.mu.Lock()
	h, ok := p.handles[storeKey]
	p.mu.Unlock()
	if !ok {
		return
	}
	h.cancel()
	<-h.done
}

// StopAll cancels every loop and waits for them.
func (p *Poller) StopAll() {
	p.mu.Lock()
	for _, h := range p.handles {
		h.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Active reports whether a loop is running for storeKey.
func (p *Poller) Active(storeKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[storeKey]
	return ok
}

// ActiveKeys returns the keys of running loops.
func (p *Poller) ActiveKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.handles))
	for k := range p.handles {
		out = append(out, k)
	}
	return out
}

// Progress returns the last progress seen by the running loop for storeKey.
func (p *Poller) Progress(storeKey string) (int, bool) {
	p.mu.Lock()
	h, ok := p.handles[storeKey]
	p.mu.Unlock()
	if !ok {
		return 0, false
	}
	last := h.Last()
	return last.Progress, last.HasProgress
}

func (p *Poller) loop(ctx context.Context, ref cidcodec.Ref, h *Handle) {
	defer p.wg.Done()
	defer close(h.done)
	defer func() {
		p.mu.Lock()
		delete(p.handles, h.key)
		p.mu.Unlock()
		h.cancel()
	}()

	logger := p.logger.With("store_key", h.key)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		res, err := p.stepper.Step(ctx, ref)
		switch {
		case err == nil:
			h.mu.Lock()
			h.last = res
			h.mu.Unlock()
			if res.Outcome.Done() {
				logger.Debug("poll loop finished", "outcome", res.Outcome)
				h.finish(res, nil)
				return
			}
		case ctx.Err() != nil:
			h.finish(h.Last(), ctx.Err())
			return
		case transcode.Retryable(err):
			logger.Warn("poll failed, retrying", "error", err)
		default:
			logger.Error("poll loop aborted", "error", err)
			h.finish(h.Last(), err)
			return
		}

		select {
		case <-ctx.Done():
			logger.Debug("poll loop stopped", "reason", ctx.Err())
			h.finish(h.Last(), ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

func (h *Handle) finish(res StepResult, err error) {
	h.mu.Lock()
	h.result, h.err = res, err
	h.mu.Unlock()
}

// Wait blocks until h finishes or ctx is done.
func Wait(ctx context.Context, h *Handle) (StepResult, error) {
	select {
	case <-h.Done():
		return h.Result()
	case <-ctx.Done():
		return StepResult{}, ctx.Err()
	}
}
