// Package runner sequences a list of requests, chaining response values into
// later steps through a run-scoped variable set.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

var ErrAlreadyRunning = errdef.New(errdef.CodeRunner, "a collection run is already in progress")

// Executor performs one step. *httpclient.Client satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *restfile.Request, set vars.Set) httpclient.Exchange
}

type EventKind int

const (
	StepStarted EventKind = iota
	StepFinished
	RunFinished
)

func (k EventKind) String() string {
	switch k {
	case StepStarted:
		return "step-started"
	case StepFinished:
		return "step-finished"
	case RunFinished:
		return "run-finished"
	default:
		return "unknown"
	}
}

// Event is delivered to observers synchronously from the run goroutine.
// Result, Response and Prepared are set for StepFinished; Stopped for
// RunFinished. Prepared is nil when the request could not be built.
type Event struct {
	Kind     EventKind
	Index    int
	Total    int
	Request  *restfile.Request
	Result   *RunResult
	Response restfile.Result
	Prepared *httpclient.Prepared
	Stopped  bool
}

type Option func(*Runner)

func WithObserver(fn func(Event)) Option {
	return func(r *Runner) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

type Runner struct {
	exec      Executor
	env       vars.Set
	logger    *slog.Logger
	observers []func(Event)

	mu     sync.Mutex
	active *run
	last   *run
}

// run is the state of one invocation. A stopped run keeps its own state so
// a later Start never shares results, scope or cancellation with it.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	index   int
	results []RunResult
	scope   vars.Set
}

// New returns an idle runner. env is the environment scope; it is only read,
// and only when a run starts.
func New(exec Executor, env vars.Set, opts ...Option) *Runner {
	r := &Runner{
		exec:   exec,
		env:    env,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetEnvironment replaces the environment scope used by the next Start.
func (r *Runner) SetEnvironment(env vars.Set) {
	r.mu.Lock()
	r.env = env
	r.mu.Unlock()
}

// Start launches a run in its own goroutine. It returns ErrAlreadyRunning,
// and changes nothing, while another run is active.
func (r *Runner) Start(ctx context.Context, requests []*restfile.Request, delay time.Duration) error {
	if r.exec == nil {
		return errdef.New(errdef.CodeRunner, "runner has no executor")
	}
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	rn := &run{
		cancel: cancel,
		done:   make(chan struct{}),
		scope:  r.env.Clone(),
	}
	r.active = rn
	r.last = rn
	r.mu.Unlock()

	reqs := append([]*restfile.Request(nil), requests...)
	go r.loop(runCtx, rn, reqs, delay)
	return nil
}

// Run is the blocking form of Start.
func (r *Runner) Run(ctx context.Context, requests []*restfile.Request, delay time.Duration) ([]RunResult, error) {
	if err := r.Start(ctx, requests, delay); err != nil {
		return nil, err
	}
	r.Wait()
	return r.Results(), nil
}

// Stop requests cancellation and reports not-running at once. A step already
// in flight completes and is recorded.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return
	}
	r.active.cancel()
	r.active = nil
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// CurrentIndex is the index of the step being executed, or of the last one
// executed once the run is over.
func (r *Runner) CurrentIndex() int {
	rn := r.lastRun()
	if rn == nil {
		return 0
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.index
}

// Results returns a copy of the latest run's results so far.
func (r *Runner) Results() []RunResult {
	rn := r.lastRun()
	if rn == nil {
		return nil
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return append([]RunResult(nil), rn.results...)
}

// Vars returns a copy of the latest run's scope.
func (r *Runner) Vars() vars.Set {
	rn := r.lastRun()
	if rn == nil {
		return nil
	}
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.scope.Clone()
}

// Wait blocks until the latest run's loop has exited, including a step that
// was in flight when Stop was called.
func (r *Runner) Wait() {
	if rn := r.lastRun(); rn != nil {
		<-rn.done
	}
}

func (r *Runner) lastRun() *run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) loop(ctx context.Context, rn *run, requests []*restfile.Request, delay time.Duration) {
	defer close(rn.done)
	defer r.finish(rn)

	// Steps are never aborted by Stop; only the loop watches ctx.
	execCtx := context.WithoutCancel(ctx)
	total := len(requests)
	start := time.Now()

	for i, req := range requests {
		if ctx.Err() != nil {
			break
		}
		rn.mu.Lock()
		rn.index = i
		scope := rn.scope.Clone()
		rn.mu.Unlock()

		r.emit(Event{Kind: StepStarted, Index: i, Total: total, Request: req})
		r.logger.Debug("step started", "index", i, "request", label(req))

		ex := r.exec.Execute(execCtx, req, scope)
		result := newRunResult(req, ex, scope)

		rn.mu.Lock()
		rn.results = append(rn.results, result)
		extract(rn.scope, ex.Result)
		applyCaptures(rn.scope, capturesOf(req), ex.Result)
		rn.mu.Unlock()

		if result.Error != "" {
			r.logger.Warn("step failed", "index", i, "request", label(req), "error", result.Error)
		} else {
			r.logger.Debug("step finished", "index", i, "request", label(req), "status", *result.Status, "time_ms", result.Time)
		}
		r.emit(Event{Kind: StepFinished, Index: i, Total: total, Request: req, Result: &result, Response: ex.Result, Prepared: ex.Prepared})

		if i < total-1 && delay > 0 {
			if !sleep(ctx, delay) {
				break
			}
		}
	}

	stopped := ctx.Err() != nil
	rn.mu.Lock()
	count := len(rn.results)
	rn.mu.Unlock()
	r.logger.Debug("run finished", "steps", count, "stopped", stopped, "elapsed", time.Since(start))
	r.emit(Event{Kind: RunFinished, Index: count, Total: total, Stopped: stopped})
}

func (r *Runner) finish(rn *run) {
	r.mu.Lock()
	if r.active == rn {
		r.active = nil
	}
	r.mu.Unlock()
	rn.cancel()
}

func (r *Runner) emit(evt Event) {
	for _, fn := range r.observers {
		fn(evt)
	}
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func label(req *restfile.Request) string {
	if req == nil {
		return ""
	}
	if req.Name != "" {
		return req.Name
	}
	return req.ID
}
