package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// ErrSuperseded is delivered to a scheduled request that was replaced by a
// newer one before (or while) it rendered.
var ErrSuperseded = errors.New("engine: render superseded by a newer request")

// Renderer is the slice of the pipeline the scheduler needs.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) (model.TraceRun, error)
}

// Outcome is the result delivered for a scheduled render.
type Outcome struct {
	Trace model.TraceRun
	Err   error
}

type request struct {
	input  RenderInput
	result chan Outcome
}

// Scheduler holds at most one pending render request. Scheduling a new
// request replaces the pending one and cancels any render already in
// flight; superseded requests receive ErrSuperseded. Dispatch waits for a
// quiescence window so bursts of edits collapse into one render.
type Scheduler struct {
	renderer Renderer
	logger   *slog.Logger
	quiet    time.Duration

	mu             sync.Mutex
	pending        *request
	cancelInflight context.CancelFunc

	notify     chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
}

// NewScheduler builds a Scheduler with the given quiescence window.
func NewScheduler(renderer Renderer, quiet time.Duration, logger *slog.Logger) *Scheduler {
	if quiet <= 0 {
		quiet = 150 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		renderer: renderer,
		logger:   logger,
		quiet:    quiet,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins the dispatch loop. Call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancelLoop = cancel
	go s.loop(loopCtx)
}

// Schedule enqueues a render and returns the channel its outcome will be
// delivered on. The channel is buffered; the caller may abandon it.
func (s *Scheduler) Schedule(in RenderInput) <-chan Outcome {
	ch := make(chan Outcome, 1)

	s.mu.Lock()
	if s.pending != nil {
		s.pending.result <- Outcome{Err: ErrSuperseded}
	}
	s.pending = &request{input: in, result: ch}
	if s.cancelInflight != nil {
		s.cancelInflight()
		s.cancelInflight = nil
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return ch
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.failPending(ctx.Err())
			return
		case <-s.notify:
		}

		// Quiescence window: restart the timer while requests keep arriving.
		timer := time.NewTimer(s.quiet)
	waiting:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				s.failPending(ctx.Err())
				return
			case <-s.notify:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(s.quiet)
			case <-timer.C:
				break waiting
			}
		}

		s.mu.Lock()
		req := s.pending
		s.pending = nil
		var runCtx context.Context
		if req != nil {
			runCtx, s.cancelInflight = context.WithCancel(ctx)
		}
		s.mu.Unlock()
		if req == nil {
			continue
		}

		t, err := s.renderer.Render(runCtx, req.input)

		// Classify before releasing our own cancel func: once it fires,
		// runCtx.Err() can no longer distinguish a newer request from the
		// loop's own cleanup. Schedule cancels under the same lock.
		s.mu.Lock()
		superseded := runCtx.Err() != nil
		if s.cancelInflight != nil {
			s.cancelInflight()
			s.cancelInflight = nil
		}
		s.mu.Unlock()

		switch {
		case ctx.Err() != nil:
			req.result <- Outcome{Err: ctx.Err()}
		case superseded:
			// Cancelled by a newer request; its render owns the slot now.
			req.result <- Outcome{Err: ErrSuperseded}
		default:
			req.result <- Outcome{Trace: t, Err: err}
		}
	}
}

func (s *Scheduler) failPending(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.result <- Outcome{Err: err}
		s.pending = nil
	}
}

// Stop shuts the dispatch loop down and waits for it, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cancelLoop != nil {
		s.cancelLoop()
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("scheduler: stop timed out waiting for dispatch loop")
	}
}
