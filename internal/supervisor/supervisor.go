// Package supervisor runs build jobs so that at most one is live at a time.
// Submitting a job cancels whichever job was current.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waabox/gitpress/internal/domain"
)

// Job is one run of a branch's pipelines.
type Job struct {
	ID        uuid.UUID
	Branch    string
	StartedAt time.Time

	pipelines []domain.Runnable
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// Done is closed when the job has stopped running pipelines.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes and returns the first pipeline error,
// or the context error if the job was cancelled.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Supervisor owns the current-job slot.
type Supervisor struct {
	logger *slog.Logger
	ctx    context.Context
	stop   context.CancelFunc

	mu      sync.Mutex
	current *Job
	wg      sync.WaitGroup
}

// New creates a Supervisor whose jobs are derived from ctx. A nil logger
// uses slog.Default().
func New(ctx context.Context, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(ctx)
	return &Supervisor{logger: logger, ctx: ctx, stop: stop}
}

// Submit starts a job running pipelines in order and cancels the previous
// job. An empty list starts nothing, leaves the current job alone and
// returns nil.
func (s *Supervisor) Submit(branch string, pipelines []domain.Runnable) *Job {
	if len(pipelines) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	job := &Job{
		ID:        uuid.New(),
		Branch:    branch,
		StartedAt: time.Now(),
		pipelines: append([]domain.Runnable(nil), pipelines...),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	previous := s.current
	s.current = job
	s.wg.Add(1)
	s.mu.Unlock()

	if previous != nil {
		s.logger.Info("cancelling previous job", "job", previous.ID, "branch", previous.Branch)
		previous.cancel()
	}

	go s.run(ctx, job)
	return job
}

// Current returns the most recently submitted job that is still running, or nil.
func (s *Supervisor) Current() *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Wait blocks until every submitted job has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown cancels all jobs and waits for them to finish.
func (s *Supervisor) Shutdown() {
	s.stop()
	s.wg.Wait()
}

func (s *Supervisor) run(ctx context.Context, job *Job) {
	defer s.wg.Done()
	defer job.cancel()
	defer close(job.done)
	defer s.release(job)

	logger := s.logger.With("job", job.ID, "branch", job.Branch)
	logger.Info("job started", "pipelines", len(job.pipelines))

	for _, p := range job.pipelines {
		if ctx.Err() != nil {
			break
		}
		err := p.Run(ctx)
		switch {
		case err == nil:
			logger.Info("pipeline finished", "pipeline", p.Name())
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			logger.Info("pipeline cancelled", "pipeline", p.Name())
		default:
			logger.Error("pipeline failed", "pipeline", p.Name(), "error", err)
			if job.err == nil {
				job.err = err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Info("job cancelled")
		if job.err == nil {
			job.err = err
		}
		return
	}
	logger.Info("job finished", "duration", time.Since(job.StartedAt).Round(time.Millisecond))
}

// release clears the slot unless a newer job already took it.
func (s *Supervisor) release(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == job {
		s.current = nil
	}
}
