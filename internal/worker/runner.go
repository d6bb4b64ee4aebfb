// Package worker implements the job processing loop for one queue.
//
// Architecture:
//
//	broker (BLPOP) → Runner → Registry → handler → broker (publish)
//
// The Runner orchestrates the loop:
//  1. Block-pop the next job from the bound queue
//  2. Resolve the handler by its wire name
//  3. Execute under the job's wall-clock timeout
//  4. Publish exactly one terminal status
//  5. Repeat
//
// Handlers are assumed non-reentrant; the runner executes them strictly
// sequentially. Horizontal concurrency comes from running more worker
// processes on the same queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/openbim/ifcpipeline/internal/broker"
	"github.com/openbim/ifcpipeline/internal/codec"
)

// Runner pulls jobs from one named queue and dispatches them through
// the registry.
type Runner struct {
	broker   *broker.Client
	registry *Registry
	config   RunnerConfig
	log      zerolog.Logger
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	// Queue is the queue this worker serves.
	Queue string

	// PopWait bounds each blocking pop so shutdown signals are
	// observable between pops (default: 5s).
	PopWait time.Duration

	// MaxStack caps the stack excerpt recorded on handler panics
	// (default: 4096 bytes).
	MaxStack int
}

// NewRunner creates a runner bound to one queue.
func NewRunner(b *broker.Client, registry *Registry, cfg RunnerConfig, log zerolog.Logger) *Runner {
	if cfg.PopWait == 0 {
		cfg.PopWait = 5 * time.Second
	}
	if cfg.MaxStack == 0 {
		cfg.MaxStack = 4096
	}
	return &Runner{
		broker:   b,
		registry: registry,
		config:   cfg,
		log:      log.With().Str("queue", cfg.Queue).Logger(),
	}
}

// Run starts the processing loop. Blocks until the context is cancelled
// or a termination signal is received.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	r.log.Info().Strs("handlers", r.registry.Names()).Msg("worker started, listening for jobs")

	// Broker errors back off exponentially up to a cap; the worker
	// keeps attempting broker contact indefinitely.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

runLoop:
	for {
		select {
		case sig := <-sigs:
			r.log.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
			break runLoop
		case <-ctx.Done():
			break runLoop
		default:
			job, err := r.broker.BlockPop(ctx, r.config.Queue, r.config.PopWait)
			if err != nil {
				if ctx.Err() != nil {
					break runLoop
				}
				r.log.Warn().Err(err).Dur("retry_in", backoff).Msg("broker error fetching job")
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					break runLoop
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = time.Second

			if job == nil {
				continue
			}
			r.processJob(ctx, job)
		}
	}

	r.log.Info().Msg("worker shutdown complete")
	return nil
}

// processJob executes one popped job and publishes its terminal status.
func (r *Runner) processJob(ctx context.Context, job *broker.Job) {
	log := r.log.With().Str("job_id", job.ID).Str("handler", job.Handler).Logger()
	log.Info().Msg("job received")

	r.publishStatus(ctx, job.ID, broker.StatusStarted)

	handler, ok := r.registry.Resolve(job.Handler)
	if !ok {
		log.Error().Msg("unknown handler")
		r.publishFailure(ctx, job.ID, broker.StatusFailed, &broker.JobError{
			Kind:    broker.ErrorKindDecode,
			Message: fmt.Sprintf("unknown handler %s", job.Handler),
		})
		return
	}

	start := time.Now()
	result, err := r.execute(ctx, job, handler)
	duration := time.Since(start)

	switch {
	case err == nil:
		encoded, encErr := codec.Encode(result)
		if encErr != nil {
			log.Error().Err(encErr).Msg("failed to encode result")
			r.publishFailure(ctx, job.ID, broker.StatusFailed, &broker.JobError{
				Kind:    broker.ErrorKindHandler,
				Message: encErr.Error(),
			})
			return
		}
		if pubErr := r.publishResult(ctx, job.ID, encoded); errors.Is(pubErr, broker.ErrTerminal) {
			// The watchdog already published timed_out; the late
			// result is discarded.
			log.Warn().Dur("duration", duration).Msg("late result after timeout, ignored")
			return
		}
		log.Info().Dur("duration", duration).Msg("job finished")

	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Dur("duration", duration).Msg("job timed out")
		r.publishFailure(ctx, job.ID, broker.StatusTimedOut, &broker.JobError{
			Kind:    broker.ErrorKindTimeout,
			Message: fmt.Sprintf("job exceeded timeout of %ds", job.TimeoutSeconds),
		})

	default:
		var decErr *decodeError
		jobErr := &broker.JobError{Kind: broker.ErrorKindHandler, Message: firstLine(err.Error())}
		if errors.As(err, &decErr) {
			jobErr.Kind = broker.ErrorKindDecode
			jobErr.Message = err.Error()
		}
		var pErr *panicError
		if errors.As(err, &pErr) {
			jobErr.Stack = pErr.stack
		}
		log.Error().Err(err).Dur("duration", duration).Msg("job failed")
		r.publishFailure(ctx, job.ID, broker.StatusFailed, jobErr)
	}
}

// panicError carries the stack captured at the handler boundary.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

// execute runs the handler under the job's wall-clock timeout. The
// handler runs in its own goroutine; if the deadline fires first the
// job is reported timed out while the handler is left to run to
// completion, and any late result is rejected by the broker's
// terminal-once rule.
func (r *Runner) execute(ctx context.Context, job *broker.Job, handler HandlerFunc) (any, error) {
	timeout := job.Timeout()
	if timeout <= 0 {
		timeout = time.Hour
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if v := recover(); v != nil {
				stack := string(debug.Stack())
				if len(stack) > r.config.MaxStack {
					stack = stack[:r.config.MaxStack]
				}
				done <- outcome{err: &panicError{value: v, stack: stack}}
			}
		}()
		result, err := handler(jobCtx, job.Payload)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-jobCtx.Done():
		return nil, jobCtx.Err()
	}
}

// publishStatus records a non-terminal transition; broker errors are
// logged but do not stop processing.
func (r *Runner) publishStatus(ctx context.Context, id string, status broker.Status) {
	if err := r.broker.SetStatus(ctx, id, status); err != nil {
		r.log.Warn().Err(err).Str("job_id", id).Msg("failed to publish status")
	}
}

// publishResult writes the terminal finished status, retrying broker
// errors so a popped job is never silently dropped.
func (r *Runner) publishResult(ctx context.Context, id string, result json.RawMessage) error {
	return r.withBrokerRetry(ctx, id, func() error {
		return r.broker.Complete(ctx, id, result)
	})
}

// publishFailure writes a terminal failure status with retry.
func (r *Runner) publishFailure(ctx context.Context, id string, status broker.Status, jobErr *broker.JobError) {
	err := r.withBrokerRetry(ctx, id, func() error {
		return r.broker.Fail(ctx, id, status, jobErr)
	})
	if errors.Is(err, broker.ErrTerminal) {
		r.log.Warn().Str("job_id", id).Msg("terminal status already published")
	}
}

// withBrokerRetry retries fn on broker errors with capped exponential
// backoff. ErrTerminal is not retried: it means another publisher won.
func (r *Runner) withBrokerRetry(ctx context.Context, id string, fn func() error) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		err := fn()
		if err == nil || errors.Is(err, broker.ErrTerminal) {
			return err
		}
		r.log.Warn().Err(err).Str("job_id", id).Dur("retry_in", backoff).Msg("broker error publishing outcome")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// firstLine trims an error message to its first line for the envelope.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
