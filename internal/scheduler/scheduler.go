// Package scheduler fans independent generation tasks out to a
// rate-limited API with adaptive batching, bounded concurrency and
// per-task retries.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults tuned against a 60 requests/minute API quota.
const (
	DefaultConcurrencyCeiling  = 20
	DefaultMaxRetries          = 3
	DefaultRetryBaseDelay      = 2 * time.Second
	DefaultQuotaWindow         = 60 * time.Second
	DefaultPerTaskTimeout      = 120 * time.Second
	DefaultSequentialThreshold = 2

	// fastBatchThreshold marks a batch as having burst the quota
	// window: anything quicker waits out the remainder of the window.
	fastBatchThreshold = 10 * time.Second
)

// Task is one unit of work. Fn must honor ctx cancellation; the
// scheduler imposes a per-attempt timeout through it.
type Task struct {
	ID      string
	Payload any
	Fn      func(ctx context.Context) (string, error)
}

// Outcome is the terminal state of one task. Err is nil on success.
type Outcome struct {
	TaskID   string
	Payload  any
	Result   string
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Stats summarizes a completed run.
type Stats struct {
	TotalTasks       int
	Completed        int
	Failed           int
	Retried          int
	BatchesProcessed int
	WallTime         time.Duration
}

// Config tunes the scheduler.
type Config struct {
	// ConcurrencyCeiling caps in-flight tasks per batch.
	ConcurrencyCeiling int
	// MaxRetries is how many times a failed task is re-attempted.
	MaxRetries int
	// RetryBaseDelay scales linearly with the attempt number.
	RetryBaseDelay time.Duration
	// QuotaWindow is the API rate-limit window, normally one minute.
	QuotaWindow time.Duration
	// PerTaskTimeout bounds a single attempt.
	PerTaskTimeout time.Duration
	// SequentialThreshold: task counts at or below this skip the
	// concurrent machinery entirely.
	SequentialThreshold int
	// IsFatal marks errors that must not be retried (auth, billing).
	IsFatal func(error) bool
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		ConcurrencyCeiling:  DefaultConcurrencyCeiling,
		MaxRetries:          DefaultMaxRetries,
		RetryBaseDelay:      DefaultRetryBaseDelay,
		QuotaWindow:         DefaultQuotaWindow,
		PerTaskTimeout:      DefaultPerTaskTimeout,
		SequentialThreshold: DefaultSequentialThreshold,
	}
}

// Options configures a single run.
type Options struct {
	// RemainingQuota estimates how many requests the current window
	// still allows. Zero means unknown and defaults to the ceiling.
	RemainingQuota int
	// OnProgress is invoked after every batch with (completed, total).
	OnProgress func(completed, total int)
}

// Scheduler executes task batches. Safe for sequential reuse; a single
// Run owns its tasks exclusively.
type Scheduler struct {
	cfg Config

	// Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates a Scheduler, filling unset config fields with defaults.
func New(cfg Config) *Scheduler {
	if cfg.ConcurrencyCeiling <= 0 {
		cfg.ConcurrencyCeiling = DefaultConcurrencyCeiling
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.QuotaWindow <= 0 {
		cfg.QuotaWindow = DefaultQuotaWindow
	}
	if cfg.PerTaskTimeout <= 0 {
		cfg.PerTaskTimeout = DefaultPerTaskTimeout
	}
	if cfg.SequentialThreshold <= 0 {
		cfg.SequentialThreshold = DefaultSequentialThreshold
	}
	return &Scheduler{
		cfg:   cfg,
		sleep: sleepCtx,
		now:   time.Now,
	}
}

// taskState tracks one task across retry rounds.
type taskState struct {
	task     Task
	attempts int
	result   string
	err      error
	elapsed  time.Duration
	done     bool
}

// Run executes all tasks and returns outcomes in input order. Small
// task sets and a failed concurrent pass both degrade to strict
// sequential processing with identical semantics.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, opts Options) ([]Outcome, Stats, error) {
	start := s.now()
	stats := Stats{TotalTasks: len(tasks)}
	if len(tasks) == 0 {
		return nil, stats, nil
	}

	states := make([]*taskState, len(tasks))
	for i, t := range tasks {
		states[i] = &taskState{task: t}
	}

	var runErr error
	if len(tasks) <= s.cfg.SequentialThreshold {
		slog.Info("small task set, processing sequentially", "tasks", len(tasks))
		runErr = s.runSequential(ctx, states, &stats, opts)
	} else {
		runErr = s.runConcurrent(ctx, states, &stats, opts)
		if runErr != nil && ctx.Err() == nil {
			// Concurrent pass failed outright; restart unfinished work
			// one task at a time.
			slog.Warn("concurrent processing failed, falling back to sequential", "error", runErr)
			runErr = s.runSequential(ctx, states, &stats, opts)
		}
	}

	outcomes := make([]Outcome, len(states))
	stats.Completed, stats.Failed = 0, 0
	for i, st := range states {
		outcomes[i] = Outcome{
			TaskID:   st.task.ID,
			Payload:  st.task.Payload,
			Result:   st.result,
			Err:      st.err,
			Attempts: st.attempts,
			Elapsed:  st.elapsed,
		}
		if st.done && st.err == nil {
			stats.Completed++
		} else {
			stats.Failed++
		}
	}
	stats.WallTime = s.now().Sub(start)

	slog.Info("scheduler run complete",
		"total", stats.TotalTasks,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"retried", stats.Retried,
		"batches", stats.BatchesProcessed,
		"wall_time", stats.WallTime)

	return outcomes, stats, runErr
}

// PlanBatches splits n tasks into batch sizes under the concurrency
// ceiling and the remaining-quota estimate. Only the first batch is
// constrained by the quota; later batches assume the window has
// replenished during the inter-batch cooldown.
func PlanBatches(n, ceiling, remainingQuota int) []int {
	if n <= 0 {
		return nil
	}
	if remainingQuota <= 0 {
		remainingQuota = ceiling
	}

	first := minInt(ceiling, remainingQuota, n)
	sizes := []int{first}
	remaining := n - first
	for remaining > 0 {
		size := minInt(ceiling, remaining)
		sizes = append(sizes, size)
		remaining -= size
	}
	return sizes
}

// runConcurrent processes states batch by batch. Batch N+1 never
// starts before batch N's retry loop has fully resolved.
func (s *Scheduler) runConcurrent(ctx context.Context, states []*taskState, stats *Stats, opts Options) error {
	sizes := PlanBatches(len(states), s.cfg.ConcurrencyCeiling, opts.RemainingQuota)
	slog.Info("batch plan computed",
		"tasks", len(states),
		"batches", len(sizes),
		"ceiling", s.cfg.ConcurrencyCeiling,
		"quota", opts.RemainingQuota)

	completed := 0
	offset := 0
	for i, size := range sizes {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := states[offset : offset+size]
		offset += size

		batchStart := s.now()
		if err := s.runBatch(ctx, batch, stats); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		batchElapsed := s.now().Sub(batchStart)

		stats.BatchesProcessed++
		for _, st := range batch {
			if st.done && st.err == nil {
				completed++
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(completed, len(states))
		}

		slog.Info("batch complete",
			"batch", i+1,
			"of", len(sizes),
			"size", size,
			"elapsed", batchElapsed)

		// Respect the per-minute quota: a batch that burst through its
		// requests waits out the rest of the window.
		if i < len(sizes)-1 && batchElapsed < fastBatchThreshold {
			wait := s.cfg.QuotaWindow - batchElapsed
			if wait > 0 {
				slog.Info("cooling down before next batch", "wait", wait)
				if err := s.sleep(ctx, wait); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// runBatch launches every task in the batch concurrently, then drives
// the retry rounds until no task is retryable.
func (s *Scheduler) runBatch(ctx context.Context, batch []*taskState, stats *Stats) error {
	pending := batch
	for round := 0; len(pending) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if round > 0 {
			// Linear backoff: the wait grows with the attempt number.
			delay := time.Duration(round) * s.cfg.RetryBaseDelay
			slog.Info("retrying failed tasks", "tasks", len(pending), "round", round, "delay", delay)
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}

		var wg sync.WaitGroup
		for _, st := range pending {
			wg.Add(1)
			go func(st *taskState) {
				defer wg.Done()
				s.attempt(ctx, st)
			}(st)
		}
		wg.Wait()

		var retryable []*taskState
		for _, st := range pending {
			if st.done {
				continue
			}
			if s.retryable(st) {
				retryable = append(retryable, st)
				stats.Retried++
			} else {
				st.done = true
				slog.Warn("task exhausted retries", "task", st.task.ID, "attempts", st.attempts, "error", st.err)
			}
		}
		pending = retryable
	}
	return nil
}

// runSequential processes every unfinished task one at a time with the
// same retry semantics as the concurrent path.
func (s *Scheduler) runSequential(ctx context.Context, states []*taskState, stats *Stats, opts Options) error {
	completed := 0
	for _, st := range states {
		if st.done && st.err == nil {
			completed++
		}
	}

	processedAny := false
	for _, st := range states {
		if st.done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		processedAny = true

		for {
			s.attempt(ctx, st)
			if st.done {
				break
			}
			if !s.retryable(st) {
				st.done = true
				slog.Warn("task exhausted retries", "task", st.task.ID, "attempts", st.attempts, "error", st.err)
				break
			}
			stats.Retried++
			delay := time.Duration(st.attempts) * s.cfg.RetryBaseDelay
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if st.err == nil {
			completed++
		}
		if opts.OnProgress != nil {
			opts.OnProgress(completed, len(states))
		}
	}

	// The whole sequential pass is one logical batch, keeping
	// BatchesProcessed comparable with the concurrent path.
	if processedAny {
		stats.BatchesProcessed++
	}
	return nil
}

// attempt runs one execution of the task under the per-task timeout.
// A panic inside the task counts as a failed attempt.
func (s *Scheduler) attempt(ctx context.Context, st *taskState) {
	st.attempts++
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.PerTaskTimeout)
	defer cancel()

	start := s.now()
	result, err := runGuarded(attemptCtx, st.task.Fn)
	st.elapsed += s.now().Sub(start)

	if err != nil {
		st.err = err
		return
	}
	st.result = result
	st.err = nil
	st.done = true
}

// retryable reports whether a failed task has retries left. The
// attempt that just failed already counted, so a task is re-attempted
// at most MaxRetries times beyond its first try.
func (s *Scheduler) retryable(st *taskState) bool {
	if st.attempts > s.cfg.MaxRetries {
		return false
	}
	if s.cfg.IsFatal != nil && s.cfg.IsFatal(st.err) {
		return false
	}
	return true
}

func runGuarded(ctx context.Context, fn func(ctx context.Context) (string, error)) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
