package cron

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/metrics"
)

// Job is a unit of periodic maintenance work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// lockClient is the slice of the redis client the runner needs for
// distributed locks.
type lockClient interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	LockKey(name string) string
}

// Runner executes registered jobs on a fixed interval. A per-job redis lock
// keeps multiple worker replicas from running the same job concurrently; the
// lock expires on its own so a crashed holder does not wedge the job.
type Runner struct {
	jobs     []Job
	locks    lockClient
	interval time.Duration
	lockTTL  time.Duration
	metrics  *metrics.JobMetrics
	logg     *logger.Logger
}

// NewRunner validates the wiring and returns an empty runner.
func NewRunner(locks lockClient, interval, lockTTL time.Duration, jobMetrics *metrics.JobMetrics, logg *logger.Logger) (*Runner, error) {
	if locks == nil {
		return nil, fmt.Errorf("lock client required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if lockTTL <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Runner{
		locks:    locks,
		interval: interval,
		lockTTL:  lockTTL,
		metrics:  jobMetrics,
		logg:     logg,
	}, nil
}

// Register adds a job to the schedule.
func (r *Runner) Register(jobs ...Job) {
	r.jobs = append(r.jobs, jobs...)
}

// Run executes all jobs immediately and then on every tick until the context
// is cancelled. A small jitter spreads replicas that started together.
func (r *Runner) Run(ctx context.Context) error {
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"jobs":     len(r.jobs),
		"interval": r.interval.String(),
	}), "cron runner started")

	select {
	case <-time.After(time.Duration(rand.Int63n(int64(time.Second) + 1))):
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "cron runner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce attempts a single pass over all registered jobs.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			return
		}
		r.runJob(ctx, job)
	}
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	logCtx := r.logg.WithFields(ctx, map[string]any{"job": job.Name()})

	acquired, err := r.locks.SetNX(ctx, r.locks.LockKey(job.Name()), "1", r.lockTTL)
	if err != nil {
		r.logg.Error(logCtx, "acquiring job lock", err)
		r.observe(job.Name(), 0, false)
		return
	}
	if !acquired {
		r.logg.Info(logCtx, "job lock held elsewhere, skipping")
		return
	}

	start := time.Now()
	err = job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		r.logg.Error(logCtx, "job failed", err)
	}
	r.observe(job.Name(), elapsed, err == nil)
}

func (r *Runner) observe(name string, elapsed time.Duration, ok bool) {
	r.metrics.ObserveDuration(name, elapsed)
	if ok {
		r.metrics.IncSuccess(name)
		return
	}
	r.metrics.IncFailure(name)
}
