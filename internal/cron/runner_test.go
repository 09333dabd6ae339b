package cron

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

type fakeLocks struct {
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: map[string]bool{}}
}

func (f *fakeLocks) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocks) LockKey(name string) string {
	return fmt.Sprintf("gm:lock:%s", name)
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

func newRunner(t *testing.T, locks lockClient) *Runner {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	runner, err := NewRunner(locks, time.Minute, time.Minute, nil, logg)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestRunOnce_RunsEveryRegisteredJob(t *testing.T) {
	runner := newRunner(t, newFakeLocks())
	first := &countingJob{name: "first"}
	second := &countingJob{name: "second"}
	runner.Register(first, second)

	runner.RunOnce(context.Background())

	if first.runs != 1 || second.runs != 1 {
		t.Fatalf("expected one run each, got %d and %d", first.runs, second.runs)
	}
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	locks := newFakeLocks()
	runner := newRunner(t, locks)
	job := &countingJob{name: "locked"}
	runner.Register(job)

	locks.held[locks.LockKey(job.Name())] = true
	runner.RunOnce(context.Background())

	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, got %d runs", job.runs)
	}
}

func TestRunOnce_FailingJobDoesNotBlockOthers(t *testing.T) {
	runner := newRunner(t, newFakeLocks())
	failing := &countingJob{name: "failing", err: fmt.Errorf("boom")}
	healthy := &countingJob{name: "healthy"}
	runner.Register(failing, healthy)

	runner.RunOnce(context.Background())

	if failing.runs != 1 || healthy.runs != 1 {
		t.Fatalf("expected both jobs to run, got %d and %d", failing.runs, healthy.runs)
	}
}

func TestRunOnce_StopsOnCancelledContext(t *testing.T) {
	runner := newRunner(t, newFakeLocks())
	job := &countingJob{name: "late"}
	runner.Register(job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner.RunOnce(ctx)

	if job.runs != 0 {
		t.Fatalf("expected no runs after cancel, got %d", job.runs)
	}
}
