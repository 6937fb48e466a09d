package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/voyagen/tvdeck/internal/cache"
	"github.com/voyagen/tvdeck/internal/models"
	"github.com/voyagen/tvdeck/internal/store"
)

// ErrNoReport is returned by Latest before any run has completed.
var ErrNoReport = errors.New("no check report available")

// Check-run triggers, used as the metrics label and in job payloads.
const (
	TriggerAPI      = "api"
	TriggerQueue    = "queue"
	TriggerSchedule = "schedule"
)

// checkLockTTL bounds how long a crashed run can block the next one.
const checkLockTTL = 30 * time.Minute

// RunCounter counts completed check-all runs.
type RunCounter interface {
	IncCheckRun(trigger string)
}

// CheckRunner serialises check-all runs and remembers the latest report.
// With Redis the lock, job queue and report are shared across instances;
// without it they are process-local.
type CheckRunner struct {
	store   store.Store
	checker Checker
	redis   *cache.Redis // may be nil
	counter RunCounter   // may be nil
	log     *logrus.Entry

	mu      sync.Mutex // process-local lock, used when redis is nil
	lastMu  sync.RWMutex
	last    *models.CheckReport
	pending sync.WaitGroup
}

// NewCheckRunner creates a CheckRunner. rds and counter may be nil.
func NewCheckRunner(s store.Store, checker Checker, rds *cache.Redis, counter RunCounter, log *logrus.Entry) *CheckRunner {
	return &CheckRunner{
		store:   s,
		checker: checker,
		redis:   rds,
		counter: counter,
		log:     log.WithField("component", "check_runner"),
	}
}

// Run performs one check-all run. It returns cache.ErrLocked when another
// run is in progress.
func (r *CheckRunner) Run(ctx context.Context, streamIDs []string, trigger string) (models.CheckReport, error) {
	unlock, err := r.lock(ctx)
	if err != nil {
		return models.CheckReport{}, err
	}
	defer unlock()
	return r.runLocked(ctx, streamIDs, trigger)
}

func (r *CheckRunner) runLocked(ctx context.Context, streamIDs []string, trigger string) (models.CheckReport, error) {
	started := time.Now()
	report, err := CheckAll(ctx, r.store, r.checker, streamIDs)
	if err != nil {
		return models.CheckReport{}, err
	}
	if r.counter != nil {
		r.counter.IncCheckRun(trigger)
	}
	r.remember(ctx, report)

	r.log.WithFields(logrus.Fields{
		"trigger":      trigger,
		"servers":      report.Stats.Total,
		"working":      report.Stats.Working,
		"broken":       report.Stats.Broken,
		"working_rate": report.Stats.WorkingRate,
		"duration":     time.Since(started).String(),
	}).Info("check-all complete")
	return report, nil
}

// Submit schedules an asynchronous run and returns its job ID. It returns
// cache.ErrLocked, without accepting the job, while a run is in progress.
// With Redis the job is queued for a worker; otherwise this process takes
// the lock at once and runs the job in a goroutine.
func (r *CheckRunner) Submit(ctx context.Context, streamIDs []string, trigger string) (string, error) {
	job := cache.CheckJob{
		ID:          uuid.NewString(),
		StreamIDs:   streamIDs,
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	}
	if r.redis != nil {
		if cache.IsLocked(ctx, r.redis, cache.CheckAllLock) {
			return "", cache.ErrLocked
		}
		if err := cache.Enqueue(ctx, r.redis, cache.CheckQueue, job); err != nil {
			return "", fmt.Errorf("enqueue check job: %w", err)
		}
		return job.ID, nil
	}

	unlock, err := r.lock(ctx)
	if err != nil {
		return "", err
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer unlock()
		// Detached: the submitting request returns before the run ends.
		if _, err := r.runLocked(context.Background(), job.StreamIDs, job.Trigger); err != nil {
			r.log.WithError(err).WithField("job_id", job.ID).Warn("async check-all failed")
		}
	}()
	return job.ID, nil
}

// Wait blocks until in-process runs started by Submit have finished.
func (r *CheckRunner) Wait() {
	r.pending.Wait()
}

// lockRetry is how often a dequeued job retries a held lock.
const lockRetry = 2 * time.Second

// Work consumes queued jobs until ctx is cancelled. It is a no-op
// without Redis.
func (r *CheckRunner) Work(ctx context.Context) {
	if r.redis == nil {
		return
	}
	r.log.Info("check worker started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("check worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, r.redis, cache.CheckQueue, 5*time.Second)
		if err != nil {
			r.log.WithError(err).Warn("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}
		r.process(ctx, job)
	}
}

// process runs an accepted job, waiting for the lock if another instance
// started a run after the job was queued.
func (r *CheckRunner) process(ctx context.Context, job *cache.CheckJob) {
	log := r.log.WithFields(logrus.Fields{"job_id": job.ID, "trigger": job.Trigger})
	log.Info("processing check job")
	for {
		_, err := r.Run(ctx, job.StreamIDs, job.Trigger)
		if err == nil {
			return
		}
		if !errors.Is(err, cache.ErrLocked) {
			log.WithError(err).Warn("check job failed")
			return
		}
		log.Debug("check already running, job waiting")
		select {
		case <-ctx.Done():
			log.Warn("shutdown before check job could run")
			return
		case <-time.After(lockRetry):
		}
	}
}

// Schedule submits a full run every interval until ctx is cancelled.
func (r *CheckRunner) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.Submit(ctx, nil, TriggerSchedule)
			switch {
			case errors.Is(err, cache.ErrLocked):
				r.log.Info("scheduled check-all skipped: a run is in progress")
			case err != nil:
				r.log.WithError(err).Warn("scheduled check-all not submitted")
			}
		}
	}
}

// Latest returns the most recent completed report.
func (r *CheckRunner) Latest(ctx context.Context) (models.CheckReport, error) {
	if r.redis != nil {
		report, err := cache.Get[models.CheckReport](ctx, r.redis, cache.LastReportKey)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			r.log.WithError(err).Warn("read latest report")
		}
	}
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.last == nil {
		return models.CheckReport{}, ErrNoReport
	}
	return *r.last, nil
}

func (r *CheckRunner) lock(ctx context.Context) (func(), error) {
	if r.redis != nil {
		return cache.TryLock(ctx, r.redis, cache.CheckAllLock, checkLockTTL)
	}
	if !r.mu.TryLock() {
		return nil, cache.ErrLocked
	}
	return r.mu.Unlock, nil
}

func (r *CheckRunner) remember(ctx context.Context, report models.CheckReport) {
	r.lastMu.Lock()
	r.last = &report
	r.lastMu.Unlock()

	if r.redis != nil {
		if err := cache.Set(ctx, r.redis, cache.LastReportKey, report, 0); err != nil {
			r.log.WithError(err).Warn("store latest report")
		}
	}
}
