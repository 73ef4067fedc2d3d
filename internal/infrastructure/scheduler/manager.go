// Package scheduler runs the periodic reconciliation jobs using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/storesync/storesync/internal/shared/biztime"
	"github.com/storesync/storesync/internal/shared/logger"
)

const defaultRecoveryInterval = time.Hour

// BatchJob defines the interface for a scheduled batch processing job.
// Each Execute call processes a batch and returns the number of items processed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// SchedulerManager owns the single gocron scheduler of the process.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	started   bool
	startedMu sync.RWMutex
}

func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// RegisterRecoveryJob registers the stale-subscription sweep. Runs never
// overlap; a run still in progress when the next one is due pushes it back.
func (m *SchedulerManager) RegisterRecoveryJob(job BatchJob, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = defaultRecoveryInterval
	}
	if timeout <= 0 {
		timeout = interval
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			m.runRecovery(ctx, job)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("subscription", "recovery"),
		gocron.WithName("subscription-recovery"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered recovery job", "interval", interval.String())
	return nil
}

func (m *SchedulerManager) runRecovery(ctx context.Context, job BatchJob) {
	m.logger.Debugw("recovery sweep started")

	startTime := biztime.NowUTC()
	count, err := job.Execute(ctx)
	if err != nil {
		if ctx.Err() != nil && count == 0 {
			m.logger.Warnw("recovery sweep interrupted", "error", err)
			return
		}
		m.logger.Errorw("recovery sweep failed",
			"error", err,
			"recovered", count,
			"duration", time.Since(startTime),
		)
		return
	}

	if count > 0 {
		m.logger.Infow("recovery sweep completed",
			"recovered", count,
			"duration", time.Since(startTime),
		)
	} else {
		m.logger.Debugw("no stale subscriptions to recover",
			"duration", time.Since(startTime),
		)
	}
}

// Start starts the scheduler and all registered jobs.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop waits for running jobs to complete before returning.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
