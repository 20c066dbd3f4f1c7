// Package scheduler drives the billing batches on timers using gocron v2.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/bookwise-inc/bookwise/internal/application/billing/usecases"
	"github.com/bookwise-inc/bookwise/internal/shared/biztime"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

const (
	jobValidations = "billing-validations"
	jobRenewals    = "billing-renewals"
)

// ErrJobRunning is returned by a manual run while the same batch is in flight.
var ErrJobRunning = errors.New("billing job already running")

// ValidationRunner is satisfied by usecases.RunValidationsUseCase.
type ValidationRunner interface {
	Execute(ctx context.Context) (*usecases.ValidationSummary, error)
}

// RenewalRunner is satisfied by usecases.RunRenewalsUseCase.
type RenewalRunner interface {
	Execute(ctx context.Context) (*usecases.RenewalSummary, error)
}

type Config struct {
	ValidationInterval time.Duration
	RenewalInterval    time.Duration
	JobTimeout         time.Duration
	// Locker is optional. When set only one instance runs each tick.
	Locker gocron.Locker
}

// RunInfo describes the last finished run of a job.
type RunInfo struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Summary   any           `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Status is a point-in-time view of the billing jobs.
type Status struct {
	Started           bool       `json:"started"`
	ValidationRunning bool       `json:"validation_running"`
	RenewalRunning    bool       `json:"renewal_running"`
	NextValidationRun *time.Time `json:"next_validation_run,omitempty"`
	NextRenewalRun    *time.Time `json:"next_renewal_run,omitempty"`
	LastValidation    *RunInfo   `json:"last_validation,omitempty"`
	LastRenewal       *RunInfo   `json:"last_renewal,omitempty"`
}

// SchedulerManager owns the gocron scheduler and the two billing jobs.
// Manual runs share the in-flight guard with the timer, so a batch never
// overlaps itself within one process.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	cfg       Config
	logger    logger.Interface

	validations ValidationRunner
	renewals    RenewalRunner

	validationRunning atomic.Bool
	renewalRunning    atomic.Bool
	inflight          sync.WaitGroup

	mu             sync.RWMutex
	started        bool
	validationJob  gocron.Job
	renewalJob     gocron.Job
	lastValidation *RunInfo
	lastRenewal    *RunInfo
}

// NewSchedulerManager creates the scheduler in the business timezone.
func NewSchedulerManager(cfg Config, log logger.Interface) (*SchedulerManager, error) {
	opts := []gocron.SchedulerOption{gocron.WithLocation(biztime.Location())}
	if cfg.Locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(cfg.Locker))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	return &SchedulerManager{
		scheduler: s,
		cfg:       cfg,
		logger:    log,
	}, nil
}

// RegisterBillingJobs adds both sweeps. Each starts immediately and then
// runs on its interval; a tick that finds the previous one still running is
// rescheduled rather than queued.
func (m *SchedulerManager) RegisterBillingJobs(validations ValidationRunner, renewals RenewalRunner) error {
	m.validations = validations
	m.renewals = renewals

	vj, err := m.scheduler.NewJob(
		gocron.DurationJob(m.cfg.ValidationInterval),
		gocron.NewTask(func() {
			if _, err := m.RunValidations(context.Background()); err != nil && !errors.Is(err, ErrJobRunning) {
				m.logger.Errorw("scheduled validation run failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("billing", "validation"),
		gocron.WithName(jobValidations),
	)
	if err != nil {
		return err
	}

	rj, err := m.scheduler.NewJob(
		gocron.DurationJob(m.cfg.RenewalInterval),
		gocron.NewTask(func() {
			if _, err := m.RunRenewals(context.Background()); err != nil && !errors.Is(err, ErrJobRunning) {
				m.logger.Errorw("scheduled renewal run failed", "error", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("billing", "renewal"),
		gocron.WithName(jobRenewals),
	)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.validationJob = vj
	m.renewalJob = rj
	m.mu.Unlock()

	m.logger.Infow("registered billing jobs",
		"validation_interval", m.cfg.ValidationInterval.String(),
		"renewal_interval", m.cfg.RenewalInterval.String(),
		"distributed_lock", m.cfg.Locker != nil,
	)
	return nil
}

// RunValidations runs one validation pass now. It returns ErrJobRunning if a
// pass is already in flight in this process.
func (m *SchedulerManager) RunValidations(ctx context.Context) (*usecases.ValidationSummary, error) {
	if m.validations == nil {
		return nil, errors.New("validation job not registered")
	}
	if !m.validationRunning.CompareAndSwap(false, true) {
		return nil, ErrJobRunning
	}
	m.inflight.Add(1)
	defer func() {
		m.validationRunning.Store(false)
		m.inflight.Done()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.JobTimeout)
	defer cancel()

	started := biztime.NowUTC()
	summary, err := m.validations.Execute(ctx)
	info := &RunInfo{StartedAt: started, Duration: time.Since(started)}
	if summary != nil {
		info.Summary = summary
	}
	if err != nil {
		info.Error = err.Error()
	} else {
		m.logger.Infow("validation run finished",
			"checked", summary.Checked,
			"transitions", summary.Transitions(),
			"failed", summary.Failed,
			"duration", info.Duration,
		)
	}

	m.mu.Lock()
	m.lastValidation = info
	m.mu.Unlock()
	return summary, err
}

// RunRenewals runs one renewal pass now.
func (m *SchedulerManager) RunRenewals(ctx context.Context) (*usecases.RenewalSummary, error) {
	if m.renewals == nil {
		return nil, errors.New("renewal job not registered")
	}
	if !m.renewalRunning.CompareAndSwap(false, true) {
		return nil, ErrJobRunning
	}
	m.inflight.Add(1)
	defer func() {
		m.renewalRunning.Store(false)
		m.inflight.Done()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.JobTimeout)
	defer cancel()

	started := biztime.NowUTC()
	summary, err := m.renewals.Execute(ctx)
	info := &RunInfo{StartedAt: started, Duration: time.Since(started)}
	if summary != nil {
		info.Summary = summary
	}
	if err != nil {
		info.Error = err.Error()
	}
	if summary != nil {
		m.logger.Infow("renewal run finished",
			"reminders", summary.RemindersSent,
			"retries", summary.RetriesSent,
			"transitions", summary.Transitions(),
			"failed", summary.Failed,
			"duration", info.Duration,
		)
	}

	m.mu.Lock()
	m.lastRenewal = info
	m.mu.Unlock()
	return summary, err
}

// Status reports which batches are running and when they run next.
func (m *SchedulerManager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{
		Started:           m.started,
		ValidationRunning: m.validationRunning.Load(),
		RenewalRunning:    m.renewalRunning.Load(),
		LastValidation:    m.lastValidation,
		LastRenewal:       m.lastRenewal,
	}
	if m.started {
		st.NextValidationRun = nextRun(m.validationJob)
		st.NextRenewalRun = nextRun(m.renewalJob)
	}
	return st
}

func nextRun(j gocron.Job) *time.Time {
	if j == nil {
		return nil
	}
	t, err := j.NextRun()
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// Start starts the scheduler and all registered jobs.
func (m *SchedulerManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop cancels future ticks and waits for running batches, including manual
// ones, to finish.
func (m *SchedulerManager) Stop() error {
	m.mu.Lock()
	wasStarted := m.started
	m.started = false
	m.mu.Unlock()

	var err error
	if wasStarted {
		m.logger.Infow("stopping scheduler manager")
		err = m.scheduler.Shutdown()
		if err != nil {
			m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		}
	}
	m.inflight.Wait()

	if wasStarted {
		m.logger.Infow("scheduler manager stopped")
	}
	return err
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
