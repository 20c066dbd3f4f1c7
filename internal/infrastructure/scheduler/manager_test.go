package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwise-inc/bookwise/internal/application/billing/usecases"
	"github.com/bookwise-inc/bookwise/internal/shared/logger"
)

type fakeValidations struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (f *fakeValidations) Execute(ctx context.Context) (*usecases.ValidationSummary, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &usecases.ValidationSummary{Checked: 2, Suspended: 1}, nil
}

type fakeRenewals struct {
	calls atomic.Int32
}

func (f *fakeRenewals) Execute(ctx context.Context) (*usecases.RenewalSummary, error) {
	f.calls.Add(1)
	return &usecases.RenewalSummary{RemindersSent: 1}, nil
}

func newTestManager(t *testing.T) *SchedulerManager {
	t.Helper()
	m, err := NewSchedulerManager(Config{
		ValidationInterval: time.Hour,
		RenewalInterval:    2 * time.Hour,
		JobTimeout:         time.Minute,
	}, logger.NewNop())
	require.NoError(t, err)
	return m
}

func TestManualRun_RejectsOverlap(t *testing.T) {
	m := newTestManager(t)
	v := &fakeValidations{started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, m.RegisterBillingJobs(v, &fakeRenewals{}))

	done := make(chan error, 1)
	go func() {
		_, err := m.RunValidations(context.Background())
		done <- err
	}()
	<-v.started

	assert.True(t, m.Status().ValidationRunning)
	_, err := m.RunValidations(context.Background())
	assert.ErrorIs(t, err, ErrJobRunning)

	close(v.release)
	require.NoError(t, <-done)

	st := m.Status()
	assert.False(t, st.ValidationRunning)
	require.NotNil(t, st.LastValidation)
	assert.Empty(t, st.LastValidation.Error)
	assert.Equal(t, int32(1), v.calls.Load())
}

func TestManualRun_RecordsError(t *testing.T) {
	m := newTestManager(t)
	v := &fakeValidations{err: errors.New("db down")}
	require.NoError(t, m.RegisterBillingJobs(v, &fakeRenewals{}))

	_, err := m.RunValidations(context.Background())
	require.Error(t, err)

	st := m.Status()
	require.NotNil(t, st.LastValidation)
	assert.Equal(t, "db down", st.LastValidation.Error)
}

func TestStart_RunsJobsImmediately(t *testing.T) {
	m := newTestManager(t)
	v := &fakeValidations{}
	r := &fakeRenewals{}
	require.NoError(t, m.RegisterBillingJobs(v, r))

	m.Start()
	assert.True(t, m.IsStarted())
	assert.Len(t, m.Jobs(), 2)

	require.Eventually(t, func() bool {
		return v.calls.Load() >= 1 && r.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	st := m.Status()
	assert.True(t, st.Started)
	assert.NotNil(t, st.NextValidationRun)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
	assert.Nil(t, m.Status().NextValidationRun)
}

func TestStop_WaitsForInflightRun(t *testing.T) {
	m := newTestManager(t)
	v := &fakeValidations{started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, m.RegisterBillingJobs(v, &fakeRenewals{}))

	go func() { _, _ = m.RunValidations(context.Background()) }()
	<-v.started

	stopped := make(chan struct{})
	go func() {
		_ = m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(v.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestRunBeforeRegister(t *testing.T) {
	m := newTestManager(t)
	_, err := m.RunRenewals(context.Background())
	assert.Error(t, err)
}
