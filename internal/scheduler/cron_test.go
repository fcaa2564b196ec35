package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/grabarr/internal/metrics"
)

func testScheduler() (*Scheduler, *metrics.Metrics) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	return newScheduler(m, logger), m
}

func TestTriggerTaskSkipsWhileRunning(t *testing.T) {
	s, m := testScheduler()

	release := make(chan struct{})
	var runs int32
	s.add("slow", time.Hour, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	})

	require.NoError(t, s.TriggerTask("slow"))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)

	err := s.TriggerTask("slow")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A cron tick during the run is skipped too
	s.tick("slow")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues("slow", "skipped")))

	states := s.Tasks()
	require.Len(t, states, 1)
	assert.True(t, states[0].Running)

	close(release)
	s.wg.Wait()

	states = s.Tasks()
	assert.False(t, states[0].Running)
	require.NotNil(t, states[0].LastRun)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues("slow", "ok")))

	require.NoError(t, s.TriggerTask("slow"))
	s.wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestRunTaskRecordsError(t *testing.T) {
	s, m := testScheduler()
	s.add("broken", time.Minute, func(context.Context) error {
		return errors.New("indexers down")
	})

	err := s.RunTask("broken")
	assert.EqualError(t, err, "indexers down")

	states := s.Tasks()
	require.Len(t, states, 1)
	assert.Equal(t, "indexers down", states[0].LastError)
	assert.False(t, states[0].Running)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues("broken", "error")))
}

func TestRunTaskRecoversPanic(t *testing.T) {
	s, m := testScheduler()
	var runs int32
	s.add("flaky", time.Minute, func(context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			panic("nil indexer")
		}
		return nil
	})

	err := s.RunTask("flaky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	states := s.Tasks()
	require.Len(t, states, 1)
	assert.False(t, states[0].Running)
	assert.Contains(t, states[0].LastError, "nil indexer")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues("flaky", "error")))

	require.NoError(t, s.TriggerTask("flaky"))
	s.wg.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
	assert.Empty(t, s.Tasks()[0].LastError)
}

func TestUnknownTask(t *testing.T) {
	s, _ := testScheduler()
	assert.ErrorIs(t, s.TriggerTask("nope"), ErrUnknownTask)
	assert.ErrorIs(t, s.RunTask("nope"), ErrUnknownTask)
}

func TestStartSchedulesTasks(t *testing.T) {
	s, _ := testScheduler()
	var refreshes int32
	s.add(TaskRefreshQueue, time.Hour, func(context.Context) error {
		atomic.AddInt32(&refreshes, 1)
		return nil
	})
	s.add(TaskWantedSearch, 0, func(context.Context) error { return nil })

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&refreshes) == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()

	states := s.Tasks()
	require.Len(t, states, 2)
	assert.Equal(t, TaskRefreshQueue, states[0].Name)
	require.NotNil(t, states[0].NextRun)
	assert.True(t, states[0].NextRun.After(time.Now()))
	assert.Nil(t, states[1].NextRun, "disabled task has no schedule")
}
