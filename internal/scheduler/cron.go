package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/grabarr/internal/config"
	"github.com/amaumene/grabarr/internal/controllers"
	"github.com/amaumene/grabarr/internal/metrics"
)

// Task names
const (
	TaskRefreshQueue   = "refresh-queue"
	TaskWantedSearch   = "wanted-search"
	TaskStuckDownloads = "stuck-downloads"
	TaskBlacklistPrune = "blacklist-prune"
)

var (
	// ErrAlreadyRunning is returned when a task is triggered while it runs
	ErrAlreadyRunning = errors.New("task already running")
	// ErrUnknownTask is returned for a task name that is not registered
	ErrUnknownTask = errors.New("unknown task")
)

// TaskState is the observable state of a task
type TaskState struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	LastRun   *time.Time    `json:"lastRun,omitempty"`
	NextRun   *time.Time    `json:"nextRun,omitempty"`
	Running   bool          `json:"running"`
	LastError string        `json:"lastError,omitempty"`
}

type task struct {
	state TaskState
	run   func(ctx context.Context) error
	entry cron.EntryID
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	wg      sync.WaitGroup
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewScheduler creates a new scheduler with the pipeline tasks
func NewScheduler(
	cfg *config.Config,
	downloads *controllers.DownloadController,
	wanted *controllers.WantedController,
	blacklist *controllers.BlacklistController,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Scheduler {
	s := newScheduler(m, logger)

	s.add(TaskRefreshQueue, cfg.Scheduler.RefreshQueue, downloads.RefreshQueue)
	s.add(TaskWantedSearch, cfg.Scheduler.WantedSearch, func(ctx context.Context) error {
		_, err := wanted.SearchWanted(ctx)
		return err
	})
	s.add(TaskStuckDownloads, cfg.Scheduler.StuckDownloads, func(ctx context.Context) error {
		_, err := downloads.CheckStuckDownloads(ctx, cfg.Download.StuckTimeout)
		return err
	})
	s.add(TaskBlacklistPrune, cfg.Scheduler.BlacklistPrune, func(context.Context) error {
		_, err := blacklist.Prune()
		return err
	})
	return s
}

func newScheduler(m *metrics.Metrics, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		tasks:   make(map[string]*task),
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

func (s *Scheduler) add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.tasks[name] = &task{
		state: TaskState{Name: name, Interval: interval},
		run:   run,
	}
	s.order = append(s.order, name)
}

// Start registers the tasks with cron and runs the queue refresh and the
// wanted search once immediately
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	for _, name := range s.order {
		t := s.tasks[name]
		if t.state.Interval <= 0 {
			s.logger.WithField("task", name).Warn("Task disabled")
			continue
		}
		name := name
		id, err := s.cron.AddFunc("@every "+t.state.Interval.String(), func() {
			s.tick(name)
		})
		if err != nil {
			return fmt.Errorf("failed to add %s job: %w", name, err)
		}
		s.mu.Lock()
		t.entry = id
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{
			"task":     name,
			"interval": t.state.Interval,
		}).Info("Task scheduled")
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(TaskRefreshQueue)
		s.logger.Info("Running initial wanted search")
		s.tick(TaskWantedSearch)
	}()

	return nil
}

// Stop stops the scheduler and waits for running tasks
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// tick runs a task unless it is already running
func (s *Scheduler) tick(name string) {
	t, err := s.acquire(name)
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.metrics.TaskRuns.WithLabelValues(name, "skipped").Inc()
			s.logger.WithField("task", name).Debug("Skipping task, previous run still in progress")
		}
		return
	}
	s.execute(name, t)
}

// TriggerTask starts a task in the background
func (s *Scheduler) TriggerTask(name string) error {
	t, err := s.acquire(name)
	if err != nil {
		return err
	}
	s.logger.WithField("task", name).Info("Task triggered")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(name, t)
	}()
	return nil
}

// RunTask runs a task and waits for it to finish
func (s *Scheduler) RunTask(name string) error {
	t, err := s.acquire(name)
	if err != nil {
		return err
	}
	return s.execute(name, t)
}

// acquire marks a task running
func (s *Scheduler) acquire(name string) (*task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if t.state.Running {
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}
	t.state.Running = true
	return t, nil
}

func (s *Scheduler) execute(name string, t *task) error {
	start := s.now()
	s.logger.WithField("task", name).Debug("Running task")

	err := runSafely(t)
	duration := time.Since(start)

	s.mu.Lock()
	t.state.Running = false
	t.state.LastRun = &start
	t.state.LastError = ""
	if err != nil {
		t.state.LastError = err.Error()
	}
	s.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.TaskRuns.WithLabelValues(name, result).Inc()
	s.metrics.TaskDuration.WithLabelValues(name).Observe(duration.Seconds())

	fields := logrus.Fields{
		"task":     name,
		"duration": duration,
	}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Task failed")
	} else {
		s.logger.WithFields(fields).Debug("Task completed")
	}
	return err
}

// runSafely runs the task and reports a panic as an error
func runSafely(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.run(context.Background())
}

// Tasks returns a snapshot of every task state
func (s *Scheduler) Tasks() []TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]TaskState, 0, len(s.order))
	for _, name := range s.order {
		t := s.tasks[name]
		state := t.state
		if t.entry != 0 {
			if next := s.cron.Entry(t.entry).Next; !next.IsZero() {
				state.NextRun = &next
			}
		}
		states = append(states, state)
	}
	return states
}
