package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs the sweeper once at start and then every interval.
// Overlapping runs are skipped.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	done   sync.WaitGroup
}

func NewScheduler(sweeper *Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Start schedules the sweep and fires the first run immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweep: scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{logger: s.logger}
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		if _, err := s.sweeper.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("scheduled sweep failed", "error", err)
		}
	}))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(s.interval), job)
	c.Start()

	s.cron, s.cancel = c, cancel
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		job.Run()
	}()
	s.logger.Info("expiry sweep scheduled", "interval", s.interval)
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	s.done.Wait()
}

// RunNow performs one sweep synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (int64, error) {
	return s.sweeper.Run(ctx)
}
