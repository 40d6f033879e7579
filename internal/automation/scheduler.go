package automation

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often the scheduler checks schedule triggers.
// Expressions have minute resolution, so one check per minute suffices.
const DefaultPollInterval = 60 * time.Second

// scheduleRunner executes a matched automation.
type scheduleRunner interface {
	ExecuteAutomation(ctx context.Context, a *Automation, triggerData map[string]any) (*Run, error)
}

// Scheduler polls active schedule-triggered automations on a fixed
// interval and runs the ones whose cron expression matches the current
// minute in the trigger's timezone.
//
// Lifecycle: stopped → Start → running → Stop → stopped. Runs started by
// a tick are independent goroutines; Stop does not cancel them but waits
// for them to finish.
type Scheduler struct {
	registry *Registry
	runner   scheduleRunner
	logger   Logger
	interval time.Duration
	mode     CronMode
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	inflight sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(registry *Registry, runner scheduleRunner, logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		registry: registry,
		runner:   runner,
		logger:   logger,
		interval: DefaultPollInterval,
		mode:     CronModeExact,
		now:      time.Now,
	}
}

// SetMode selects the cron matcher. Takes effect on the next tick.
func (s *Scheduler) SetMode(mode CronMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Mode returns the active cron matcher.
func (s *Scheduler) Mode() CronMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Running reports whether the poll loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the poll loop. The loop ends when ctx is cancelled or
// Stop is called. Returns ErrSchedulerRunning if already started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)

	s.logger.Info("scheduler started", "interval", s.interval.String(), "mode", string(s.mode))
	return nil
}

// Stop cancels the poll loop and waits for it and every run it started
// to exit. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.inflight.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, s.now())
		}
	}
}

// tick starts a run for every active schedule automation matching now.
func (s *Scheduler) tick(ctx context.Context, now time.Time) int {
	mode := s.Mode()
	fired := 0

	for _, a := range s.registry.Scheduled() {
		local := now.In(triggerLocation(a.Trigger.Timezone))
		if !MatchesCron(a.Trigger.CronExpression, local, mode) {
			continue
		}
		fired++

		triggerData := map[string]any{
			"scheduled_at": local.Format(time.RFC3339),
			"cron":         a.Trigger.CronExpression,
		}

		s.inflight.Add(1)
		go func(a *Automation) {
			defer s.inflight.Done()
			if _, err := s.runner.ExecuteAutomation(ctx, a, triggerData); err != nil {
				s.logger.Error("scheduled run not persisted", "automation_id", a.ID, "error", err)
			}
		}(a)
	}

	if fired > 0 {
		s.logger.Debug("scheduler tick", "fired", fired)
	}
	return fired
}

func triggerLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
