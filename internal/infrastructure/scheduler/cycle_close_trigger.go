// Package scheduler closes billing cycles automatically on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CycleCloser closes the open billing cycle up to today
type CycleCloser interface {
	CloseCycle(ctx context.Context) (tanker.BillingCycle, error)
}

// CycleCloseTriggerConfig holds configuration for the cycle close trigger
type CycleCloseTriggerConfig struct {
	// Schedule is a standard 5-field cron expression
	Schedule string
	// CheckInterval is how often the trigger checks whether a run is due
	CheckInterval time.Duration
	// JobTimeout bounds one close attempt
	JobTimeout time.Duration
	// Location is the time zone the schedule is evaluated in
	Location *time.Location
}

// DefaultCycleCloseTriggerConfig returns default trigger configuration
func DefaultCycleCloseTriggerConfig() CycleCloseTriggerConfig {
	return CycleCloseTriggerConfig{
		Schedule:      "0 6 1 * *",
		CheckInterval: time.Minute,
		JobTimeout:    2 * time.Minute,
		Location:      time.Local,
	}
}

// CycleCloseTrigger runs CloseCycle whenever the cron schedule comes due.
// A run that is missed while the process is down is not caught up.
type CycleCloseTrigger struct {
	config   CycleCloseTriggerConfig
	schedule cron.Schedule
	closer   CycleCloser
	logger   *zap.Logger
	now      func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	nextRun   time.Time
	lastRun   time.Time
}

// NewCycleCloseTrigger validates the schedule and creates a trigger
func NewCycleCloseTrigger(config CycleCloseTriggerConfig, closer CycleCloser, logger *zap.Logger) (*CycleCloseTrigger, error) {
	if closer == nil {
		return nil, fmt.Errorf("%w: cycle closer is required", ErrInvalidConfig)
	}
	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, config.Schedule, err)
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CycleCloseTrigger{
		config:   config,
		schedule: schedule,
		closer:   closer,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start starts the trigger loop
func (c *CycleCloseTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.nextRun = c.schedule.Next(c.now().In(c.config.Location))
	next := c.nextRun
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Cycle close trigger started",
		zap.String("schedule", c.config.Schedule),
		zap.Time("next_run", next),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger, waiting for a running close to finish or ctx to end
func (c *CycleCloseTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cycle close trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns when the next close is due; zero before Start
func (c *CycleCloseTrigger) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextRun
}

// LastRun returns when the last close attempt started
func (c *CycleCloseTrigger) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

func (c *CycleCloseTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger runs a close if the next scheduled time has passed
func (c *CycleCloseTrigger) checkAndTrigger(ctx context.Context) {
	now := c.now().In(c.config.Location)

	c.mu.Lock()
	if now.Before(c.nextRun) {
		c.mu.Unlock()
		return
	}
	c.nextRun = c.schedule.Next(now)
	c.mu.Unlock()

	_ = c.Trigger(ctx)
}

// Trigger attempts one close now. Nothing-to-close and lost races with
// another instance are expected outcomes and only logged at info level.
func (c *CycleCloseTrigger) Trigger(ctx context.Context) error {
	c.mu.Lock()
	c.lastRun = c.now()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.JobTimeout)
	defer cancel()
	ctx, span := telemetry.StartServiceSpan(ctx, "scheduler", "close_cycle")
	defer span.End()

	cycle, err := c.closer.CloseCycle(ctx)
	switch {
	case err == nil:
		c.logger.Info("Billing cycle closed by schedule",
			zap.String("cycle_id", cycle.ID.String()),
			zap.Stringer("start", cycle.StartDate),
			zap.Stringer("end", cycle.EndDate),
			zap.Int("total_tankers", cycle.TotalTankersSnapshot),
		)
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrConcurrencyConflict):
		c.logger.Info("Scheduled cycle close skipped", zap.Error(err))
	default:
		telemetry.RecordError(span, err)
		c.logger.Error("Scheduled cycle close failed", zap.Error(err))
	}
	return err
}
