// Package scheduler drives the day lifecycle on a cron timetable: DayStart at
// the configured start expression, DayFinalize at the finalize expression.
// Grounded on the teacher's automation trigger scheduling (services/automation,
// cron-expression triggers parsed and dispatched on a timer) and its declared
// robfig/cron/v3 dependency, generalized from arbitrary trigger callbacks to the
// coordinator's two fixed lifecycle operations.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/ai4all-coordinator/internal/coordinator"
	"github.com/r3e-network/ai4all-coordinator/internal/logging"
)

// Config controls whether the scheduler runs and its two cron expressions.
type Config struct {
	Enabled      bool
	StartCron    string
	FinalizeCron string
	Timezone     string
}

// Scheduler wraps a robfig/cron runner bound to a Coordinator's DayStart and
// DayFinalize operations.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger
}

// New builds a Scheduler. It does not start anything until Start is called.
// A non-enabled Config yields a Scheduler whose Start/Stop are no-ops.
func New(cfg Config, c *coordinator.Coordinator, log *logging.Logger) (*Scheduler, error) {
	if !cfg.Enabled {
		return &Scheduler{}, nil
	}

	loc, err := parseLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	runner := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{log})))

	if cfg.StartCron != "" {
		if _, err := runner.AddFunc(cfg.StartCron, func() {
			if _, err := c.DayStart(""); err != nil {
				log.WithField("op", "scheduler.dayStart").Warnf("day start failed: %v", err)
			} else {
				log.WithField("op", "scheduler.dayStart").Info("day started")
			}
		}); err != nil {
			return nil, err
		}
	}

	if cfg.FinalizeCron != "" {
		if _, err := runner.AddFunc(cfg.FinalizeCron, func() {
			if _, err := c.DayFinalize(); err != nil {
				log.WithField("op", "scheduler.dayFinalize").Warnf("day finalize failed: %v", err)
			} else {
				log.WithField("op", "scheduler.dayFinalize").Info("day finalized")
			}
		}); err != nil {
			return nil, err
		}
	}

	return &Scheduler{cron: runner, log: log}, nil
}

// Start launches the cron runner in its own goroutine. Safe to call on a
// disabled Scheduler.
func (s *Scheduler) Start() {
	if s.cron != nil {
		s.cron.Start()
	}
}

// Stop halts the cron runner and waits for any in-flight job to finish. Safe to
// call on a disabled Scheduler.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func parseLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// cronLogger adapts *logging.Logger to the small interface cron.Recover expects.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithField("component", "scheduler").Info(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithField("component", "scheduler").Errorf("%s: %v", msg, err)
}
