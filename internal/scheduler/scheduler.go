package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Maintainer is the workspace housekeeping the scheduler drives.
type Maintainer interface {
	Rollover() int
	EvictIdle(ttl time.Duration) int
}

// Config holds the cron specs for the maintenance jobs.
type Config struct {
	RolloverSpec string // e.g. "0 0 * * *", midnight in Location
	EvictSpec    string // e.g. "*/10 * * * *"
	IdleTTL      time.Duration
	Location     *time.Location
}

// Scheduler runs day rollover and idle workspace eviction on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	target Maintainer
	cfg    Config
	log    *logrus.Entry
}

func New(target Maintainer, cfg Config, log *logrus.Entry) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(cfg.Location)),
		target: target,
		cfg:    cfg,
		log:    log,
	}
}

// Start registers both jobs and starts the cron engine. A bad spec is
// reported before anything runs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.RolloverSpec, s.RunRollover); err != nil {
		return fmt.Errorf("rollover job %q: %w", s.cfg.RolloverSpec, err)
	}
	if s.cfg.IdleTTL > 0 {
		if _, err := s.cron.AddFunc(s.cfg.EvictSpec, s.RunEvict); err != nil {
			return fmt.Errorf("evict job %q: %w", s.cfg.EvictSpec, err)
		}
	}
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("scheduler started")
	return nil
}

// RunRollover takes sessions left editing a past date out of edit mode.
func (s *Scheduler) RunRollover() {
	if n := s.target.Rollover(); n > 0 {
		s.log.WithField("sessions", n).Info("day rollover left edit mode")
	} else {
		s.log.Debug("day rollover: nothing to do")
	}
}

// RunEvict drops idle workspaces.
func (s *Scheduler) RunEvict() {
	n := s.target.EvictIdle(s.cfg.IdleTTL)
	s.log.WithField("evicted", n).Debug("idle eviction ran")
}

// Stop stops the engine and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
