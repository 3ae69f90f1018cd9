package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/emergency-report-api/config"
)

// Scheduler runs the periodic maintenance jobs of the service
type Scheduler struct {
	cron   *cron.Cron
	Tuning *config.TuningStore
}

// NewScheduler creates a new scheduler instance
func NewScheduler(tuning *config.TuningStore) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		Tuning: tuning,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Pick up edits to the tuning file without a restart
	_, err := s.cron.AddFunc("@every 1m", s.ReloadTuning)
	if err != nil {
		zap.S().Errorw("failed to register tuning reload job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("scheduler stopped")
}

// ReloadTuning re-reads the tuning file. A bad file keeps the current set.
func (s *Scheduler) ReloadTuning() {
	if _, err := s.Tuning.Reload(); err != nil {
		zap.S().Errorw("failed to reload tuning, keeping current thresholds",
			"version", s.Tuning.Load().Version(),
			"error", err)
	}
}
