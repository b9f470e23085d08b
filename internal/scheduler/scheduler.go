package scheduler

import (
	"context"
	"fmt"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/linuxfirst/docscan/internal/scan"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler triggers periodic rescans of every configured target. The
// change-detection gate keeps repeat scans cheap: unchanged units are
// skipped before extraction.
type Scheduler struct {
	cfg    *common.Config
	orch   *scan.Orchestrator
	cron   *cron.Cron
	logger arbor.ILogger
}

func NewScheduler(cfg *common.Config, orch *scan.Orchestrator, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		orch:   orch,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
	}
}

// Start registers the rescan job and begins the cron loop
func (s *Scheduler) Start() error {
	if !s.cfg.Scheduler.Enabled {
		s.logger.Debug().Msg("Scheduler disabled")
		return nil
	}
	if len(s.cfg.Targets) == 0 {
		s.logger.Warn().Msg("Scheduler enabled but no targets configured")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.Scheduler.Schedule, s.rescanAll)
	if err != nil {
		return fmt.Errorf("invalid scheduler cron expression '%s': %w", s.cfg.Scheduler.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.cfg.Scheduler.Schedule).
		Int("targets", len(s.cfg.Targets)).
		Msg("Scheduler started")
	return nil
}

func (s *Scheduler) rescanAll() {
	ctx := context.Background()
	for _, target := range s.cfg.Targets {
		scanID, err := s.orch.StartScan(ctx, target.URL, models.TargetKind(target.Kind), s.cfg.Scan.ForceRescan)
		if err != nil {
			s.logger.Error().Err(err).Str("target", target.URL).Msg("Scheduled scan failed to start")
			continue
		}
		s.logger.Info().Str("scan_id", scanID).Str("target", target.URL).Msg("Scheduled scan started")
	}
}

// Stop halts the cron loop, waiting for any running trigger to return
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Debug().Msg("Scheduler stopped")
}
