package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs maintenance on a cron cadence for daemon mode.
type Scheduler struct {
	maintenance *Maintenance
	cron        *cron.Cron
	spec        string
}

// NewScheduler creates a scheduler. spec is a standard cron expression;
// empty means daily at 03:00.
func NewScheduler(m *Maintenance, spec string) *Scheduler {
	if spec == "" {
		spec = "0 3 * * *"
	}
	return &Scheduler{
		maintenance: m,
		cron:        cron.New(),
		spec:        spec,
	}
}

// Start registers the maintenance job and starts the cron loop. The job
// honors NeedsMaintenance, so a tight cron spec cannot force back-to-back
// runs inside the configured interval.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if !s.maintenance.NeedsMaintenance() {
			log.Debug().Msg("maintenance interval not elapsed, skipping run")
			return
		}
		report := s.maintenance.Run(ctx)
		if len(report.Errors) > 0 {
			log.Warn().Strs("errors", report.Errors).Msg("maintenance run had errors")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}

	s.cron.Start()
	log.Info().Str("cron", s.spec).Msg("maintenance scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
