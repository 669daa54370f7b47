package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReportScheduler triggers the report job in-process on a cron cadence, for
// deployments that run the binary as a daemon instead of from an external
// scheduler. Due-today and idempotency decisions stay in the orchestrator;
// the scheduler only decides when to attempt a run.
type ReportScheduler struct {
	cronEngine *cron.Cron
	cronSpec   string
	runJob     func()
	logger     *logrus.Logger
}

func NewReportScheduler(cronSpec string, runJob func(), logger *logrus.Logger) *ReportScheduler {
	return &ReportScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)), // windows are local-midnight based
		cronSpec:   cronSpec,
		runJob:     runJob,
		logger:     logger,
	}
}

func (s *ReportScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Infof("Cron trigger fired (%s)", s.cronSpec)
		s.runJob()
	})
	if err != nil {
		return fmt.Errorf("could not add report cron job: %w", err)
	}
	s.cronEngine.Start()
	s.logger.Infof("Report scheduler started with spec %q", s.cronSpec)
	return nil
}

// Stop halts the cron engine and waits for a running job to finish.
func (s *ReportScheduler) Stop() {
	s.logger.Info("Stopping report scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Report scheduler gracefully stopped.")
}
