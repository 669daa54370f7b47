package app

import (
	"context"
	"fmt"
	"time"

	"service_entry_reporter/internal/domain/report"
	"service_entry_reporter/internal/infra/email"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Querier fetches the report rows for one date window.
type Querier interface {
	FetchWindow(ctx context.Context, w report.DateWindow) (*report.ResultSet, error)
}

// Tracker is the per-day artifact store: done checks, atomic CSV writes and
// done markers, one stream per category.
type Tracker interface {
	Done(cat report.Category) (bool, error)
	Write(cat report.Category, rs *report.ResultSet) (report.OutputArtifact, error)
	MarkDone(cat report.Category) error
}

// Guard is the single-host run lock.
type Guard interface {
	Acquire() (bool, error)
	Release() error
}

// Sender delivers the summary email.
type Sender interface {
	Send(msg email.Message) error
}

// Notifier posts an optional out-of-band run summary.
type Notifier interface {
	NotifyRunSummary(text string) error
}

// RunOutcome is the three-way result of a run attempt.
type RunOutcome int

const (
	// RunNoop: the lock was held, nothing was due, or every due report was
	// already produced today.
	RunNoop RunOutcome = iota
	RunSuccess
	RunFailed
)

func (o RunOutcome) String() string {
	switch o {
	case RunNoop:
		return "noop"
	case RunSuccess:
		return "success"
	case RunFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunOutcome(%d)", int(o))
	}
}

// RunResult summarizes one run attempt.
type RunResult struct {
	Outcome   RunOutcome
	RunID     string
	Artifacts []report.OutputArtifact
	EmailSent bool
}

// RunSettings are the per-deployment knobs of the orchestrator.
type RunSettings struct {
	Title          string
	ForcedMode     report.ScheduleMode // run exactly this mode, skipping the due check
	YearStartMonth time.Month          // fiscal anchor for the monthly window; 0 disables
}

// ReportService orchestrates a single run: lock, due set, per-category
// query+write, summary email, unlock.
type ReportService struct {
	querier  Querier
	tracker  Tracker
	guard    Guard
	sender   Sender
	notifier Notifier // may be nil
	logger   *logrus.Logger
	settings RunSettings
}

func NewReportService(
	querier Querier,
	tracker Tracker,
	guard Guard,
	sender Sender,
	notifier Notifier,
	logger *logrus.Logger,
	settings RunSettings,
) *ReportService {
	return &ReportService{
		querier:  querier,
		tracker:  tracker,
		guard:    guard,
		sender:   sender,
		notifier: notifier,
		logger:   logger,
		settings: settings,
	}
}

// categoryJob pairs a category with the window rule that feeds its query.
type categoryJob struct {
	category report.Category
	mode     report.ScheduleMode
	title    string
}

// RunOnce executes one run attempt for refDate. A failure in any category
// aborts the remaining categories and the email; artifacts already written
// stay on disk and stay marked done, so the next run retries only what
// failed. The lock is released on every exit path.
func (s *ReportService) RunOnce(ctx context.Context, refDate time.Time) (RunResult, error) {
	result := RunResult{Outcome: RunNoop, RunID: uuid.NewString()}
	log := s.logger.WithField("run_id", result.RunID)

	acquired, err := s.guard.Acquire()
	if err != nil {
		result.Outcome = RunFailed
		return result, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		log.Warn("Run lock is held; another run appears to be in progress. Exiting.")
		return result, nil
	}
	defer func() {
		if err := s.guard.Release(); err != nil {
			log.Errorf("Failed to release run lock: %v", err)
		}
	}()

	jobs := s.dueJobs(log, refDate)
	if len(jobs) == 0 {
		log.Info("Nothing is due today. Exiting.")
		return result, nil
	}

	dateString := report.DateString(refDate)
	var sections []report.Section
	var fired []report.Category

	for _, job := range jobs {
		jobLog := log.WithField("category", string(job.category))

		done, err := s.tracker.Done(job.category)
		if err != nil {
			result.Outcome = RunFailed
			return result, fmt.Errorf("idempotency check failed for category %q: %w", job.category, err)
		}
		if done {
			jobLog.Infof("Report already produced for %s. Skipping.", dateString)
			continue
		}

		window, err := s.windowFor(job.mode, refDate)
		if err != nil {
			result.Outcome = RunFailed
			return result, err
		}
		jobLog.Infof("Window (%s): %s", job.mode, window)

		rs, err := s.querier.FetchWindow(ctx, window)
		if err != nil {
			result.Outcome = RunFailed
			return result, fmt.Errorf("query failed for category %q: %w", job.category, err)
		}

		artifact, err := s.tracker.Write(job.category, rs)
		if err != nil {
			result.Outcome = RunFailed
			return result, fmt.Errorf("write failed for category %q: %w", job.category, err)
		}
		if err := s.tracker.MarkDone(job.category); err != nil {
			// The final file exists and is itself sufficient proof of
			// completion, so a lost marker costs nothing.
			jobLog.Errorf("Failed to record done marker: %v", err)
		}

		result.Artifacts = append(result.Artifacts, artifact)
		fired = append(fired, job.category)
		sections = append(sections, report.Section{
			Title:             job.title,
			WindowDescription: window.String(),
			RowCount:          artifact.RowCount,
		})
	}

	if len(result.Artifacts) == 0 {
		log.Info("All due reports were already produced today. Nothing to send.")
		return result, nil
	}

	msg := email.Message{
		Subject: email.BuildSubject(s.settings.Title, fired, dateString),
	}
	msg.TextBody, msg.HTMLBody = email.BuildBodies(s.settings.Title, sections, time.Now().UTC(), result.RunID)
	for _, a := range result.Artifacts {
		msg.Attachments = append(msg.Attachments, a.FilePath)
	}
	if err := s.sender.Send(msg); err != nil {
		result.Outcome = RunFailed
		return result, fmt.Errorf("artifacts written but notification failed: %w", err)
	}
	result.EmailSent = true
	result.Outcome = RunSuccess
	log.Infof("Run complete: %d artifact(s) produced and emailed.", len(result.Artifacts))

	s.notifySummary(log, result, dateString)
	return result, nil
}

// dueJobs resolves the ordered category list for this run: weekly then
// monthly when due, or the single forced-mode job.
func (s *ReportService) dueJobs(log *logrus.Entry, refDate time.Time) []categoryJob {
	if s.settings.ForcedMode != "" {
		log.Infof("Forced mode %s: skipping due-today check.", s.settings.ForcedMode)
		return []categoryJob{{category: "", mode: s.settings.ForcedMode, title: s.settings.ForcedMode.Label()}}
	}

	due := report.WhatIsDue(refDate)
	log.Infof("Due today (%s): weekly=%t monthly=%t", refDate.Format("2006-01-02"), due.Weekly, due.Monthly)

	var jobs []categoryJob
	if due.Weekly {
		jobs = append(jobs, categoryJob{category: report.CategoryWeekly, mode: report.ModeWeekly, title: "Weekly"})
	}
	if due.Monthly {
		jobs = append(jobs, categoryJob{category: report.CategoryMonthly, mode: report.ModeMonthly, title: "Monthly"})
	}
	return jobs
}

func (s *ReportService) windowFor(mode report.ScheduleMode, refDate time.Time) (report.DateWindow, error) {
	if mode == report.ModeMonthly && s.settings.YearStartMonth != 0 {
		return report.ComputeFiscalWindow(refDate, s.settings.YearStartMonth), nil
	}
	return report.ComputeWindow(mode, refDate)
}

func (s *ReportService) notifySummary(log *logrus.Entry, result RunResult, dateString string) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("Report run %s complete: %d artifact(s) for %s.", result.RunID, len(result.Artifacts), dateString)
	if err := s.notifier.NotifyRunSummary(text); err != nil {
		log.Errorf("Telegram summary failed: %v", err)
	}
}
