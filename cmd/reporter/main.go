package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"service_entry_reporter/internal/app"
	"service_entry_reporter/internal/domain/report"
	"service_entry_reporter/internal/infra/config"
	idb "service_entry_reporter/internal/infra/database"
	"service_entry_reporter/internal/infra/email"
	"service_entry_reporter/internal/infra/lockfile"
	"service_entry_reporter/internal/infra/logger"
	"service_entry_reporter/internal/infra/output"
	"service_entry_reporter/internal/infra/scheduler"
	"service_entry_reporter/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Exit statuses: 0 = report(s) produced and sent, 1 = fatal error,
// 2 = no-op (lock held, nothing due, or everything already produced today).
const (
	exitSuccess = 0
	exitFailed  = 1
	exitNoop    = 2
)

func main() {
	var modeFlag string

	rootCmd := &cobra.Command{
		Use:          "reporter",
		Short:        "Scheduled service entry report job: windowed query, CSV artifact, summary email",
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one report run for today",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runOnce(modeFlag))
		},
	}
	runCmd.Flags().StringVar(&modeFlag, "mode", "",
		"force a single schedule mode (DAILY, WEEKLY, MONTHLY, MONTHLY_MTD), bypassing the due-today check")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon, triggering report runs on the configured cron spec",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(serve())
		},
	}

	windowCmd := &cobra.Command{
		Use:   "window [mode]",
		Short: "Print the computed date window for a schedule mode (all modes by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  printWindows,
	}

	rootCmd.AddCommand(runCmd, serveCmd, windowCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitFailed)
	}
}

func runOnce(modeOverride string) int {
	now := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not load configuration: %v\n", err)
		return exitFailed
	}
	if modeOverride != "" {
		cfg.RunMode = modeOverride
	}

	if err := logger.Init(cfg, now); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not initialize logging: %v\n", err)
		return exitFailed
	}
	log := logger.Get()
	log.Info("Job started")

	svc, querier, err := buildService(cfg, now, log)
	if err != nil {
		log.Errorf("Job setup failed: %v", err)
		return exitFailed
	}
	defer querier.Close()

	result, err := svc.RunOnce(context.Background(), now)
	if err != nil {
		log.Errorf("Job failed: %v", err)
	}

	switch result.Outcome {
	case app.RunSuccess:
		log.Infof("Job finished: success (%d artifact(s))", len(result.Artifacts))
		return exitSuccess
	case app.RunNoop:
		log.Info("Job finished: nothing to do")
		return exitNoop
	default:
		return exitFailed
	}
}

func serve() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not load configuration: %v\n", err)
		return exitFailed
	}
	if err := logger.Init(cfg, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: could not initialize logging: %v\n", err)
		return exitFailed
	}
	log := logger.Get()

	sched := scheduler.NewReportScheduler(cfg.CronSpec, func() {
		now := time.Now()
		// Reopen the log output so each calendar day gets its own file.
		if err := logger.Init(cfg, now); err != nil {
			log.Errorf("Could not roll log file: %v", err)
		}
		svc, querier, err := buildService(cfg, now, log)
		if err != nil {
			log.Errorf("Run setup failed: %v", err)
			return
		}
		defer querier.Close()
		if _, err := svc.RunOnce(context.Background(), now); err != nil {
			log.Errorf("Run failed: %v", err)
		}
	}, log)
	if err := sched.Start(); err != nil {
		log.Errorf("Could not start scheduler: %v", err)
		return exitFailed
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	sched.Stop()
	return exitSuccess
}

func buildService(cfg *config.AppConfig, runDate time.Time, log *logrus.Logger) (*app.ReportService, *idb.SQLReportQuerier, error) {
	querier, err := idb.NewSQLReportQuerier(cfg.DatabaseURL, cfg.SQLPath, log)
	if err != nil {
		return nil, nil, err
	}

	var forced report.ScheduleMode
	if cfg.RunMode != "" {
		forced, err = report.ParseMode(cfg.RunMode)
		if err != nil {
			return nil, nil, err
		}
	}

	var notifier app.Notifier
	if cfg.TelegramToken != "" {
		tg, err := telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warnf("Telegram notifier disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	svc := app.NewReportService(
		querier,
		output.NewFileTracker(cfg.OutputDir, runDate, log),
		lockfile.NewFileGuard(cfg.LockPath),
		email.NewSMTPSender(cfg, log),
		notifier,
		log,
		app.RunSettings{
			Title:          cfg.ReportTitle,
			ForcedMode:     forced,
			YearStartMonth: cfg.YearStartMonth,
		},
	)
	return svc, querier, nil
}

func printWindows(cmd *cobra.Command, args []string) error {
	now := time.Now()
	modes := []report.ScheduleMode{report.ModeDaily, report.ModeWeekly, report.ModeMonthly, report.ModeMonthlyMTD}
	if len(args) == 1 {
		mode, err := report.ParseMode(args[0])
		if err != nil {
			return err
		}
		modes = []report.ScheduleMode{mode}
	}
	for _, m := range modes {
		w, err := report.ComputeWindow(m, now)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s -> %s\n", m,
			w.Start.Format("2006-01-02 15:04:05"), w.End.Format("2006-01-02 15:04:05"))
	}
	return nil
}
