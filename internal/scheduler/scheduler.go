package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/config"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/service/export"
)

const jobTimeout = 2 * time.Minute

// ReportBuilder produces the periodic trial report.
type ReportBuilder interface {
	Today() models.CivilDate
	BuildTrialReport(ctx context.Context, asOf models.CivilDate) (models.TrialReport, error)
}

// ReportArchive keeps generated reports.
type ReportArchive interface {
	SaveTrialReport(ctx context.Context, report models.TrialReport) error
}

// Notifier delivers a report text.
type Notifier interface {
	Notify(ctx context.Context, body string) error
}

// Exporter refreshes the spreadsheet copy of the dataset.
type Exporter interface {
	ExportSheets(ctx context.Context) (export.SheetsResult, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.ReportingConfig
	reports  ReportBuilder
	archive  ReportArchive
	notifier Notifier
	exporter Exporter
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler running in the configured timezone.
// archive, notifier and exporter are optional.
func NewScheduler(cfg config.ReportingConfig, reports ReportBuilder, archive ReportArchive, notifier Notifier, exporter Exporter, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		cfg:      cfg,
		reports:  reports,
		archive:  archive,
		notifier: notifier,
		exporter: exporter,
		logger:   logger,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("report_schedule", s.cfg.CronSchedule),
		zap.String("export_schedule", s.cfg.ExportCronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.runJob("weekly report", s.sendWeeklyReport)); err != nil {
		return fmt.Errorf("schedule weekly report: %w", err)
	}

	if s.exporter != nil && s.cfg.ExportCronSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExportCronSchedule, s.runJob("sheets export", s.exportSheets)); err != nil {
			return fmt.Errorf("schedule sheets export: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runJob(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

func (s *Scheduler) sendWeeklyReport(ctx context.Context) error {
	s.logger.Info("generating weekly report")

	report, err := s.reports.BuildTrialReport(ctx, s.reports.Today())
	if err != nil {
		return fmt.Errorf("build weekly report: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.SaveTrialReport(ctx, report); err != nil {
			s.logger.Error("failed to archive weekly report", zap.Error(err))
		}
	}

	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Notify(ctx, report.Text); err != nil {
		return fmt.Errorf("send weekly report: %w", err)
	}

	s.logger.Info("weekly report sent successfully", zap.String("as_of", report.AsOf.String()))
	return nil
}

func (s *Scheduler) exportSheets(ctx context.Context) error {
	res, err := s.exporter.ExportSheets(ctx)
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		s.logger.Info("sheets export skipped, dataset is empty")
		return nil
	case errors.Is(err, export.ErrSheetsDisabled):
		s.logger.Debug("sheets export skipped, not configured")
		return nil
	case err != nil:
		return err
	}

	s.logger.Info("sheets export finished", zap.Int("weighings", res.Weighings), zap.Int("feed", res.Feed))
	return nil
}
