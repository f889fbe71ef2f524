package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository"
	"github.com/mamadbah2/lambtrial/internal/repository/mongodb"
	"github.com/mamadbah2/lambtrial/internal/repository/sheets"
	"github.com/mamadbah2/lambtrial/internal/repository/sqlite"
	"github.com/mamadbah2/lambtrial/internal/service/export"
	"github.com/mamadbah2/lambtrial/internal/service/mirror"
	"github.com/mamadbah2/lambtrial/internal/service/records"
	"github.com/mamadbah2/lambtrial/internal/service/reporting"
)

func (a *app) reportingService(store repository.Store) (*reporting.Service, error) {
	loc, err := a.cfg.Reporting.Location()
	if err != nil {
		return nil, err
	}
	return reporting.NewService(store, a.calendar, nil, loc, a.logger.Named("svc.reporting")), nil
}

func parseDateArg(value string, fallback models.CivilDate) (models.CivilDate, error) {
	if value == "" {
		return fallback, nil
	}
	return models.ParseDate(value)
}

func reportCommand(a *app) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the trial summary as of a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				svc, err := a.reportingService(store)
				if err != nil {
					return err
				}
				date, err := parseDateArg(asOf, svc.Today())
				if err != nil {
					return err
				}
				report, err := svc.BuildTrialReport(ctx, date)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), report.Text)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "report date (YYYY-MM-DD, defaults to today)")
	return cmd
}

func dayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "day [date]",
		Short: "Show the trial week and recorded activity of a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				svc, err := a.reportingService(store)
				if err != nil {
					return err
				}
				var value string
				if len(args) == 1 {
					value = args[0]
				}
				date, err := parseDateArg(value, svc.Today())
				if err != nil {
					return err
				}
				day, err := svc.Day(ctx, date)
				if err != nil {
					return err
				}
				return printDay(cmd.OutOrStdout(), svc.WeekLabel(date), day)
			})
		},
	}
}

func printDay(w io.Writer, label string, day models.DayOverview) error {
	study := "in study"
	if !day.InStudy {
		study = "outside the study period"
	}
	fmt.Fprintf(w, "%s: %s, %s\n", day.Date, label, study)
	fmt.Fprintf(w, "Weighings: %d\n", day.Weighings)

	groups := make([]string, 0, len(day.NetFeed))
	for g := range day.NetFeed {
		groups = append(groups, string(g))
	}
	sort.Strings(groups)
	for _, g := range groups {
		fmt.Fprintf(w, "Net feed %s: %.2f kg\n", g, day.NetFeed[models.Group(g)])
	}

	if day.Symptoms {
		fmt.Fprintln(w, "Symptoms recorded")
	}
	if day.Exits {
		fmt.Fprintln(w, "Exits recorded")
	}
	for _, t := range day.Treatments {
		fmt.Fprintf(w, "Treatment %s: %s, day %d of %d\n", t.Tag, t.Medication, t.Day, t.TotalDays)
	}
	return nil
}

func backupCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a JSON backup of the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				backup, err := export.NewService(store, nil, a.cfg.Trial.StudyEndDate, a.logger).Backup(ctx)
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					return export.EncodeBackup(cmd.OutOrStdout(), backup)
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create backup file: %w", err)
				}
				if err := export.EncodeBackup(f, backup); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("close backup file: %w", err)
				}
				a.logger.Info("backup written", zap.String("path", output))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "destination file, - for stdout")
	return cmd
}

func restoreCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup.json>",
		Short: "Replace the database contents with a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.backupPath != "" {
				return errors.New("restore writes to the database, --backup cannot be used")
			}

			snap, err := readBackup(args[0])
			if err != nil {
				return err
			}

			return a.withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				if err := records.NewService(store, a.calendar, a.logger).Restore(ctx, snap); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Restored %d animals, %d weighings, %d feed records, %d incidents\n",
					len(snap.Animals), len(snap.Weighings), len(snap.FeedRecords), len(snap.Incidents))
				return err
			})
		},
	}
}

func exportSheetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export-sheets",
		Short: "Rewrite the Weighings and Feed sheets of the configured spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.Sheets.Enabled() {
				return export.ErrSheetsDisabled
			}

			return a.withStore(cmd.Context(), func(ctx context.Context, store repository.Store) error {
				repo, err := sheets.NewGoogleSheetRepository(ctx, a.cfg.Sheets, a.logger.Named("repo.sheets"))
				if err != nil {
					return err
				}
				res, err := export.NewService(store, repo, a.cfg.Trial.StudyEndDate, a.logger).ExportSheets(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d weighings and %d feed records\n", res.Weighings, res.Feed)
				return err
			})
		},
	}
}

// withMirror opens the sqlite dataset wrapped by the MongoDB mirror.
func (a *app) withMirror(ctx context.Context, fn func(ctx context.Context, store *mirror.Store) error) error {
	if !a.cfg.Mirror.Enabled() {
		return errors.New("MONGODB_URI is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	remote, err := mongodb.NewMirror(ctx, a.cfg.Mirror.URI, a.cfg.Mirror.DBName, a.keys())
	if err != nil {
		return err
	}
	defer func() { _ = remote.Close(context.Background()) }()

	local, err := sqlite.New(a.dbPath, a.keys(), a.logger.Named("repo.sqlite"))
	if err != nil {
		return err
	}
	defer local.Close()

	return fn(ctx, mirror.NewStore(local, remote, nil, a.logger.Named("repo.mirror")))
}

func pullMirrorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull-mirror",
		Short: "Replace the database collections held by the MongoDB mirror with their mirrored copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMirror(cmd.Context(), func(ctx context.Context, store *mirror.Store) error {
				restored, err := store.PullIntoLocal(ctx)
				if err != nil {
					return err
				}
				if len(restored) == 0 {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "Mirror is empty, database left unchanged")
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Restored from mirror: %v\n", restored)
				return err
			})
		},
	}
}

func pushMirrorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push-mirror",
		Short: "Overwrite the MongoDB mirror with every collection of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMirror(cmd.Context(), func(ctx context.Context, store *mirror.Store) error {
				if err := store.PushAll(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Database pushed to mirror")
				return err
			})
		},
	}
}
