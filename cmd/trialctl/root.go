package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/config"
	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository"
	"github.com/mamadbah2/lambtrial/internal/repository/memory"
	"github.com/mamadbah2/lambtrial/internal/repository/sqlite"
	"github.com/mamadbah2/lambtrial/internal/service/export"
	"github.com/mamadbah2/lambtrial/pkg/logger"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	envFile    string
	dbPath     string
	backupPath string
	verbose    bool

	cfg      *config.Config
	calendar *calendar.Calendar
	logger   *zap.Logger
}

func rootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "trialctl",
		Short:         "Inspect and maintain the lamb feeding trial dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env", "", "env file with the trial configuration")
	flags.StringVar(&a.dbPath, "db", "", "SQLite dataset (defaults to STORAGE_PATH)")
	flags.StringVar(&a.backupPath, "backup", "", "read the dataset from a backup file instead of the database")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		reportCommand(a),
		dayCommand(a),
		backupCommand(a),
		restoreCommand(a),
		exportSheetsCommand(a),
		pullMirrorCommand(a),
		pushMirrorCommand(a),
	)

	return rootCmd
}

func (a *app) initialize() error {
	var err error
	if a.logger, err = logger.NewCLI(a.verbose); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if a.cfg, err = config.Load(a.envFile); err != nil {
		return err
	}
	if a.dbPath == "" {
		a.dbPath = a.cfg.Storage.Path
	}

	if a.calendar, err = calendar.New(a.cfg.Trial.Boundaries()); err != nil {
		return fmt.Errorf("trial calendar: %w", err)
	}
	return nil
}

func (a *app) keys() repository.Keys {
	return repository.Keys{Prefix: a.cfg.Storage.KeyPrefix}
}

// openStore returns the dataset selected by the flags and a close function.
func (a *app) openStore() (repository.Store, func() error, error) {
	if a.backupPath != "" {
		snap, err := readBackup(a.backupPath)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Debug("dataset loaded from backup", zap.String("path", a.backupPath))
		return memory.NewStore(snap), func() error { return nil }, nil
	}

	store, err := sqlite.New(a.dbPath, a.keys(), a.logger.Named("repo.sqlite"))
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("dataset opened", zap.String("path", a.dbPath))
	return store, store.Close, nil
}

// withStore runs fn against the selected dataset and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) (err error) {
	store, closeFn, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeFn())
	}()
	return fn(ctx, store)
}

func readBackup(path string) (snap models.Snapshot, err error) {
	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	snap, _, err = export.DecodeBackup(f)
	return snap, err
}
