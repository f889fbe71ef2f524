package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/config"
	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/observability"
	"github.com/mamadbah2/lambtrial/internal/repository"
	"github.com/mamadbah2/lambtrial/internal/repository/mongodb"
	"github.com/mamadbah2/lambtrial/internal/repository/sheets"
	"github.com/mamadbah2/lambtrial/internal/repository/sqlite"
	"github.com/mamadbah2/lambtrial/internal/scheduler"
	"github.com/mamadbah2/lambtrial/internal/server/handlers"
	"github.com/mamadbah2/lambtrial/internal/server/router"
	commandsvc "github.com/mamadbah2/lambtrial/internal/service/commands"
	exportsvc "github.com/mamadbah2/lambtrial/internal/service/export"
	"github.com/mamadbah2/lambtrial/internal/service/mirror"
	recordssvc "github.com/mamadbah2/lambtrial/internal/service/records"
	reportingsvc "github.com/mamadbah2/lambtrial/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/lambtrial/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/lambtrial/pkg/clients/whatsapp"
	"github.com/mamadbah2/lambtrial/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	cal, err := calendar.New(cfg.Trial.Boundaries())
	if err != nil {
		baseLogger.Fatal("invalid trial calendar", zap.Error(err))
	}

	loc, err := cfg.Reporting.Location()
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		baseLogger.Fatal("failed to register metrics", zap.Error(err))
	}

	keys := repository.Keys{Prefix: cfg.Storage.KeyPrefix}
	localStore, err := sqlite.New(cfg.Storage.Path, keys, baseLogger.Named("repo.sqlite"))
	if err != nil {
		baseLogger.Fatal("failed to open local dataset", zap.Error(err))
	}
	defer func() {
		if err := localStore.Close(); err != nil {
			baseLogger.Error("failed to close local dataset", zap.Error(err))
		}
	}()

	var (
		remote  mirror.Remote
		archive scheduler.ReportArchive
	)
	if cfg.Mirror.Enabled() {
		connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoMirror, err := mongodb.NewMirror(connectCtx, cfg.Mirror.URI, cfg.Mirror.DBName, keys)
		cancel()
		if err != nil {
			baseLogger.Fatal("failed to init mongodb mirror", zap.Error(err))
		}
		defer func() {
			if err := mongoMirror.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		remote, archive = mongoMirror, mongoMirror
		baseLogger.Info("mongodb mirror enabled", zap.String("db", cfg.Mirror.DBName))
	} else {
		baseLogger.Warn("mongodb uri missing, mirror disabled")
	}

	store := mirror.NewStore(localStore, remote, metrics, baseLogger.Named("repo.mirror"))
	if cfg.Mirror.PullOnStart {
		if _, err := store.PullIntoLocal(context.Background()); err != nil {
			baseLogger.Fatal("failed to restore dataset from mirror", zap.Error(err))
		}
	}

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Warn("google sheets not configured, spreadsheet export disabled")
	}

	recordsSvc := recordssvc.NewService(store, cal, baseLogger.Named("svc.records"))
	reportingSvc := reportingsvc.NewService(store, cal, metrics, loc, baseLogger.Named("svc.reporting"))
	exportSvc := exportsvc.NewService(store, sheetsRepo, cfg.Trial.StudyEndDate, baseLogger.Named("svc.export"))

	var (
		webhookHandler *handlers.WebhookHandler
		notifier       scheduler.Notifier
	)
	if cfg.WhatsApp.Enabled() {
		commandDispatcher := commandsvc.NewService(recordsSvc, reportingSvc, baseLogger.Named("svc.commands"))
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp, baseLogger.Named("client.whatsapp"))
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, baseLogger.Named("svc.whatsapp"))
		webhookHandler = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		notifier = messagingSvc
	} else {
		baseLogger.Warn("whatsapp credentials missing, chat commands and report delivery disabled")
	}

	trialHandler := handlers.NewTrialHandler(recordsSvc, reportingSvc, exportSvc, baseLogger.Named("handlers.trial"))
	engine := router.New(trialHandler, webhookHandler, metrics, baseLogger.Named("router"))

	sched, err := scheduler.NewScheduler(cfg.Reporting, reportingSvc, archive, notifier, exportSvc, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
