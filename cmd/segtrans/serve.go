package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/httpapi"
	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/library"
	"github.com/pranot/segtrans/internal/persistence"
	"github.com/pranot/segtrans/internal/service"
	"github.com/pranot/segtrans/pkg/log"
)

func libraryScanner(cfg config.Config) *library.Scanner {
	sources := make([]library.SourceConfig, 0)
	for i, path := range cfg.Media.MediaPaths() {
		sources = append(sources, library.SourceConfig{
			ID:   fmt.Sprintf("source-%d", i),
			Name: filepath.Base(path),
			Path: path,
		})
	}
	return library.NewScanner(sources, cfg.Translate.TargetLanguage)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the media library on a schedule and serve the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Storage.DBPath, err)
	}
	defer store.Close()

	runner := service.NewRunner(cfg, service.WithReportStore(store))
	queue := jobs.NewQueue(cfg.Pipeline.Workers, store)
	scheduler := cron.New()
	svc := service.NewWatchService(cfg, runner, queue, scheduler, store)

	if err := svc.Schedule(ctx); err != nil {
		return err
	}
	scheduler.Start()

	opts := []httpapi.Option{httpapi.WithReportStore(store)}
	settingsPath := config.RuntimeSettingsFilePath()
	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Warn("runtime settings disabled: %v", err)
	} else {
		opts = append(opts, httpapi.WithRuntimeSettingsStore(settingsStore))
	}
	server := httpapi.NewServer(svc, opts...)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(cfg.HTTP.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// First scan without waiting for the cron trigger.
	go func() {
		if _, err := svc.ScanAndEnqueue(ctx); err != nil {
			log.Error("initial scan failed: %v", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown: %v", err)
	}
	cronCtx := scheduler.Stop()
	<-cronCtx.Done()
	// Queue workers see the canceled root context; running pipelines
	// persist their progress before the workers exit.
	queue.Stop()
	return nil
}
