package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/pipeline"
	"github.com/pranot/segtrans/internal/service"
	"github.com/pranot/segtrans/pkg/log"
)

const (
	exitFailure     = 1
	exitPartial     = 2
	exitInterrupted = 3
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "segtrans",
		Short:         "Speech-to-text and tiered translation for media subtitles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newRestartCmd(), newStatusCmd(), newScanCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		if errors.Is(err, pipeline.ErrInterrupted) {
			fmt.Fprintln(os.Stderr, "interrupted, progress saved; rerun to resume")
			os.Exit(exitInterrupted)
		}
		if errors.Is(err, service.ErrSegmentsFailed) {
			fmt.Fprintf(os.Stderr, "completed with failures: %v\n", err)
			os.Exit(exitPartial)
		}
		log.Error("%v", err)
		os.Exit(exitFailure)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if settings, err := config.LoadRuntimeSettingsFile(config.RuntimeSettingsFilePath()); err == nil {
		config.WithRuntimeSettings(settings)(cfg)
	}
	return *cfg, nil
}
