package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/pipeline"
	"github.com/pranot/segtrans/internal/service"
)

func payloadFlags(cmd *cobra.Command) {
	cmd.Flags().String("subtitle", "", "source-language subtitle file (skips transcription)")
	cmd.Flags().String("nfo", "", "NFO metadata file for translation context")
}

func payloadFromArgs(cmd *cobra.Command, args []string) jobs.Payload {
	subtitle, _ := cmd.Flags().GetString("subtitle")
	nfo, _ := cmd.Flags().GetString("nfo")
	return jobs.Payload{MediaFile: args[0], SubtitleFile: subtitle, NFOFile: nfo}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <media-file>",
		Short: "Process one media file, resuming any interrupted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, payloadFromArgs(cmd, args))
		},
	}
	payloadFlags(cmd)
	return cmd
}

func newRestartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart <media-file>",
		Short: "Discard saved progress and process the file from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			payload := payloadFromArgs(cmd, args)
			runner := service.NewRunner(cfg)
			if err := runner.Reset(payload); err != nil {
				return fmt.Errorf("discard saved progress: %w", err)
			}
			return runWithRunner(cmd.Context(), runner, payload)
		},
	}
	payloadFlags(cmd)
	return cmd
}

func runOnce(cmd *cobra.Command, payload jobs.Payload) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runWithRunner(cmd.Context(), service.NewRunner(cfg), payload)
}

func runWithRunner(parent context.Context, runner *service.Runner, payload jobs.Payload) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	summary, err := runner.Run(ctx, payload)
	if summary != nil {
		printSummary(summary, time.Since(started))
	}
	return err
}

func printSummary(summary *service.RunSummary, elapsed time.Duration) {
	fmt.Printf("job:      %s\n", summary.JobID)
	if summary.Transcribe != nil {
		printStageStats("transcribe", summary.Transcribe)
	}
	if summary.Translate != nil {
		printStageStats("translate", summary.Translate)
	}
	fmt.Printf("elapsed:  %s\n", elapsed.Round(time.Second))
	if !summary.Interrupted {
		fmt.Printf("output:   %s\n", summary.OutputPath)
	}
}

func printStageStats(name string, stats *pipeline.Stats) {
	fmt.Printf("%s: %s/%s segments", name,
		humanize.Comma(int64(stats.SegmentsProcessed)),
		humanize.Comma(int64(stats.TotalSegments)))
	if stats.CacheHits > 0 {
		fmt.Printf(", %s cache hits", humanize.Comma(int64(stats.CacheHits)))
	}
	if stats.CostEstimate > 0 {
		fmt.Printf(", est. cost $%.4f", stats.CostEstimate)
	}
	if len(stats.FailedSegments) > 0 {
		fmt.Printf(", %d failed", len(stats.FailedSegments))
	}
	fmt.Println()
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <media-file>",
		Short: "Show the saved progress of a file's job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := service.NewRunner(cfg).Status(payloadFromArgs(cmd, args))
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	payloadFlags(cmd)
	return cmd
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List episodes that still lack a target-language subtitle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			scanner := libraryScanner(cfg)
			lib, err := scanner.Scan(cmd.Context())
			if err != nil {
				return err
			}
			count := 0
			for _, ep := range lib.Episodes {
				if !ep.Processable {
					continue
				}
				count++
				fmt.Println(ep.MediaPath)
			}
			fmt.Fprintf(os.Stderr, "%d of %d episodes need processing\n", count, len(lib.Episodes))
			return nil
		},
	}
}
