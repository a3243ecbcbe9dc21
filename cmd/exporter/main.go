package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klimeurt/activity-exporter/internal/config"
	"github.com/klimeurt/activity-exporter/internal/exporter"
	"github.com/klimeurt/activity-exporter/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runTimeout bounds a single export
const runTimeout = 30 * time.Minute

type flags struct {
	outputDir string
	once      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "activity-exporter",
		Short: "Export a GitHub repository's commit activity to CSV files",
		Long: `Fetch the commits of one GitHub repository and write overall counters,
per-author commit counts and the commit time distribution to CSV files.

Configuration is read from the environment (and .env files):
  GITHUB_TOKEN, GITHUB_OWNER and GITHUB_REPO are required.

With CRON_SCHEDULE set the export repeats on that schedule until interrupted,
unless --once is given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, f, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New(cfg.LogLevel)
			if f.once || cfg.CronSchedule == "" {
				return runOnce(ctx, cfg, log, cmd.OutOrStdout())
			}
			return runScheduled(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "directory for output files (overrides OUTPUT_DIR)")
	cmd.Flags().BoolVar(&f.once, "once", false, "run a single export even when CRON_SCHEDULE is set")

	return cmd
}

func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	if cmd.Flags().Changed("output-dir") && f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
}

func runOnce(ctx context.Context, cfg *config.Config, log *logrus.Logger, out io.Writer) error {
	exp, err := exporter.New(cfg, log)
	if err != nil {
		return err
	}
	defer exp.Close()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	res, err := exp.Run(ctx)
	if err != nil {
		log.WithError(err).Error("Export failed")
		return err
	}

	printSummary(out, res)
	return nil
}

func runScheduled(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	exp, err := exporter.New(cfg, log)
	if err != nil {
		return err
	}
	defer exp.Close()

	job := exportJob(ctx, exp, log)

	c := cron.New()
	if _, err := c.AddJob(cfg.CronSchedule, job); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	c.Start()
	log.WithField("schedule", cfg.CronSchedule).Info("Cron scheduler started")

	if cfg.RunOnStartup {
		log.Info("Running initial export on startup")
		job.Run()
	}

	<-ctx.Done()

	log.Info("Shutting down")
	<-c.Stop().Done()
	return nil
}

// runner is the part of the exporter a scheduled job needs
type runner interface {
	Run(ctx context.Context) (*exporter.Result, error)
}

// exportJob wraps one export as a cron job. A trigger that fires while the
// previous export is still running is skipped, including the startup run.
func exportJob(ctx context.Context, r runner, log *logrus.Logger) cron.Job {
	skip := cron.SkipIfStillRunning(cron.VerbosePrintfLogger(log))
	return cron.NewChain(skip).Then(cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		if _, err := r.Run(runCtx); err != nil {
			log.WithError(err).Error("Export failed")
		}
	}))
}

func printSummary(w io.Writer, res *exporter.Result) {
	s := res.Report.Summary
	fmt.Fprintf(w, "Repository:   %s (%s)\n", res.Report.FullName(), res.Report.Window())
	fmt.Fprintf(w, "Commits:      %d\n", s.TotalCommits)
	fmt.Fprintf(w, "Contributors: %d\n", s.ActiveContributors)
	if s.BusFactor.Factor > 0 {
		fmt.Fprintf(w, "Bus factor:   %d (%.2f%% ownership)\n", s.BusFactor.Factor, s.BusFactor.OwnershipPercent)
	}
	if s.Merges != nil {
		fmt.Fprintf(w, "Merged PRs:   %d of %d closed\n", s.Merges.MergedPRs, s.Merges.ClosedPRs)
	}
	fmt.Fprintln(w, "Files:")
	for _, f := range res.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
