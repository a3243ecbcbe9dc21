// Package exporter runs one repository activity export end to end.
package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/klimeurt/activity-exporter/internal/activity"
	"github.com/klimeurt/activity-exporter/internal/collector"
	"github.com/klimeurt/activity-exporter/internal/config"
	"github.com/klimeurt/activity-exporter/internal/publisher"
	"github.com/klimeurt/activity-exporter/internal/report"
	"github.com/sirupsen/logrus"
)

// Result describes a finished export
type Result struct {
	Repository *collector.RepositoryInfo
	Report     *activity.Report
	Files      []string
	Duration   time.Duration
}

// Exporter wires the collector, report writer and optional publisher together
type Exporter struct {
	config    *config.Config
	collector *collector.Collector
	writer    *report.Writer
	publisher *publisher.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// New creates an Exporter. A NATS connection is only opened when NATSUrl is set.
func New(cfg *config.Config, log logrus.FieldLogger) (*Exporter, error) {
	c, err := collector.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector: %w", err)
	}

	e := &Exporter{
		config:    cfg,
		collector: c,
		writer:    report.NewWriter(cfg.OutputDir, cfg.WriteChart),
		log: log.WithFields(logrus.Fields{
			"owner": cfg.GitHubOwner,
			"repo":  cfg.GitHubRepo,
		}),
		now: time.Now,
	}

	if cfg.NATSUrl != "" {
		p, err := publisher.New(cfg.NATSUrl, cfg.NATSSubject, log)
		if err != nil {
			return nil, err
		}
		e.publisher = p
	}

	return e, nil
}

// Run fetches the repository's activity, writes the report files and
// publishes a completion event when a publisher is configured.
func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	start := e.now()
	e.log.Info("Starting export")

	info, err := e.collector.CheckRepository(ctx)
	if err != nil {
		return nil, err
	}

	since := e.since(start)
	commits, err := e.collector.FetchCommits(ctx, since)
	if err != nil {
		return nil, err
	}

	if err := e.collector.EnrichStats(ctx, commits, e.config.MaxDetailCommits); err != nil {
		return nil, fmt.Errorf("failed to fetch commit stats: %w", err)
	}

	branches, err := e.collector.ListBranches(ctx)
	if err != nil {
		return nil, err
	}

	r := activity.Aggregate(commits, branches, activity.Options{
		Owner:              e.config.GitHubOwner,
		Repo:               e.config.GitHubRepo,
		WindowDays:         e.config.SinceDays,
		Since:              since,
		GeneratedAt:        start.UTC(),
		BusFactorThreshold: e.config.BusFactorThreshold,
	})

	if e.config.MaxPullRequests > 0 {
		prs, err := e.collector.ListClosedPullRequests(ctx, since)
		if err != nil {
			return nil, err
		}
		r.AddPullRequests(prs)
	}

	files, err := e.writer.Write(r)
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	result := &Result{
		Repository: info,
		Report:     r,
		Files:      files,
		Duration:   e.now().Sub(start),
	}

	fields := logrus.Fields{
		"commits":      r.Summary.TotalCommits,
		"contributors": r.Summary.ActiveContributors,
		"output_dir":   e.writer.Dir(),
	}
	if r.Summary.Merges != nil {
		fields["merged_prs"] = r.Summary.Merges.MergedPRs
	}
	e.log.WithFields(fields).Info("Export finished")

	// Files are already on disk, a failed event does not fail the run
	if e.publisher != nil {
		if err := e.publisher.Publish(completedEvent(result)); err != nil {
			e.log.WithError(err).Error("Failed to publish export event")
		}
	}

	return result, nil
}

// Close cleanly shuts down the exporter
func (e *Exporter) Close() {
	if e.publisher != nil {
		e.publisher.Close()
	}
}

// since returns the start of the query window, zero for the full history
func (e *Exporter) since(now time.Time) time.Time {
	if e.config.SinceDays <= 0 {
		return time.Time{}
	}
	return now.UTC().AddDate(0, 0, -e.config.SinceDays)
}

func completedEvent(res *Result) publisher.ExportCompleted {
	r := res.Report
	ev := publisher.ExportCompleted{
		Owner:              r.Owner,
		Repo:               r.Repo,
		Since:              r.Since,
		GeneratedAt:        r.GeneratedAt,
		TotalCommits:       r.Summary.TotalCommits,
		ActiveContributors: r.Summary.ActiveContributors,
		BusFactor:          r.Summary.BusFactor.Factor,
		Files:              res.Files,
	}
	if r.Summary.Merges != nil {
		ev.MergedPRs = r.Summary.Merges.MergedPRs
	}
	return ev
}
