// Package report serializes an aggregated activity report to CSV files and an
// optional HTML chart.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klimeurt/activity-exporter/internal/activity"
)

// Output file names
const (
	MetricsFile      = "repository_activity_metrics.csv"
	AuthorsFile      = "commit_frequency_by_author.csv"
	DistributionFile = "commits_time_distribution.csv"
	BusFactorFile    = "bus_factor_details.csv"
	BranchesFile     = "branches.csv"
	MergedPRsFile    = "merged_prs.csv"
	LeadTimeFile     = "pr_merge_lead_time.csv"
	MergesFile       = "merges_time_distribution.csv"
	NotMergedFile    = "prs_closed_not_merged.csv"
	ChartFile        = "commits_time_distribution.html"
)

// NotAvailable is written for metrics that cannot be computed
const NotAvailable = "N/A"

// Writer writes report files into a single directory
type Writer struct {
	dir   string
	chart bool
}

// NewWriter creates a Writer for dir. When chart is set the time distribution
// is also rendered as HTML.
func NewWriter(dir string, chart bool) *Writer {
	return &Writer{dir: dir, chart: chart}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// Write creates the output directory and writes every report file. It returns
// the paths written, in order.
func (w *Writer) Write(r *activity.Report) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tables := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{MetricsFile, []string{"metric_name", "metric_value", "notes"}, MetricRows(r)},
		{AuthorsFile, []string{"author", "commit_count"}, authorRows(r.Authors)},
		{DistributionFile, []string{"time_granularity", "time_key", "commit_count"}, distributionRows(r.Distribution)},
		{BusFactorFile, []string{"author", "commit_count", "ownership_percent", "cumulative_ownership_percent", "in_bus_factor"}, busFactorRows(r.Summary.BusFactor)},
		{BranchesFile, []string{"branch_name", "protected", "head_sha"}, branchRows(r.Branches)},
		{MergedPRsFile, []string{"number", "created_at", "merged_at", "author", "base", "head", "title", "url"}, mergedPRRows(r.MergedPullRequests)},
		{LeadTimeFile, []string{"number", "created_at", "merged_at", "lead_time_hours", "lead_time_days", "author", "title", "url"}, leadTimeRows(r.MergedPullRequests)},
		{MergesFile, []string{"time_granularity", "time_key", "merge_count"}, distributionRows(r.MergeDistribution)},
		{NotMergedFile, []string{"number", "created_at", "closed_at", "author", "title", "url"}, notMergedRows(r.ClosedNotMerged)},
	}

	var written []string
	for _, t := range tables {
		path := filepath.Join(w.dir, t.name)
		if err := writeCSV(path, t.header, t.rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if w.chart {
		path := filepath.Join(w.dir, ChartFile)
		if err := writeChart(path, r); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// MetricRows builds the overall counters table, one row per metric
func MetricRows(r *activity.Report) [][]string {
	s := r.Summary
	window := r.Window()

	avg := NotAvailable
	if s.AvgHoursBetweenCommits != nil {
		avg = formatFloat(*s.AvgHoursBetweenCommits)
	}

	busFactor, ownership := NotAvailable, NotAvailable
	if s.BusFactor.Factor > 0 {
		busFactor = strconv.Itoa(s.BusFactor.Factor)
		ownership = formatFloat(s.BusFactor.OwnershipPercent)
	}

	rows := [][]string{
		{"total_commits", strconv.Itoa(s.TotalCommits), window},
		{"active_contributors", strconv.Itoa(s.ActiveContributors), window},
		{"first_commit_at", formatTime(s.FirstCommit), window},
		{"last_commit_at", formatTime(s.LastCommit), window},
		{"avg_time_between_commits_hours", avg, window},
		{"commits_sampled_for_lines", strconv.Itoa(s.SampledCommits), window},
		{"lines_added", strconv.Itoa(s.LinesAdded), window + " (sampled)"},
		{"lines_deleted", strconv.Itoa(s.LinesDeleted), window + " (sampled)"},
		{"bus_factor", busFactor, fmt.Sprintf("contributors reaching %s%% ownership", formatThreshold(s.BusFactor.Threshold))},
		{"bus_factor_ownership_percent", ownership, window},
		{"branch_count", strconv.Itoa(s.BranchCount), "parallel development complexity"},
	}
	return append(rows, mergeMetricRows(s.Merges, window)...)
}

// mergeMetricRows writes N/A for every merge metric when pull requests were
// not collected
func mergeMetricRows(m *activity.MergeSummary, window string) [][]string {
	if m == nil {
		rows := mergeMetricRows(&activity.MergeSummary{}, window)
		for _, row := range rows {
			row[1] = NotAvailable
			row[2] = "pull requests not collected"
		}
		return rows
	}

	lt := m.LeadTime
	return [][]string{
		{"merge_frequency_merged_prs", strconv.Itoa(m.MergedPRs), "integration cadence, " + window},
		{"merge_frequency_merges_per_week", optionalFloat(m.MergesPerWeek), window},
		{"avg_time_between_merges_hours", optionalFloat(m.AvgHoursBetweenMerges), window},
		{"avg_pr_merge_lead_time_hours", optionalFloat(lt.Avg), "lead time for change, " + window},
		{"median_pr_merge_lead_time_hours", optionalFloat(lt.Median), window},
		{"p75_pr_merge_lead_time_hours", optionalFloat(lt.P75), window},
		{"p90_pr_merge_lead_time_hours", optionalFloat(lt.P90), window},
		{"prs_closed", strconv.Itoa(m.ClosedPRs), window},
		{"prs_merged", strconv.Itoa(m.MergedPRs), window},
		{"prs_closed_not_merged", strconv.Itoa(m.ClosedPRs - m.MergedPRs), "closed without merge, includes rejected and abandoned"},
		{"prs_merge_rate_percent", optionalFloat(m.MergeRatePercent), "merged / closed"},
	}
}

func mergedPRRows(prs []activity.PullRequest) [][]string {
	rows := make([][]string, 0, len(prs))
	for _, p := range prs {
		rows = append(rows, []string{
			strconv.Itoa(p.Number),
			formatTime(p.CreatedAt),
			formatTime(p.MergedAt),
			p.Author,
			p.Base,
			p.Head,
			p.Title,
			p.URL,
		})
	}
	return rows
}

func notMergedRows(prs []activity.PullRequest) [][]string {
	rows := make([][]string, 0, len(prs))
	for _, p := range prs {
		rows = append(rows, []string{
			strconv.Itoa(p.Number),
			formatTime(p.CreatedAt),
			formatTime(p.ClosedAt),
			p.Author,
			p.Title,
			p.URL,
		})
	}
	return rows
}

func leadTimeRows(prs []activity.PullRequest) [][]string {
	rows := make([][]string, 0, len(prs))
	for _, p := range prs {
		hours, days := NotAvailable, NotAvailable
		if h, ok := p.LeadTimeHours(); ok {
			hours = formatFloat(h)
			days = formatFloat(h / 24)
		}
		rows = append(rows, []string{
			strconv.Itoa(p.Number),
			formatTime(p.CreatedAt),
			formatTime(p.MergedAt),
			hours,
			days,
			p.Author,
			p.Title,
			p.URL,
		})
	}
	return rows
}

func authorRows(authors []activity.AuthorCount) [][]string {
	rows := make([][]string, 0, len(authors))
	for _, a := range authors {
		rows = append(rows, []string{a.Author, strconv.Itoa(a.Commits)})
	}
	return rows
}

func distributionRows(buckets []activity.Bucket) [][]string {
	rows := make([][]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []string{string(b.Granularity), b.Key, strconv.Itoa(b.Count)})
	}
	return rows
}

func busFactorRows(bf activity.BusFactor) [][]string {
	rows := make([][]string, 0, len(bf.Contributors))
	for _, o := range bf.Contributors {
		rows = append(rows, []string{
			o.Author,
			strconv.Itoa(o.Commits),
			formatFloat(o.Percent),
			formatFloat(o.CumulativePercent),
			yesNo(o.InBusFactor),
		})
	}
	return rows
}

func branchRows(branches []activity.Branch) [][]string {
	rows := make([][]string, 0, len(branches))
	for _, b := range branches {
		rows = append(rows, []string{b.Name, yesNo(b.Protected), b.HeadSHA})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return formatFloat(*v)
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
