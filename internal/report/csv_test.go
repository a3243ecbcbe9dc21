package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klimeurt/activity-exporter/internal/activity"
)

func testReport() *activity.Report {
	commits := []activity.Commit{
		{SHA: "a1", Login: "alice", Date: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Additions: 7, Deletions: 3, HasStats: true},
		{SHA: "a2", Login: "alice", Date: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
		{SHA: "b1", AuthorEmail: "bob@example.com", Date: time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)},
	}
	branches := []activity.Branch{
		{Name: "main", Protected: true, HeadSHA: "abc"},
		{Name: "dev", HeadSHA: "def"},
	}
	r := activity.Aggregate(commits, branches, activity.Options{
		Owner:              "octo",
		Repo:               "hello",
		WindowDays:         30,
		BusFactorThreshold: 50,
	})
	r.AddPullRequests([]activity.PullRequest{
		{
			Number:    7,
			Title:     "Add exporter, with tests",
			URL:       "https://github.com/octo/hello/pull/7",
			Author:    "alice",
			Base:      "main",
			Head:      "feature",
			CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			ClosedAt:  time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC),
			MergedAt:  time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC),
		},
		{
			Number:    8,
			Author:    "bob",
			CreatedAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
			ClosedAt:  time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC),
		},
	})
	return r
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", path, err)
	}
	return records
}

func TestWriterWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewWriter(dir, true)

	written, err := w.Write(testReport())
	if err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}

	want := []string{MetricsFile, AuthorsFile, DistributionFile, BusFactorFile, BranchesFile, MergedPRsFile, LeadTimeFile, MergesFile, NotMergedFile, ChartFile}
	if len(written) != len(want) {
		t.Fatalf("Write() returned %d paths, want %d: %v", len(written), len(want), written)
	}
	for i, name := range want {
		if written[i] != filepath.Join(dir, name) {
			t.Errorf("written[%d] = %v, want %v", i, written[i], filepath.Join(dir, name))
		}
		if _, err := os.Stat(written[i]); err != nil {
			t.Errorf("file %s missing: %v", name, err)
		}
	}

	authors := readCSV(t, filepath.Join(dir, AuthorsFile))
	wantAuthors := [][]string{
		{"author", "commit_count"},
		{"alice", "2"},
		{"bob@example.com", "1"},
	}
	if len(authors) != len(wantAuthors) {
		t.Fatalf("authors = %v, want %v", authors, wantAuthors)
	}
	for i := range wantAuthors {
		if strings.Join(authors[i], ",") != strings.Join(wantAuthors[i], ",") {
			t.Errorf("authors[%d] = %v, want %v", i, authors[i], wantAuthors[i])
		}
	}

	dist := readCSV(t, filepath.Join(dir, DistributionFile))
	if got := strings.Join(dist[0], ","); got != "time_granularity,time_key,commit_count" {
		t.Errorf("distribution header = %v", got)
	}
	// 24 hours + 7 weekdays + 3 days + 1 week + 1 month
	if len(dist)-1 != 24+7+3+1+1 {
		t.Errorf("distribution rows = %d", len(dist)-1)
	}

	branches := readCSV(t, filepath.Join(dir, BranchesFile))
	if len(branches) != 3 || strings.Join(branches[1], ",") != "dev,no,def" || strings.Join(branches[2], ",") != "main,yes,abc" {
		t.Errorf("branches = %v", branches)
	}

	bus := readCSV(t, filepath.Join(dir, BusFactorFile))
	if len(bus) != 3 {
		t.Fatalf("bus factor rows = %v", bus)
	}
	if strings.Join(bus[1], ",") != "alice,2,66.67,66.67,yes" {
		t.Errorf("bus factor row = %v", bus[1])
	}
	if strings.Join(bus[2], ",") != "bob@example.com,1,33.33,100.00,no" {
		t.Errorf("bus factor row = %v", bus[2])
	}

	merged := readCSV(t, filepath.Join(dir, MergedPRsFile))
	if len(merged) != 2 {
		t.Fatalf("merged PR rows = %v", merged)
	}
	if got := strings.Join(merged[1], "|"); got != "7|2024-01-01T08:00:00Z|2024-01-02T20:00:00Z|alice|main|feature|Add exporter, with tests|https://github.com/octo/hello/pull/7" {
		t.Errorf("merged PR row = %v", got)
	}

	lead := readCSV(t, filepath.Join(dir, LeadTimeFile))
	if len(lead) != 2 || lead[1][3] != "36.00" || lead[1][4] != "1.50" {
		t.Errorf("lead time rows = %v", lead)
	}

	merges := readCSV(t, filepath.Join(dir, MergesFile))
	wantMerges := []string{
		"time_granularity,time_key,merge_count",
		"day,2024-01-02,1",
		"week,2024-W01,1",
		"month,2024-01,1",
	}
	if len(merges) != len(wantMerges) {
		t.Fatalf("merge distribution = %v", merges)
	}
	for i, want := range wantMerges {
		if got := strings.Join(merges[i], ","); got != want {
			t.Errorf("merges[%d] = %v, want %v", i, got, want)
		}
	}

	notMerged := readCSV(t, filepath.Join(dir, NotMergedFile))
	if len(notMerged) != 2 || strings.Join(notMerged[1], ",") != "8,2024-01-02T08:00:00Z,2024-01-03T08:00:00Z,bob,," {
		t.Errorf("closed not merged rows = %v", notMerged)
	}
}

func TestWriterWithoutChart(t *testing.T) {
	dir := t.TempDir()

	written, err := NewWriter(dir, false).Write(testReport())
	if err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}
	if len(written) != 9 {
		t.Errorf("Write() returned %d paths, want 9", len(written))
	}
	if _, err := os.Stat(filepath.Join(dir, ChartFile)); !os.IsNotExist(err) {
		t.Errorf("chart should not be written, stat err = %v", err)
	}
}

func TestWriterInvalidDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewWriter(filepath.Join(file, "out"), false).Write(testReport())
	if err == nil {
		t.Fatal("Expected error when output dir cannot be created")
	}
	if !strings.Contains(err.Error(), "failed to create output directory") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMetricRows(t *testing.T) {
	rows := MetricRows(testReport())

	got := make(map[string][]string)
	for _, row := range rows {
		if len(row) != 3 {
			t.Fatalf("metric row has %d columns: %v", len(row), row)
		}
		got[row[0]] = row
	}

	tests := []struct {
		metric string
		value  string
		notes  string
	}{
		{"total_commits", "3", "last 30 days"},
		{"active_contributors", "2", "last 30 days"},
		{"first_commit_at", "2024-01-01T09:00:00Z", "last 30 days"},
		{"last_commit_at", "2024-01-03T15:00:00Z", "last 30 days"},
		{"avg_time_between_commits_hours", "27.00", "last 30 days"},
		{"commits_sampled_for_lines", "1", "last 30 days"},
		{"lines_added", "7", "last 30 days (sampled)"},
		{"lines_deleted", "3", "last 30 days (sampled)"},
		{"bus_factor", "1", "contributors reaching 50% ownership"},
		{"bus_factor_ownership_percent", "66.67", "last 30 days"},
		{"branch_count", "2", "parallel development complexity"},
		{"merge_frequency_merged_prs", "1", "integration cadence, last 30 days"},
		{"merge_frequency_merges_per_week", "0.23", "last 30 days"},
		{"avg_time_between_merges_hours", "N/A", "last 30 days"},
		{"avg_pr_merge_lead_time_hours", "36.00", "lead time for change, last 30 days"},
		{"median_pr_merge_lead_time_hours", "36.00", "last 30 days"},
		{"p75_pr_merge_lead_time_hours", "36.00", "last 30 days"},
		{"p90_pr_merge_lead_time_hours", "36.00", "last 30 days"},
		{"prs_closed", "2", "last 30 days"},
		{"prs_merged", "1", "last 30 days"},
		{"prs_closed_not_merged", "1", "closed without merge, includes rejected and abandoned"},
		{"prs_merge_rate_percent", "50.00", "merged / closed"},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			row, ok := got[tt.metric]
			if !ok {
				t.Fatalf("metric %s missing", tt.metric)
			}
			if row[1] != tt.value {
				t.Errorf("value = %v, want %v", row[1], tt.value)
			}
			if row[2] != tt.notes {
				t.Errorf("notes = %v, want %v", row[2], tt.notes)
			}
		})
	}
}

func TestMetricRowsEmpty(t *testing.T) {
	r := activity.Aggregate(nil, nil, activity.Options{Owner: "octo", Repo: "hello", BusFactorThreshold: 50})

	for _, row := range MetricRows(r) {
		switch row[0] {
		case "total_commits", "active_contributors", "branch_count":
			if row[1] != "0" {
				t.Errorf("%s = %v, want 0", row[0], row[1])
			}
		case "first_commit_at", "last_commit_at", "avg_time_between_commits_hours", "bus_factor", "bus_factor_ownership_percent":
			if row[1] != NotAvailable {
				t.Errorf("%s = %v, want %v", row[0], row[1], NotAvailable)
			}
		}
		if row[2] == "last 30 days" {
			t.Errorf("unexpected window note %v", row[2])
		}
		if strings.Contains(row[0], "merge") || strings.HasPrefix(row[0], "prs_") {
			if row[1] != NotAvailable || row[2] != "pull requests not collected" {
				t.Errorf("%s = %v (%v), want N/A when pull requests were not collected", row[0], row[1], row[2])
			}
		}
	}
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderChart(&buf, testReport()); err != nil {
		t.Fatalf("RenderChart() unexpected error: %v", err)
	}

	html := buf.String()
	for _, want := range []string{"Commits by hour (UTC)", "Commits by weekday (UTC)", "Commits by month", "Monday"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart output missing %q", want)
		}
	}
}
