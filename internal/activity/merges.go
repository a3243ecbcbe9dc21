package activity

import (
	"math"
	"sort"
	"time"
)

// MergeSummary holds the integration cadence counters of closed pull requests
type MergeSummary struct {
	ClosedPRs int
	MergedPRs int

	// Nil when nothing was closed
	MergeRatePercent *float64

	// Nil for the full history, which has no fixed window length
	MergesPerWeek *float64

	// Nil with fewer than two merges
	AvgHoursBetweenMerges *float64

	LeadTime LeadTimeStats
}

// LeadTimeStats summarizes open-to-merge durations in hours. The pointers are
// nil when no merged pull request has a usable lead time.
type LeadTimeStats struct {
	Count  int
	Avg    *float64
	Median *float64
	P75    *float64
	P90    *float64
	Min    *float64
	Max    *float64
}

// AddPullRequests folds closed pull requests into the report's merge summary,
// merged and unmerged lists and merge distribution.
func (r *Report) AddPullRequests(prs []PullRequest) {
	merged := MergedPullRequests(prs)
	summary := SummarizeMerges(prs, r.WindowDays)

	r.Summary.Merges = &summary
	r.MergedPullRequests = merged
	r.MergeDistribution = DistributeMerges(merged)
	r.ClosedNotMerged = ClosedNotMerged(prs)
}

// MergedPullRequests returns the merged pull requests, most recent merge first
func MergedPullRequests(prs []PullRequest) []PullRequest {
	out := make([]PullRequest, 0, len(prs))
	for _, p := range prs {
		if p.Merged() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MergedAt.After(out[j].MergedAt)
	})
	return out
}

// ClosedNotMerged returns the pull requests closed without a merge, most
// recently closed first
func ClosedNotMerged(prs []PullRequest) []PullRequest {
	out := make([]PullRequest, 0, len(prs))
	for _, p := range prs {
		if !p.Merged() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClosedAt.After(out[j].ClosedAt)
	})
	return out
}

// SummarizeMerges computes merge counts, cadence and lead times over a window
// of windowDays days. A window of 0 means the full history.
func SummarizeMerges(prs []PullRequest, windowDays int) MergeSummary {
	s := MergeSummary{ClosedPRs: len(prs)}

	var mergeTimes []time.Time
	var leadTimes []float64
	for _, p := range prs {
		if !p.Merged() {
			continue
		}
		s.MergedPRs++
		mergeTimes = append(mergeTimes, p.MergedAt)
		if h, ok := p.LeadTimeHours(); ok {
			leadTimes = append(leadTimes, h)
		}
	}

	if s.ClosedPRs > 0 {
		s.MergeRatePercent = floatPtr(percent(s.MergedPRs, s.ClosedPRs))
	}
	if windowDays > 0 {
		s.MergesPerWeek = floatPtr(float64(s.MergedPRs) / (float64(windowDays) / 7))
	}
	s.AvgHoursBetweenMerges = averageGapHours(mergeTimes)
	s.LeadTime = leadTimeStats(leadTimes)
	return s
}

// DistributeMerges buckets merges by merge date in UTC per day, ISO week and
// month. Only observed keys appear.
func DistributeMerges(merged []PullRequest) []Bucket {
	perDay := make(map[string]int)
	perWeek := make(map[string]int)
	perMonth := make(map[string]int)

	for _, p := range merged {
		t := p.MergedAt.UTC()
		perDay[t.Format("2006-01-02")]++
		perWeek[WeekKey(t)]++
		perMonth[t.Format("2006-01")]++
	}

	out := make([]Bucket, 0, len(perDay)+len(perWeek)+len(perMonth))
	out = appendSorted(out, Day, perDay)
	out = appendSorted(out, Week, perWeek)
	out = appendSorted(out, Month, perMonth)
	return out
}

// Percentile interpolates linearly between the closest ranks of an ascending
// slice. p is in [0, 100].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case p <= 0 || n == 1:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}

	rank := p / 100 * float64(n-1)
	low := int(math.Floor(rank))
	high := int(math.Ceil(rank))
	if low == high {
		return sorted[low]
	}
	weight := rank - float64(low)
	return sorted[low]*(1-weight) + sorted[high]*weight
}

func leadTimeStats(values []float64) LeadTimeStats {
	stats := LeadTimeStats{Count: len(values)}
	if len(values) == 0 {
		return stats
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	stats.Avg = floatPtr(sum / float64(len(sorted)))
	stats.Median = floatPtr(Percentile(sorted, 50))
	stats.P75 = floatPtr(Percentile(sorted, 75))
	stats.P90 = floatPtr(Percentile(sorted, 90))
	stats.Min = floatPtr(sorted[0])
	stats.Max = floatPtr(sorted[len(sorted)-1])
	return stats
}

func averageGapHours(times []time.Time) *float64 {
	if len(times) < 2 {
		return nil
	}
	first, last := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return floatPtr(last.Sub(first).Hours() / float64(len(times)-1))
}

func floatPtr(v float64) *float64 {
	return &v
}
