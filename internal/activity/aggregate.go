package activity

import (
	"sort"
	"time"
)

// Options describes the export a report is built for
type Options struct {
	Owner              string
	Repo               string
	WindowDays         int
	Since              time.Time
	GeneratedAt        time.Time
	BusFactorThreshold float64
}

// Aggregate folds commits and branches into a Report.
func Aggregate(commits []Commit, branches []Branch, opts Options) *Report {
	authors := CountByAuthor(commits)

	r := &Report{
		Owner:        opts.Owner,
		Repo:         opts.Repo,
		WindowDays:   opts.WindowDays,
		Since:        opts.Since,
		GeneratedAt:  opts.GeneratedAt,
		Authors:      authors,
		Distribution: Distribute(commits),
		Branches:     sortedBranches(branches),
	}

	s := &r.Summary
	s.TotalCommits = len(commits)
	s.ActiveContributors = len(authors)
	s.FirstCommit, s.LastCommit = span(commits)
	s.AvgHoursBetweenCommits = AverageHoursBetween(commits)
	s.SampledCommits, s.LinesAdded, s.LinesDeleted = lineTotals(commits)
	s.BusFactor = ComputeBusFactor(authors, opts.BusFactorThreshold)
	s.BranchCount = len(branches)

	return r
}

// CountByAuthor counts commits per author identity, most active first and
// ties broken by author name.
func CountByAuthor(commits []Commit) []AuthorCount {
	counts := make(map[string]int)
	for _, c := range commits {
		counts[c.Author()]++
	}

	out := make([]AuthorCount, 0, len(counts))
	for author, n := range counts {
		out = append(out, AuthorCount{Author: author, Commits: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commits != out[j].Commits {
			return out[i].Commits > out[j].Commits
		}
		return out[i].Author < out[j].Author
	})
	return out
}

// AverageHoursBetween returns the mean gap between consecutive commits in
// hours, or nil when fewer than two commits are given.
func AverageHoursBetween(commits []Commit) *float64 {
	if len(commits) < 2 {
		return nil
	}
	first, last := span(commits)
	avg := last.Sub(first).Hours() / float64(len(commits)-1)
	return &avg
}

func span(commits []Commit) (first, last time.Time) {
	for i, c := range commits {
		if i == 0 || c.Date.Before(first) {
			first = c.Date
		}
		if i == 0 || c.Date.After(last) {
			last = c.Date
		}
	}
	return first, last
}

func lineTotals(commits []Commit) (sampled, added, deleted int) {
	for _, c := range commits {
		if !c.HasStats {
			continue
		}
		sampled++
		added += c.Additions
		deleted += c.Deletions
	}
	return sampled, added, deleted
}

func sortedBranches(branches []Branch) []Branch {
	out := append([]Branch(nil), branches...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
