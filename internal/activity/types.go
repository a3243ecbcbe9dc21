// Package activity folds commit records into the summary tables written by
// the exporter.
package activity

import (
	"fmt"
	"time"
)

// UnknownAuthor is the identity used when a commit carries no login, email or name.
const UnknownAuthor = "unknown"

// Commit is the subset of a commit record the aggregator needs
type Commit struct {
	SHA         string
	Login       string
	AuthorName  string
	AuthorEmail string
	Date        time.Time

	// Line stats are only filled for the sampled commits
	Additions int
	Deletions int
	HasStats  bool
}

// Author returns the identity a commit is attributed to: the account login,
// then the commit author email, then the author name.
func (c Commit) Author() string {
	switch {
	case c.Login != "":
		return c.Login
	case c.AuthorEmail != "":
		return c.AuthorEmail
	case c.AuthorName != "":
		return c.AuthorName
	default:
		return UnknownAuthor
	}
}

// Branch represents a repository branch
type Branch struct {
	Name      string
	Protected bool
	HeadSHA   string
}

// PullRequest is a closed pull request. MergedAt is zero when it was closed
// without merging.
type PullRequest struct {
	Number    int
	Title     string
	URL       string
	Author    string
	Base      string
	Head      string
	CreatedAt time.Time
	ClosedAt  time.Time
	MergedAt  time.Time
}

// Merged reports whether the pull request was merged
func (p PullRequest) Merged() bool {
	return !p.MergedAt.IsZero()
}

// LeadTimeHours is the time from opening to merge. ok is false for unmerged
// pull requests and for a merge recorded before creation.
func (p PullRequest) LeadTimeHours() (hours float64, ok bool) {
	if !p.Merged() || p.CreatedAt.IsZero() {
		return 0, false
	}
	d := p.MergedAt.Sub(p.CreatedAt)
	if d < 0 {
		return 0, false
	}
	return d.Hours(), true
}

// AuthorCount is one row of the per-author table
type AuthorCount struct {
	Author  string
	Commits int
}

// Granularity names a time bucketing scheme
type Granularity string

const (
	Hour    Granularity = "hour"
	Weekday Granularity = "weekday"
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
)

// Granularities lists every bucketing scheme in output order
var Granularities = []Granularity{Hour, Weekday, Day, Week, Month}

// Bucket is one row of the time distribution table
type Bucket struct {
	Granularity Granularity
	Key         string
	Count       int
}

// Ownership is one row of the bus factor breakdown
type Ownership struct {
	Author            string
	Commits           int
	Percent           float64
	CumulativePercent float64
	InBusFactor       bool
}

// BusFactor is the smallest set of top authors reaching the ownership threshold
type BusFactor struct {
	Threshold        float64
	Factor           int
	OwnershipPercent float64
	Contributors     []Ownership
}

// Summary holds the overall activity counters
type Summary struct {
	TotalCommits       int
	ActiveContributors int
	FirstCommit        time.Time
	LastCommit         time.Time

	// AvgHoursBetweenCommits is nil with fewer than two commits
	AvgHoursBetweenCommits *float64

	SampledCommits int
	LinesAdded     int
	LinesDeleted   int

	BusFactor   BusFactor
	BranchCount int

	// Merges is nil when pull requests were not collected
	Merges *MergeSummary
}

// Report is the aggregated view of one repository export
type Report struct {
	Owner       string
	Repo        string
	WindowDays  int
	Since       time.Time
	GeneratedAt time.Time

	Summary      Summary
	Authors      []AuthorCount
	Distribution []Bucket
	Branches     []Branch

	// Merged pull requests, most recently merged first, and their time buckets
	MergedPullRequests []PullRequest
	MergeDistribution  []Bucket

	// Pull requests closed without a merge, most recently closed first
	ClosedNotMerged []PullRequest
}

// FullName returns owner/repo
func (r *Report) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Window describes the queried period for report notes
func (r *Report) Window() string {
	if r.WindowDays <= 0 {
		return "full history"
	}
	return fmt.Sprintf("last %d days", r.WindowDays)
}
