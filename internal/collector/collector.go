package collector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v72/github"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jferrl/go-githubauth"
	"github.com/klimeurt/activity-exporter/internal/activity"
	"github.com/klimeurt/activity-exporter/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// lowRateRemaining is the remaining quota below which a warning is logged
const lowRateRemaining = 100

// CommitStats holds the line counts of a single commit
type CommitStats struct {
	Additions int
	Deletions int
}

// Collector handles the GitHub API operations for one repository
type Collector struct {
	config   *config.Config
	ghClient *github.Client
	limiter  *rate.Limiter
	stats    *lru.Cache[string, CommitStats]
	log      logrus.FieldLogger
}

// New creates a new Collector instance
func New(cfg *config.Config, log logrus.FieldLogger) (*Collector, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(httpClient)
	if cfg.GitHubAPIURL != "" {
		ghClient, err = ghClient.WithEnterpriseURLs(cfg.GitHubAPIURL, cfg.GitHubAPIURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set GitHub API URL: %w", err)
		}
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	stats, err := lru.New[string, CommitStats](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats cache: %w", err)
	}

	return &Collector{
		config:   cfg,
		ghClient: ghClient,
		limiter:  newLimiter(cfg),
		stats:    stats,
		log: log.WithFields(logrus.Fields{
			"owner": cfg.GitHubOwner,
			"repo":  cfg.GitHubRepo,
		}),
	}, nil
}

// newLimiter paces requests at RequestsPerMinute with a burst of one request
// per detail worker.
func newLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	burst := cfg.DetailConcurrency
	if burst <= 0 {
		burst = 1
	}
	if burst > cfg.RequestsPerMinute {
		burst = cfg.RequestsPerMinute
	}
	return rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
}

// newHTTPClient returns an OAuth2 client backed by a static token, or by a
// GitHub App installation token when no personal token is configured.
func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	ctx := context.Background()

	if cfg.GitHubToken != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.GitHubToken},
		)
		return oauth2.NewClient(ctx, ts), nil
	}

	appTokenSource, err := githubauth.NewApplicationTokenSource(cfg.AppClientID, []byte(cfg.AppPrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App token source: %w", err)
	}
	installationTokenSource := githubauth.NewInstallationTokenSource(cfg.AppInstallationID, appTokenSource)
	return oauth2.NewClient(ctx, installationTokenSource), nil
}

// FetchCommits lists the repository's commits authored after since, following
// pagination until the API returns an empty page, no next link is present or
// the configured page cap is reached. A zero since fetches the full history.
func (c *Collector) FetchCommits(ctx context.Context, since time.Time) ([]activity.Commit, error) {
	c.log.WithField("since", formatSince(since)).Info("Fetching commits")

	opt := &github.CommitsListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: c.config.PerPage},
	}

	var all []activity.Commit
	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		commits, resp, err := c.ghClient.Repositories.ListCommits(ctx, c.config.GitHubOwner, c.config.GitHubRepo, opt)
		if err != nil {
			// GitHub answers 409 for a repository without any commits
			if resp != nil && resp.StatusCode == http.StatusConflict {
				c.log.Warn("Repository is empty")
				return nil, nil
			}
			return nil, fmt.Errorf("failed to list commits: %w", err)
		}
		c.observeRate(resp)

		if len(commits) == 0 {
			c.log.WithField("page", page).Debug("No more commits returned by API")
			break
		}

		for _, rc := range commits {
			all = append(all, toCommit(rc))
		}
		c.log.WithFields(logrus.Fields{"page": page, "total": len(all)}).Debug("Fetched commit page")

		if resp.NextPage == 0 {
			break
		}
		if c.config.MaxPages > 0 && page >= c.config.MaxPages {
			c.log.WithField("max_pages", c.config.MaxPages).Warn("Reached max commit page limit")
			break
		}
		opt.Page = resp.NextPage
	}

	c.log.WithField("commits", len(all)).Info("Finished fetching commits")
	return all, nil
}

// EnrichStats fills line stats on the first limit commits, fetching commit
// details concurrently. Results are cached by SHA across calls.
func (c *Collector) EnrichStats(ctx context.Context, commits []activity.Commit, limit int) error {
	if limit <= 0 || len(commits) == 0 {
		return nil
	}
	if limit > len(commits) {
		limit = len(commits)
	}

	concurrency := c.config.DetailConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := 0; i < limit; i++ {
		g.Go(func() error {
			stats, err := c.CommitStats(ctx, commits[i].SHA)
			if err != nil {
				return err
			}
			commits[i].Additions = stats.Additions
			commits[i].Deletions = stats.Deletions
			commits[i].HasStats = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.log.WithField("sampled", limit).Info("Fetched commit line stats")
	return nil
}

// CommitStats returns the additions and deletions of one commit
func (c *Collector) CommitStats(ctx context.Context, sha string) (CommitStats, error) {
	if s, ok := c.stats.Get(sha); ok {
		return s, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return CommitStats{}, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	rc, resp, err := c.ghClient.Repositories.GetCommit(ctx, c.config.GitHubOwner, c.config.GitHubRepo, sha, nil)
	if err != nil {
		return CommitStats{}, fmt.Errorf("failed to get commit %s: %w", sha, err)
	}
	c.observeRate(resp)

	s := CommitStats{
		Additions: rc.GetStats().GetAdditions(),
		Deletions: rc.GetStats().GetDeletions(),
	}
	c.stats.Add(sha, s)
	return s, nil
}

// ListBranches fetches all branches of the repository
func (c *Collector) ListBranches(ctx context.Context) ([]activity.Branch, error) {
	opt := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: c.config.PerPage},
	}

	var all []activity.Branch
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		branches, resp, err := c.ghClient.Repositories.ListBranches(ctx, c.config.GitHubOwner, c.config.GitHubRepo, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list branches: %w", err)
		}
		c.observeRate(resp)

		for _, b := range branches {
			all = append(all, activity.Branch{
				Name:      b.GetName(),
				Protected: b.GetProtected(),
				HeadSHA:   b.GetCommit().GetSHA(),
			})
		}

		if len(branches) == 0 || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	c.log.WithField("branches", len(all)).Info("Listed branches")
	return all, nil
}

// observeRate logs when the remaining API quota runs low
func (c *Collector) observeRate(resp *github.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}
	if resp.Rate.Remaining < lowRateRemaining {
		c.log.WithFields(logrus.Fields{
			"remaining": resp.Rate.Remaining,
			"reset":     resp.Rate.Reset.Time.Format(time.RFC3339),
		}).Warn("GitHub rate limit running low")
	}
}

func toCommit(rc *github.RepositoryCommit) activity.Commit {
	author := rc.GetCommit().GetAuthor()
	date := author.GetDate().Time
	if date.IsZero() {
		date = rc.GetCommit().GetCommitter().GetDate().Time
	}

	return activity.Commit{
		SHA:         rc.GetSHA(),
		Login:       rc.GetAuthor().GetLogin(),
		AuthorName:  author.GetName(),
		AuthorEmail: author.GetEmail(),
		Date:        date,
	}
}

func formatSince(since time.Time) string {
	if since.IsZero() {
		return "beginning"
	}
	return since.Format(time.RFC3339)
}
