package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v72/github"
	"github.com/klimeurt/activity-exporter/internal/activity"
	"github.com/sirupsen/logrus"
)

// ListClosedPullRequests returns pull requests closed after since, merged or
// not, up to MaxPullRequests. Pages are requested most recently updated first,
// so listing stops at the first pull request last updated before since. A
// zero since walks the full history.
func (c *Collector) ListClosedPullRequests(ctx context.Context, since time.Time) ([]activity.PullRequest, error) {
	limit := c.config.MaxPullRequests
	if limit <= 0 {
		return nil, nil
	}
	c.log.WithField("since", formatSince(since)).Info("Fetching closed pull requests")

	opt := &github.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: c.config.PerPage},
	}

	var all []activity.PullRequest
	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		prs, resp, err := c.ghClient.PullRequests.List(ctx, c.config.GitHubOwner, c.config.GitHubRepo, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests: %w", err)
		}
		c.observeRate(resp)

		for _, pr := range prs {
			if !since.IsZero() && pr.GetUpdatedAt().Time.Before(since) {
				c.log.WithField("page", page).Debug("Reached pull requests older than the window")
				return c.finishPullRequests(all), nil
			}

			closed := pr.GetClosedAt().Time
			if closed.IsZero() || (!since.IsZero() && closed.Before(since)) {
				continue
			}

			all = append(all, toPullRequest(pr))
			if len(all) >= limit {
				c.log.WithField("max_pull_requests", limit).Warn("Reached max pull request limit")
				return c.finishPullRequests(all), nil
			}
		}

		if len(prs) == 0 || resp.NextPage == 0 {
			break
		}
		if c.config.MaxPages > 0 && page >= c.config.MaxPages {
			c.log.WithField("max_pages", c.config.MaxPages).Warn("Reached max pull request page limit")
			break
		}
		opt.Page = resp.NextPage
	}

	return c.finishPullRequests(all), nil
}

func (c *Collector) finishPullRequests(all []activity.PullRequest) []activity.PullRequest {
	merged := 0
	for _, pr := range all {
		if pr.Merged() {
			merged++
		}
	}
	c.log.WithFields(logrus.Fields{"closed": len(all), "merged": merged}).Info("Finished fetching pull requests")
	return all
}

func toPullRequest(pr *github.PullRequest) activity.PullRequest {
	return activity.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		URL:       pr.GetHTMLURL(),
		Author:    pr.GetUser().GetLogin(),
		Base:      pr.GetBase().GetRef(),
		Head:      pr.GetHead().GetRef(),
		CreatedAt: pr.GetCreatedAt().Time,
		ClosedAt:  pr.GetClosedAt().Time,
		MergedAt:  pr.GetMergedAt().Time,
	}
}
