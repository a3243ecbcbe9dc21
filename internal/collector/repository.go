package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRepositoryNotFound is returned when the repository does not exist or the
// credentials cannot see it
var ErrRepositoryNotFound = errors.New("repository not found or not accessible")

// RepositoryInfo describes the repository being exported
type RepositoryInfo struct {
	FullName      string
	DefaultBranch string
	Private       bool
	CreatedAt     time.Time
	PushedAt      time.Time
}

// CheckRepository verifies the repository is reachable before any listing starts
func (c *Collector) CheckRepository(ctx context.Context) (*RepositoryInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	repo, resp, err := c.ghClient.Repositories.Get(ctx, c.config.GitHubOwner, c.config.GitHubRepo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s/%s: %w", c.config.GitHubOwner, c.config.GitHubRepo, ErrRepositoryNotFound)
		}
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	c.observeRate(resp)

	info := &RepositoryInfo{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		CreatedAt:     repo.GetCreatedAt().Time,
		PushedAt:      repo.GetPushedAt().Time,
	}

	c.log.WithField("default_branch", info.DefaultBranch).Info("Repository reachable")
	return info, nil
}
