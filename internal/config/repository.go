package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseRepository splits a repository reference into owner and name. It
// accepts a bare name, owner/name, and HTTPS or SSH clone URLs:
//
//	https://github.com/owner/repo.git
//	git@github.com:owner/repo.git
//
// owner is empty for a bare name.
func ParseRepository(ref string) (owner, repo string, err error) {
	ref = strings.TrimSpace(ref)

	var path string
	switch {
	case strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", "", fmt.Errorf("unable to parse repository URL %s: %w", ref, err)
		}
		path = strings.Trim(u.Path, "/")
	case strings.HasPrefix(ref, "git@"):
		_, after, ok := strings.Cut(ref, ":")
		if !ok {
			return "", "", fmt.Errorf("unable to parse repository URL: %s", ref)
		}
		path = after
	default:
		path = strings.Trim(ref, "/")
	}
	path = strings.TrimSuffix(path, ".git")

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return "", parts[0], nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	}
	return "", "", fmt.Errorf("unable to parse owner and repository from %s", ref)
}

// resolveRepository lets GITHUB_REPO carry the owner. An explicit GITHUB_OWNER
// must agree with it.
func (c *Config) resolveRepository() error {
	if c.GitHubRepo == "" {
		return nil
	}

	owner, repo, err := ParseRepository(c.GitHubRepo)
	if err != nil {
		return fmt.Errorf("GITHUB_REPO: %w", err)
	}

	if owner != "" {
		if c.GitHubOwner != "" && !strings.EqualFold(c.GitHubOwner, owner) {
			return fmt.Errorf("GITHUB_REPO names owner %s but GITHUB_OWNER is %s", owner, c.GitHubOwner)
		}
		if c.GitHubOwner == "" {
			c.GitHubOwner = owner
		}
	}
	c.GitHubRepo = repo
	return nil
}
