package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v58/github"
	"golang.org/x/time/rate"
)

// GitHubProvider reads files through the GitHub contents API. All fetches
// share one rate limiter.
type GitHubProvider struct {
	client  *github.Client
	owner   string
	repo    string
	ref     string
	limiter *rate.Limiter
}

// GitHubOptions configures a GitHubProvider.
type GitHubOptions struct {
	Token             string
	Owner             string
	Repo              string
	Ref               string
	RequestsPerSecond float64
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
}

// NewGitHubProvider creates a provider for owner/repo.
func NewGitHubProvider(opts GitHubOptions) (*GitHubProvider, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("github owner and repo are required")
	}
	client := github.NewClient(nil)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &GitHubProvider{
		client:  client,
		owner:   opts.Owner,
		repo:    opts.Repo,
		ref:     opts.Ref,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func (p *GitHubProvider) Label() string {
	return fmt.Sprintf("github:%s/%s@%s", p.owner, p.repo, p.ref)
}

func (p *GitHubProvider) Ping(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	_, _, err := p.client.Repositories.Get(ctx, p.owner, p.repo)
	return err
}

func (p *GitHubProvider) Fetch(ctx context.Context, path string, line, window int) (string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: p.ref}
	for _, cand := range pathCandidates(path) {
		if strings.HasPrefix(cand, "/") {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
		file, _, resp, err := p.client.Repositories.GetContents(ctx, p.owner, p.repo, cand, opts)
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("get contents %s: %w", cand, err)
		}
		if file == nil {
			// A directory listing.
			continue
		}
		content, err := file.GetContent()
		if err != nil {
			return "", fmt.Errorf("decode contents %s: %w", cand, err)
		}
		return sliceWindow(content, line, window)
	}
	return "", fmt.Errorf("%w: %s in %s/%s", ErrNotFound, path, p.owner, p.repo)
}
