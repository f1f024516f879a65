// Package github provides the GitHub API client and webhook intake.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/user/githubalerts/internal/metrics"
	"github.com/user/githubalerts/pkg/logger"
)

// StatusError is a repository lookup that did not end in a decisive answer.
// StatusCode is zero when no response was received.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github request failed: %v", e.Err)
	}
	return fmt.Sprintf("github responded with status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL         string        // defaults to https://api.github.com/
	Token           string        // optional bearer token
	Attempts        uint          // defaults to 3
	InitialInterval time.Duration // defaults to 1s
	HTTPClient      *http.Client
}

// Client wraps the GitHub API client.
type Client struct {
	client   *github.Client
	attempts uint
	initial  time.Duration
}

// NewClient creates a new GitHub API client.
// If the token is empty, an unauthenticated client is created (with lower rate limits).
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: opts.Token},
		)
		ctx := context.Background()
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github url %q: %w", opts.BaseURL, err)
		}
		client.BaseURL = u
	}

	c := &Client{client: client, attempts: opts.Attempts, initial: opts.InitialInterval}
	if c.attempts == 0 {
		c.attempts = 3
	}
	if c.initial <= 0 {
		c.initial = time.Second
	}
	return c, nil
}

// RepositoryExists reports whether owner/name exists. 200 and 304 mean yes,
// 404 means no. Any other outcome is retried with exponential backoff and,
// once the attempts are spent, the last one is returned as a *StatusError.
func (c *Client) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	attempt := 0
	op := func() (bool, error) {
		attempt++
		_, resp, err := c.client.Repositories.Get(ctx, owner, name)

		status := 0
		if resp != nil && resp.Response != nil {
			status = resp.StatusCode
		}
		switch status {
		case http.StatusOK, http.StatusNotModified:
			metrics.GitHubRequests.WithLabelValues("found").Inc()
			return true, nil
		case http.StatusNotFound:
			metrics.GitHubRequests.WithLabelValues("missing").Inc()
			return false, nil
		}

		if err == nil {
			err = errors.New("unexpected response")
		}
		metrics.GitHubRequests.WithLabelValues("error").Inc()
		logger.Info().
			Err(err).
			Int("status", status).
			Int("attempt", attempt).
			Str("repository", owner+"/"+name).
			Msg("GitHub call failed with status")
		if ctx.Err() != nil {
			return false, backoff.Permanent(&StatusError{StatusCode: status, Err: err})
		}
		return false, &StatusError{StatusCode: status, Err: err}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.initial

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.attempts),
	)
}
