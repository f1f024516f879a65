// Package notifier turns raw GitHub events into per-subscriber notifications.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/user/githubalerts/internal/domain"
)

// MatchErrorKind names why an event could not be matched.
type MatchErrorKind string

const (
	MalformedPayload     MatchErrorKind = "malformed_payload"
	RepoFullNameNotFound MatchErrorKind = "repo_full_name_not_found"
	CannotExtractRepo    MatchErrorKind = "cannot_extract_repo"
)

// repoPath locates the repository slug in a webhook payload.
const repoPath = "repository.full_name"

var errInvalidJSON = errors.New("invalid json")

// fragmentLimit caps how much of an offending payload is kept for logs.
const fragmentLimit = 256

// MatchError reports an event that cannot be routed. Fragment holds the
// offending input, truncated.
type MatchError struct {
	Kind     MatchErrorKind
	Fragment string
	Err      error
}

func (e *MatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%q)", e.Kind, e.Err, e.Fragment)
	}
	return fmt.Sprintf("%s (%q)", e.Kind, e.Fragment)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// SubscriberFinder lists the users subscribed to a repository.
type SubscriberFinder interface {
	FindSubscribers(ctx context.Context, repo domain.Repository) ([]domain.UserID, error)
}

// UserFinder loads users by id.
type UserFinder interface {
	FindUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
}

// Matcher resolves the subscribers of a raw event.
type Matcher struct {
	subs  SubscriberFinder
	users UserFinder
}

// NewMatcher creates a matcher over the given stores.
func NewMatcher(subs SubscriberFinder, users UserFinder) *Matcher {
	return &Matcher{subs: subs, users: users}
}

// Match returns one notification per subscriber of the repository named by
// repository.full_name in raw. The notification carries raw unchanged.
// Unroutable input yields a *MatchError; store failures are returned as is.
func (m *Matcher) Match(ctx context.Context, raw string) ([]domain.Notification, error) {
	repo, err := ExtractRepository(raw)
	if err != nil {
		return nil, err
	}

	ids, err := m.subs.FindSubscribers(ctx, repo)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := m.users.FindUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(users))
	for _, u := range users {
		out = append(out, domain.Notification{SlackUserID: u.SlackUserID, Event: raw})
	}
	return out, nil
}

// ExtractRepository reads repository.full_name from a GitHub webhook payload.
func ExtractRepository(raw string) (domain.Repository, error) {
	if !gjson.Valid(raw) {
		return domain.Repository{}, &MatchError{Kind: MalformedPayload, Fragment: truncate(raw), Err: errInvalidJSON}
	}

	res := gjson.Get(raw, repoPath)
	if res.Type != gjson.String {
		return domain.Repository{}, &MatchError{Kind: RepoFullNameNotFound, Fragment: truncate(raw)}
	}
	fullName := res.Str

	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domain.Repository{}, &MatchError{Kind: CannotExtractRepo, Fragment: truncate(fullName)}
	}
	return domain.Repository{Owner: parts[0], Name: parts[1]}, nil
}

func truncate(s string) string {
	if len(s) <= fragmentLimit {
		return s
	}
	return s[:fragmentLimit] + "..."
}
