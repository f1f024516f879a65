// Package domain holds the value types shared by the store, the broker
// records and the subscription logic.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel conditions. Typed errors elsewhere unwrap to one of these so the
// HTTP layer can map them with errors.Is.
var (
	ErrSlackUserNotFound  = errors.New("slack user not found")
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrUserNotFound       = errors.New("user not found")
)

// UserID is the store assigned surrogate key of a user.
type UserID int64

// SlackUserID is the workspace scoped Slack identifier.
type SlackUserID string

// User links the internal id to its Slack identity.
type User struct {
	ID          UserID      `db:"user_id"`
	SlackUserID SlackUserID `db:"slack_user_id"`
}

// Repository identifies a GitHub repository. Comparison is case sensitive.
type Repository struct {
	Owner string `json:"owner" cbor:"owner"`
	Name  string `json:"name" cbor:"name"`
}

// String renders owner/name.
func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// Valid reports whether both parts are set.
func (r Repository) Valid() bool {
	return r.Owner != "" && r.Name != ""
}

// ParseRepository parses "owner/name". Anything other than exactly two
// non-empty segments is rejected.
func ParseRepository(s string) (Repository, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Repository{}, fmt.Errorf("invalid repository %q: want owner/name", s)
	}
	repo := Repository{Owner: strings.TrimSpace(parts[0]), Name: strings.TrimSpace(parts[1])}
	if !repo.Valid() {
		return Repository{}, fmt.Errorf("invalid repository %q: empty owner or name", s)
	}
	return repo, nil
}

// Subscription is one user's interest in a repository.
type Subscription struct {
	Repository   Repository `json:"repository"`
	SubscribedAt time.Time  `json:"subscribedAt"`
}

// WatchEventKind tells the repository watcher to start or stop.
type WatchEventKind string

const (
	WatchCreated WatchEventKind = "Created"
	WatchDeleted WatchEventKind = "Deleted"
)

// WatchLifecycleEvent is emitted when a repository gains its first or loses
// its last subscriber.
type WatchLifecycleEvent struct {
	Repository Repository
	Kind       WatchEventKind
}

// Notification is one Slack delivery for one raw event. Event is the upstream
// payload verbatim.
type Notification struct {
	SlackUserID SlackUserID `json:"slackUserId" cbor:"slackUserId"`
	Event       string      `json:"event" cbor:"event"`
}
