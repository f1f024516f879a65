package subscription

import (
	"fmt"

	"github.com/user/githubalerts/internal/domain"
)

// Kind classifies a domain failure. Each kind unwraps to a domain sentinel.
type Kind int

const (
	KindSlackUserNotFound Kind = iota + 1
	KindRepositoryNotFound
	KindUserNotFound
)

func (k Kind) sentinel() error {
	switch k {
	case KindSlackUserNotFound:
		return domain.ErrSlackUserNotFound
	case KindRepositoryNotFound:
		return domain.ErrRepositoryNotFound
	case KindUserNotFound:
		return domain.ErrUserNotFound
	}
	return nil
}

// Error is returned by Service for conditions the caller is expected to
// handle. Fields not relevant to the kind are zero.
type Error struct {
	Kind        Kind
	SlackUserID domain.SlackUserID
	UserID      domain.UserID
	Repository  domain.Repository

	// UpstreamStatus is the GitHub status that prevented a decision. Zero
	// when GitHub answered 404 or could not be reached at all.
	UpstreamStatus int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindSlackUserNotFound:
		if e.UserID != 0 {
			return fmt.Sprintf("slack user %s (user %d) not found", e.SlackUserID, e.UserID)
		}
		return fmt.Sprintf("slack user %s not found", e.SlackUserID)
	case KindRepositoryNotFound:
		if e.UpstreamStatus != 0 {
			return fmt.Sprintf("repository %s not found: github responded with status %d", e.Repository, e.UpstreamStatus)
		}
		return fmt.Sprintf("repository %s not found", e.Repository)
	case KindUserNotFound:
		return fmt.Sprintf("user %d not found", e.UserID)
	}
	return "subscription error"
}

// Unwrap exposes the domain sentinel for errors.Is.
func (e *Error) Unwrap() error {
	return e.Kind.sentinel()
}
