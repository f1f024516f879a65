// Package subscription implements subscribe, unsubscribe and listing for
// Slack users, and emits watch lifecycle events when a repository gains its
// first or loses its last subscriber.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/internal/github"
	"github.com/user/githubalerts/pkg/logger"
)

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	FindAll(ctx context.Context, user domain.UserID) ([]domain.Subscription, error)
	FindSubscribers(ctx context.Context, repo domain.Repository) ([]domain.UserID, error)
	Subscribe(ctx context.Context, user domain.UserID, subs []domain.Subscription) error
	Unsubscribe(ctx context.Context, user domain.UserID, repos []domain.Repository) error
}

// UserStore resolves Slack users.
type UserStore interface {
	FindBySlackID(ctx context.Context, slackID domain.SlackUserID) (*domain.User, error)
	FindOrInsertBySlackID(ctx context.Context, slackID domain.SlackUserID) (domain.User, error)
}

// RepositoryChecker answers whether a GitHub repository exists.
type RepositoryChecker interface {
	RepositoryExists(ctx context.Context, owner, name string) (bool, error)
}

// WatchProducer announces watch lifecycle transitions.
type WatchProducer interface {
	Publish(ctx context.Context, repo domain.Repository) error
	Delete(ctx context.Context, repo domain.Repository) error
}

// Service coordinates the stores, GitHub and the lifecycle producer.
type Service struct {
	subs     SubscriptionStore
	users    UserStore
	github   RepositoryChecker
	producer WatchProducer
	now      func() time.Time
}

// NewService creates a subscription service.
func NewService(subs SubscriptionStore, users UserStore, gh RepositoryChecker, producer WatchProducer) *Service {
	return &Service{
		subs:     subs,
		users:    users,
		github:   gh,
		producer: producer,
		now:      time.Now,
	}
}

// FindAll lists the subscriptions of slackID. An unknown user is an error;
// a known user without subscriptions gets an empty slice.
func (s *Service) FindAll(ctx context.Context, slackID domain.SlackUserID) ([]domain.Subscription, error) {
	user, err := s.users.FindBySlackID(ctx, slackID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &Error{Kind: KindSlackUserNotFound, SlackUserID: slackID}
	}
	subs, err := s.subs.FindAll(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	return subs, nil
}

// Subscribe subscribes slackID to sub.Repository. The repository is checked
// with GitHub before anything is written, so a rejected repository leaves the
// store untouched. When the repository had no subscribers before, a Created
// lifecycle event is published after the store write.
func (s *Service) Subscribe(ctx context.Context, slackID domain.SlackUserID, sub domain.Subscription) error {
	repo := sub.Repository
	if err := s.checkRepository(ctx, repo); err != nil {
		return err
	}

	user, err := s.users.FindOrInsertBySlackID(ctx, slackID)
	if err != nil {
		return err
	}

	before, err := s.subs.FindSubscribers(ctx, repo)
	if err != nil {
		return err
	}

	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = s.now().UTC()
	}
	if err := s.subs.Subscribe(ctx, user.ID, []domain.Subscription{sub}); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return &Error{Kind: KindUserNotFound, SlackUserID: slackID, UserID: user.ID}
		}
		return err
	}

	logger.Info().
		Str("slack_user_id", string(slackID)).
		Str("repository", repo.String()).
		Msg("Subscribed")

	if len(before) == 0 {
		if err := s.producer.Publish(ctx, repo); err != nil {
			return fmt.Errorf("subscription stored but watch start not published: %w", err)
		}
	}
	return nil
}

// Unsubscribe removes the subscription of slackID to repo. Removing a
// subscription that does not exist succeeds and publishes nothing. When the
// last subscriber leaves, a Deleted lifecycle event is published.
func (s *Service) Unsubscribe(ctx context.Context, slackID domain.SlackUserID, repo domain.Repository) error {
	user, err := s.users.FindBySlackID(ctx, slackID)
	if err != nil {
		return err
	}
	if user == nil {
		return &Error{Kind: KindSlackUserNotFound, SlackUserID: slackID, Repository: repo}
	}

	before, err := s.subs.FindSubscribers(ctx, repo)
	if err != nil {
		return err
	}
	if !slices.Contains(before, user.ID) {
		return nil
	}

	if err := s.subs.Unsubscribe(ctx, user.ID, []domain.Repository{repo}); err != nil {
		return err
	}

	after, err := s.subs.FindSubscribers(ctx, repo)
	if err != nil {
		return err
	}

	logger.Info().
		Str("slack_user_id", string(slackID)).
		Str("repository", repo.String()).
		Msg("Unsubscribed")

	if len(after) == 0 {
		if err := s.producer.Delete(ctx, repo); err != nil {
			return fmt.Errorf("subscription removed but watch stop not published: %w", err)
		}
	}
	return nil
}

func (s *Service) checkRepository(ctx context.Context, repo domain.Repository) error {
	exists, err := s.github.RepositoryExists(ctx, repo.Owner, repo.Name)
	if err != nil {
		status := 0
		var statusErr *github.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		logger.Info().
			Err(err).
			Str("repository", repo.String()).
			Int("status", status).
			Msg("Repository check failed")
		return &Error{Kind: KindRepositoryNotFound, Repository: repo, UpstreamStatus: status}
	}
	if !exists {
		return &Error{Kind: KindRepositoryNotFound, Repository: repo}
	}
	return nil
}
