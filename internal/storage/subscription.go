package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/user/githubalerts/internal/domain"
)

// SubscriptionStore handles subscription-related database operations.
type SubscriptionStore struct {
	db *Database
}

// NewSubscriptionStore creates a new subscription store.
func NewSubscriptionStore(db *Database) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// FindAll returns the user's subscriptions, oldest first.
func (s *SubscriptionStore) FindAll(ctx context.Context, user domain.UserID) ([]domain.Subscription, error) {
	query := s.db.Rebind(`
		SELECT r.owner, r.repository, s.subscribed_at
		FROM subscriptions s
		JOIN repositories r ON r.repository_id = s.repository_id
		WHERE s.user_id = ?
		ORDER BY s.subscribed_at, r.owner, r.repository
	`)
	var rows []subscriptionRow
	if err := s.db.SelectContext(ctx, &rows, query, user); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	subs := make([]domain.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toDomain())
	}
	return subs, nil
}

// FindSubscribers returns the ids of every user subscribed to repo.
func (s *SubscriptionStore) FindSubscribers(ctx context.Context, repo domain.Repository) ([]domain.UserID, error) {
	query := s.db.Rebind(`
		SELECT s.user_id
		FROM subscriptions s
		JOIN repositories r ON r.repository_id = s.repository_id
		WHERE r.owner = ? AND r.repository = ?
		ORDER BY s.user_id
	`)
	var ids []domain.UserID
	if err := s.db.SelectContext(ctx, &ids, query, repo.Owner, repo.Name); err != nil {
		return nil, fmt.Errorf("failed to find subscribers of %s: %w", repo, err)
	}
	return ids, nil
}

// Subscribe stores the subscriptions for user in one transaction. Repository
// rows are inserted on first use and reused afterwards; an existing
// subscription is left untouched. A missing user yields domain.ErrUserNotFound.
func (s *SubscriptionStore) Subscribe(ctx context.Context, user domain.UserID, subs []domain.Subscription) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertRepo := tx.Rebind(`INSERT INTO repositories (owner, repository) VALUES (?, ?) ON CONFLICT (owner, repository) DO NOTHING`)
	selectRepo := tx.Rebind(`SELECT repository_id FROM repositories WHERE owner = ? AND repository = ?`)
	insertSub := tx.Rebind(`INSERT INTO subscriptions (user_id, repository_id, subscribed_at) VALUES (?, ?, ?) ON CONFLICT (user_id, repository_id) DO NOTHING`)

	for _, sub := range subs {
		if _, err := tx.ExecContext(ctx, insertRepo, sub.Repository.Owner, sub.Repository.Name); err != nil {
			return fmt.Errorf("failed to insert repository %s: %w", sub.Repository, err)
		}
		var repoID int64
		if err := tx.GetContext(ctx, &repoID, selectRepo, sub.Repository.Owner, sub.Repository.Name); err != nil {
			return fmt.Errorf("failed to fetch repository %s: %w", sub.Repository, err)
		}

		at := sub.SubscribedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := tx.ExecContext(ctx, insertSub, user, repoID, at.UTC()); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("user %d: %w", user, domain.ErrUserNotFound)
			}
			return fmt.Errorf("failed to insert subscription %s: %w", sub.Repository, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subscriptions: %w", err)
	}
	return nil
}

// Unsubscribe removes the user's subscriptions to repos. Missing rows are ignored.
func (s *SubscriptionStore) Unsubscribe(ctx context.Context, user domain.UserID, repos []domain.Repository) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`
		DELETE FROM subscriptions
		WHERE user_id = ? AND repository_id IN (
			SELECT repository_id FROM repositories WHERE owner = ? AND repository = ?
		)
	`)
	for _, repo := range repos {
		if _, err := tx.ExecContext(ctx, query, user, repo.Owner, repo.Name); err != nil {
			return fmt.Errorf("failed to delete subscription %s: %w", repo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unsubscribe: %w", err)
	}
	return nil
}
