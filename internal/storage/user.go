package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/internal/metrics"
)

// UserStore maps Slack identities to internal user ids.
type UserStore struct {
	db *Database
}

// NewUserStore creates a new user store.
func NewUserStore(db *Database) *UserStore {
	return &UserStore{db: db}
}

// Find returns the user with id, or nil when absent.
func (s *UserStore) Find(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT user_id, slack_user_id FROM users WHERE user_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %d: %w", id, err)
	}
	return &u, nil
}

// FindBySlackID returns the user for slackID, or nil when absent.
func (s *UserStore) FindBySlackID(ctx context.Context, slackID domain.SlackUserID) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT user_id, slack_user_id FROM users WHERE slack_user_id = ?`), slackID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find slack user %s: %w", slackID, err)
	}
	return &u, nil
}

// FindOrInsertBySlackID returns the user for slackID, creating it on first
// sight. Repeated calls return the same id.
func (s *UserStore) FindOrInsertBySlackID(ctx context.Context, slackID domain.SlackUserID) (domain.User, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO users (slack_user_id) VALUES (?) ON CONFLICT (slack_user_id) DO NOTHING`), slackID)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to insert slack user %s: %w", slackID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		metrics.SlackUsers.Inc()
	}

	u, err := s.FindBySlackID(ctx, slackID)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, fmt.Errorf("slack user %s vanished after insert", slackID)
	}
	return *u, nil
}

// FindUsers returns the users among ids that exist, in id order.
func (s *UserStore) FindUsers(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT user_id, slack_user_id FROM users WHERE user_id IN (?) ORDER BY user_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}
	var users []domain.User
	if err := s.db.SelectContext(ctx, &users, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return users, nil
}
