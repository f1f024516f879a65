// Package storage provides database operations and data models.
package storage

import (
	"time"

	"github.com/user/githubalerts/internal/domain"
)

// subscriptionRow is a subscription joined with its repository.
type subscriptionRow struct {
	Owner        string    `db:"owner"`
	Repository   string    `db:"repository"`
	SubscribedAt time.Time `db:"subscribed_at"`
}

func (r subscriptionRow) toDomain() domain.Subscription {
	return domain.Subscription{
		Repository:   domain.Repository{Owner: r.Owner, Name: r.Repository},
		SubscribedAt: r.SubscribedAt.UTC(),
	}
}
