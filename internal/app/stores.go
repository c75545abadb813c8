package app

import (
	"context"

	"github.com/ndelage/parlor/internal/domain"
)

// ProfileStore is the persistence surface the coordinator depends on.
// The default implementation is the SQLite store; tests may substitute
// any other backend.
type ProfileStore interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsersByID(ctx context.Context, ids []string) ([]domain.User, error)
	UpdateTheme(ctx context.Context, id, theme string) error
	GetTheme(ctx context.Context, id string) (string, error)
	AppendMessage(ctx context.Context, m *domain.Message) (int64, error)
	ListLastMessages(ctx context.Context, n int) ([]domain.Message, error)
}
