//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=mocks/mock_repository.go -package=mocks
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vedran77/duet/internal/domain"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
)

// UserRepository is the Account Store: user records, roles and the restriction flag.
// Lookups return (nil, nil) when no user matches.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	SetRestricted(ctx context.Context, id domain.UserID, restricted bool) error
}

// MessageRepository is the append-only Message Store.
type MessageRepository interface {
	// Append assigns ID and CreatedAt and returns only once the message is durable.
	Append(ctx context.Context, msg *domain.Message) error
	// ListConversation returns every message between a and b, either direction,
	// oldest first.
	ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
}

// BlobStore keeps attachment bytes and hands back a URL for them.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, mediaType string) (string, error)
}

// RateLimitRepository counts hits per key inside a fixed window.
type RateLimitRepository interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Decrement takes back one hit. It is a no-op once the window has ended.
	Decrement(ctx context.Context, key string) error
}
