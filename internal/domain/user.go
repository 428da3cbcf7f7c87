package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidUserID = errors.New("user id must be non-empty and must not contain ':'")

// UserID is the opaque key the Account Store uses for a user.
type UserID string

// Valid reports whether id can take part in a conversation room id. ':' is
// the room separator, so ids carrying it would make room ids ambiguous.
func (id UserID) Valid() bool {
	return id != "" && !strings.Contains(string(id), ":")
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           UserID    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsRestricted bool      `json:"isRestricted"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Identity is a user resolved from a verified bearer credential.
type Identity struct {
	UserID    UserID
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the identity came out of credential verification.
func (i Identity) Authenticated() bool {
	return i.UserID != "" && !i.ExpiresAt.IsZero()
}

// ValidAt reports whether the credential behind the identity is still live at t.
func (i Identity) ValidAt(t time.Time) bool {
	return i.Authenticated() && t.Before(i.ExpiresAt)
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
