package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vedran77/duet/internal/domain"
)

const testSecret = "test-secret"

var (
	alice = &domain.User{ID: "alice", Email: "alice@example.com", Username: "alice", Role: domain.RoleUser}
	bob   = &domain.User{ID: "bob", Email: "bob@example.com", Username: "bob", Role: domain.RoleUser}
	admin = &domain.User{ID: "root", Email: "root@example.com", Username: "root", Role: domain.RoleAdmin}
)

func identityFor(t *testing.T, auth *AuthService, user *domain.User) domain.Identity {
	t.Helper()
	token, err := auth.generateToken(user)
	require.NoError(t, err)
	identity, err := auth.Authenticate(token)
	require.NoError(t, err)
	return identity
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func restricted(u *domain.User) *domain.User {
	c := *u
	c.IsRestricted = true
	c.UpdatedAt = time.Now()
	return &c
}
