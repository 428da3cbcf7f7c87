package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/repository"
	"github.com/vedran77/duet/internal/repository/mocks"
	"go.uber.org/mock/gomock"
)

func TestAuthService_RegisterThenLogin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	auth := NewAuthService(users, testSecret, time.Hour, []string{"Root@Example.com"})
	ctx := context.Background()

	// Given
	var stored *domain.User
	users.EXPECT().GetByEmail(gomock.Any(), "root@example.com").Return(nil, nil)
	users.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *domain.User) error {
		stored = u
		return nil
	})

	// When
	registered, err := auth.Register(ctx, RegisterInput{Email: " root@example.com ", Username: "root", Password: "Secret123"})

	// Then
	req.NoError(err)
	req.Equal(domain.RoleAdmin, registered.User.Role)
	req.NotEqual("Secret123", stored.PasswordHash)

	identity, err := auth.Authenticate(registered.AccessToken)
	req.NoError(err)
	req.Equal(stored.ID, identity.UserID)
	req.True(identity.IsAdmin())

	// When logging in
	users.EXPECT().GetByEmail(gomock.Any(), "root@example.com").Return(stored, nil).Times(2)
	loggedIn, err := auth.Login(ctx, LoginInput{Email: "root@example.com", Password: "Secret123"})
	req.NoError(err)
	req.NotEmpty(loggedIn.AccessToken)

	_, err = auth.Login(ctx, LoginInput{Email: "root@example.com", Password: "wrong"})
	req.ErrorIs(err, ErrInvalidLogin)
}

func TestAuthService_RegisterConflicts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	auth := NewAuthService(users, testSecret, time.Hour, nil)
	input := RegisterInput{Email: "alice@example.com", Username: "alice", Password: "Secret123"}

	users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(alice, nil)
	_, err := auth.Register(context.Background(), input)
	req.ErrorIs(err, ErrEmailTaken)

	users.EXPECT().GetByEmail(gomock.Any(), "alice@example.com").Return(nil, nil)
	users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(repository.ErrDuplicateUser)
	_, err = auth.Register(context.Background(), input)
	req.ErrorIs(err, ErrUsernameTaken)
}

func TestAuthService_AuthenticateRejects(t *testing.T) {
	auth := NewAuthService(nil, testSecret, time.Hour, nil)

	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	now := time.Now()

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"malformed", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()})},
		{"expired", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice", "exp": now.Add(-time.Minute).Unix()})},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "alice"})},
		{"no subject", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})},
		{"unsigned", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(tt.token)

			require.ErrorIs(t, err, ErrInvalidCredential)
		})
	}
}

func TestAuthService_AuthorizeSend(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	auth := NewAuthService(users, testSecret, time.Hour, nil)
	identity := identityFor(t, auth, alice)

	tests := []struct {
		name    string
		setup   func()
		id      domain.Identity
		wantErr error
	}{
		{
			name:  "allowed",
			setup: func() { users.EXPECT().GetByID(gomock.Any(), alice.ID).Return(alice, nil) },
			id:    identity,
		},
		{
			name:    "restricted even with a valid credential",
			setup:   func() { users.EXPECT().GetByID(gomock.Any(), alice.ID).Return(restricted(alice), nil) },
			id:      identity,
			wantErr: ErrRestricted,
		},
		{
			name:    "account gone",
			setup:   func() { users.EXPECT().GetByID(gomock.Any(), alice.ID).Return(nil, nil) },
			id:      identity,
			wantErr: ErrInvalidCredential,
		},
		{
			name:    "store down",
			setup:   func() { users.EXPECT().GetByID(gomock.Any(), alice.ID).Return(nil, errors.New("conn refused")) },
			id:      identity,
			wantErr: ErrStorageUnavailable,
		},
		{
			name:    "unauthenticated identity",
			setup:   func() {},
			id:      domain.Identity{UserID: alice.ID},
			wantErr: ErrInvalidCredential,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			user, err := auth.AuthorizeSend(context.Background(), tt.id)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, alice.ID, user.ID)
		})
	}
}

func TestAuthService_SetRestricted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	auth := NewAuthService(users, testSecret, time.Hour, nil)
	ctx := context.Background()

	// Non-admins never reach the store.
	_, err := auth.SetRestricted(ctx, identityFor(t, auth, alice), bob.ID, true)
	req.ErrorIs(err, ErrForbidden)

	adminID := identityFor(t, auth, admin)
	users.EXPECT().GetByID(gomock.Any(), admin.ID).Return(admin, nil).Times(2)

	users.EXPECT().SetRestricted(gomock.Any(), bob.ID, true).Return(nil)
	users.EXPECT().GetByID(gomock.Any(), bob.ID).Return(restricted(bob), nil)
	user, err := auth.SetRestricted(ctx, adminID, bob.ID, true)
	req.NoError(err)
	req.True(user.IsRestricted)

	users.EXPECT().SetRestricted(gomock.Any(), domain.UserID("ghost"), true).Return(repository.ErrUserNotFound)
	_, err = auth.SetRestricted(ctx, adminID, "ghost", true)
	req.ErrorIs(err, ErrNotFound)
}

func TestAuthService_SetRestrictedByDemotedAdmin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	auth := NewAuthService(users, testSecret, time.Hour, nil)
	ctx := context.Background()

	// Given a token minted while root was still an admin
	token := identityFor(t, auth, admin)
	demoted := *admin
	demoted.Role = domain.RoleUser

	// When the account no longer carries the role
	users.EXPECT().GetByID(gomock.Any(), admin.ID).Return(&demoted, nil)
	_, err := auth.SetRestricted(ctx, token, bob.ID, true)

	// Then nothing is written
	req.ErrorIs(err, ErrForbidden)

	users.EXPECT().GetByID(gomock.Any(), admin.ID).Return(nil, nil)
	_, err = auth.SetRestricted(ctx, token, bob.ID, true)
	req.ErrorIs(err, ErrInvalidCredential)
}
