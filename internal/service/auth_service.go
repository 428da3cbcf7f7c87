package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/repository"
	"golang.org/x/crypto/argon2"
)

// AuthService is the Session Gate. It issues and verifies bearer tokens and
// decides whether an identity may send.
type AuthService struct {
	userRepo    repository.UserRepository
	jwtSecret   []byte
	tokenTTL    time.Duration
	adminEmails []string
	now         func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string, tokenTTL time.Duration, adminEmails []string) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		adminEmails: lo.Map(adminEmails, func(e string, _ int) string { return normalizeEmail(e) }),
		now:         time.Now,
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Password string `json:"password" validate:"required,password"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"accessToken"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)

	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	role := domain.RoleUser
	if lo.Contains(s.adminEmails, email) {
		role = domain.RoleAdmin
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		Username:     strings.TrimSpace(input.Username),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("%w: creating user: %v", ErrStorageUnavailable, err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if user == nil {
		return nil, ErrInvalidLogin
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidLogin
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

// Authenticate verifies a signed token and resolves it to an identity. Any
// failure is reported as ErrInvalidCredential.
func (s *AuthService) Authenticate(tokenStr string) (domain.Identity, error) {
	if tokenStr == "" {
		return domain.Identity{}, ErrInvalidCredential
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, ErrInvalidCredential
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Identity{}, ErrInvalidCredential
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return domain.Identity{}, ErrInvalidCredential
	}

	identity := domain.Identity{
		UserID:    domain.UserID(sub),
		ExpiresAt: exp.Time,
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		identity.IssuedAt = iat.Time
	}
	if role, ok := claims["role"].(string); ok {
		identity.Role = role
	}
	return identity, nil
}

// AuthorizeSend re-reads the account so a restriction applied after the token
// was issued still takes effect.
func (s *AuthService) AuthorizeSend(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	if !identity.ValidAt(s.now()) {
		return nil, ErrInvalidCredential
	}

	user, err := s.userRepo.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading sender: %v", ErrStorageUnavailable, err)
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if user.IsRestricted {
		return nil, ErrRestricted
	}
	return user, nil
}

// SetRestricted flips the restriction flag of target. Only admins may call
// it, and the role is read from the account, not the token.
func (s *AuthService) SetRestricted(ctx context.Context, actor domain.Identity, target domain.UserID, restricted bool) (*domain.User, error) {
	if !actor.ValidAt(s.now()) {
		return nil, ErrInvalidCredential
	}
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	account, err := s.userRepo.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading actor: %v", ErrStorageUnavailable, err)
	}
	if account == nil {
		return nil, ErrInvalidCredential
	}
	if account.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	if err := s.userRepo.SetRestricted(ctx, target, restricted); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	user, err := s.userRepo.GetByID(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  string(user.ID),
		"role": user.Role,
		"exp":  now.Add(s.tokenTTL).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyPassword(password, encoded string) bool {
	saltB64, hashB64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expectedHash) == 1
}
