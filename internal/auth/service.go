package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the credential store the service orchestrates against.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, username, passwordHash string, role Role) (User, error)
}

// TokenRevoker records logged-out tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
}

// dummyHash is compared against when the username does not exist, so the
// lookup miss costs the same as a wrong password.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Service composes the credential store, password policy, login throttle,
// token service and revocation store into the register/login/refresh/logout
// flows.
type Service struct {
	users       UserStore
	tokens      *TokenService
	throttle    *Throttle
	revocations TokenRevoker
}

func NewService(users UserStore, tokens *TokenService, throttle *Throttle, revocations TokenRevoker) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		throttle:    throttle,
		revocations: revocations,
	}
}

// Register validates the password before any storage write, hashes it and
// creates an active user. Username collisions surface as ErrDuplicateUsername
// from the store's unique constraint.
func (s *Service) Register(ctx context.Context, username, password string, role Role) (UserView, error) {
	username = strings.TrimSpace(strings.ToLower(username))

	if err := ValidatePassword(password); err != nil {
		return UserView{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return UserView{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, username, string(hash), role)
	if err != nil {
		return UserView{}, err
	}

	return user.View(), nil
}

// Login runs the throttle check before any credential work. Unknown user and
// wrong password are indistinguishable to the caller and to the throttle.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, UserView, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	password = strings.TrimSpace(password)

	if username == "" || password == "" {
		return TokenPair{}, UserView{}, ErrInvalidCredentials
	}

	if err := s.throttle.CheckAllowed(ctx, username); err != nil {
		return TokenPair{}, UserView{}, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return TokenPair{}, UserView{}, s.failLogin(ctx, username)
		}
		return TokenPair{}, UserView{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, UserView{}, s.failLogin(ctx, username)
	}

	if err := s.throttle.RecordSuccess(ctx, username); err != nil {
		return TokenPair{}, UserView{}, err
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Username, user.Role)
	if err != nil {
		return TokenPair{}, UserView{}, fmt.Errorf("issue token pair: %w", err)
	}

	return pair, user.View(), nil
}

func (s *Service) failLogin(ctx context.Context, username string) error {
	if err := s.throttle.RecordFailure(ctx, username); err != nil {
		return err
	}
	return ErrInvalidCredentials
}

// Refresh exchanges a valid refresh token for a fresh pair. The user must
// still exist; claims are rebuilt from the stored row, so a role change takes
// effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return TokenPair{}, ErrInvalidTokenType
	}

	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, err
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Username, user.Role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue token pair: %w", err)
	}

	return pair, nil
}

// Logout blacklists the presented token until its expiry claim. The decode is
// deliberately unverified so tokens on the edge of expiry still log out; the
// route sits behind the authenticate middleware, which has already verified
// the caller.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil {
		return ErrInvalidToken
	}

	if err := s.revocations.Revoke(ctx, token, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}
