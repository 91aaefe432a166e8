package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"claude-chat/internal/auth"
	"claude-chat/internal/store"
)

const sessionTTL = 24 * time.Hour

// UserStore is the slice of the store backing identity and sessions.
type UserStore interface {
	CreateUser(ctx context.Context, email, fullName, passwordHash string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	CreateSession(ctx context.Context, userID int64, ttl time.Duration) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// AuthService is the identity provider boundary: it issues credentials on
// signup/login and verifies them on every request.
type AuthService struct {
	dbStore UserStore
	logger  *slog.Logger
}

func NewAuthService(db UserStore, logger *slog.Logger) *AuthService {
	return &AuthService{dbStore: db, logger: logger}
}

func (s *AuthService) Signup(ctx context.Context, email, fullName, password string) (*store.User, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.dbStore.CreateUser(ctx, email, fullName, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login checks the password and issues a JWT bound to a fresh session row.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	user, err := s.dbStore.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrUnauthorized
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return "", nil, ErrUnauthorized
	}

	session, err := s.dbStore.CreateSession(ctx, user.ID, sessionTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := auth.GenerateJWT(user.ID, session.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

// VerifyCaller resolves a bearer token to a user ID, or ErrUnauthorized. The
// token must carry a valid signature and reference a live session row, so a
// signed-out token is rejected even before its expiry.
func (s *AuthService) VerifyCaller(ctx context.Context, tokenString string) (int64, string, error) {
	userID, sessionID, err := auth.ValidateJWT(tokenString)
	if err != nil {
		return 0, "", ErrUnauthorized
	}

	session, err := s.dbStore.GetSession(ctx, sessionID)
	if err != nil {
		return 0, "", ErrUnauthorized
	}
	if session.UserID != userID || time.Now().After(session.ExpiresAt) {
		return 0, "", ErrUnauthorized
	}

	return userID, sessionID, nil
}

// SignOut terminates the session; the matching JWT stops verifying.
func (s *AuthService) SignOut(ctx context.Context, sessionID string) error {
	if err := s.dbStore.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
