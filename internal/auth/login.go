package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/store"
)

var ErrBadCredentials = errors.New("wrong login or password")

// LoginService authenticates portal users and issues session tokens.
type LoginService struct {
	users  *store.UserRepository
	tokens *TokenService
	logger *zap.Logger
}

func NewLoginService(users *store.UserRepository, tokens *TokenService, logger *zap.Logger) *LoginService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoginService{users: users, tokens: tokens, logger: logger}
}

// Login resolves the user by email or username and checks the
// password. Unknown logins and wrong passwords are indistinguishable.
func (s *LoginService) Login(ctx context.Context, login, password string) (store.User, SessionPair, error) {
	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return store.User{}, SessionPair{}, ErrBadCredentials
		}
		return store.User{}, SessionPair{}, fmt.Errorf("resolve login: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return store.User{}, SessionPair{}, ErrBadCredentials
	}
	pair, err := s.tokens.Issue(user.ID, user.Roles)
	if err != nil {
		return store.User{}, SessionPair{}, err
	}
	now := s.tokens.nowFn()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("last_login update failed",
			zap.String("user_id", user.ID), zap.Error(err))
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new session pair. The
// user's current roles are re-read so revoked roles drop out.
func (s *LoginService) Refresh(ctx context.Context, rawRefresh string) (SessionPair, error) {
	claims, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return SessionPair{}, err
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return SessionPair{}, ErrTokenInvalid
		}
		return SessionPair{}, err
	}
	return s.tokens.Issue(user.ID, user.Roles)
}
