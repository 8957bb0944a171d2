package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid  = errors.New("session token invalid")
	ErrWrongTokenUse = errors.New("session token used for wrong purpose")
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// SessionClaims is the payload of first-party portal session tokens.
// These are distinct from the OAuth tokens handed to third-party
// clients.
type SessionClaims struct {
	Roles    []string `json:"roles"`
	TokenUse string   `json:"token_use"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies portal session tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowFn      func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowFn:      time.Now,
	}
}

type SessionPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *TokenService) Issue(userID string, roles []string) (SessionPair, error) {
	access, err := s.sign(userID, roles, useAccess, s.accessTTL)
	if err != nil {
		return SessionPair{}, err
	}
	refresh, err := s.sign(userID, roles, useRefresh, s.refreshTTL)
	if err != nil {
		return SessionPair{}, err
	}
	return SessionPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *TokenService) sign(userID string, roles []string, use string, ttl time.Duration) (string, error) {
	now := s.nowFn()
	claims := SessionClaims{
		Roles:    roles,
		TokenUse: use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses an access token and returns its claims.
func (s *TokenService) VerifyAccess(raw string) (*SessionClaims, error) {
	return s.verify(raw, useAccess)
}

// VerifyRefresh parses a refresh token and returns its claims.
func (s *TokenService) VerifyRefresh(raw string) (*SessionClaims, error) {
	return s.verify(raw, useRefresh)
}

func (s *TokenService) verify(raw, use string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.nowFn))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenUse != use {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}
