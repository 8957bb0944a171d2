package oauth

import (
	"context"
	"errors"
	"time"
)

// RefreshTokenGrant issues a replacement token pair and rotates the refresh
// token on use: the old row is deleted atomically with the new insertion, so
// each refresh token redeems at most once.
type RefreshTokenGrant struct {
	store  Store
	config Config
	nowFn  func() time.Time
}

func NewRefreshTokenGrant(store Store, config Config) *RefreshTokenGrant {
	return &RefreshTokenGrant{
		store:  store,
		config: config.normalize(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Refresh trades the presented refresh token for a new access/refresh pair
// bound to the same client and user. The scope may be narrowed by the
// request but never widened.
func (g *RefreshTokenGrant) Refresh(ctx context.Context, client Client, req TokenRequest) (TokenResponse, error) {
	if !client.SupportsGrantType(GrantRefreshToken) {
		return TokenResponse{}, protocolError(ErrUnauthorizedClient, "client may not use the refresh_token grant")
	}
	if req.RefreshToken == "" {
		return TokenResponse{}, protocolError(ErrInvalidRequest, "refresh_token is required")
	}
	old, err := g.store.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return TokenResponse{}, protocolError(ErrInvalidGrant, "refresh token is invalid")
	}
	if old.ClientID != client.ClientID {
		return TokenResponse{}, protocolError(ErrInvalidGrant, "refresh token is invalid")
	}

	scope := old.Scope
	if requested := SplitScope(req.Scope); len(requested) > 0 {
		if !scopeIsSubset(requested, old.Scope) {
			return TokenResponse{}, protocolError(ErrInvalidScope, "requested scope exceeds the original grant")
		}
		scope = client.AllowedScope(requested)
	}

	rawAccess, err := randomURLSafe(g.config.TokenEntropyBytes)
	if err != nil {
		return TokenResponse{}, protocolError(ErrServerError, "failed to issue tokens")
	}
	rawRefresh, err := randomURLSafe(g.config.TokenEntropyBytes)
	if err != nil {
		return TokenResponse{}, protocolError(ErrServerError, "failed to issue tokens")
	}
	now := g.nowFn()
	next := Token{
		AccessTokenHash:  sha256Hex(rawAccess),
		RefreshTokenHash: sha256Hex(rawRefresh),
		ClientID:         client.ClientID,
		UserID:           old.UserID,
		Scope:            scope,
		TokenType:        TokenTypeBearer,
		IssuedAt:         now,
		ExpiresIn:        g.config.AccessTokenTTL,
	}
	if err := g.store.RotateToken(ctx, req.RefreshToken, next); err != nil {
		// A concurrent refresh won the rotation; this request loses.
		if errors.Is(err, ErrTokenNotFound) {
			return TokenResponse{}, protocolError(ErrInvalidGrant, "refresh token is invalid")
		}
		return TokenResponse{}, protocolError(ErrServerError, "failed to rotate refresh token")
	}
	return TokenResponse{
		AccessToken:  rawAccess,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(next.ExpiresIn / time.Second),
		RefreshToken: rawRefresh,
		Scope:        JoinScope(scope),
	}, nil
}
