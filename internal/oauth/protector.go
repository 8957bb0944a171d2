package oauth

import (
	"context"
	"time"
)

// ResourceProtector resolves bearer tokens for protected resource calls.
// There is no automatic refresh; an expired access token is simply invalid.
type ResourceProtector struct {
	store Store
	nowFn func() time.Time
}

func NewResourceProtector(store Store) *ResourceProtector {
	return &ResourceProtector{
		store: store,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate resolves the bearer access token against the token store.
func (p *ResourceProtector) Authenticate(ctx context.Context, rawAccess string) (Token, error) {
	if rawAccess == "" {
		return Token{}, protocolError(ErrInvalidToken, "access token is missing")
	}
	token, err := p.store.GetByAccessToken(ctx, rawAccess)
	if err != nil {
		return Token{}, protocolError(ErrInvalidToken, "access token is invalid")
	}
	if token.Expired(p.nowFn()) {
		return Token{}, protocolError(ErrInvalidToken, "access token is invalid")
	}
	return token, nil
}

// RequireScope checks that the token grants every required scope.
func (p *ResourceProtector) RequireScope(token Token, required ...string) error {
	if !scopeIsSubset(required, token.Scope) {
		return protocolError(ErrInvalidToken, "token scope is insufficient")
	}
	return nil
}
