package oauth

import (
	"context"
	"time"
)

// AuthorizationCodeGrant implements the two-step authorization code flow:
// Issue persists a single-use code after user consent, Exchange trades it
// for a token pair. A code moves from issued to consumed-or-expired exactly
// once.
type AuthorizationCodeGrant struct {
	store  Store
	config Config
	nowFn  func() time.Time
}

func NewAuthorizationCodeGrant(store Store, config Config) *AuthorizationCodeGrant {
	return &AuthorizationCodeGrant{
		store:  store,
		config: config.normalize(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a code bound to the client, user, redirect URI, and the
// client-narrowed scope. The caller has already validated the client and
// authenticated the user.
func (g *AuthorizationCodeGrant) Issue(ctx context.Context, client Client, userID string, req AuthorizeRequest) (string, error) {
	raw, err := randomURLSafe(g.config.CodeEntropyBytes)
	if err != nil {
		return "", protocolError(ErrServerError, "failed to generate authorization code")
	}
	now := g.nowFn()
	code := AuthorizationCode{
		CodeHash:            sha256Hex(raw),
		ClientID:            client.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scope:               client.AllowedScope(req.Scope),
		ResponseType:        req.ResponseType,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		AuthTime:            now,
		ExpiresAt:           now.Add(g.config.AuthorizationCodeTTL),
	}
	if err := g.store.SaveCode(ctx, code); err != nil {
		return "", protocolError(ErrServerError, "failed to persist authorization code")
	}
	return raw, nil
}

// Exchange consumes the code and issues a token pair. The redirect URI must
// equal the one bound at issuance, and a PKCE-issued code requires a
// matching verifier. All rejection paths report invalid_grant without
// distinguishing missing from expired or consumed codes.
func (g *AuthorizationCodeGrant) Exchange(ctx context.Context, client Client, req TokenRequest) (TokenResponse, error) {
	if !client.SupportsGrantType(GrantAuthorizationCode) {
		return TokenResponse{}, protocolError(ErrUnauthorizedClient, "client may not use the authorization_code grant")
	}
	if req.Code == "" {
		return TokenResponse{}, protocolError(ErrInvalidRequest, "code is required")
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = client.DefaultRedirectURI()
	}

	now := g.nowFn()
	var rawAccess, rawRefresh string
	token, err := g.store.ExchangeCode(ctx, req.Code, client.ClientID, now, func(code AuthorizationCode) (Token, error) {
		if !constantTimeEquals(code.RedirectURI, redirectURI) {
			return Token{}, protocolError(ErrInvalidGrant, "redirect_uri does not match the authorization request")
		}
		if code.CodeChallenge != "" {
			if err := VerifyPKCE(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod); err != nil {
				return Token{}, protocolError(ErrInvalidGrant, "code_verifier is invalid")
			}
		}
		var mintErr error
		rawAccess, rawRefresh, mintErr = g.newTokenPair()
		if mintErr != nil {
			return Token{}, protocolError(ErrServerError, "failed to issue tokens")
		}
		return Token{
			AccessTokenHash:  sha256Hex(rawAccess),
			RefreshTokenHash: sha256Hex(rawRefresh),
			ClientID:         client.ClientID,
			UserID:           code.UserID,
			Scope:            code.Scope,
			TokenType:        TokenTypeBearer,
			IssuedAt:         now,
			ExpiresIn:        g.config.AccessTokenTTL,
		}, nil
	})
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken:  rawAccess,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(token.ExpiresIn / time.Second),
		RefreshToken: rawRefresh,
		Scope:        JoinScope(token.Scope),
	}, nil
}

func (g *AuthorizationCodeGrant) newTokenPair() (string, string, error) {
	access, err := randomURLSafe(g.config.TokenEntropyBytes)
	if err != nil {
		return "", "", err
	}
	refresh, err := randomURLSafe(g.config.TokenEntropyBytes)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
