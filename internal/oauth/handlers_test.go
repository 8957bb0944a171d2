package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/campusgate/portal/internal/httpx"
)

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func newTestServer(t *testing.T) (*Server, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	_, _, err := store.CreateClient(context.Background(), Client{
		ClientID:     "client_1",
		Name:         "grades-app",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scopes:       []string{"read:profile", "read:email"},
	}, "secret_1")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return NewServer(store, DefaultConfig(), nil), store
}

func loggedIn(userID string) UserResolver {
	return func(httpx.Context) (string, error) {
		return userID, nil
	}
}

func authorizeQuery() map[string]string {
	return map[string]string{
		"response_type":         "code",
		"client_id":             "client_1",
		"redirect_uri":          "https://app.example.com/callback",
		"scope":                 "read:profile read:email",
		"state":                 "state-1",
		"code_challenge":        testChallenge,
		"code_challenge_method": "S256",
	}
}

func codeFromRedirect(t *testing.T, ctx *httpx.Fake) string {
	t.Helper()
	if ctx.StatusCode != 302 {
		t.Fatalf("expected 302, got %d body=%v", ctx.StatusCode, ctx.Body)
	}
	u, err := url.Parse(ctx.RedirectedTo)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		t.Fatalf("redirect carries no code: %s", ctx.RedirectedTo)
	}
	return code
}

func exchangeForm(code string) map[string]string {
	return map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "client_1",
		"client_secret": "secret_1",
		"code":          code,
		"redirect_uri":  "https://app.example.com/callback",
		"code_verifier": testVerifier,
	}
}

func TestAuthorizeRedirectsWithCodeAndState(t *testing.T) {
	server, _ := newTestServer(t)
	handler := NewAuthorizeHandler(server, loggedIn("u_1"))

	ctx := &httpx.Fake{QueryParams: authorizeQuery()}
	handler.Handle(ctx)

	code := codeFromRedirect(t, ctx)
	if code == "" {
		t.Fatalf("missing code")
	}
	u, _ := url.Parse(ctx.RedirectedTo)
	if u.Query().Get("state") != "state-1" {
		t.Fatalf("state not relayed: %s", ctx.RedirectedTo)
	}
}

func TestAuthorizeUnregisteredRedirectURIDoesNotRedirect(t *testing.T) {
	server, _ := newTestServer(t)
	handler := NewAuthorizeHandler(server, loggedIn("u_1"))

	query := authorizeQuery()
	query["redirect_uri"] = "https://evil.example.com/callback"
	ctx := &httpx.Fake{QueryParams: query}
	handler.Handle(ctx)

	if ctx.RedirectedTo != "" {
		t.Fatalf("invalid redirect_uri must never be redirected to: %s", ctx.RedirectedTo)
	}
	if ctx.StatusCode != 400 {
		t.Fatalf("expected direct 400, got %d", ctx.StatusCode)
	}
}

func TestAuthorizeUnknownClientDoesNotRedirect(t *testing.T) {
	server, _ := newTestServer(t)
	handler := NewAuthorizeHandler(server, loggedIn("u_1"))

	query := authorizeQuery()
	query["client_id"] = "client_404"
	ctx := &httpx.Fake{QueryParams: query}
	handler.Handle(ctx)

	if ctx.RedirectedTo != "" {
		t.Fatalf("unknown client must not trigger a redirect")
	}
	body, ok := ctx.Body.(ErrorResponse)
	if !ok || body.Error != string(ErrInvalidClient) {
		t.Fatalf("expected invalid_client, got %+v", ctx.Body)
	}
}

func TestAuthorizeAnonymousUserRelaysAccessDenied(t *testing.T) {
	server, _ := newTestServer(t)
	handler := NewAuthorizeHandler(server, func(httpx.Context) (string, error) {
		return "", protocolError(ErrAccessDenied, "no session")
	})

	ctx := &httpx.Fake{QueryParams: authorizeQuery()}
	handler.Handle(ctx)

	if ctx.StatusCode != 302 {
		t.Fatalf("validated-client errors relay via redirect, got %d", ctx.StatusCode)
	}
	u, _ := url.Parse(ctx.RedirectedTo)
	if u.Query().Get("error") != string(ErrAccessDenied) {
		t.Fatalf("expected access_denied relay: %s", ctx.RedirectedTo)
	}
	if u.Query().Get("state") != "state-1" {
		t.Fatalf("state must accompany relayed errors: %s", ctx.RedirectedTo)
	}
}

func TestAuthorizeImplicitResponseTypeRelaysError(t *testing.T) {
	server, _ := newTestServer(t)
	handler := NewAuthorizeHandler(server, loggedIn("u_1"))

	query := authorizeQuery()
	query["response_type"] = "token"
	ctx := &httpx.Fake{QueryParams: query}
	handler.Handle(ctx)

	if ctx.StatusCode != 302 {
		t.Fatalf("expected redirect relay, got %d", ctx.StatusCode)
	}
	u, _ := url.Parse(ctx.RedirectedTo)
	if u.Query().Get("error") != string(ErrUnsupportedResponse) {
		t.Fatalf("expected unsupported_response_type: %s", ctx.RedirectedTo)
	}
}

func TestTokenExchangeIssuesNarrowedScope(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	query := authorizeQuery()
	query["scope"] = "read:profile read:email read:roles"
	authCtx := &httpx.Fake{QueryParams: query}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	tokenCtx := &httpx.Fake{FormParams: exchangeForm(code)}
	token.Handle(tokenCtx)

	if tokenCtx.StatusCode != 200 {
		t.Fatalf("expected 200, got %d body=%v", tokenCtx.StatusCode, tokenCtx.Body)
	}
	response, ok := tokenCtx.Body.(TokenResponse)
	if !ok {
		t.Fatalf("expected token response, got %T", tokenCtx.Body)
	}
	if response.Scope != "read:profile read:email" {
		t.Fatalf("scope not narrowed to allowed set: %q", response.Scope)
	}
	if response.AccessToken == "" || response.RefreshToken == "" {
		t.Fatalf("missing tokens: %+v", response)
	}
	if response.TokenType != TokenTypeBearer || response.ExpiresIn != 3600 {
		t.Fatalf("unexpected token metadata: %+v", response)
	}
}

func TestTokenExchangeReplayFails(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	authCtx := &httpx.Fake{QueryParams: authorizeQuery()}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	first := &httpx.Fake{FormParams: exchangeForm(code)}
	token.Handle(first)
	if first.StatusCode != 200 {
		t.Fatalf("first exchange should pass: %d %v", first.StatusCode, first.Body)
	}

	second := &httpx.Fake{FormParams: exchangeForm(code)}
	token.Handle(second)
	if second.StatusCode != 400 {
		t.Fatalf("replay should fail with 400, got %d", second.StatusCode)
	}
	body, _ := second.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidGrant) {
		t.Fatalf("expected invalid_grant, got %+v", second.Body)
	}
}

func TestTokenExchangeExpiredCodeFails(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	authCtx := &httpx.Fake{QueryParams: authorizeQuery()}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	server.codeGrant.nowFn = func() time.Time {
		return time.Now().UTC().Add(5*time.Minute + time.Second)
	}
	ctx := &httpx.Fake{FormParams: exchangeForm(code)}
	token.Handle(ctx)

	if ctx.StatusCode != 400 {
		t.Fatalf("expired code should fail with 400, got %d", ctx.StatusCode)
	}
	body, _ := ctx.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidGrant) {
		t.Fatalf("expired codes must look like invalid codes, got %+v", ctx.Body)
	}
}

func TestTokenExchangeRedirectMismatchFailsAndConsumes(t *testing.T) {
	server, store := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)
	if _, _, err := store.CreateClient(context.Background(), Client{
		ClientID:     "client_1b",
		RedirectURIs: []string{"https://app.example.com/callback", "https://app.example.com/other"},
		Scopes:       []string{"read:profile"},
	}, "secret_1b"); err != nil {
		t.Fatalf("create client: %v", err)
	}

	query := authorizeQuery()
	query["client_id"] = "client_1b"
	authCtx := &httpx.Fake{QueryParams: query}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	form := exchangeForm(code)
	form["client_id"] = "client_1b"
	form["client_secret"] = "secret_1b"
	form["redirect_uri"] = "https://app.example.com/other"
	ctx := &httpx.Fake{FormParams: form}
	token.Handle(ctx)
	if ctx.StatusCode != 400 {
		t.Fatalf("redirect mismatch should fail, got %d", ctx.StatusCode)
	}

	// Single use holds even though the mismatch rejected the exchange.
	form["redirect_uri"] = "https://app.example.com/callback"
	retry := &httpx.Fake{FormParams: form}
	token.Handle(retry)
	if retry.StatusCode != 400 {
		t.Fatalf("code must be consumed by the failed exchange, got %d", retry.StatusCode)
	}
}

func TestTokenExchangeWrongVerifierFails(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	authCtx := &httpx.Fake{QueryParams: authorizeQuery()}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	form := exchangeForm(code)
	form["code_verifier"] = "not-the-right-verifier-not-the-right"
	ctx := &httpx.Fake{FormParams: form}
	token.Handle(ctx)

	if ctx.StatusCode != 400 {
		t.Fatalf("wrong verifier should fail, got %d", ctx.StatusCode)
	}
	body, _ := ctx.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidGrant) {
		t.Fatalf("expected invalid_grant, got %+v", ctx.Body)
	}
}

func TestTokenExchangeOmittedPKCEMethodTreatedAsPlain(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	query := authorizeQuery()
	query["code_challenge"] = "plain-challenge-value-plain-challenge-value"
	delete(query, "code_challenge_method")
	authCtx := &httpx.Fake{QueryParams: query}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	form := exchangeForm(code)
	form["code_verifier"] = "plain-challenge-value-plain-challenge-value"
	ctx := &httpx.Fake{FormParams: form}
	token.Handle(ctx)

	if ctx.StatusCode != 200 {
		t.Fatalf("method-less challenge must verify as plain: %d %v", ctx.StatusCode, ctx.Body)
	}
}

func TestTokenExchangeMissingCodeIsInvalidRequest(t *testing.T) {
	server, _ := newTestServer(t)
	token := NewTokenHandler(server)

	form := exchangeForm("")
	ctx := &httpx.Fake{FormParams: form}
	token.Handle(ctx)

	if ctx.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", ctx.StatusCode)
	}
	body, _ := ctx.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidRequest) {
		t.Fatalf("missing code is a malformed request, got %+v", ctx.Body)
	}
}

func TestRefreshMissingTokenIsInvalidRequest(t *testing.T) {
	server, _ := newTestServer(t)
	token := NewTokenHandler(server)

	ctx := &httpx.Fake{FormParams: map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "client_1",
		"client_secret": "secret_1",
	}}
	token.Handle(ctx)

	if ctx.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", ctx.StatusCode)
	}
	body, _ := ctx.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidRequest) {
		t.Fatalf("missing refresh_token is a malformed request, got %+v", ctx.Body)
	}
}

func TestAuthorizeCustomSchemeRedirect(t *testing.T) {
	server, store := newTestServer(t)
	if _, _, err := store.CreateClient(context.Background(), Client{
		ClientID:     "client_native",
		RedirectURIs: []string{"edu.example.app:/callback"},
		Scopes:       []string{"read:profile"},
	}, "secret_native"); err != nil {
		t.Fatalf("create client: %v", err)
	}
	handler := NewAuthorizeHandler(server, loggedIn("u_1"))

	query := authorizeQuery()
	query["client_id"] = "client_native"
	query["redirect_uri"] = "edu.example.app:/callback"
	query["scope"] = "read:profile"
	ctx := &httpx.Fake{QueryParams: query}
	handler.Handle(ctx)

	if ctx.StatusCode != 302 {
		t.Fatalf("reverse-domain scheme should redirect: %d %v", ctx.StatusCode, ctx.Body)
	}
	u, err := url.Parse(ctx.RedirectedTo)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if u.Scheme != "edu.example.app" || u.Query().Get("code") == "" {
		t.Fatalf("redirect = %s", ctx.RedirectedTo)
	}
}

func TestRedirectSchemeAllowlist(t *testing.T) {
	for scheme, want := range map[string]bool{
		"http":            true,
		"https":           true,
		"edu.example.app": true,
		"httpx":           false,
		"javascript":      false,
		"data":            false,
	} {
		if got := redirectSchemeAllowed(scheme); got != want {
			t.Fatalf("scheme %q allowed=%v, want %v", scheme, got, want)
		}
	}
}

func TestTokenExchangeBadSecretFails(t *testing.T) {
	server, _ := newTestServer(t)
	token := NewTokenHandler(server)

	form := exchangeForm("whatever")
	form["client_secret"] = "wrong"
	ctx := &httpx.Fake{FormParams: form}
	token.Handle(ctx)

	if ctx.StatusCode != 401 {
		t.Fatalf("bad secret should fail with 401, got %d", ctx.StatusCode)
	}
	body, _ := ctx.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidClient) {
		t.Fatalf("expected invalid_client, got %+v", ctx.Body)
	}
}

func TestTokenEndpointBasicAuth(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	authCtx := &httpx.Fake{QueryParams: authorizeQuery()}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	form := exchangeForm(code)
	delete(form, "client_id")
	delete(form, "client_secret")
	credentials := base64.StdEncoding.EncodeToString([]byte("client_1:secret_1"))
	ctx := &httpx.Fake{
		FormParams: form,
		Headers:    map[string]string{"Authorization": "Basic " + credentials},
	}
	token.Handle(ctx)

	if ctx.StatusCode != 200 {
		t.Fatalf("basic auth exchange should pass: %d %v", ctx.StatusCode, ctx.Body)
	}
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	server, _ := newTestServer(t)
	token := NewTokenHandler(server)

	ctx := &httpx.Fake{FormParams: map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "client_1",
		"client_secret": "secret_1",
	}}
	token.Handle(ctx)

	if ctx.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", ctx.StatusCode)
	}
	body, _ := ctx.Body.(ErrorResponse)
	if body.Error != string(ErrUnsupportedGrantType) {
		t.Fatalf("expected unsupported_grant_type, got %+v", ctx.Body)
	}
}

func TestRefreshRotatesAndOldTokenDies(t *testing.T) {
	server, store := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	authCtx := &httpx.Fake{QueryParams: authorizeQuery()}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)

	first := &httpx.Fake{FormParams: exchangeForm(code)}
	token.Handle(first)
	issued, ok := first.Body.(TokenResponse)
	if !ok {
		t.Fatalf("expected token response, got %T", first.Body)
	}

	refreshForm := map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "client_1",
		"client_secret": "secret_1",
		"refresh_token": issued.RefreshToken,
	}
	refreshCtx := &httpx.Fake{FormParams: refreshForm}
	token.Handle(refreshCtx)
	refreshed, ok := refreshCtx.Body.(TokenResponse)
	if !ok || refreshCtx.StatusCode != 200 {
		t.Fatalf("refresh should pass: %d %v", refreshCtx.StatusCode, refreshCtx.Body)
	}
	if refreshed.RefreshToken == issued.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if refreshed.AccessToken == issued.AccessToken {
		t.Fatalf("access token was not replaced")
	}
	if _, err := store.GetByRefreshToken(context.Background(), issued.RefreshToken); err == nil {
		t.Fatalf("old refresh token should be invalidated")
	}
	if _, err := store.GetByAccessToken(context.Background(), issued.AccessToken); err == nil {
		t.Fatalf("old access token should be revoked by rotation")
	}

	replay := &httpx.Fake{FormParams: refreshForm}
	token.Handle(replay)
	if replay.StatusCode != 400 {
		t.Fatalf("rotated-away refresh token should fail, got %d", replay.StatusCode)
	}
	body, _ := replay.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidGrant) {
		t.Fatalf("expected invalid_grant, got %+v", replay.Body)
	}
}

func TestRefreshScopeMayNarrowNotWiden(t *testing.T) {
	server, _ := newTestServer(t)
	authorize := NewAuthorizeHandler(server, loggedIn("u_1"))
	token := NewTokenHandler(server)

	authCtx := &httpx.Fake{QueryParams: authorizeQuery()}
	authorize.Handle(authCtx)
	code := codeFromRedirect(t, authCtx)
	first := &httpx.Fake{FormParams: exchangeForm(code)}
	token.Handle(first)
	issued := first.Body.(TokenResponse)

	widen := &httpx.Fake{FormParams: map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "client_1",
		"client_secret": "secret_1",
		"refresh_token": issued.RefreshToken,
		"scope":         "read:profile read:email read:roles",
	}}
	token.Handle(widen)
	if widen.StatusCode != 400 {
		t.Fatalf("scope widening should fail, got %d", widen.StatusCode)
	}
	body, _ := widen.Body.(ErrorResponse)
	if body.Error != string(ErrInvalidScope) {
		t.Fatalf("expected invalid_scope, got %+v", widen.Body)
	}

	narrow := &httpx.Fake{FormParams: map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "client_1",
		"client_secret": "secret_1",
		"refresh_token": issued.RefreshToken,
		"scope":         "read:profile",
	}}
	token.Handle(narrow)
	if narrow.StatusCode != 200 {
		t.Fatalf("narrowing should pass: %d %v", narrow.StatusCode, narrow.Body)
	}
	refreshed := narrow.Body.(TokenResponse)
	if refreshed.Scope != "read:profile" {
		t.Fatalf("expected narrowed scope, got %q", refreshed.Scope)
	}
}

func TestUserInfoRequiresProfileScope(t *testing.T) {
	store := NewInMemoryStore()
	protector := NewResourceProtector(store)
	now := time.Now().UTC()
	if err := store.SaveToken(context.Background(), Token{
		AccessTokenHash: sha256Hex("access_1"),
		ClientID:        "client_1",
		UserID:          "u_1",
		Scope:           []string{"read:email"},
		IssuedAt:        now,
		ExpiresIn:       time.Hour,
	}); err != nil {
		t.Fatalf("save token: %v", err)
	}

	handler := NewUserInfoHandler(protector, func(_ context.Context, userID string) (map[string]any, error) {
		return map[string]any{"sub": userID}, nil
	})
	ctx := &httpx.Fake{Headers: map[string]string{"Authorization": "Bearer access_1"}}
	handler.Handle(ctx)

	if ctx.StatusCode != 401 {
		t.Fatalf("missing profile scope should fail with 401, got %d", ctx.StatusCode)
	}
}

// Guards against the sha256 helper drifting from the PKCE S256 definition.
func TestS256ChallengeFixture(t *testing.T) {
	sum := sha256.Sum256([]byte(testVerifier))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != testChallenge {
		t.Fatalf("test fixture verifier/challenge pair is inconsistent")
	}
}
