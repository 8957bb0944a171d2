package oauth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/campusgate/portal/internal/httpx"
)

// UserResolver yields the authenticated portal user for the authorization
// endpoint, typically from the session middleware.
type UserResolver func(ctx httpx.Context) (string, error)

// ProfileResolver loads userinfo claims for an authenticated token subject.
type ProfileResolver func(ctx context.Context, userID string) (map[string]any, error)

type AuthorizeHandler struct {
	server      *Server
	resolveUser UserResolver
}

func NewAuthorizeHandler(server *Server, resolveUser UserResolver) *AuthorizeHandler {
	return &AuthorizeHandler{server: server, resolveUser: resolveUser}
}

func (h *AuthorizeHandler) Handle(ctx httpx.Context) {
	req := AuthorizeRequest{
		ResponseType:        strings.TrimSpace(ctx.Query("response_type")),
		ClientID:            strings.TrimSpace(ctx.Query("client_id")),
		RedirectURI:         strings.TrimSpace(ctx.Query("redirect_uri")),
		Scope:               SplitScope(ctx.Query("scope")),
		State:               ctx.Query("state"),
		Nonce:               ctx.Query("nonce"),
		CodeChallenge:       strings.TrimSpace(ctx.Query("code_challenge")),
		CodeChallengeMethod: strings.TrimSpace(ctx.Query("code_challenge_method")),
	}

	// Client and redirect URI are pinned down before anything else; failures
	// here are answered directly so an unregistered URI never receives a
	// redirect.
	client, redirectURI, err := h.server.ValidateAuthorizationRequest(ctx.RequestContext(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	userID, err := h.resolveUser(ctx)
	if err != nil || userID == "" {
		redirectError(ctx, redirectURI, req.State, protocolError(ErrAccessDenied, "user is not authenticated"))
		return
	}

	code, err := h.server.Authorize(ctx.RequestContext(), client, redirectURI, userID, req)
	if err != nil {
		redirectError(ctx, redirectURI, req.State, AsError(err))
		return
	}
	location, buildErr := appendRedirectParams(redirectURI, map[string]string{
		"code":  code,
		"state": req.State,
	})
	if buildErr != nil {
		writeError(ctx, protocolError(ErrServerError, "failed to render redirect"))
		return
	}
	ctx.Redirect(http.StatusFound, location)
}

type TokenHandler struct {
	server *Server
}

func NewTokenHandler(server *Server) *TokenHandler {
	return &TokenHandler{server: server}
}

func (h *TokenHandler) Handle(ctx httpx.Context) {
	req := TokenRequest{
		GrantType:    strings.TrimSpace(ctx.PostForm("grant_type")),
		ClientID:     strings.TrimSpace(ctx.PostForm("client_id")),
		ClientSecret: strings.TrimSpace(ctx.PostForm("client_secret")),
		AuthMethod:   AuthMethodSecretPost,
		Code:         strings.TrimSpace(ctx.PostForm("code")),
		RedirectURI:  strings.TrimSpace(ctx.PostForm("redirect_uri")),
		CodeVerifier: strings.TrimSpace(ctx.PostForm("code_verifier")),
		RefreshToken: strings.TrimSpace(ctx.PostForm("refresh_token")),
		Scope:        ctx.PostForm("scope"),
	}
	if id, secret, ok := basicClientCredentials(ctx); ok {
		req.ClientID = id
		req.ClientSecret = secret
		req.AuthMethod = AuthMethodSecretBasic
	}

	response, err := h.server.Token(ctx.RequestContext(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, response)
}

type UserInfoHandler struct {
	protector      *ResourceProtector
	resolveProfile ProfileResolver
}

func NewUserInfoHandler(protector *ResourceProtector, resolveProfile ProfileResolver) *UserInfoHandler {
	return &UserInfoHandler{protector: protector, resolveProfile: resolveProfile}
}

func (h *UserInfoHandler) Handle(ctx httpx.Context) {
	raw, ok := httpx.BearerToken(ctx)
	if !ok {
		writeError(ctx, protocolError(ErrInvalidToken, "access token is missing"))
		return
	}
	token, err := h.protector.Authenticate(ctx.RequestContext(), raw)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if err := h.protector.RequireScope(token, "profile"); err != nil {
		writeError(ctx, err)
		return
	}
	claims, err := h.resolveProfile(ctx.RequestContext(), token.UserID)
	if err != nil {
		writeError(ctx, protocolError(ErrServerError, "failed to load profile"))
		return
	}
	ctx.JSON(http.StatusOK, claims)
}

func basicClientCredentials(ctx httpx.Context) (string, string, bool) {
	raw := strings.TrimSpace(ctx.Header("Authorization"))
	if !strings.HasPrefix(strings.ToLower(raw), "basic ") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw[len("Basic "):]))
	if err != nil {
		return "", "", false
	}
	id, secret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return id, secret, true
}

func writeError(ctx httpx.Context, err error) {
	perr := AsError(err)
	ctx.JSON(perr.StatusCode(), ErrorResponse{
		Error:            string(perr.Code),
		ErrorDescription: perr.Description,
	})
}

func redirectError(ctx httpx.Context, redirectURI, state string, perr *Error) {
	params := map[string]string{"error": string(perr.Code)}
	if perr.Description != "" {
		params["error_description"] = perr.Description
	}
	if state != "" {
		params["state"] = state
	}
	location, err := appendRedirectParams(redirectURI, params)
	if err != nil {
		writeError(ctx, perr)
		return
	}
	ctx.Redirect(http.StatusFound, location)
}

func appendRedirectParams(base string, values map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !redirectSchemeAllowed(u.Scheme) {
		return "", protocolError(ErrInvalidRequest, "redirect_uri scheme is not allowed")
	}
	q := u.Query()
	for key, value := range values {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redirectSchemeAllowed accepts http(s) and reverse-domain custom schemes
// (RFC 8252 native apps, e.g. edu.example.app). Anything else, javascript:
// and data: included, is refused even when registered.
func redirectSchemeAllowed(scheme string) bool {
	switch scheme {
	case "http", "https":
		return true
	}
	return strings.Contains(scheme, ".")
}
