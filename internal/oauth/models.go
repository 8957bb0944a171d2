package oauth

import (
	"strings"
	"time"
)

// GrantType enumerates the supported OAuth2 flows.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// ParseGrantType maps the wire grant_type field to a known kind.
func ParseGrantType(value string) (GrantType, bool) {
	switch GrantType(value) {
	case GrantAuthorizationCode:
		return GrantAuthorizationCode, true
	case GrantRefreshToken:
		return GrantRefreshToken, true
	default:
		return "", false
	}
}

const (
	ResponseTypeCode = "code"

	AuthMethodSecretPost  = "client_secret_post"
	AuthMethodSecretBasic = "client_secret_basic"

	TokenTypeBearer = "Bearer"
)

// Client is a registered OAuth2 application. Secrets are stored hashed;
// the raw secret is shown once at creation time.
type Client struct {
	ClientID     string    `json:"client_id"`
	SecretHash   string    `json:"-"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	GrantTypes   []string  `json:"grant_types"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// DefaultRedirectURI is used when an authorization request omits
// redirect_uri.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// AllowedScope intersects the requested scopes with the client's allowed
// set. It never errors; disallowed scopes are silently dropped.
func (c *Client) AllowedScope(requested []string) []string {
	if len(requested) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(c.Scopes))
	for _, scope := range c.Scopes {
		allowed[scope] = struct{}{}
	}
	out := make([]string, 0, len(requested))
	for _, scope := range normalizeScopes(requested) {
		if _, ok := allowed[scope]; ok {
			out = append(out, scope)
		}
	}
	return out
}

// RedirectURIValid reports exact membership in the registered set. No
// wildcard or prefix matching.
func (c *Client) RedirectURIValid(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if constantTimeEquals(registered, uri) {
			return true
		}
	}
	return false
}

// SecretMatches compares the candidate against the stored secret in
// constant time.
func (c *Client) SecretMatches(candidate string) bool {
	if c.SecretHash == "" || candidate == "" {
		return false
	}
	return constantTimeEquals(c.SecretHash, sha256Hex(candidate))
}

func (c *Client) SupportsGrantType(grantType GrantType) bool {
	for _, value := range c.GrantTypes {
		if value == string(grantType) {
			return true
		}
	}
	return false
}

func (c *Client) SupportsResponseType(responseType string) bool {
	return responseType == ResponseTypeCode
}

func (c *Client) SupportsTokenAuthMethod(method string) bool {
	return method == AuthMethodSecretPost || method == AuthMethodSecretBasic
}

// PrepareClient normalizes a client for storage, generating the client_id
// and secret when absent. The raw secret is returned once; only its hash is
// kept.
func PrepareClient(client Client, rawSecret string) (Client, string, error) {
	client.ClientID = strings.TrimSpace(client.ClientID)
	if client.ClientID == "" {
		randomID, err := randomURLSafe(24)
		if err != nil {
			return Client{}, "", err
		}
		client.ClientID = "cl_" + randomID
	}
	if rawSecret == "" {
		newSecret, err := randomURLSafe(32)
		if err != nil {
			return Client{}, "", err
		}
		rawSecret = newSecret
	}
	client.SecretHash = sha256Hex(rawSecret)
	client.Scopes = normalizeScopes(client.Scopes)
	client.RedirectURIs = normalizeScopes(client.RedirectURIs)
	if len(client.GrantTypes) == 0 {
		client.GrantTypes = []string{string(GrantAuthorizationCode), string(GrantRefreshToken)}
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	return client, rawSecret, nil
}

// MergeClientUpdate applies the non-empty fields of update onto current.
// The client_id and secret are immutable through this path.
func MergeClientUpdate(current, update Client) Client {
	if update.Name != "" {
		current.Name = update.Name
	}
	if update.Description != "" {
		current.Description = update.Description
	}
	if len(update.RedirectURIs) > 0 {
		current.RedirectURIs = normalizeScopes(update.RedirectURIs)
	}
	if len(update.Scopes) > 0 {
		current.Scopes = normalizeScopes(update.Scopes)
	}
	if len(update.GrantTypes) > 0 {
		current.GrantTypes = normalizeScopes(update.GrantTypes)
	}
	return current
}

// AuthorizationCode is a short-lived single-use credential binding a user,
// client, redirect URI, scope, and optional PKCE challenge. The code itself
// is stored hashed.
type AuthorizationCode struct {
	CodeHash            string
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               []string
	ResponseType        string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	AuthTime            time.Time
	ExpiresAt           time.Time
}

// Expired reports whether the code has outlived its TTL.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Token is an issued access/refresh pair. Both token strings are stored
// hashed; refresh tokens carry no independent expiry and live until rotated.
type Token struct {
	AccessTokenHash  string
	RefreshTokenHash string
	ClientID         string
	UserID           string
	Scope            []string
	TokenType        string
	IssuedAt         time.Time
	ExpiresIn        time.Duration
}

// Expired reports whether the access token's validity window has elapsed.
// The token is valid strictly before issued_at + expires_in.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.IssuedAt.Add(t.ExpiresIn))
}
