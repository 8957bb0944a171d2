package oauth

import (
	"context"
	"time"
)

// MintFunc builds the token to issue for a consumed authorization code. It
// runs inside the exchange transaction, after the code has been taken but
// before anything is committed. Returning an error keeps the code consumed
// (single-use holds even on a failed exchange) without persisting a token.
type MintFunc func(code AuthorizationCode) (Token, error)

// Store is the persistence contract for the authorization server. The two
// compound operations, ExchangeCode and RotateToken, are the concurrency
// sensitive ones: each must admit exactly one winner when the same code or
// refresh token is presented concurrently.
type Store interface {
	CreateClient(ctx context.Context, client Client, rawSecret string) (Client, string, error)
	GetClient(ctx context.Context, clientID string) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, client Client) (Client, error)

	SaveCode(ctx context.Context, code AuthorizationCode) error

	// ExchangeCode atomically consumes the code identified by (rawCode,
	// clientID) and persists the token returned by mint. Missing, expired,
	// and already-consumed codes are all reported as ErrCodeNotFound. A
	// failure to persist the minted token rolls the consumption back.
	ExchangeCode(ctx context.Context, rawCode, clientID string, now time.Time, mint MintFunc) (Token, error)

	SaveToken(ctx context.Context, token Token) error
	GetByAccessToken(ctx context.Context, rawAccess string) (Token, error)
	GetByRefreshToken(ctx context.Context, rawRefresh string) (Token, error)

	// RotateToken atomically deletes the token holding oldRawRefresh and
	// persists next in its place. A second rotation with the same refresh
	// token fails with ErrTokenNotFound.
	RotateToken(ctx context.Context, oldRawRefresh string, next Token) error
}
