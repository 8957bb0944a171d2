// Package httpx decouples request handlers from the concrete HTTP framework.
// Handlers are written against Context and exercised in tests with a fake;
// the gin adapter wires them into the real router.
package httpx

import (
	"context"
	"strings"
)

type Context interface {
	RequestContext() context.Context
	Query(string) string
	PostForm(string) string
	Header(string) string
	JSON(int, any)
	Redirect(int, string)
	Status(int)
	BindJSON(any) error
	Set(string, any)
	Get(string) (any, bool)
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(ctx Context) (string, bool) {
	raw := strings.TrimSpace(ctx.Header("Authorization"))
	if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(raw[len("Bearer "):])
	return token, token != ""
}
