package oauth

import "time"

// Config carries the authorization-server TTLs. Refresh tokens have no
// independent expiry; they live until rotated away.
type Config struct {
	AuthorizationCodeTTL time.Duration
	AccessTokenTTL       time.Duration
	CodeEntropyBytes     int
	TokenEntropyBytes    int
}

func DefaultConfig() Config {
	return Config{
		AuthorizationCodeTTL: 5 * time.Minute,
		AccessTokenTTL:       time.Hour,
		CodeEntropyBytes:     48,
		TokenEntropyBytes:    32,
	}
}

func (c Config) normalize() Config {
	out := c
	if out.AuthorizationCodeTTL <= 0 {
		out.AuthorizationCodeTTL = 5 * time.Minute
	}
	if out.AccessTokenTTL <= 0 {
		out.AccessTokenTTL = time.Hour
	}
	if out.CodeEntropyBytes < 32 {
		out.CodeEntropyBytes = 48
	}
	if out.TokenEntropyBytes < 32 {
		out.TokenEntropyBytes = 32
	}
	return out
}
