package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

var (
	ErrPKCEMethodNotSupported = errors.New("code_challenge_method must be S256 or plain")
	ErrPKCEVerifierMismatch   = errors.New("invalid code_verifier")
)

// VerifyPKCE checks the verifier against the stored challenge under the
// stored method. An omitted method means plain, per RFC 7636.
func VerifyPKCE(codeVerifier, challenge, method string) error {
	if codeVerifier == "" || challenge == "" {
		return ErrPKCEVerifierMismatch
	}
	switch method {
	case PKCEMethodS256:
		h := sha256.Sum256([]byte(codeVerifier))
		encoded := base64.RawURLEncoding.EncodeToString(h[:])
		if !constantTimeEquals(encoded, challenge) {
			return ErrPKCEVerifierMismatch
		}
		return nil
	case PKCEMethodPlain, "":
		if !constantTimeEquals(codeVerifier, challenge) {
			return ErrPKCEVerifierMismatch
		}
		return nil
	default:
		return ErrPKCEMethodNotSupported
	}
}

// ValidPKCEMethod reports whether the authorization endpoint accepts the
// requested challenge method.
func ValidPKCEMethod(method string) bool {
	return method == "" || method == PKCEMethodS256 || method == PKCEMethodPlain
}
