// Package oauth2 contains the OAuth2 wire types and PKCE primitives shared
// by the provider client and the session manager.
package oauth2

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// ParameterOption mutates the query or form parameters of an OAuth2 request.
type ParameterOption func(params url.Values)

// WithAccessTypeOffline requests a refresh token from providers which
// support the Google-style access_type parameter.
func WithAccessTypeOffline() ParameterOption {
	return func(params url.Values) {
		params.Set("access_type", "offline")
	}
}

// WithPrompt sets the prompt parameter, e.g. "consent" to force the consent
// screen and a fresh refresh token on every sign-in.
func WithPrompt(prompt string) ParameterOption {
	return func(params url.Values) {
		params.Set("prompt", prompt)
	}
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// Expiry converts the relative expires_in to an absolute timestamp.
func (t *TokenResponse) Expiry(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

type CodeChallengeMethod string

const (
	CodeChallengeMethodS256 CodeChallengeMethod = "S256"
)

// Error is the error document returned by OAuth2 endpoints.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// GenerateCodeVerifier returns a fresh high-entropy code verifier as
// specified in RFC 7636, section 4.1.
func GenerateCodeVerifier() string {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		panic("random number generation failed")
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// S256ChallengeFromVerifier derives the code challenge sent with the
// authorization request.
func S256ChallengeFromVerifier(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
