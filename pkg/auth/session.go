package auth

import "time"

// Session is one authenticated identity binding. At most one session is
// current at a time; a new sign-in fully replaces the previous session.
type Session struct {
	UserID               string    `json:"user_id"`
	Email                string    `json:"email,omitempty"`
	BearerToken          string    `json:"bearer_token"`
	ProviderAccessToken  string    `json:"provider_access_token"`
	ProviderRefreshToken string    `json:"provider_refresh_token"`
	ProviderTokenExpiry  time.Time `json:"provider_token_expiry"`
	CreatedAt            time.Time `json:"created_at"`
}

// AuthorizationRequest is a prepared PKCE authorization request. The
// verifier is bound 1:1 to this request and never leaves the process.
type AuthorizationRequest struct {
	URL      string
	State    string
	Nonce    string
	Verifier string
}
