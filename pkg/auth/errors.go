package auth

import "errors"

var (
	// ErrSignInInProgress rejects a second interactive sign-in while one is
	// still running.
	ErrSignInInProgress = errors.New("interactive sign-in already in progress")

	// ErrCancelled is returned by a consent driver when the user dismisses
	// or denies the provider's consent screen.
	ErrCancelled = errors.New("sign-in cancelled by the user")

	// ErrTokenExchange wraps failures of the code-for-token exchange,
	// including a token response without an ID token.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrIdentitySignIn wraps failures of the backend identity sign-in.
	ErrIdentitySignIn = errors.New("backend sign-in failed")

	// ErrSignOut wraps a rejected backend session invalidation. The local
	// session is terminated regardless.
	ErrSignOut = errors.New("backend sign-out failed")

	ErrNotSignedIn = errors.New("not signed in")
)
