// Package auth owns the sign-in lifecycle: the PKCE authorization request,
// the idempotent redirect callback, the backend session and its teardown.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dayloop/dayloop-go/pkg/oauth2"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Provider is the OpenID provider client. *oidc.Client satisfies it.
type Provider interface {
	AuthCodeURL(state, nonce, verifier string, opts ...oauth2.ParameterOption) string
	Exchange(ctx context.Context, code, verifier string, opts ...oauth2.ParameterOption) (*oauth2.TokenResponse, error)
	ParseIDToken(serialized, expectedNonce string) (jwt.Token, error)
}

// IdentityService is the backend identity endpoint. *backend.Client
// satisfies it.
type IdentityService interface {
	SignInWithIDToken(ctx context.Context, idToken string) (userID, bearer string, err error)
	SignOut(ctx context.Context, bearer string) error
}

// TokenStore receives the provider tokens for later calendar sync. Its
// failures never fail a sign-in.
type TokenStore interface {
	StoreProviderTokens(ctx context.Context, bearer, userID, accessToken, refreshToken string, expiresAt time.Time) error
}

// ConsentDriver runs the interactive part of the flow: it sends the user to
// authURL and blocks until the provider redirects back with a code and
// state, or the user bails out (ErrCancelled).
type ConsentDriver interface {
	Authorize(ctx context.Context, authURL string) (code, state string, err error)
}

// State of the sign-in flow state machine.
type State int

const (
	StateIdle State = iota
	StateRequestBuilt
	StateAwaitingRedirect
	StateExchanging
	StateSignedIn
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestBuilt:
		return "request_built"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateExchanging:
		return "exchanging"
	case StateSignedIn:
		return "signed_in"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome of an interactive sign-in attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "error"
}

const seenCodeLimit = 128

type Manager struct {
	provider Provider
	identity IdentityService
	tokens   TokenStore
	consent  ConsentDriver
	states   *stateNonceService
	seen     *codeGuard
	cache    *SessionCache
	clock    func() time.Time

	mu      sync.Mutex
	state   State
	busy    bool
	pending *AuthorizationRequest
	session *Session
	subs    []chan *Session
}

type Option func(*Manager)

// WithSessionCache persists the session across restarts and restores it on
// construction.
func WithSessionCache(cache *SessionCache) Option {
	return func(m *Manager) { m.cache = cache }
}

func withClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager wires the session manager. consent may be nil when only
// non-interactive operation is needed (e.g. restoring a cached session).
func NewManager(provider Provider, identity IdentityService, tokens TokenStore, consent ConsentDriver, opts ...Option) (*Manager, error) {
	if provider == nil || identity == nil || tokens == nil {
		return nil, fmt.Errorf("provider, identity and token store are required")
	}

	states, err := newStateNonceService()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		provider: provider,
		identity: identity,
		tokens:   tokens,
		consent:  consent,
		states:   states,
		seen:     newCodeGuard(seenCodeLimit),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.cache != nil {
		session, err := m.cache.Load()
		if err != nil {
			slog.Warn("could not restore cached session", "error", err)
		} else if session != nil {
			m.session = session
			m.state = StateSignedIn
			slog.Info("restored cached session", "user_id", session.UserID)
		}
	}

	return m, nil
}

// BuildAuthorizationRequest prepares a fresh PKCE request: a new verifier,
// a new nonce and a single-use state. Safe to call repeatedly; the latest
// request is the one a redirect is matched against.
func (m *Manager) BuildAuthorizationRequest() (*AuthorizationRequest, error) {
	state, err := m.states.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue state: %w", err)
	}

	req := &AuthorizationRequest{
		State:    state,
		Nonce:    oauth2.GenerateCodeVerifier(),
		Verifier: oauth2.GenerateCodeVerifier(),
	}
	req.URL = m.provider.AuthCodeURL(req.State, req.Nonce, req.Verifier)

	m.mu.Lock()
	m.pending = req
	if m.state == StateIdle || m.state == StateFailed {
		m.state = StateRequestBuilt
	}
	m.mu.Unlock()

	return req, nil
}

// IsReady reports whether an authorization request has been built and is
// safe to trigger.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Busy reports whether a sign-in is currently in flight.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

func (m *Manager) FlowState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the current session, or nil when signed out.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// BearerToken implements the token source used by the backend and event
// store clients.
func (m *Manager) BearerToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", ErrNotSignedIn
	}
	return m.session.BearerToken, nil
}

// StartInteractiveSignIn runs the whole interactive flow: build (or reuse)
// the authorization request, drive the consent UI, redeem the state and
// process the redirect. Concurrent invocations are rejected with
// ErrSignInInProgress; the busy flag is released on every exit path.
func (m *Manager) StartInteractiveSignIn(ctx context.Context) (Outcome, error) {
	if m.consent == nil {
		return OutcomeError, fmt.Errorf("no consent driver configured")
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return OutcomeError, ErrSignInInProgress
	}
	m.busy = true
	req := m.pending
	m.mu.Unlock()

	// Covers every return below, including a callback that turns out to be
	// a replay and exits before taking the busy flag itself.
	defer m.release(-1)

	if req == nil {
		var err error
		if req, err = m.BuildAuthorizationRequest(); err != nil {
			m.setState(StateIdle)
			return OutcomeError, err
		}
	}

	m.setState(StateAwaitingRedirect)

	code, state, err := m.consent.Authorize(ctx, req.URL)
	if err != nil {
		m.setState(StateIdle)
		if errors.Is(err, ErrCancelled) {
			slog.Info("sign-in cancelled by user")
			return OutcomeCancelled, nil
		}
		return OutcomeError, fmt.Errorf("consent flow: %w", err)
	}

	if err := m.states.Redeem(state); err != nil {
		m.setState(StateIdle)
		return OutcomeError, fmt.Errorf("redirect state rejected: %w", err)
	}

	if err := m.HandleRedirectCallback(ctx, code, req.Verifier); err != nil {
		return OutcomeError, err
	}
	return OutcomeSuccess, nil
}

// HandleRedirectCallback processes one authorization code. It is idempotent
// under replay: a code that was already processed returns immediately with
// no error and no second token exchange, whatever the flow state.
//
// On first processing: exchange the code for provider tokens, sign in to
// the backend with the ID token, then forward the provider tokens to the
// sync proxy. Only the first two steps can fail the sign-in.
func (m *Manager) HandleRedirectCallback(ctx context.Context, code, verifier string) error {
	if !m.seen.MarkIfNew(code) {
		slog.Debug("authorization code already processed, ignoring replay")
		return nil
	}

	m.mu.Lock()
	m.busy = true
	m.state = StateExchanging
	var nonce string
	if m.pending != nil {
		nonce = m.pending.Nonce
	}
	m.mu.Unlock()

	defer m.release(-1)

	tokens, err := m.provider.Exchange(ctx, code, verifier)
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	if tokens.IDToken == "" {
		m.setState(StateFailed)
		return fmt.Errorf("%w: token response carries no id token", ErrTokenExchange)
	}

	idToken, err := m.provider.ParseIDToken(tokens.IDToken, nonce)
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	userID, bearer, err := m.identity.SignInWithIDToken(ctx, tokens.IDToken)
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("%w: %v", ErrIdentitySignIn, err)
	}
	if userID == "" {
		m.setState(StateFailed)
		return fmt.Errorf("%w: backend returned no user", ErrIdentitySignIn)
	}

	now := m.clock()
	session := &Session{
		UserID:               userID,
		Email:                emailClaim(idToken),
		BearerToken:          bearer,
		ProviderAccessToken:  tokens.AccessToken,
		ProviderRefreshToken: tokens.RefreshToken,
		ProviderTokenExpiry:  tokens.Expiry(now),
		CreatedAt:            now,
	}
	m.replaceSession(session)
	slog.Info("signed in", "user_id", userID)

	// Calendar sync degrades gracefully when this fails; the sign-in stands.
	err = m.tokens.StoreProviderTokens(ctx, bearer, userID, tokens.AccessToken, tokens.RefreshToken, session.ProviderTokenExpiry)
	if err != nil {
		slog.Warn("storing provider tokens for calendar sync failed", "error", err)
	}

	return nil
}

// SignOut invalidates the backend session. The local session is terminated
// even when the backend rejects the invalidation.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return ErrNotSignedIn
	}

	err := m.identity.SignOut(ctx, session.BearerToken)
	m.replaceSession(nil)
	slog.Info("signed out", "user_id", session.UserID)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignOut, err)
	}
	return nil
}

// Subscribe returns a channel receiving the session after every transition:
// the new session on sign-in, nil on sign-out. The latest value wins; slow
// consumers only ever see the most recent state.
func (m *Manager) Subscribe() <-chan *Session {
	ch := make(chan *Session, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Close tears down all session subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

func (m *Manager) replaceSession(session *Session) {
	m.mu.Lock()
	m.session = session
	m.pending = nil
	if session != nil {
		m.state = StateSignedIn
	} else {
		m.state = StateIdle
	}
	subs := m.subs
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- session:
		default:
		}
	}

	if m.cache == nil {
		return
	}
	if session != nil {
		if err := m.cache.Save(session); err != nil {
			slog.Warn("could not persist session", "error", err)
		}
	} else {
		if err := m.cache.Clear(); err != nil {
			slog.Warn("could not clear persisted session", "error", err)
		}
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// release clears the busy flag; state < 0 leaves the flow state untouched.
func (m *Manager) release(state State) {
	m.mu.Lock()
	m.busy = false
	if state >= 0 {
		m.state = state
	}
	m.mu.Unlock()
}

func emailClaim(token jwt.Token) string {
	if raw, ok := token.Get("email"); ok {
		if email, ok := raw.(string); ok {
			return email
		}
	}
	return ""
}
