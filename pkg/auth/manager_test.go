package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dayloop/dayloop-go/pkg/oauth2"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

type fakeProvider struct {
	exchanges    atomic.Int32
	exchangeErr  error
	omitIDToken  bool
	lastVerifier string
	lastNonce    string
}

func (p *fakeProvider) AuthCodeURL(state, nonce, verifier string, opts ...oauth2.ParameterOption) string {
	params := url.Values{}
	params.Set("state", state)
	params.Set("nonce", nonce)
	params.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	return "https://provider.example/authorize?" + params.Encode()
}

func (p *fakeProvider) Exchange(ctx context.Context, code, verifier string, opts ...oauth2.ParameterOption) (*oauth2.TokenResponse, error) {
	p.exchanges.Add(1)
	p.lastVerifier = verifier
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	resp := &oauth2.TokenResponse{
		AccessToken:  "provider-access",
		RefreshToken: "provider-refresh",
		ExpiresIn:    3600,
		IDToken:      "serialized-id-token",
	}
	if p.omitIDToken {
		resp.IDToken = ""
	}
	return resp, nil
}

func (p *fakeProvider) ParseIDToken(serialized, expectedNonce string) (jwt.Token, error) {
	p.lastNonce = expectedNonce
	token := jwt.New()
	if err := token.Set("email", "dev@example.com"); err != nil {
		return nil, err
	}
	return token, nil
}

type fakeIdentity struct {
	signInErr  error
	signOutErr error
	emptyUser  bool
	signOuts   int
}

func (i *fakeIdentity) SignInWithIDToken(ctx context.Context, idToken string) (string, string, error) {
	if i.signInErr != nil {
		return "", "", i.signInErr
	}
	if i.emptyUser {
		return "", "", nil
	}
	return "u1", "bearer-1", nil
}

func (i *fakeIdentity) SignOut(ctx context.Context, bearer string) error {
	i.signOuts++
	return i.signOutErr
}

type fakeTokenStore struct {
	err    error
	stores int
}

func (s *fakeTokenStore) StoreProviderTokens(ctx context.Context, bearer, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.stores++
	return s.err
}

// scriptedConsent completes instantly with the state parsed back out of the
// authorization URL, mimicking a well-behaved provider redirect.
type scriptedConsent struct {
	code          string
	err           error
	overrideState string
	started       chan struct{}
	proceed       chan struct{}
}

func (c *scriptedConsent) Authorize(ctx context.Context, authURL string) (string, string, error) {
	if c.started != nil {
		close(c.started)
	}
	if c.proceed != nil {
		select {
		case <-c.proceed:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	if c.err != nil {
		return "", "", c.err
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	state := parsed.Query().Get("state")
	if c.overrideState != "" {
		state = c.overrideState
	}
	return c.code, state, nil
}

func newTestManager(t *testing.T, consent ConsentDriver, provider *fakeProvider, identity *fakeIdentity, tokens *fakeTokenStore, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(provider, identity, tokens, consent, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestInteractiveSignInSuccess(t *testing.T) {
	provider := &fakeProvider{}
	identity := &fakeIdentity{}
	tokens := &fakeTokenStore{}
	m := newTestManager(t, &scriptedConsent{code: "code-1"}, provider, identity, tokens)

	outcome, err := m.StartInteractiveSignIn(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", outcome)
	}
	if got := provider.exchanges.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1", got)
	}
	if provider.lastNonce == "" {
		t.Error("id token verified without the request nonce")
	}
	if m.Busy() {
		t.Error("busy flag not released after success")
	}
	if m.FlowState() != StateSignedIn {
		t.Errorf("flow state = %s, want signed_in", m.FlowState())
	}

	session := m.Session()
	if session == nil {
		t.Fatal("no session after successful sign-in")
	}
	if session.UserID != "u1" || session.BearerToken != "bearer-1" {
		t.Errorf("session = %+v", session)
	}
	if session.Email != "dev@example.com" {
		t.Errorf("email = %q", session.Email)
	}
	if tokens.stores != 1 {
		t.Errorf("provider token stores = %d, want 1", tokens.stores)
	}

	bearer, err := m.BearerToken()
	if err != nil || bearer != "bearer-1" {
		t.Errorf("BearerToken() = %q, %v", bearer, err)
	}
}

func TestRedirectReplayIsNoOp(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(t, nil, provider, &fakeIdentity{}, &fakeTokenStore{})

	req, err := m.BuildAuthorizationRequest()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.HandleRedirectCallback(context.Background(), "code-replay", req.Verifier); err != nil {
		t.Fatal(err)
	}
	// the browser re-delivers the same redirect
	if err := m.HandleRedirectCallback(context.Background(), "code-replay", req.Verifier); err != nil {
		t.Fatalf("replay must be a silent no-op, got %v", err)
	}
	if got := provider.exchanges.Load(); got != 1 {
		t.Errorf("exchanges = %d, want exactly 1 under replay", got)
	}
}

func TestInteractiveSignInWithReplayedCodeReleasesBusy(t *testing.T) {
	provider := &fakeProvider{}
	consent := &scriptedConsent{code: "code-dup"}
	m := newTestManager(t, consent, provider, &fakeIdentity{}, &fakeTokenStore{})

	req, err := m.BuildAuthorizationRequest()
	if err != nil {
		t.Fatal(err)
	}
	// the direct callback listener wins the race and processes the code first
	if err := m.HandleRedirectCallback(context.Background(), "code-dup", req.Verifier); err != nil {
		t.Fatal(err)
	}

	outcome, err := m.StartInteractiveSignIn(context.Background())
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	if got := provider.exchanges.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1", got)
	}
	if m.Busy() {
		t.Fatal("busy flag leaked after an interactive flow hit a replayed code")
	}

	// the manager must accept the next attempt
	consent.code = "code-fresh"
	outcome, err = m.StartInteractiveSignIn(context.Background())
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("follow-up sign-in: outcome = %s, err = %v", outcome, err)
	}
	if got := provider.exchanges.Load(); got != 2 {
		t.Errorf("exchanges = %d, want 2", got)
	}
}

func TestReplayAfterFailureStaysIgnored(t *testing.T) {
	provider := &fakeProvider{exchangeErr: errors.New("invalid_grant")}
	m := newTestManager(t, nil, provider, &fakeIdentity{}, &fakeTokenStore{})

	req, err := m.BuildAuthorizationRequest()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.HandleRedirectCallback(context.Background(), "code-x", req.Verifier); err == nil {
		t.Fatal("expected exchange error")
	}
	if err := m.HandleRedirectCallback(context.Background(), "code-x", req.Verifier); err != nil {
		t.Fatalf("replay of a failed code must not retry, got %v", err)
	}
	if got := provider.exchanges.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1", got)
	}
}

func TestCancelledSignInReleasesBusy(t *testing.T) {
	provider := &fakeProvider{}
	consent := &scriptedConsent{err: ErrCancelled}
	m := newTestManager(t, consent, provider, &fakeIdentity{}, &fakeTokenStore{})

	outcome, err := m.StartInteractiveSignIn(context.Background())
	if err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}
	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s, want cancelled", outcome)
	}
	if m.Busy() {
		t.Error("busy flag not released after cancellation")
	}
	if got := provider.exchanges.Load(); got != 0 {
		t.Errorf("exchanges = %d, want 0", got)
	}

	// a fresh attempt right after the cancellation must be accepted
	consent.err = nil
	consent.code = "code-2"
	outcome, err = m.StartInteractiveSignIn(context.Background())
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("retry after cancel: outcome = %s, err = %v", outcome, err)
	}
}

func TestConcurrentSignInRejected(t *testing.T) {
	consent := &scriptedConsent{
		code:    "code-3",
		started: make(chan struct{}),
		proceed: make(chan struct{}),
	}
	m := newTestManager(t, consent, &fakeProvider{}, &fakeIdentity{}, &fakeTokenStore{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if outcome, err := m.StartInteractiveSignIn(context.Background()); err != nil || outcome != OutcomeSuccess {
			t.Errorf("first sign-in: outcome = %s, err = %v", outcome, err)
		}
	}()

	<-consent.started
	if _, err := m.StartInteractiveSignIn(context.Background()); !errors.Is(err, ErrSignInInProgress) {
		t.Errorf("second sign-in: err = %v, want ErrSignInInProgress", err)
	}

	close(consent.proceed)
	wg.Wait()
	if m.Busy() {
		t.Error("busy flag not released")
	}
}

func TestTokenStoreFailureDoesNotFailSignIn(t *testing.T) {
	tokens := &fakeTokenStore{err: errors.New("sync proxy down")}
	m := newTestManager(t, &scriptedConsent{code: "code-4"}, &fakeProvider{}, &fakeIdentity{}, tokens)

	outcome, err := m.StartInteractiveSignIn(context.Background())
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s, err = %v", outcome, err)
	}
	if tokens.stores != 1 {
		t.Errorf("token store calls = %d, want 1", tokens.stores)
	}
	if m.Session() == nil {
		t.Error("session must survive a token store failure")
	}
}

func TestExchangeFailure(t *testing.T) {
	provider := &fakeProvider{exchangeErr: &oauth2.Error{Code: "invalid_grant", Description: "code expired"}}
	m := newTestManager(t, &scriptedConsent{code: "code-5"}, provider, &fakeIdentity{}, &fakeTokenStore{})

	outcome, err := m.StartInteractiveSignIn(context.Background())
	if !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("err = %v, want ErrTokenExchange", err)
	}
	if outcome != OutcomeError {
		t.Errorf("outcome = %s, want error", outcome)
	}
	if m.Session() != nil {
		t.Error("session set despite failed exchange")
	}
	if m.Busy() {
		t.Error("busy flag not released after failure")
	}
	if m.FlowState() != StateFailed {
		t.Errorf("flow state = %s, want failed", m.FlowState())
	}
}

func TestMissingIDTokenFailsExchange(t *testing.T) {
	provider := &fakeProvider{omitIDToken: true}
	m := newTestManager(t, &scriptedConsent{code: "code-6"}, provider, &fakeIdentity{}, &fakeTokenStore{})

	if _, err := m.StartInteractiveSignIn(context.Background()); !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("err = %v, want ErrTokenExchange", err)
	}
}

func TestIdentitySignInFailure(t *testing.T) {
	identity := &fakeIdentity{signInErr: errors.New("no such user")}
	m := newTestManager(t, &scriptedConsent{code: "code-7"}, &fakeProvider{}, identity, &fakeTokenStore{})

	if _, err := m.StartInteractiveSignIn(context.Background()); !errors.Is(err, ErrIdentitySignIn) {
		t.Fatalf("err = %v, want ErrIdentitySignIn", err)
	}
	if m.Session() != nil {
		t.Error("session set despite backend rejection")
	}

	identity.signInErr = nil
	identity.emptyUser = true
	m2 := newTestManager(t, &scriptedConsent{code: "code-8"}, &fakeProvider{}, identity, &fakeTokenStore{})
	if _, err := m2.StartInteractiveSignIn(context.Background()); !errors.Is(err, ErrIdentitySignIn) {
		t.Fatalf("empty user id: err = %v, want ErrIdentitySignIn", err)
	}
}

func TestForeignStateRejected(t *testing.T) {
	provider := &fakeProvider{}
	consent := &scriptedConsent{code: "code-9", overrideState: "bogus"}
	m := newTestManager(t, consent, provider, &fakeIdentity{}, &fakeTokenStore{})

	if _, err := m.StartInteractiveSignIn(context.Background()); err == nil {
		t.Fatal("expected error for an unknown state")
	}
	if got := provider.exchanges.Load(); got != 0 {
		t.Errorf("exchanges = %d, want 0 when the state is rejected", got)
	}
	if m.Busy() {
		t.Error("busy flag not released")
	}
}

func TestSignOut(t *testing.T) {
	identity := &fakeIdentity{}
	m := newTestManager(t, &scriptedConsent{code: "code-10"}, &fakeProvider{}, identity, &fakeTokenStore{})

	if err := m.SignOut(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("sign-out without a session: err = %v, want ErrNotSignedIn", err)
	}

	if _, err := m.StartInteractiveSignIn(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if identity.signOuts != 1 {
		t.Errorf("backend sign-outs = %d, want 1", identity.signOuts)
	}
	if m.Session() != nil {
		t.Error("session still set after sign-out")
	}
	if _, err := m.BearerToken(); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("BearerToken after sign-out: err = %v", err)
	}
}

func TestSignOutTerminatesLocallyOnBackendError(t *testing.T) {
	identity := &fakeIdentity{signOutErr: errors.New("session unknown")}
	m := newTestManager(t, &scriptedConsent{code: "code-11"}, &fakeProvider{}, identity, &fakeTokenStore{})

	if _, err := m.StartInteractiveSignIn(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := m.SignOut(context.Background())
	if !errors.Is(err, ErrSignOut) {
		t.Fatalf("err = %v, want ErrSignOut", err)
	}
	if m.Session() != nil {
		t.Error("local session must be terminated even when the backend rejects")
	}
}

func TestSubscribeDeliversTransitions(t *testing.T) {
	m := newTestManager(t, &scriptedConsent{code: "code-12"}, &fakeProvider{}, &fakeIdentity{}, &fakeTokenStore{})
	defer m.Close()

	updates := m.Subscribe()
	if _, err := m.StartInteractiveSignIn(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case session := <-updates:
		if session == nil || session.UserID != "u1" {
			t.Fatalf("update = %+v, want signed-in session", session)
		}
	default:
		t.Fatal("no update after sign-in")
	}

	if err := m.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case session := <-updates:
		if session != nil {
			t.Fatalf("update = %+v, want nil after sign-out", session)
		}
	default:
		t.Fatal("no update after sign-out")
	}
}

func TestSessionRestoredFromCache(t *testing.T) {
	path := t.TempDir() + "/session.cbor"
	cache := NewSessionCache(path)
	m := newTestManager(t, &scriptedConsent{code: "code-13"}, &fakeProvider{}, &fakeIdentity{}, &fakeTokenStore{},
		WithSessionCache(cache))

	if _, err := m.StartInteractiveSignIn(context.Background()); err != nil {
		t.Fatal(err)
	}

	restored := newTestManager(t, nil, &fakeProvider{}, &fakeIdentity{}, &fakeTokenStore{},
		WithSessionCache(cache))
	session := restored.Session()
	if session == nil || session.UserID != "u1" {
		t.Fatalf("restored session = %+v", session)
	}
	if restored.FlowState() != StateSignedIn {
		t.Errorf("flow state = %s, want signed_in", restored.FlowState())
	}

	if err := restored.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	third := newTestManager(t, nil, &fakeProvider{}, &fakeIdentity{}, &fakeTokenStore{},
		WithSessionCache(cache))
	if third.Session() != nil {
		t.Error("session cache not cleared on sign-out")
	}
}

func TestStateMachineProgression(t *testing.T) {
	m := newTestManager(t, nil, &fakeProvider{}, &fakeIdentity{}, &fakeTokenStore{})

	if m.FlowState() != StateIdle {
		t.Fatalf("initial state = %s", m.FlowState())
	}
	if m.IsReady() {
		t.Fatal("ready without an authorization request")
	}

	req, err := m.BuildAuthorizationRequest()
	if err != nil {
		t.Fatal(err)
	}
	if m.FlowState() != StateRequestBuilt {
		t.Errorf("state after build = %s", m.FlowState())
	}
	if !m.IsReady() {
		t.Error("not ready after building the request")
	}
	for _, part := range []string{"state=", "nonce=", "code_challenge="} {
		if !strings.Contains(req.URL, part) {
			t.Errorf("authorization URL missing %q: %s", part, req.URL)
		}
	}

	if err := m.HandleRedirectCallback(context.Background(), "code-14", req.Verifier); err != nil {
		t.Fatal(err)
	}
	if m.FlowState() != StateSignedIn {
		t.Errorf("state after callback = %s", m.FlowState())
	}
}
