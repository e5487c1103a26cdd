package main

import (
	"fmt"
	"time"

	"github.com/dayloop/dayloop-go/pkg/auth"
	"github.com/dayloop/dayloop-go/pkg/backend"
	"github.com/dayloop/dayloop-go/pkg/eventstore"
	"github.com/dayloop/dayloop-go/pkg/oidc"
	"github.com/dayloop/dayloop-go/pkg/sync"
)

// newAuthManager assembles the full sign-in stack. Requires the provider to
// be reachable (discovery document fetch).
func newAuthManager(cfg *Config) (*auth.Manager, error) {
	provider, err := oidc.NewClient(cfg.Provider)
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(cfg.BackendURL)
	consent := &auth.LoopbackConsent{RedirectURI: cfg.Provider.RedirectURI}

	return auth.NewManager(provider, client, client, consent,
		auth.WithSessionCache(auth.NewSessionCache(cfg.SessionCache)))
}

// cachedSession is the token source for commands that operate on an already
// established session without touching the provider.
type cachedSession struct {
	cache *auth.SessionCache
}

func (c cachedSession) current() (*auth.Session, error) {
	session, err := c.cache.Load()
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, auth.ErrNotSignedIn
	}
	return session, nil
}

func (c cachedSession) BearerToken() (string, error) {
	session, err := c.current()
	if err != nil {
		return "", err
	}
	return session.BearerToken, nil
}

// newReconciler assembles the event sync stack on top of the cached session.
func newReconciler(cfg *Config) (*sync.Reconciler, *eventstore.Client, string, error) {
	tokens := cachedSession{cache: auth.NewSessionCache(cfg.SessionCache)}
	session, err := tokens.current()
	if err != nil {
		return nil, nil, "", fmt.Errorf("no active session, run `dayloop login`: %w", err)
	}

	store := eventstore.NewClient(cfg.BackendURL, tokens)
	mirror := backend.NewMirror(backend.NewClient(cfg.BackendURL), tokens)

	return sync.NewReconciler(store, mirror), store, session.UserID, nil
}

func parseDay(arg string) (time.Time, error) {
	if arg == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse("2006-01-02", arg)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, want YYYY-MM-DD", arg)
	}
	return day, nil
}
