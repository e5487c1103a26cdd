package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

// reserves a free loopback port for the consent listener
func loopbackRedirectURI(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	listener.Close()
	return fmt.Sprintf("http://%s/callback", addr)
}

// browser stand-in that immediately performs the provider redirect
func redirectingBrowser(t *testing.T, redirectURI, query string) func(string) error {
	t.Helper()
	return func(authURL string) error {
		go func() {
			target := redirectURI + "?" + query
			for i := 0; i < 50; i++ {
				resp, err := http.Get(target)
				if err == nil {
					resp.Body.Close()
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
			t.Errorf("loopback listener never came up at %s", target)
		}()
		return nil
	}
}

func TestLoopbackConsentDeliversCode(t *testing.T) {
	redirectURI := loopbackRedirectURI(t)
	consent := &LoopbackConsent{
		RedirectURI: redirectURI,
		OpenBrowser: redirectingBrowser(t, redirectURI, "code=code-1&state=state-1"),
		Timeout:     5 * time.Second,
	}

	code, state, err := consent.Authorize(context.Background(), "https://provider.example/authorize")
	if err != nil {
		t.Fatal(err)
	}
	if code != "code-1" || state != "state-1" {
		t.Errorf("code = %q, state = %q", code, state)
	}
}

func TestLoopbackConsentAccessDenied(t *testing.T) {
	redirectURI := loopbackRedirectURI(t)
	consent := &LoopbackConsent{
		RedirectURI: redirectURI,
		OpenBrowser: redirectingBrowser(t, redirectURI, "error=access_denied"),
		Timeout:     5 * time.Second,
	}

	_, _, err := consent.Authorize(context.Background(), "https://provider.example/authorize")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestLoopbackConsentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consent := &LoopbackConsent{
		RedirectURI: loopbackRedirectURI(t),
		OpenBrowser: func(string) error { return nil },
		Timeout:     time.Minute,
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, _, err := consent.Authorize(ctx, "https://provider.example/authorize")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
