package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dayloop/dayloop-go/pkg/oauth2"
	"github.com/dayloop/dayloop-go/pkg/util"
	"github.com/labstack/echo/v4"
)

const defaultConsentTimeout = 5 * time.Minute

// LoopbackConsent drives the interactive consent step for a native client:
// it serves the registered loopback redirect URI on 127.0.0.1, opens the
// system browser at the authorization URL and waits for the provider to
// redirect back.
type LoopbackConsent struct {
	// RedirectURI must match the http://127.0.0.1:<port>/<path> URI
	// registered with the provider.
	RedirectURI string

	// OpenBrowser overrides how the authorization URL is opened. Defaults
	// to util.OpenBrowser.
	OpenBrowser func(url string) error

	// Timeout bounds the wait for the redirect. Defaults to 5 minutes.
	Timeout time.Duration
}

type callbackResult struct {
	code  string
	state string
	err   error
}

func (l *LoopbackConsent) Authorize(ctx context.Context, authURL string) (string, string, error) {
	redirect, err := url.Parse(l.RedirectURI)
	if err != nil {
		return "", "", fmt.Errorf("parse redirect uri: %w", err)
	}

	results := make(chan callbackResult, 1)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET(redirect.Path, func(c echo.Context) error {
		if errCode := c.QueryParam("error"); errCode != "" {
			if errCode == "access_denied" {
				deliver(results, callbackResult{err: ErrCancelled})
				return c.String(http.StatusOK, "Sign-in cancelled. You can close this window.")
			}
			deliver(results, callbackResult{err: &oauth2.Error{
				Code:        errCode,
				Description: c.QueryParam("error_description"),
			}})
			return c.String(http.StatusOK, "Sign-in failed. You can close this window.")
		}
		deliver(results, callbackResult{
			code:  c.QueryParam("code"),
			state: c.QueryParam("state"),
		})
		return c.String(http.StatusOK, "Signed in. You can close this window.")
	})

	go func() {
		if err := e.Start(redirect.Host); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(results, callbackResult{err: fmt.Errorf("loopback listener: %w", err)})
		}
	}()
	defer e.Shutdown(context.Background())

	open := l.OpenBrowser
	if open == nil {
		open = util.OpenBrowser
	}
	if err := open(authURL); err != nil {
		slog.Warn("could not open browser, visit the URL manually", "url", authURL, "error", err)
	}

	timeout := l.Timeout
	if timeout == 0 {
		timeout = defaultConsentTimeout
	}

	select {
	case res := <-results:
		return res.code, res.state, res.err
	case <-time.After(timeout):
		return "", "", fmt.Errorf("timed out waiting for the provider redirect")
	case <-ctx.Done():
		return "", "", ctx.Err()
	}
}

func deliver(results chan callbackResult, res callbackResult) {
	select {
	case results <- res:
	default: // a result is already queued; later redirects are ignored
	}
}
