// Package backend is the client of the app backend: the identity service
// that turns a provider ID token into a backend session, and the sync proxy
// that pushes events and provider tokens towards Google Calendar.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
)

const requestTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

type sessionPayload struct {
	AccessToken string `json:"access_token"`
}

type signInRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

type signInResponse struct {
	User    *User           `json:"user"`
	Session *sessionPayload `json:"session"`
}

// SignInWithIDToken exchanges a verified provider ID token for a backend
// session. Returns the stable user id and the bearer token of the session.
func (c *Client) SignInWithIDToken(ctx context.Context, idToken string) (userID, bearer string, err error) {
	var resp signInResponse
	err = c.do(ctx, http.MethodPost, "/api/auth/signin", "", signInRequest{Provider: "google", Token: idToken}, &resp)
	if err != nil {
		return "", "", err
	}
	if resp.User == nil || resp.User.ID == "" || resp.Session == nil || resp.Session.AccessToken == "" {
		return "", "", fmt.Errorf("sign-in response carries no user session")
	}
	return resp.User.ID, resp.Session.AccessToken, nil
}

// SignOut invalidates the backend session behind the bearer token.
func (c *Client) SignOut(ctx context.Context, bearer string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/signout", bearer, nil, nil)
}

type tokenSyncRequest struct {
	UserID       string    `json:"userId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// StoreProviderTokens hands the provider's access and refresh tokens to the
// sync proxy so it can call Google Calendar on the user's behalf later.
func (c *Client) StoreProviderTokens(ctx context.Context, bearer, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	return c.do(ctx, http.MethodPost, "/api/sync/tokens", bearer, tokenSyncRequest{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil)
}

type pushEventResponse struct {
	GoogleEventID string `json:"googleEventId"`
}

// PushEvent mirrors a locally created event into the user's Google Calendar
// via the sync proxy. Returns the provider-side event id.
func (c *Client) PushEvent(ctx context.Context, bearer string, event *eventstore.CalendarEvent) (string, error) {
	var resp pushEventResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync/events", bearer, event, &resp); err != nil {
		return "", err
	}
	if resp.GoogleEventID == "" {
		return "", fmt.Errorf("sync proxy returned no event id")
	}
	return resp.GoogleEventID, nil
}

type deleteEventRequest struct {
	GoogleEventID string `json:"googleEventId"`
}

// DeleteSyncedEvent removes the mirrored copy of an event from Google
// Calendar via the sync proxy.
func (c *Client) DeleteSyncedEvent(ctx context.Context, bearer, eventID, googleEventID string) error {
	path := "/api/sync/events/" + url.PathEscape(eventID)
	return c.do(ctx, http.MethodDelete, path, bearer, deleteEventRequest{GoogleEventID: googleEventID}, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
