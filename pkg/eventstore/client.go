package eventstore

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
)

const requestTimeout = 10 * time.Second

// TokenSource yields the bearer token of the current backend session.
type TokenSource interface {
	BearerToken() (string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		tokens:     tokens,
	}
}

// ListWindow returns the user's events overlapping [start, end], ordered by
// start time ascending.
func (c *Client) ListWindow(ctx context.Context, userID string, start, end time.Time) ([]CalendarEvent, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("from", start.Format(time.RFC3339Nano))
	query.Set("to", end.Format(time.RFC3339Nano))
	query.Set("order", "start_time.asc")

	var events []CalendarEvent
	err := c.do(ctx, http.MethodGet, "/api/events?"+query.Encode(), nil, &events)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) Get(ctx context.Context, userID, id string) (*CalendarEvent, error) {
	var event CalendarEvent
	err := c.do(ctx, http.MethodGet, c.eventPath(userID, id), nil, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) Insert(ctx context.Context, event *CalendarEvent) error {
	return c.do(ctx, http.MethodPost, "/api/events", event, event)
}

// Update applies the patch to the record matching both id and user id. A
// record owned by someone else yields ErrNotFound, same as a missing one.
func (c *Client) Update(ctx context.Context, userID, id string, patch EventPatch) error {
	return c.do(ctx, http.MethodPatch, c.eventPath(userID, id), patch, nil)
}

func (c *Client) Delete(ctx context.Context, userID, id string) error {
	return c.do(ctx, http.MethodDelete, c.eventPath(userID, id), nil, nil)
}

func (c *Client) eventPath(userID, id string) string {
	return fmt.Sprintf("/api/events/%s?user_id=%s", url.PathEscape(id), url.QueryEscape(userID))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
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

	bearer, err := c.tokens.BearerToken()
	if err != nil {
		return fmt.Errorf("resolve bearer token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
