package eventstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Subscription is an open change feed for one user. Changes() delivers
// row-level notifications until the connection drops or Close is called,
// then the channel is closed. A subscription is not restartable.
type Subscription struct {
	conn    *websocket.Conn
	changes chan Change
	done    chan struct{}

	closeOnce sync.Once
}

func (s *Subscription) Changes() <-chan Change {
	return s.changes
}

func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// SubscribeChanges opens the realtime feed scoped to the given user. The
// caller owns the subscription and must close it when the session ends.
func (c *Client) SubscribeChanges(ctx context.Context, userID string) (*Subscription, error) {
	feedURL, err := c.feedURL(userID)
	if err != nil {
		return nil, err
	}

	bearer, err := c.tokens.BearerToken()
	if err != nil {
		return nil, fmt.Errorf("resolve bearer token: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+bearer)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, feedURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	sub := &Subscription{
		conn:    conn,
		changes: make(chan Change),
		done:    make(chan struct{}),
	}

	go sub.readLoop()

	return sub, nil
}

func (s *Subscription) readLoop() {
	defer close(s.changes)
	for {
		var change Change
		if err := s.conn.ReadJSON(&change); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("change feed closed unexpectedly", "error", err)
			}
			return
		}
		select {
		case s.changes <- change:
		case <-s.done:
			return
		}
	}
}

func (c *Client) feedURL(userID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/events/feed"
	u.RawQuery = url.Values{"user_id": []string{userID}}.Encode()
	return u.String(), nil
}
