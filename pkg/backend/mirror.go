package backend

import (
	"context"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
)

// TokenSource yields the bearer token of the current backend session.
type TokenSource interface {
	BearerToken() (string, error)
}

// Mirror adapts the sync proxy to the reconciler's external-calendar
// interface, resolving the bearer token per call.
type Mirror struct {
	client *Client
	tokens TokenSource
}

func NewMirror(client *Client, tokens TokenSource) *Mirror {
	return &Mirror{client: client, tokens: tokens}
}

func (m *Mirror) PushEvent(ctx context.Context, event *eventstore.CalendarEvent) (string, error) {
	bearer, err := m.tokens.BearerToken()
	if err != nil {
		return "", err
	}
	return m.client.PushEvent(ctx, bearer, event)
}

func (m *Mirror) DeleteEvent(ctx context.Context, eventID, externalEventID string) error {
	bearer, err := m.tokens.BearerToken()
	if err != nil {
		return err
	}
	return m.client.DeleteSyncedEvent(ctx, bearer, eventID, externalEventID)
}
