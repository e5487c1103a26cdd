// Package eventstore is the client of the remote event store: CRUD over
// HTTP plus a realtime change feed over WebSocket. The store is the source
// of truth for calendar events; the external calendar is only a mirror.
package eventstore

import (
	"errors"
	"time"
)

// ErrNotFound is returned both when a record does not exist and when it is
// owned by another user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("event not found")

// CalendarEvent is a user-owned scheduled item. ID is authoritative and
// assigned locally; ExternalEventID is set once the event has been pushed
// to the external calendar and may lag behind or stay empty forever.
type CalendarEvent struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	ExternalEventID string     `json:"external_event_id,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	AllDay          bool       `json:"all_day"`
	SyncedAt        *time.Time `json:"synced_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EventPatch is a partial update. Nil fields are left untouched.
type EventPatch struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	AllDay          *bool      `json:"all_day,omitempty"`
	ExternalEventID *string    `json:"external_event_id,omitempty"`
	SyncedAt        *time.Time `json:"synced_at,omitempty"`
}

// ChangeType discriminates feed notifications.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one row-level notification from the feed. Consumers treat any
// change as "something changed" and re-fetch; the payload is advisory.
type Change struct {
	Type    ChangeType `json:"type"`
	EventID string     `json:"event_id"`
}
