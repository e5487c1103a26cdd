package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/ksuid"
)

// Store is the remote event store. Mutations are ownership-scoped: an id
// owned by another user behaves exactly like a missing id
// (eventstore.ErrNotFound).
type Store interface {
	ListWindow(ctx context.Context, userID string, start, end time.Time) ([]eventstore.CalendarEvent, error)
	Get(ctx context.Context, userID, id string) (*eventstore.CalendarEvent, error)
	Insert(ctx context.Context, event *eventstore.CalendarEvent) error
	Update(ctx context.Context, userID, id string, patch eventstore.EventPatch) error
	Delete(ctx context.Context, userID, id string) error
}

// Mirror is the external calendar, reached through the sync proxy. Every
// call to it is best-effort from the reconciler's point of view.
type Mirror interface {
	PushEvent(ctx context.Context, event *eventstore.CalendarEvent) (externalEventID string, err error)
	DeleteEvent(ctx context.Context, eventID, externalEventID string) error
}

// Draft carries the user-provided fields of a new event.
type Draft struct {
	Title       string    `validate:"required"`
	Description string
	StartTime   time.Time `validate:"required"`
	EndTime     time.Time `validate:"required"`
	AllDay      bool
}

var validate = validator.New()

type Reconciler struct {
	store  Store
	mirror Mirror
	clock  func() time.Time
}

func NewReconciler(store Store, mirror Mirror) *Reconciler {
	return &Reconciler{
		store:  store,
		mirror: mirror,
		clock:  time.Now,
	}
}

// ListActive returns the user's events overlapping the UTC day window of
// day, ordered by start time ascending. Read-only.
func (r *Reconciler) ListActive(ctx context.Context, userID string, day time.Time) ([]eventstore.CalendarEvent, error) {
	window := WindowForDay(day)
	events, err := r.store.ListWindow(ctx, userID, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events, nil
}

// Create writes the event to the store first, which is the durability
// boundary: a store failure fails the operation. The push to the external
// calendar afterwards is best-effort and never fails the create.
func (r *Reconciler) Create(ctx context.Context, userID string, draft Draft) (*eventstore.CalendarEvent, error) {
	if err := validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("invalid draft: %w", err)
	}
	if draft.EndTime.Before(draft.StartTime) {
		return nil, fmt.Errorf("event ends before it starts")
	}

	event := &eventstore.CalendarEvent{
		ID:          ksuid.New().String(),
		UserID:      userID,
		Title:       draft.Title,
		Description: draft.Description,
		StartTime:   draft.StartTime,
		EndTime:     draft.EndTime,
		AllDay:      draft.AllDay,
		CreatedAt:   r.clock(),
	}

	if err := r.store.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	externalID, err := r.mirror.PushEvent(ctx, event)
	if err != nil {
		slog.Warn("external calendar push failed, event kept local-only",
			"event_id", event.ID, "error", err)
		return event, nil
	}

	syncedAt := r.clock()
	patch := eventstore.EventPatch{
		ExternalEventID: &externalID,
		SyncedAt:        &syncedAt,
	}
	if err := r.store.Update(ctx, userID, event.ID, patch); err != nil {
		slog.Warn("recording external event id failed",
			"event_id", event.ID, "external_event_id", externalID, "error", err)
		return event, nil
	}

	event.ExternalEventID = externalID
	event.SyncedAt = &syncedAt
	return event, nil
}

// Update patches the record matching both id and owner. It does not
// propagate to the external calendar: mirroring is push-on-create and
// delete only, so a mirrored copy may go stale until the next re-sync.
func (r *Reconciler) Update(ctx context.Context, userID, id string, patch eventstore.EventPatch) error {
	if patch.StartTime != nil && patch.EndTime != nil && patch.EndTime.Before(*patch.StartTime) {
		return fmt.Errorf("event ends before it starts")
	}
	return r.store.Update(ctx, userID, id, patch)
}

// Delete removes the mirrored copy first when one exists, tolerating
// failure, then deletes the local record. The local delete is never blocked
// by external calendar availability.
func (r *Reconciler) Delete(ctx context.Context, userID, id string) error {
	event, err := r.store.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if event.ExternalEventID != "" {
		if err := r.mirror.DeleteEvent(ctx, event.ID, event.ExternalEventID); err != nil {
			slog.Warn("external calendar delete failed, removing local record anyway",
				"event_id", event.ID, "external_event_id", event.ExternalEventID, "error", err)
		}
	}

	return r.store.Delete(ctx, userID, id)
}
