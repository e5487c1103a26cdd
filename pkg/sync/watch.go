package sync

import (
	"context"
	"time"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
)

// Feed delivers change notifications until closed. *eventstore.Subscription
// satisfies it.
type Feed interface {
	Changes() <-chan eventstore.Change
	Close() error
}

// Subscription couples an open change feed with the coalesced refresh loop.
// It must be closed on auth-session teardown so no feed keeps running
// against a stale user id.
type Subscription struct {
	feed Feed
	done chan struct{}
}

// Subscribe watches the feed and re-fetches the active window of day on
// every notification, handing the result to fn. The reconciler never
// patches incrementally; any change means a full re-fetch. Notification
// bursts are coalesced: at most one fetch is in flight, with at most one
// trailing fetch queued behind it.
func (r *Reconciler) Subscribe(ctx context.Context, feed Feed, userID string, day time.Time, fn func([]eventstore.CalendarEvent, error)) *Subscription {
	s := &Subscription{feed: feed, done: make(chan struct{})}
	refresh := make(chan struct{}, 1)

	go func() {
		defer close(refresh)
		for range feed.Changes() {
			select {
			case refresh <- struct{}{}:
			default: // a trailing refresh is already queued, drop the burst
			}
		}
	}()

	go func() {
		defer close(s.done)
		for range refresh {
			fn(r.ListActive(ctx, userID, day))
		}
	}()

	return s
}

// Close tears down the feed and waits for the refresh loop to drain.
func (s *Subscription) Close() error {
	err := s.feed.Close()
	<-s.done
	return err
}
