// Package sync keeps the local event store and the external calendar
// consistent: local writes are authoritative, mirroring is best-effort, and
// remote changes trigger a re-fetch of the active day window.
package sync

import (
	"time"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
)

// Window is the day-level range used to select active events. Both bounds
// are computed in UTC so the selection does not drift with the local
// timezone's day boundary.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowForDay normalizes day to UTC and returns the covering
// [00:00:00.000, 23:59:59.999] range of that UTC date.
func WindowForDay(day time.Time) Window {
	year, month, dom := day.UTC().Date()
	start := time.Date(year, month, dom, 0, 0, 0, 0, time.UTC)
	return Window{
		Start: start,
		End:   start.Add(24*time.Hour - time.Millisecond),
	}
}

// Contains reports whether the event overlaps the window. An event is
// active when it starts before the window ends and ends after the window
// starts, which captures same-day, multi-day and boundary-spanning events.
func (w Window) Contains(event *eventstore.CalendarEvent) bool {
	return !event.StartTime.After(w.End) && !event.EndTime.Before(w.Start)
}
