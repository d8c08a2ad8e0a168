package google

import (
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/homekeep/homekeep/pkg/event"
	"github.com/homekeep/homekeep/pkg/sync"
)

const dateLayout = "2006-01-02"

// localToRemote converts a local event to the Google representation. All-day
// events use date fields with Google's exclusive end date; a stored end of
// nil means a single day. Timed events without an end default to one hour.
func localToRemote(ev event.Event) *gcal.Event {
	remote := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
	}

	if ev.AllDay {
		lastDay := ev.StartTime
		if ev.EndTime != nil {
			lastDay = *ev.EndTime
		}
		// All-day boundaries are UTC midnights. Format them in UTC so a
		// stored boundary read back in the server's zone keeps its date.
		remote.Start = &gcal.EventDateTime{Date: ev.StartTime.UTC().Format(dateLayout)}
		remote.End = &gcal.EventDateTime{Date: lastDay.UTC().AddDate(0, 0, 1).Format(dateLayout)}
		return remote
	}

	end := ev.StartTime.Add(time.Hour)
	if ev.EndTime != nil {
		end = *ev.EndTime
	}
	remote.Start = &gcal.EventDateTime{DateTime: ev.StartTime.Format(time.RFC3339)}
	remote.End = &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)}
	return remote
}

// remoteToChange converts one listed Google event into a RemoteChange.
// Cancelled items carry only the id.
func remoteToChange(item *gcal.Event) (sync.RemoteChange, error) {
	if item.Status == "cancelled" {
		return sync.RemoteChange{RemoteID: item.Id, Cancelled: true}, nil
	}
	ev, err := remoteToLocal(item)
	if err != nil {
		return sync.RemoteChange{}, err
	}
	return sync.RemoteChange{RemoteID: item.Id, Event: ev}, nil
}

func remoteToLocal(item *gcal.Event) (event.Event, error) {
	title := item.Summary
	if title == "" {
		title = "(no title)"
	}
	ev := event.Event{
		Title:       title,
		Description: item.Description,
		Recurrence:  event.RecurrenceNone,
	}
	if item.Start == nil || item.End == nil {
		return event.Event{}, fmt.Errorf("remote event %s has no start or end", item.Id)
	}

	if item.Start.Date != "" {
		start, err := time.Parse(dateLayout, item.Start.Date)
		if err != nil {
			return event.Event{}, fmt.Errorf("invalid start date on remote event %s: %w", item.Id, err)
		}
		exclusiveEnd, err := time.Parse(dateLayout, item.End.Date)
		if err != nil {
			return event.Event{}, fmt.Errorf("invalid end date on remote event %s: %w", item.Id, err)
		}
		ev.AllDay = true
		ev.StartTime = start
		// Google's end date is exclusive; the local convention stores the
		// last covered day, or nothing for a single-day event.
		lastDay := exclusiveEnd.AddDate(0, 0, -1)
		if lastDay.After(start) {
			ev.EndTime = &lastDay
		}
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return event.Event{}, fmt.Errorf("invalid start time on remote event %s: %w", item.Id, err)
	}
	ev.StartTime = start
	if item.End.DateTime != "" {
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return event.Event{}, fmt.Errorf("invalid end time on remote event %s: %w", item.Id, err)
		}
		ev.EndTime = &end
	}
	return ev, nil
}
