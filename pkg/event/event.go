package event

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence is a plain tag on the base event. The sync engine never expands
// recurring events; only the base event is synchronized.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// Event is a household calendar event. Exactly one owner; SharedWith holds
// the ids of every other member the event is shared with.
type Event struct {
	ID          uuid.UUID
	Title       string
	Description string
	StartTime   time.Time
	EndTime     *time.Time
	AllDay      bool
	Recurrence  Recurrence
	Color       string
	OwnerID     int
	SharedWith  []int
}
