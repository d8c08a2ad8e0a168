package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RepositoryStub is an in-memory Repository for tests.
type RepositoryStub struct {
	mu     sync.RWMutex
	events map[uuid.UUID]Event
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{events: make(map[uuid.UUID]Event)}
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Recurrence == "" {
		event.Recurrence = RecurrenceNone
	}
	r.events[event.ID] = event
	return event, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, id uuid.UUID) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return event, nil
}

func (r *RepositoryStub) GetEvents(ctx context.Context, userId int, from, to time.Time) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var events []Event
	for _, e := range r.events {
		if e.OwnerID != userId && !contains(e.SharedWith, userId) {
			continue
		}
		end := e.StartTime
		if e.EndTime != nil {
			end = *e.EndTime
		}
		if !e.StartTime.After(to) && !end.Before(from) {
			events = append(events, e)
		}
	}
	return events, nil
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return ErrEventNotFound
	}
	r.events[event.ID] = event
	return nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
