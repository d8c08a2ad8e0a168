package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/homekeep/homekeep/pkg/event"
)

// GatewayStub records gateway calls and serves canned change sets for tests.
type GatewayStub struct {
	mu gosync.Mutex

	CreatedEvents []event.Event
	UpdatedEvents map[string]event.Event
	DeletedIds    []string
	ListCalls     int

	NextChangeSet ChangeSet

	CreateErr error
	UpdateErr error
	DeleteErr error
	ListErr   error

	nextId int
}

func NewGatewayStub() *GatewayStub {
	return &GatewayStub{UpdatedEvents: make(map[string]event.Event)}
}

func (s *GatewayStub) CreateEvent(_ context.Context, _ Connection, ev event.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	s.nextId++
	s.CreatedEvents = append(s.CreatedEvents, ev)
	return fmt.Sprintf("remote-%d", s.nextId), nil
}

func (s *GatewayStub) UpdateEvent(_ context.Context, _ Connection, ev event.Event, remoteEventId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.UpdatedEvents[remoteEventId] = ev
	return nil
}

func (s *GatewayStub) DeleteEvent(_ context.Context, _ Connection, remoteEventId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.DeletedIds = append(s.DeletedIds, remoteEventId)
	return nil
}

func (s *GatewayStub) ListChanges(_ context.Context, _ Connection) (ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	if s.ListErr != nil {
		return ChangeSet{}, s.ListErr
	}
	return s.NextChangeSet, nil
}
