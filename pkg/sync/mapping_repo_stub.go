package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// MappingRepoStub is an in-memory MappingRepo for tests.
type MappingRepoStub struct {
	mu       gosync.Mutex
	mappings map[uuid.UUID]IdentityMapping
}

func NewMappingRepoStub() *MappingRepoStub {
	return &MappingRepoStub{mappings: make(map[uuid.UUID]IdentityMapping)}
}

func (s *MappingRepoStub) Upsert(_ context.Context, mapping IdentityMapping) (IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.mappings {
		if existing.EventID == mapping.EventID && existing.ConnectionID == mapping.ConnectionID {
			mapping.ID = id
			s.mappings[id] = mapping
			return mapping, nil
		}
	}
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	s.mappings[mapping.ID] = mapping
	return mapping, nil
}

func (s *MappingRepoStub) Get(_ context.Context, id uuid.UUID) (IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[id]
	if !ok {
		return IdentityMapping{}, ErrMappingNotFound
	}
	return mapping, nil
}

func (s *MappingRepoStub) GetByEventAndConnection(_ context.Context, eventId, connectionId uuid.UUID) (IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.EventID == eventId && mapping.ConnectionID == connectionId {
			return mapping, nil
		}
	}
	return IdentityMapping{}, ErrMappingNotFound
}

func (s *MappingRepoStub) GetByRemoteEvent(_ context.Context, connectionId uuid.UUID, remoteEventId string) (IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.ConnectionID == connectionId && mapping.RemoteEventID == remoteEventId {
			return mapping, nil
		}
	}
	return IdentityMapping{}, ErrMappingNotFound
}

func (s *MappingRepoStub) ListForEvent(_ context.Context, eventId uuid.UUID) ([]IdentityMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []IdentityMapping
	for _, mapping := range s.mappings {
		if mapping.EventID == eventId {
			result = append(result, mapping)
		}
	}
	return result, nil
}

func (s *MappingRepoStub) Touch(_ context.Context, id uuid.UUID, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[id]
	if !ok {
		return ErrMappingNotFound
	}
	mapping.LastSyncedAt = syncedAt
	s.mappings[id] = mapping
	return nil
}

func (s *MappingRepoStub) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, id)
	return nil
}
