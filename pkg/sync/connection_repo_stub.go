package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// ConnectionRepoStub is an in-memory ConnectionRepo for tests.
type ConnectionRepoStub struct {
	mu          gosync.Mutex
	connections map[uuid.UUID]Connection
}

func NewConnectionRepoStub() *ConnectionRepoStub {
	return &ConnectionRepoStub{connections: make(map[uuid.UUID]Connection)}
}

func (s *ConnectionRepoStub) Upsert(_ context.Context, conn Connection) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.connections {
		if existing.UserID == conn.UserID {
			conn.ID = id
			conn.SyncToken = existing.SyncToken
			conn.LastSyncedAt = existing.LastSyncedAt
			s.connections[id] = conn
			return conn, nil
		}
	}
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	s.connections[conn.ID] = conn
	return conn, nil
}

func (s *ConnectionRepoStub) Get(_ context.Context, id uuid.UUID) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return Connection{}, ErrConnectionNotFound
	}
	return conn, nil
}

func (s *ConnectionRepoStub) GetForUser(_ context.Context, userId int) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		if conn.UserID == userId {
			return conn, nil
		}
	}
	return Connection{}, ErrConnectionNotFound
}

func (s *ConnectionRepoStub) ListEnabled(_ context.Context) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Connection
	for _, conn := range s.connections {
		if conn.Enabled {
			result = append(result, conn)
		}
	}
	return result, nil
}

func (s *ConnectionRepoStub) ListEnabledForUsers(_ context.Context, userIds []int) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[int]bool, len(userIds))
	for _, id := range userIds {
		wanted[id] = true
	}
	var result []Connection
	for _, conn := range s.connections {
		if conn.Enabled && wanted[conn.UserID] {
			result = append(result, conn)
		}
	}
	return result, nil
}

func (s *ConnectionRepoStub) UpdateOAuthCredentials(_ context.Context, id uuid.UUID, creds OAuthCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.Credentials = creds
	s.connections[id] = conn
	return nil
}

func (s *ConnectionRepoStub) SaveSyncState(_ context.Context, id uuid.UUID, syncToken string, lastSyncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.SyncToken = syncToken
	conn.LastSyncedAt = lastSyncedAt
	s.connections[id] = conn
	return nil
}

func (s *ConnectionRepoStub) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[id]
	if !ok {
		return ErrConnectionNotFound
	}
	conn.Enabled = enabled
	s.connections[id] = conn
	return nil
}

func (s *ConnectionRepoStub) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
	return nil
}
