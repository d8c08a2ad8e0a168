package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/homekeep/homekeep/pkg/event"
)

// RemoteChange is a single changed event reported by the remote calendar.
// Cancelled changes carry only the remote id.
type RemoteChange struct {
	RemoteID  string
	Cancelled bool
	Event     event.Event
}

// ChangeSet is the result of one incremental listing. NextSyncToken must be
// persisted only after every change in Changes has been applied.
type ChangeSet struct {
	Changes       []RemoteChange
	NextSyncToken string
}

// Gateway talks to the remote calendar provider on behalf of a connection.
type Gateway interface {
	CreateEvent(ctx context.Context, conn Connection, ev event.Event) (string, error)
	UpdateEvent(ctx context.Context, conn Connection, ev event.Event, remoteEventId string) error
	// DeleteEvent treats an already-deleted remote event as success.
	DeleteEvent(ctx context.Context, conn Connection, remoteEventId string) error
	ListChanges(ctx context.Context, conn Connection) (ChangeSet, error)
}

// TokenStore persists refreshed OAuth credentials. ConnectionRepo satisfies it.
type TokenStore interface {
	UpdateOAuthCredentials(ctx context.Context, connectionId uuid.UUID, creds OAuthCredentials) error
}

// Enqueuer is the slice of the task queue the sync package needs.
type Enqueuer interface {
	Enqueue(taskType string, payload any) error
}
