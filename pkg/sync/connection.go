package sync

import (
	"time"

	"github.com/google/uuid"
)

// CredentialKind tags the two supported ways of reaching a remote calendar
// account.
type CredentialKind string

const (
	KindServiceAccount CredentialKind = "service-account"
	KindOAuth          CredentialKind = "oauth2"
)

// Credentials is the credential material of a Connection. Implementations
// are ServiceAccountCredentials and OAuthCredentials; the gateway dispatches
// on the concrete type.
type Credentials interface {
	Kind() CredentialKind
}

// ServiceAccountCredentials point at a shared service-account key file.
type ServiceAccountCredentials struct {
	CredentialsFile string
}

func (ServiceAccountCredentials) Kind() CredentialKind { return KindServiceAccount }

// OAuthCredentials hold a user's token triple. Expired access tokens are
// refreshed by the gateway and persisted back to the connection.
type OAuthCredentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

func (OAuthCredentials) Kind() CredentialKind { return KindOAuth }

// Connection is a user's link to one remote calendar account. At most one
// connection exists per user (upsert-on-user semantics).
type Connection struct {
	ID          uuid.UUID
	UserID      int
	CalendarID  string
	Enabled     bool
	Credentials Credentials
	// SyncToken is the opaque incremental-sync cursor. Empty means the
	// connection has never completed a pull and the next listing does a
	// bounded full-window sync.
	SyncToken    string
	LastSyncedAt time.Time
}

// IdentityMapping joins a local event to its remote counterpart for one
// connection. Unique per (event, connection) pair.
type IdentityMapping struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	ConnectionID  uuid.UUID
	RemoteEventID string
	LastSyncedAt  time.Time
}
