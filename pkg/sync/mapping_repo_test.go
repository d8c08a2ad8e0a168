package sync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homekeep/homekeep/internal/test_utils"
	"github.com/homekeep/homekeep/pkg/event"
)

type mappingFixture struct {
	db    *sql.DB
	repo  *MappingRepoImpl
	conn  Connection
	event event.Event
	ctx   context.Context
}

func setupMappingRepoTest(t *testing.T) mappingFixture {
	db := test_utils.SetupTestDB(t)
	ctx := context.Background()
	owner := test_utils.CreateTestUser(t, db, 1, "Anna")

	conn, err := NewConnectionRepo(db).Upsert(ctx, Connection{
		UserID:      owner.Id,
		CalendarID:  "family@group.calendar.google.com",
		Enabled:     true,
		Credentials: ServiceAccountCredentials{CredentialsFile: "/etc/homekeep/google.json"},
	})
	require.NoError(t, err)

	ev, err := event.NewRepository(db).StoreEvent(ctx, event.Event{
		Title:      "Dentist",
		StartTime:  time.Now(),
		Recurrence: event.RecurrenceNone,
		OwnerID:    owner.Id,
	})
	require.NoError(t, err)

	return mappingFixture{db: db, repo: NewMappingRepo(db), conn: conn, event: ev, ctx: ctx}
}

func TestMappingRepoImpl_Upsert_roundTrip(t *testing.T) {
	// Setup
	f := setupMappingRepoTest(t)
	syncedAt := time.Now().Truncate(time.Millisecond)

	// When
	stored, err := f.repo.Upsert(f.ctx, IdentityMapping{
		EventID:       f.event.ID,
		ConnectionID:  f.conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  syncedAt,
	})

	// Then
	require.NoError(t, err)
	fetched, err := f.repo.Get(f.ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, f.event.ID, fetched.EventID)
	assert.Equal(t, f.conn.ID, fetched.ConnectionID)
	assert.Equal(t, "remote-1", fetched.RemoteEventID)
	assert.Equal(t, syncedAt.UnixMilli(), fetched.LastSyncedAt.UnixMilli())
}

func TestMappingRepoImpl_Upsert_samePairOverwrites(t *testing.T) {
	// Setup
	f := setupMappingRepoTest(t)
	first, err := f.repo.Upsert(f.ctx, IdentityMapping{
		EventID:       f.event.ID,
		ConnectionID:  f.conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  time.Now(),
	})
	require.NoError(t, err)

	// When: a retried create stores a new remote id for the same pair
	second, err := f.repo.Upsert(f.ctx, IdentityMapping{
		EventID:       f.event.ID,
		ConnectionID:  f.conn.ID,
		RemoteEventID: "remote-2",
		LastSyncedAt:  time.Now(),
	})

	// Then
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "remote-2", second.RemoteEventID)
	mappings, err := f.repo.ListForEvent(f.ctx, f.event.ID)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestMappingRepoImpl_GetByRemoteEvent(t *testing.T) {
	// Setup
	f := setupMappingRepoTest(t)
	stored, err := f.repo.Upsert(f.ctx, IdentityMapping{
		EventID:       f.event.ID,
		ConnectionID:  f.conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  time.Now(),
	})
	require.NoError(t, err)

	// When
	fetched, err := f.repo.GetByRemoteEvent(f.ctx, f.conn.ID, "remote-1")

	// Then
	require.NoError(t, err)
	assert.Equal(t, stored.ID, fetched.ID)

	_, err = f.repo.GetByRemoteEvent(f.ctx, f.conn.ID, "remote-unknown")
	assert.ErrorIs(t, err, ErrMappingNotFound)
}

func TestMappingRepoImpl_Touch(t *testing.T) {
	// Setup
	f := setupMappingRepoTest(t)
	stored, err := f.repo.Upsert(f.ctx, IdentityMapping{
		EventID:       f.event.ID,
		ConnectionID:  f.conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	syncedAt := time.Now().Truncate(time.Millisecond)

	// When
	err = f.repo.Touch(f.ctx, stored.ID, syncedAt)

	// Then
	require.NoError(t, err)
	fetched, err := f.repo.Get(f.ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, syncedAt.UnixMilli(), fetched.LastSyncedAt.UnixMilli())
}

func TestMappingRepoImpl_CascadeOnEventDelete(t *testing.T) {
	// Setup
	f := setupMappingRepoTest(t)
	stored, err := f.repo.Upsert(f.ctx, IdentityMapping{
		EventID:       f.event.ID,
		ConnectionID:  f.conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  time.Now(),
	})
	require.NoError(t, err)

	// When
	require.NoError(t, event.NewRepository(f.db).DeleteEvent(f.ctx, f.event.ID))

	// Then
	_, err = f.repo.Get(f.ctx, stored.ID)
	assert.ErrorIs(t, err, ErrMappingNotFound)
}

func TestMappingRepoImpl_Get_notFound(t *testing.T) {
	f := setupMappingRepoTest(t)

	_, err := f.repo.Get(f.ctx, uuid.New())

	assert.ErrorIs(t, err, ErrMappingNotFound)
}
