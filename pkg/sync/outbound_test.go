package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homekeep/homekeep/internal/utils"
	"github.com/homekeep/homekeep/pkg/event"
)

type outboundFixture struct {
	worker      *OutboundWorker
	events      *event.RepositoryStub
	connections *ConnectionRepoStub
	mappings    *MappingRepoStub
	gateway     *GatewayStub
	clock       *utils.MockClock
	ctx         context.Context
}

func setupOutboundTest(t *testing.T) outboundFixture {
	t.Helper()
	events := event.NewRepositoryStub()
	connections := NewConnectionRepoStub()
	mappings := NewMappingRepoStub()
	gateway := NewGatewayStub()
	clock := &utils.MockClock{FixedNow: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	worker := NewOutboundWorker(events, connections, mappings, gateway, clock)
	return outboundFixture{
		worker:      worker,
		events:      events,
		connections: connections,
		mappings:    mappings,
		gateway:     gateway,
		clock:       clock,
		ctx:         context.Background(),
	}
}

func (f outboundFixture) storedEvent(t *testing.T, title string) event.Event {
	t.Helper()
	ev, err := f.events.StoreEvent(f.ctx, event.Event{
		Title:      title,
		StartTime:  f.clock.FixedNow,
		Recurrence: event.RecurrenceNone,
		OwnerID:    1,
	})
	require.NoError(t, err)
	return ev
}

func (f outboundFixture) connection(t *testing.T) Connection {
	t.Helper()
	conn, err := f.connections.Upsert(f.ctx, Connection{
		UserID:      1,
		CalendarID:  "family@group.calendar.google.com",
		Enabled:     true,
		Credentials: ServiceAccountCredentials{CredentialsFile: "/etc/homekeep/google.json"},
	})
	require.NoError(t, err)
	return conn
}

func TestOutboundWorker_HandleChange_createStoresMapping(t *testing.T) {
	// Setup
	f := setupOutboundTest(t)
	conn := f.connection(t)
	ev := f.storedEvent(t, "Dentist")

	// When
	err := f.worker.HandleChange(f.ctx, OutboundTask{EventID: ev.ID, ConnectionID: conn.ID}, false)

	// Then
	require.NoError(t, err)
	require.Len(t, f.gateway.CreatedEvents, 1)
	mapping, err := f.mappings.GetByEventAndConnection(f.ctx, ev.ID, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote-1", mapping.RemoteEventID)
	assert.Equal(t, f.clock.FixedNow, mapping.LastSyncedAt)
}

func TestOutboundWorker_HandleChange_retriedCreateDoesNotDuplicate(t *testing.T) {
	// Setup
	f := setupOutboundTest(t)
	conn := f.connection(t)
	ev := f.storedEvent(t, "Dentist")
	task := OutboundTask{EventID: ev.ID, ConnectionID: conn.ID}
	require.NoError(t, f.worker.HandleChange(f.ctx, task, false))

	// When: the same create runs again
	err := f.worker.HandleChange(f.ctx, task, false)

	// Then: the second run updates in place instead of inserting twice
	require.NoError(t, err)
	assert.Len(t, f.gateway.CreatedEvents, 1)
	assert.Contains(t, f.gateway.UpdatedEvents, "remote-1")
	mappings, err := f.mappings.ListForEvent(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestOutboundWorker_HandleChange_updateWithoutMappingFallsBackToCreate(t *testing.T) {
	// Setup
	f := setupOutboundTest(t)
	conn := f.connection(t)
	ev := f.storedEvent(t, "Dentist")

	// When: an update task arrives but no mapping exists
	err := f.worker.HandleChange(f.ctx, OutboundTask{EventID: ev.ID, ConnectionID: conn.ID}, true)

	// Then: the worker heals by creating the remote event
	require.NoError(t, err)
	assert.Len(t, f.gateway.CreatedEvents, 1)
	_, err = f.mappings.GetByEventAndConnection(f.ctx, ev.ID, conn.ID)
	assert.NoError(t, err)
}

func TestOutboundWorker_HandleChange_missingEventIsNoOp(t *testing.T) {
	// Setup
	f := setupOutboundTest(t)
	conn := f.connection(t)

	// When: the event was deleted before the task ran
	err := f.worker.HandleChange(f.ctx, OutboundTask{EventID: uuid.New(), ConnectionID: conn.ID}, false)

	// Then
	require.NoError(t, err)
	assert.Empty(t, f.gateway.CreatedEvents)
}

func TestOutboundWorker_HandleChange_disabledConnectionIsInert(t *testing.T) {
	// Setup
	f := setupOutboundTest(t)
	conn := f.connection(t)
	ev := f.storedEvent(t, "Dentist")
	require.NoError(t, f.connections.SetEnabled(f.ctx, conn.ID, false))

	// When
	err := f.worker.HandleChange(f.ctx, OutboundTask{EventID: ev.ID, ConnectionID: conn.ID}, false)

	// Then
	require.NoError(t, err)
	assert.Empty(t, f.gateway.CreatedEvents)
}

func TestOutboundWorker_HandleDelete_usesCapturedValues(t *testing.T) {
	// Setup: the local event and its mapping are already gone
	f := setupOutboundTest(t)
	conn := f.connection(t)
	task := DeleteTask{ConnectionID: conn.ID, MappingID: uuid.New(), RemoteEventID: "remote-7"}

	// When
	err := f.worker.HandleDelete(f.ctx, task)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"remote-7"}, f.gateway.DeletedIds)
}

func TestOutboundWorker_HandleDelete_disabledConnectionIsInert(t *testing.T) {
	// Setup
	f := setupOutboundTest(t)
	conn := f.connection(t)
	require.NoError(t, f.connections.SetEnabled(f.ctx, conn.ID, false))

	// When
	err := f.worker.HandleDelete(f.ctx, DeleteTask{ConnectionID: conn.ID, MappingID: uuid.New(), RemoteEventID: "remote-7"})

	// Then
	require.NoError(t, err)
	assert.Empty(t, f.gateway.DeletedIds)
}

func TestOutboundWorker_HandleDelete_goneConnectionIsNoOp(t *testing.T) {
	f := setupOutboundTest(t)

	err := f.worker.HandleDelete(f.ctx, DeleteTask{ConnectionID: uuid.New(), MappingID: uuid.New(), RemoteEventID: "remote-7"})

	require.NoError(t, err)
	assert.Empty(t, f.gateway.DeletedIds)
}
