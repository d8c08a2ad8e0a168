package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homekeep/homekeep/pkg/event"
)

// enqueuerSpy records every task handed to the queue.
type enqueuerSpy struct {
	tasks []recordedTask
	err   error
}

type recordedTask struct {
	taskType string
	payload  any
}

func (e *enqueuerSpy) Enqueue(taskType string, payload any) error {
	if e.err != nil {
		return e.err
	}
	e.tasks = append(e.tasks, recordedTask{taskType: taskType, payload: payload})
	return nil
}

func (e *enqueuerSpy) ofType(taskType string) []recordedTask {
	var result []recordedTask
	for _, task := range e.tasks {
		if task.taskType == taskType {
			result = append(result, task)
		}
	}
	return result
}

func setupDispatcherTest(t *testing.T) (*Dispatcher, *ConnectionRepoStub, *MappingRepoStub, *enqueuerSpy) {
	t.Helper()
	connections := NewConnectionRepoStub()
	mappings := NewMappingRepoStub()
	enqueuer := &enqueuerSpy{}
	return NewDispatcher(connections, mappings, enqueuer), connections, mappings, enqueuer
}

func enabledConnection(t *testing.T, connections *ConnectionRepoStub, userId int) Connection {
	t.Helper()
	conn, err := connections.Upsert(context.Background(), Connection{
		UserID:      userId,
		CalendarID:  "family@group.calendar.google.com",
		Enabled:     true,
		Credentials: ServiceAccountCredentials{CredentialsFile: "/etc/homekeep/google.json"},
	})
	require.NoError(t, err)
	return conn
}

func TestDispatcher_EventCreated_oneTaskPerConnection(t *testing.T) {
	// Setup
	dispatcher, connections, _, enqueuer := setupDispatcherTest(t)
	annaConn := enabledConnection(t, connections, 1)
	tomekConn := enabledConnection(t, connections, 2)
	enabledConnection(t, connections, 3)

	ev := event.Event{ID: uuid.New(), Title: "Dinner", OwnerID: 1, SharedWith: []int{2}}

	// When
	err := dispatcher.EventCreated(context.Background(), ev)

	// Then: owner and shared user get a task, the uninvolved user does not
	require.NoError(t, err)
	tasks := enqueuer.ofType(TaskOutboundCreate)
	require.Len(t, tasks, 2)
	gotConnections := []uuid.UUID{
		tasks[0].payload.(OutboundTask).ConnectionID,
		tasks[1].payload.(OutboundTask).ConnectionID,
	}
	assert.ElementsMatch(t, []uuid.UUID{annaConn.ID, tomekConn.ID}, gotConnections)
	for _, task := range tasks {
		assert.Equal(t, ev.ID, task.payload.(OutboundTask).EventID)
	}
}

func TestDispatcher_EventCreated_duplicateParticipantsCollapse(t *testing.T) {
	// Setup
	dispatcher, connections, _, enqueuer := setupDispatcherTest(t)
	enabledConnection(t, connections, 1)
	ev := event.Event{ID: uuid.New(), Title: "Dinner", OwnerID: 1, SharedWith: []int{1, 1}}

	// When
	err := dispatcher.EventCreated(context.Background(), ev)

	// Then
	require.NoError(t, err)
	assert.Len(t, enqueuer.tasks, 1)
}

func TestDispatcher_EventUpdated_skipsDisabledConnections(t *testing.T) {
	// Setup
	dispatcher, connections, _, enqueuer := setupDispatcherTest(t)
	conn := enabledConnection(t, connections, 1)
	require.NoError(t, connections.SetEnabled(context.Background(), conn.ID, false))
	ev := event.Event{ID: uuid.New(), Title: "Dinner", OwnerID: 1}

	// When
	err := dispatcher.EventUpdated(context.Background(), ev)

	// Then
	require.NoError(t, err)
	assert.Empty(t, enqueuer.tasks)
}

func TestDispatcher_RemoteOriginChangesAreNotDispatched(t *testing.T) {
	// Setup
	dispatcher, connections, mappings, enqueuer := setupDispatcherTest(t)
	conn := enabledConnection(t, connections, 1)
	ev := event.Event{ID: uuid.New(), Title: "Dinner", OwnerID: 1}
	_, err := mappings.Upsert(context.Background(), IdentityMapping{
		EventID:       ev.ID,
		ConnectionID:  conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  time.Now(),
	})
	require.NoError(t, err)
	ctx := WithRemoteOrigin(context.Background())

	// When: the change came from a pull
	require.NoError(t, dispatcher.EventCreated(ctx, ev))
	require.NoError(t, dispatcher.EventUpdated(ctx, ev))
	require.NoError(t, dispatcher.EventDeleting(ctx, ev))

	// Then: nothing is echoed back to the remote calendar
	assert.Empty(t, enqueuer.tasks)
}

func TestDispatcher_EventDeleting_capturesMappingValues(t *testing.T) {
	// Setup
	dispatcher, connections, mappings, enqueuer := setupDispatcherTest(t)
	conn := enabledConnection(t, connections, 1)
	ev := event.Event{ID: uuid.New(), Title: "Dinner", OwnerID: 1}
	mapping, err := mappings.Upsert(context.Background(), IdentityMapping{
		EventID:       ev.ID,
		ConnectionID:  conn.ID,
		RemoteEventID: "remote-1",
		LastSyncedAt:  time.Now(),
	})
	require.NoError(t, err)

	// When
	err = dispatcher.EventDeleting(context.Background(), ev)

	// Then: the task carries the remote id by value
	require.NoError(t, err)
	tasks := enqueuer.ofType(TaskOutboundDelete)
	require.Len(t, tasks, 1)
	task := tasks[0].payload.(DeleteTask)
	assert.Equal(t, conn.ID, task.ConnectionID)
	assert.Equal(t, mapping.ID, task.MappingID)
	assert.Equal(t, "remote-1", task.RemoteEventID)
}

func TestDispatcher_EventDeleting_noMappingsNoTasks(t *testing.T) {
	// Setup
	dispatcher, connections, _, enqueuer := setupDispatcherTest(t)
	enabledConnection(t, connections, 1)
	ev := event.Event{ID: uuid.New(), Title: "Never synced", OwnerID: 1}

	// When
	err := dispatcher.EventDeleting(context.Background(), ev)

	// Then
	require.NoError(t, err)
	assert.Empty(t, enqueuer.tasks)
}
