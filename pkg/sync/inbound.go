package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/homekeep/homekeep/internal/utils"
	"github.com/homekeep/homekeep/pkg/event"
)

// InboundWorker pulls remote changes through the gateway and applies them to
// the local store. Changes go through the event service under a remote-origin
// context, which keeps the dispatcher from echoing them back out.
//
// Pulls are serialized per connection: a pull that arrives while another pull
// for the same connection is running is skipped, because two concurrent
// listings with the same cursor would apply the same changes twice.
type InboundWorker struct {
	events      *event.Service
	connections ConnectionRepo
	mappings    MappingRepo
	gateway     Gateway
	clock       utils.Clock

	mu      gosync.Mutex
	pulling map[uuid.UUID]bool
}

func NewInboundWorker(
	events *event.Service,
	connections ConnectionRepo,
	mappings MappingRepo,
	gateway Gateway,
	clock utils.Clock,
) *InboundWorker {
	return &InboundWorker{
		events:      events,
		connections: connections,
		mappings:    mappings,
		gateway:     gateway,
		clock:       clock,
		pulling:     make(map[uuid.UUID]bool),
	}
}

func (w *InboundWorker) acquirePull(connectionId uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pulling[connectionId] {
		return false
	}
	w.pulling[connectionId] = true
	return true
}

func (w *InboundWorker) releasePull(connectionId uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pulling, connectionId)
}

// HandlePull runs one incremental listing for the connection. The sync token
// advances only after every change has been applied, so a mid-batch failure
// replays the whole batch on the next attempt.
func (w *InboundWorker) HandlePull(ctx context.Context, task PullTask) error {
	if !w.acquirePull(task.ConnectionID) {
		log.Debugf("Pull already running for connection %s, skipping", task.ConnectionID)
		return nil
	}
	defer w.releasePull(task.ConnectionID)

	conn, err := w.connections.Get(ctx, task.ConnectionID)
	if errors.Is(err, ErrConnectionNotFound) {
		log.Infof("Skipping pull: connection %s is gone", task.ConnectionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load connection %s: %w", task.ConnectionID, err)
	}
	if !conn.Enabled {
		return nil
	}

	changeSet, err := w.gateway.ListChanges(ctx, conn)
	if err != nil {
		return fmt.Errorf("could not list remote changes for connection %s: %w", conn.ID, err)
	}

	ctx = WithRemoteOrigin(ctx)
	for _, change := range changeSet.Changes {
		if err := w.applyChange(ctx, conn, change); err != nil {
			return fmt.Errorf("could not apply remote change %s: %w", change.RemoteID, err)
		}
	}

	if err := w.connections.SaveSyncState(ctx, conn.ID, changeSet.NextSyncToken, w.clock.Now()); err != nil {
		return fmt.Errorf("could not save sync state for connection %s: %w", conn.ID, err)
	}
	log.Debugf("Applied %d remote changes on connection %s", len(changeSet.Changes), conn.ID)
	return nil
}

func (w *InboundWorker) applyChange(ctx context.Context, conn Connection, change RemoteChange) error {
	mapping, err := w.mappings.GetByRemoteEvent(ctx, conn.ID, change.RemoteID)
	if err != nil && !errors.Is(err, ErrMappingNotFound) {
		return err
	}
	mapped := err == nil

	if change.Cancelled {
		if !mapped {
			// Never seen locally, nothing to remove.
			return nil
		}
		if err := w.events.Delete(ctx, mapping.EventID); err != nil && !errors.Is(err, event.ErrEventNotFound) {
			return err
		}
		if err := w.mappings.Delete(ctx, mapping.ID); err != nil {
			return err
		}
		return nil
	}

	if mapped {
		return w.updateLocal(ctx, mapping, change)
	}
	return w.createLocal(ctx, conn, change)
}

func (w *InboundWorker) updateLocal(ctx context.Context, mapping IdentityMapping, change RemoteChange) error {
	current, err := w.events.Get(ctx, mapping.EventID)
	if errors.Is(err, event.ErrEventNotFound) {
		// The local row vanished under the mapping. Drop the mapping instead
		// of resurrecting the event; the remote side gets cleaned up by the
		// delete task that removed the row.
		return w.mappings.Delete(ctx, mapping.ID)
	}
	if err != nil {
		return err
	}

	updated := change.Event
	updated.ID = current.ID
	updated.OwnerID = current.OwnerID
	updated.SharedWith = current.SharedWith
	// Fields the remote calendar does not carry keep their local values.
	updated.Recurrence = current.Recurrence
	updated.Color = current.Color

	if _, err := w.events.Update(ctx, updated); err != nil {
		return err
	}
	return w.mappings.Touch(ctx, mapping.ID, w.clock.Now())
}

func (w *InboundWorker) createLocal(ctx context.Context, conn Connection, change RemoteChange) error {
	created := change.Event
	created.OwnerID = conn.UserID
	created.Recurrence = event.RecurrenceNone

	stored, err := w.events.Create(ctx, created)
	if err != nil {
		return err
	}
	_, err = w.mappings.Upsert(ctx, IdentityMapping{
		EventID:       stored.ID,
		ConnectionID:  conn.ID,
		RemoteEventID: change.RemoteID,
		LastSyncedAt:  w.clock.Now(),
	})
	return err
}
