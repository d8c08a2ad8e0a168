package sync

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/homekeep/homekeep/internal/utils"
	"github.com/homekeep/homekeep/pkg/event"
)

// OutboundWorker pushes local event changes to the remote calendar. Handlers
// re-read current state at execution time, so reordered or retried tasks
// converge on the latest local version.
type OutboundWorker struct {
	events      event.Repository
	connections ConnectionRepo
	mappings    MappingRepo
	gateway     Gateway
	clock       utils.Clock
}

func NewOutboundWorker(
	events event.Repository,
	connections ConnectionRepo,
	mappings MappingRepo,
	gateway Gateway,
	clock utils.Clock,
) *OutboundWorker {
	return &OutboundWorker{
		events:      events,
		connections: connections,
		mappings:    mappings,
		gateway:     gateway,
		clock:       clock,
	}
}

// HandleChange pushes a create or update. An update whose mapping is missing
// falls back to creating the remote event, which heals mappings lost to a
// crashed earlier attempt.
func (w *OutboundWorker) HandleChange(ctx context.Context, task OutboundTask, update bool) error {
	conn, err := w.connections.Get(ctx, task.ConnectionID)
	if errors.Is(err, ErrConnectionNotFound) {
		log.Infof("Skipping outbound sync for event %s: connection %s is gone", task.EventID, task.ConnectionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load connection %s: %w", task.ConnectionID, err)
	}
	if !conn.Enabled {
		return nil
	}

	ev, err := w.events.GetEvent(ctx, task.EventID)
	if errors.Is(err, event.ErrEventNotFound) {
		// Deleted locally before this task ran. The delete task handles the
		// remote side.
		log.Infof("Skipping outbound sync for event %s: event no longer exists", task.EventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load event %s: %w", task.EventID, err)
	}

	mapping, err := w.mappings.GetByEventAndConnection(ctx, task.EventID, task.ConnectionID)
	if err != nil && !errors.Is(err, ErrMappingNotFound) {
		return fmt.Errorf("could not look up mapping for event %s: %w", task.EventID, err)
	}

	if errors.Is(err, ErrMappingNotFound) {
		return w.createRemote(ctx, conn, ev)
	}

	if !update {
		// A retried create found the mapping from its previous attempt.
		// Updating in place keeps the handler idempotent.
		log.Debugf("Event %s already mapped on connection %s, updating instead", ev.ID, conn.ID)
	}
	if err := w.gateway.UpdateEvent(ctx, conn, ev, mapping.RemoteEventID); err != nil {
		return fmt.Errorf("could not update remote event %s: %w", mapping.RemoteEventID, err)
	}
	if err := w.mappings.Touch(ctx, mapping.ID, w.clock.Now()); err != nil {
		return err
	}
	return nil
}

func (w *OutboundWorker) createRemote(ctx context.Context, conn Connection, ev event.Event) error {
	remoteId, err := w.gateway.CreateEvent(ctx, conn, ev)
	if err != nil {
		return fmt.Errorf("could not create remote event for %s: %w", ev.ID, err)
	}
	_, err = w.mappings.Upsert(ctx, IdentityMapping{
		EventID:       ev.ID,
		ConnectionID:  conn.ID,
		RemoteEventID: remoteId,
		LastSyncedAt:  w.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("could not store mapping for event %s: %w", ev.ID, err)
	}
	return nil
}

// HandleDelete removes the remote event using the values captured when the
// local event was deleted. The local mapping row is gone by now via cascade,
// so the task payload is the only place the remote id survives.
func (w *OutboundWorker) HandleDelete(ctx context.Context, task DeleteTask) error {
	conn, err := w.connections.Get(ctx, task.ConnectionID)
	if errors.Is(err, ErrConnectionNotFound) {
		log.Infof("Skipping remote delete of %s: connection %s is gone", task.RemoteEventID, task.ConnectionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load connection %s: %w", task.ConnectionID, err)
	}
	if !conn.Enabled {
		return nil
	}

	if err := w.gateway.DeleteEvent(ctx, conn, task.RemoteEventID); err != nil {
		return fmt.Errorf("could not delete remote event %s: %w", task.RemoteEventID, err)
	}

	// Usually already removed by the cascade. Cleaning up here covers
	// mappings that outlived the event row.
	if err := w.mappings.Delete(ctx, task.MappingID); err != nil {
		log.Warnf("Could not remove mapping %s after remote delete: %v", task.MappingID, err)
	}
	return nil
}
