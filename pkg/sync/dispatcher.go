package sync

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/homekeep/homekeep/pkg/event"
)

// Dispatcher fans out local event changes into outbound sync tasks, one per
// enabled connection of the event's owner and shared users. The event
// service calls it after its own write has been committed.
type Dispatcher struct {
	connections ConnectionRepo
	mappings    MappingRepo
	enqueuer    Enqueuer
}

func NewDispatcher(connections ConnectionRepo, mappings MappingRepo, enqueuer Enqueuer) *Dispatcher {
	return &Dispatcher{
		connections: connections,
		mappings:    mappings,
		enqueuer:    enqueuer,
	}
}

func (d *Dispatcher) EventCreated(ctx context.Context, ev event.Event) error {
	return d.dispatchChange(ctx, ev, TaskOutboundCreate)
}

func (d *Dispatcher) EventUpdated(ctx context.Context, ev event.Event) error {
	return d.dispatchChange(ctx, ev, TaskOutboundUpdate)
}

func (d *Dispatcher) dispatchChange(ctx context.Context, ev event.Event, taskType string) error {
	if IsRemoteOrigin(ctx) {
		return nil
	}

	connections, err := d.connections.ListEnabledForUsers(ctx, eventUserIds(ev))
	if err != nil {
		return fmt.Errorf("could not resolve connections for event %s: %w", ev.ID, err)
	}
	for _, conn := range connections {
		task := OutboundTask{EventID: ev.ID, ConnectionID: conn.ID}
		if err := d.enqueuer.Enqueue(taskType, task); err != nil {
			return fmt.Errorf("could not enqueue %s for event %s: %w", taskType, ev.ID, err)
		}
	}
	return nil
}

// EventDeleting runs before the local row is removed, while the identity
// mappings are still readable. Each mapping becomes one delete task carrying
// the remote id by value.
func (d *Dispatcher) EventDeleting(ctx context.Context, ev event.Event) error {
	if IsRemoteOrigin(ctx) {
		return nil
	}

	mappings, err := d.mappings.ListForEvent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("could not list mappings for event %s: %w", ev.ID, err)
	}
	for _, mapping := range mappings {
		task := DeleteTask{
			ConnectionID:  mapping.ConnectionID,
			MappingID:     mapping.ID,
			RemoteEventID: mapping.RemoteEventID,
		}
		if err := d.enqueuer.Enqueue(TaskOutboundDelete, task); err != nil {
			return fmt.Errorf("could not enqueue delete for event %s: %w", ev.ID, err)
		}
		log.Debugf("Enqueued remote delete of %s on connection %s", mapping.RemoteEventID, mapping.ConnectionID)
	}
	return nil
}

func eventUserIds(ev event.Event) []int {
	ids := []int{ev.OwnerID}
	seen := map[int]bool{ev.OwnerID: true}
	for _, userId := range ev.SharedWith {
		if !seen[userId] {
			seen[userId] = true
			ids = append(ids, userId)
		}
	}
	return ids
}
