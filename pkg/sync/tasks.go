package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/homekeep/homekeep/internal/queue"
)

const (
	TaskOutboundCreate = "sync.outbound.create"
	TaskOutboundUpdate = "sync.outbound.update"
	TaskOutboundDelete = "sync.outbound.delete"
	TaskInboundPull    = "sync.inbound.pull"
)

// OutboundTask references the local event by id. The worker reads the
// current state at execution time, so a stale payload never overwrites a
// newer edit.
type OutboundTask struct {
	EventID      uuid.UUID `json:"eventId"`
	ConnectionID uuid.UUID `json:"connectionId"`
}

// DeleteTask carries the values captured before the local event row was
// removed. They stay valid after the cascade wipes the mapping.
type DeleteTask struct {
	ConnectionID  uuid.UUID `json:"connectionId"`
	MappingID     uuid.UUID `json:"mappingId"`
	RemoteEventID string    `json:"remoteEventId"`
}

type PullTask struct {
	ConnectionID uuid.UUID `json:"connectionId"`
}

// RegisterHandlers binds the sync workers to the task queue with the retry
// policies each direction needs. Pulls back off longer because a failed
// listing usually means the provider is throttling us.
func RegisterHandlers(q *queue.Queue, outbound *OutboundWorker, inbound *InboundWorker) {
	outboundPolicy := queue.Policy{MaxAttempts: 3, Backoff: 30 * time.Second}
	pullPolicy := queue.Policy{MaxAttempts: 3, Backoff: 60 * time.Second}

	q.Register(TaskOutboundCreate, outboundPolicy, func(ctx context.Context, payload any) error {
		task, err := decodeTask[OutboundTask](payload)
		if err != nil {
			return err
		}
		return outbound.HandleChange(ctx, task, false)
	})
	q.Register(TaskOutboundUpdate, outboundPolicy, func(ctx context.Context, payload any) error {
		task, err := decodeTask[OutboundTask](payload)
		if err != nil {
			return err
		}
		return outbound.HandleChange(ctx, task, true)
	})
	q.Register(TaskOutboundDelete, outboundPolicy, func(ctx context.Context, payload any) error {
		task, err := decodeTask[DeleteTask](payload)
		if err != nil {
			return err
		}
		return outbound.HandleDelete(ctx, task)
	})
	q.Register(TaskInboundPull, pullPolicy, func(ctx context.Context, payload any) error {
		task, err := decodeTask[PullTask](payload)
		if err != nil {
			return err
		}
		return inbound.HandlePull(ctx, task)
	})
}

// decodeTask accepts either the typed payload itself or its JSON form, so
// handlers work the same for in-process enqueues and persisted tasks.
func decodeTask[T any](payload any) (T, error) {
	if task, ok := payload.(T); ok {
		return task, nil
	}
	var task T
	raw, ok := payload.([]byte)
	if !ok {
		return task, fmt.Errorf("unexpected task payload type %T", payload)
	}
	if err := json.Unmarshal(raw, &task); err != nil {
		return task, fmt.Errorf("could not decode task payload: %w", err)
	}
	return task, nil
}
