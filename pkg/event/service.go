package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/homekeep/homekeep/pkg/user"
	log "github.com/sirupsen/logrus"
)

// Notifier is called synchronously after each committed event mutation.
// Implemented by the sync dispatcher; wired in app dependencies. A nil
// notifier is legal and disables outbound synchronization.
//
// EventDeleting runs before the row is removed so the implementation can
// capture remote identifiers that would otherwise cascade away.
type Notifier interface {
	EventCreated(ctx context.Context, event Event) error
	EventUpdated(ctx context.Context, event Event) error
	EventDeleting(ctx context.Context, event Event) error
}

type Service struct {
	repo     Repository
	notifier Notifier
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SetNotifier installs the mutation notifier. Must be called during wiring,
// before the service handles requests.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) Create(ctx context.Context, event Event) (Event, error) {
	if event.OwnerID == 0 {
		ownerId, err := user.CurrentId(ctx)
		if err != nil {
			return Event{}, fmt.Errorf("failed to get current user: %w", err)
		}
		event.OwnerID = ownerId
	}

	stored, err := s.repo.StoreEvent(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store event: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.EventCreated(ctx, stored); err != nil {
			// The local store is the source of truth; a failed dispatch only
			// delays outbound propagation.
			log.Errorf("failed to dispatch sync for created event %s: %v", stored.ID, err)
		}
	}
	return stored, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	return s.repo.GetEvent(ctx, id)
}

func (s *Service) List(ctx context.Context, from, to time.Time) ([]Event, error) {
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetEvents(ctx, userId, from, to)
}

func (s *Service) Update(ctx context.Context, event Event) (Event, error) {
	current, err := s.repo.GetEvent(ctx, event.ID)
	if err != nil {
		return Event{}, fmt.Errorf("failed to load event: %w", err)
	}
	// Owner never changes on update.
	event.OwnerID = current.OwnerID

	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return Event{}, fmt.Errorf("failed to update event: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.EventUpdated(ctx, event); err != nil {
			log.Errorf("failed to dispatch sync for updated event %s: %v", event.ID, err)
		}
	}
	return event, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	event, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	// Notify before the row disappears: delete tasks must carry the remote
	// identifiers as plain values.
	if s.notifier != nil {
		if err := s.notifier.EventDeleting(ctx, event); err != nil {
			log.Errorf("failed to dispatch sync for deleted event %s: %v", event.ID, err)
		}
	}

	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}
