package sync

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler enqueues periodic pull tasks for every enabled connection.
type Scheduler struct {
	connections ConnectionRepo
	enqueuer    Enqueuer
	cron        *cron.Cron
}

func NewScheduler(connections ConnectionRepo, enqueuer Enqueuer) *Scheduler {
	return &Scheduler{
		connections: connections,
		enqueuer:    enqueuer,
		cron:        cron.New(),
	}
}

// Start registers the pull trigger under the given cron schedule and starts
// the timer. One immediate round runs so a restart does not wait a full
// interval before catching up.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.EnqueuePulls(context.Background()); err != nil {
			log.Errorf("Scheduled pull round failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	s.cron.Start()

	go func() {
		if err := s.EnqueuePulls(context.Background()); err != nil {
			log.Errorf("Initial pull round failed: %v", err)
		}
	}()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// EnqueuePulls submits one pull task per enabled connection. A full queue is
// logged and skipped; the next round retries.
func (s *Scheduler) EnqueuePulls(ctx context.Context) error {
	connections, err := s.connections.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("could not list enabled connections: %w", err)
	}
	for _, conn := range connections {
		if err := s.enqueuer.Enqueue(TaskInboundPull, PullTask{ConnectionID: conn.ID}); err != nil {
			log.Warnf("Could not enqueue pull for connection %s: %v", conn.ID, err)
		}
	}
	return nil
}
