package app

import (
	"database/sql"

	"github.com/homekeep/homekeep/internal/config"
	"github.com/homekeep/homekeep/internal/queue"
	"github.com/homekeep/homekeep/internal/utils"
	"github.com/homekeep/homekeep/pkg/event"
	"github.com/homekeep/homekeep/pkg/google"
	"github.com/homekeep/homekeep/pkg/sync"
	"github.com/homekeep/homekeep/pkg/user"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	UserService user.Service
	UserHandler *user.Handler

	EventRepo    event.Repository
	EventService *event.Service
	EventHandler *event.Handler

	ConnectionRepo sync.ConnectionRepo
	MappingRepo    sync.MappingRepo
	Gateway        *google.Gateway
	Dispatcher     *sync.Dispatcher
	OutboundWorker *sync.OutboundWorker
	InboundWorker  *sync.InboundWorker
	Scheduler      *sync.Scheduler
	SyncHandler    *sync.Handler

	Queue *queue.Queue
	Clock utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.Queue = queue.New(cfg.Sync.Workers)

	deps.UserService = user.NewService(user.NewRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.EventRepo = event.NewRepository(db)
	deps.EventService = event.NewService(deps.EventRepo)
	deps.EventHandler = event.NewHandler(deps.EventService)

	deps.ConnectionRepo = sync.NewConnectionRepo(db)
	deps.MappingRepo = sync.NewMappingRepo(db)
	deps.Gateway = google.NewGateway(cfg, deps.ConnectionRepo, deps.Clock)

	deps.Dispatcher = sync.NewDispatcher(deps.ConnectionRepo, deps.MappingRepo, deps.Queue)
	// Mutations committed by the event service fan out through the dispatcher.
	deps.EventService.SetNotifier(deps.Dispatcher)

	deps.OutboundWorker = sync.NewOutboundWorker(deps.EventRepo, deps.ConnectionRepo, deps.MappingRepo, deps.Gateway, deps.Clock)
	deps.InboundWorker = sync.NewInboundWorker(deps.EventService, deps.ConnectionRepo, deps.MappingRepo, deps.Gateway, deps.Clock)
	sync.RegisterHandlers(deps.Queue, deps.OutboundWorker, deps.InboundWorker)

	deps.Scheduler = sync.NewScheduler(deps.ConnectionRepo, deps.Queue)
	deps.SyncHandler = sync.NewHandler(deps.ConnectionRepo, deps.Queue)

	return deps
}
