package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/homekeep/homekeep/internal/config"
	"github.com/homekeep/homekeep/internal/database"
)

// Application wires configuration, database, sync machinery, router, and
// server lifecycle.
type Application struct {
	cfg    config.Application
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication() (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	// DB + migrations
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps := BuildDependencies(db, cfg)

	// Middleware chain
	SetupMiddleware(r, deps, cfg)

	// Routes
	RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Handler:      r,
		Addr:         ":8181",
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, deps: deps, router: r, srv: srv}, nil
}

// Run starts the task queue, the pull scheduler, and the HTTP server, then
// blocks until the server stops.
func (a *Application) Run() error {
	a.deps.Queue.Start()
	defer a.deps.Queue.Stop()

	if err := a.deps.Scheduler.Start(a.cfg.Sync.Schedule); err != nil {
		return err
	}
	defer a.deps.Scheduler.Stop()

	log.Infof("Starting server on %s", a.srv.Addr)
	return a.srv.ListenAndServe()
}
