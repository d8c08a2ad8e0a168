package app

import (
	"github.com/gorilla/mux"

	"github.com/homekeep/homekeep/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Events
	r.HandleFunc("/api/event", deps.EventHandler.ListEvents).Queries("from", "{from}", "to", "{to}").Methods("GET")
	r.HandleFunc("/api/event", deps.EventHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/event/{eventId}", deps.EventHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/event/{eventId}", deps.EventHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/event/{eventId}", deps.EventHandler.DeleteEvent).Methods("DELETE")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")
	r.HandleFunc("/api/user", deps.UserHandler.GetAllUsers).Methods("GET")

	// Calendar synchronization
	r.HandleFunc("/api/sync/connection", deps.SyncHandler.GetConnection).Methods("GET")
	r.HandleFunc("/api/sync/connection", deps.SyncHandler.SaveConnection).Methods("PUT")
	r.HandleFunc("/api/sync/connection", deps.SyncHandler.DeleteConnection).Methods("DELETE")
	r.HandleFunc("/api/sync/connection/enabled", deps.SyncHandler.SetEnabled).Methods("PUT")
	r.HandleFunc("/api/sync/now", deps.SyncHandler.SyncNow).Methods("POST")
}
