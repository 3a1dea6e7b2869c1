package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aibanking/lending-assistant/internal/controller"
	"github.com/aibanking/lending-assistant/internal/middleware"
)

// Router sets up all routes
type Router struct {
	chatController         *controller.ChatController
	conversationController *controller.ConversationController
	ready                  func() bool
}

// NewRouter creates a new router instance. ready gates the readiness probe;
// main passes the registry's data-availability check (registry loaded, both
// lookup tables non-empty).
func NewRouter(
	chatController *controller.ChatController,
	conversationController *controller.ConversationController,
	ready func() bool,
) *Router {
	return &Router{
		chatController:         chatController,
		conversationController: conversationController,
		ready:                  ready,
	}
}

// SetupRoutes configures all routes
func (r *Router) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check endpoints
	router.HandleFunc("/health", r.healthCheck).Methods("GET")
	router.HandleFunc("/ready", r.readyCheck).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/chat", r.chatController.Chat).Methods("POST")
	api.HandleFunc("/conversations", r.conversationController.Create).Methods("POST")
	api.HandleFunc("/conversations", r.conversationController.List).Methods("GET")
	api.HandleFunc("/conversations/{conversationID}/open", r.conversationController.Open).Methods("POST")
	api.HandleFunc("/conversations/{conversationID}/messages", r.conversationController.Messages).Methods("GET")
	api.HandleFunc("/config", r.conversationController.Config).Methods("GET")

	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.AuthMiddleware)

	return router
}

// healthCheck returns server health status
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readyCheck returns server readiness status
func (r *Router) readyCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.ready != nil && !r.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
