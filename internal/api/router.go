package api

import (
	"coedit/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Tracing first so recovery and CORS show up inside the span.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Unauthenticated: health and token issuance.
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")

	// Everything else requires a bearer token.
	authed := api.NewRoute().Subrouter()
	authed.Use(h.requireAuth)

	authed.HandleFunc("/sessions", h.DeleteSession).Methods("DELETE")

	authed.HandleFunc("/documents", h.CreateDocument).Methods("POST")
	authed.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	authed.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	authed.HandleFunc("/documents/{id}", h.UpdateDocument).Methods("PUT")
	authed.HandleFunc("/documents/{id}", h.DeleteDocument).Methods("DELETE")
	authed.HandleFunc("/documents/{id}/collaborators", h.AddCollaborator).Methods("POST")
	authed.HandleFunc("/documents/{id}/comments", h.ListComments).Methods("GET")

	// The websocket handshake carries its own token (query string or header);
	// verification happens inside the handler.
	r.HandleFunc("/ws", h.HandleWebSocket)

	return r
}
