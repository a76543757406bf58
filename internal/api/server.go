// Package api exposes the filter management HTTP surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"matchpulse/internal/storage"
)

// Server is the HTTP API over filter storage. It feeds filters into the
// evaluation engine but never runs evaluations itself.
type Server struct {
	store  storage.Storage
	log    *slog.Logger
	router *mux.Router
}

// New creates a Server and registers its routes.
func New(store storage.Storage, log *slog.Logger) *Server {
	s := &Server{
		store:  store,
		log:    log,
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/filters", s.handleCreateFilter).Methods(http.MethodPost)
	s.router.HandleFunc("/filters", s.handleListFilters).Methods(http.MethodGet)
	s.router.HandleFunc("/filters/import", s.handleImportFilters).Methods(http.MethodPost)
	s.router.HandleFunc("/filters/{id}", s.handleGetFilter).Methods(http.MethodGet)
	s.router.HandleFunc("/filters/{id}", s.handleUpdateFilter).Methods(http.MethodPatch)
	s.router.HandleFunc("/filters/{id}", s.handleDeleteFilter).Methods(http.MethodDelete)

	s.router.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	s.router.HandleFunc("/telegram/link", s.handleLinkTelegram).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
