// Package api is the remote authority's HTTP surface: bearer-authenticated
// JSON endpoints the device agents push mutations to and pull canonical
// records from. Every query is scoped to the workspace the API key grants.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vm799/trust-by-design-sub003/internal/models"
	"github.com/vm799/trust-by-design-sub003/internal/serverdb"
)

// Server is the HTTP API server for tbd-server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	rateLimiter *RateLimiter
}

// NewServer creates a Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) *Server {
	s := &Server{
		config:      cfg.withDefaults(),
		store:       store,
		rateLimiter: NewRateLimiter(),
	}
	s.http = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Routes builds the HTTP handler with all routes and middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /v1/workspaces/{ws}/entities/{kind}",
		s.requireWorkspaceAuth(s.withRateLimit(s.handlePull, s.config.RateLimitPull)))
	mux.HandleFunc("POST /v1/workspaces/{ws}/entities/{kind}",
		s.requireWorkspaceAuth(s.withRateLimit(s.handleCreate, s.config.RateLimitPush)))
	mux.HandleFunc("PUT /v1/workspaces/{ws}/entities/{kind}/{id}",
		s.requireWorkspaceAuth(s.withRateLimit(s.handleUpdate, s.config.RateLimitPush)))
	mux.HandleFunc("DELETE /v1/workspaces/{ws}/entities/{kind}/{id}",
		s.requireWorkspaceAuth(s.withRateLimit(s.handleDelete, s.config.RateLimitPush)))
	mux.HandleFunc("GET /v1/workspaces/{ws}/status",
		s.requireWorkspaceAuth(s.withRateLimit(s.handleStatus, s.config.RateLimitPull)))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		loggingMiddleware,
		maxBytesMiddleware(s.config.MaxBodyBytes),
	)
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathKind validates the {kind} path value against the known entity kinds.
func pathKind(w http.ResponseWriter, r *http.Request) (string, bool) {
	kind := r.PathValue("kind")
	if !models.ValidKind(models.Kind(kind)) {
		writeError(w, http.StatusBadRequest, ErrCodeUnknownKind, fmt.Sprintf("unknown entity kind %q", kind))
		return "", false
	}
	return kind, true
}

// recordJSON is the wire shape of one pulled record.
type recordJSON struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	UpdatedAt   string          `json:"updated_at"`
	Data        json.RawMessage `json:"data"`
}

// handlePull returns entities of one kind, optionally only those modified
// after the given cursor.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	workspaceID := r.PathValue("ws")

	var modifiedAfter *time.Time
	if raw := r.URL.Query().Get("modified_after"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "modified_after must be RFC 3339")
			return
		}
		modifiedAfter = &t
	}

	entities, err := s.store.ListEntities(workspaceID, kind, modifiedAfter)
	if err != nil {
		logFor(r.Context()).Error("list entities", "kind", kind, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list entities")
		return
	}

	out := make([]recordJSON, 0, len(entities))
	for _, e := range entities {
		out = append(out, recordJSON{
			ID:          e.ID,
			WorkspaceID: e.WorkspaceID,
			UpdatedAt:   e.ModifiedAt.UTC().Format(time.RFC3339Nano),
			Data:        e.Data,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreate stores a new entity. Creation is idempotent by the
// client-supplied id; the response carries the canonical id either way.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	workspaceID := r.PathValue("ws")

	payload, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	entity, created, err := s.store.CreateEntity(workspaceID, kind, payload)
	if err != nil {
		logFor(r.Context()).Error("create entity", "kind", kind, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create entity")
		return
	}

	status := http.StatusCreated
	if !created {
		// Replay of an already applied create
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{
		"id":         entity.ID,
		"updated_at": entity.ModifiedAt.UTC().Format(time.RFC3339Nano),
	})
}

// handleUpdate upserts an entity's data.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	workspaceID := r.PathValue("ws")
	id := r.PathValue("id")

	payload, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	entity, err := s.store.UpsertEntity(workspaceID, kind, id, payload)
	if err != nil {
		logFor(r.Context()).Error("upsert entity", "kind", kind, "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update entity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":         entity.ID,
		"updated_at": entity.ModifiedAt.UTC().Format(time.RFC3339Nano),
	})
}

// handleDelete removes an entity.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(w, r)
	if !ok {
		return
	}
	workspaceID := r.PathValue("ws")
	id := r.PathValue("id")

	if err := s.store.DeleteEntity(workspaceID, kind, id); err != nil {
		logFor(r.Context()).Error("delete entity", "kind", kind, "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete entity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus returns per-kind entity counts for the workspace.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("ws")

	status, err := s.store.Status(workspaceID)
	if err != nil {
		logFor(r.Context()).Error("workspace status", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to compute status")
		return
	}

	resp := map[string]any{"counts": status.Counts}
	if status.LastModified != nil {
		resp["last_modified"] = status.LastModified.UTC().Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

// readPayload reads and validates a JSON request body.
func readPayload(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request body")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("request body is not valid JSON")
	}
	return json.RawMessage(data), nil
}
