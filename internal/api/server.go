// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/auth"
	"github.com/wouterc/sagsfiler/internal/config"
	"github.com/wouterc/sagsfiler/internal/events"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metadata"
	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/internal/storage"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// Version is reported by the health endpoint.
const Version = "1.0"

// sseKeepAlive is the interval between comment lines on idle event streams.
var sseKeepAlive = 30 * time.Second

var caseIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Pool gzip writers to reduce allocations on listing endpoints.
var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// Server is the HTTP server.
type Server struct {
	metadata      *metadata.Store
	storage       storage.Backend
	auth          *auth.Auth
	broadcaster   *events.Broadcaster
	maxUploadSize int64
	maxZipEntries int
}

// NewServer creates a new server.
func NewServer(
	store *metadata.Store,
	backend storage.Backend,
	authHandler *auth.Auth,
	broadcaster *events.Broadcaster,
	cfg *config.Config,
) *Server {
	return &Server{
		metadata:      store,
		storage:       backend,
		auth:          authHandler,
		broadcaster:   broadcaster,
		maxUploadSize: cfg.MaxUploadSize,
		maxZipEntries: cfg.MaxZipEntries,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", s.handleHealth)

	// Case endpoints, each behind the auth middleware
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.Middleware(h))
	}
	// Desktop download links carry the token in the query.
	linkable := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.LinkMiddleware(h))
	}
	const c = "/api/v1/cases/{caseId}"

	protected("GET "+c, s.handleGetCase)
	protected("PUT "+c, s.handlePutCase)

	protected("GET "+c+"/files", s.handleList)
	protected("DELETE "+c+"/files", s.handleDelete)
	protected("GET "+c+"/folders", s.handleListFolders)
	protected("POST "+c+"/folders", s.handleCreateFolder)
	protected("POST "+c+"/rename", s.handleRename)
	protected("POST "+c+"/move", s.handleMove)

	linkable("GET "+c+"/download", s.handleDownload)
	linkable("GET "+c+"/download-zip", s.handleZipQuery)
	protected("POST "+c+"/download-zip", s.handleZipBody)
	protected("PUT "+c+"/content", s.handleUpload)

	protected("PUT "+c+"/links", s.handleSetLink)
	protected("DELETE "+c+"/links", s.handleRemoveLink)

	protected("GET "+c+"/events", s.handleEvents)

	// Apply logging and metrics middleware
	return logging.Middleware(metrics.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.metadata.Ping(r.Context()); err != nil {
		s.sendError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
		"storage": s.storage.Type(),
	})
}

// ─── SSE Events ─────────────────────────────────────────────────────────────

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe(caseID)
	defer s.broadcaster.Unsubscribe(caseID, ch)

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// publishEvent publishes a case event to the broadcaster if available.
func (s *Server) publishEvent(caseID, eventType, path, oldPath string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(protocol.CaseEvent{
		Type:    eventType,
		CaseID:  caseID,
		Path:    path,
		OldPath: oldPath,
	})
}

// ─── Request helpers ────────────────────────────────────────────────────────

// caseID validates the {caseId} path value and the bearer's access to it.
func (s *Server) caseID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("caseId")
	if !caseIDPattern.MatchString(id) {
		s.sendError(w, http.StatusBadRequest, "invalid case id")
		return "", false
	}
	if !s.auth.CanAccessCase(r.Context(), id) {
		s.sendError(w, http.StatusForbidden, "access denied")
		return "", false
	}
	return id, true
}

// cleanPath normalises a path from a query or body, replying 400 on failure.
func (s *Server) cleanPath(w http.ResponseWriter, raw string) (string, bool) {
	p, err := metadata.CleanPath(raw)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return p, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// sendListing writes v as JSON, gzip compressed when the client accepts it.
func sendListing(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", "Accept-Encoding")
	if acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzipPool.Get().(*gzip.Writer)
		gw.Reset(w)
		json.NewEncoder(gw).Encode(v)
		gw.Close()
		gzipPool.Put(gw)
		return
	}
	json.NewEncoder(w).Encode(v)
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	sendJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// sendStoreError maps metadata store errors to responses. A checklist link
// violation gets the dedicated linked body so clients can show the item.
func (s *Server) sendStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var linked *metadata.LinkedError
	switch {
	case errors.As(err, &linked):
		metrics.RecordFileOperation(op, "blocked")
		logging.WithContext(r.Context()).Info("mutation blocked by checklist link",
			zap.String("op", op),
			zap.String("path", linked.Path),
			zap.String("linked_path", linked.Link.Path),
			zap.Int64("item_id", linked.Link.ItemID))
		sendJSON(w, http.StatusConflict, protocol.LinkedErrorResponse{
			Error:   protocol.ErrorLinked,
			Details: linked.Link.Info(),
		})
		return
	case errors.Is(err, metadata.ErrNotFound):
		metrics.RecordFileOperation(op, "rejected")
		s.sendError(w, http.StatusNotFound, "not found")
	case errors.Is(err, metadata.ErrExists):
		metrics.RecordFileOperation(op, "rejected")
		s.sendError(w, http.StatusConflict, "an entry with that name already exists")
	case errors.Is(err, metadata.ErrIntoSelf):
		metrics.RecordFileOperation(op, "rejected")
		s.sendError(w, http.StatusBadRequest, "a folder cannot be moved into itself or one of its subfolders")
	case errors.Is(err, metadata.ErrNotDir):
		metrics.RecordFileOperation(op, "rejected")
		s.sendError(w, http.StatusBadRequest, "target is not a folder")
	case errors.Is(err, metadata.ErrRoot):
		metrics.RecordFileOperation(op, "rejected")
		s.sendError(w, http.StatusBadRequest, "the case root cannot be changed")
	default:
		metrics.RecordFileOperation(op, "error")
		logging.WithContext(r.Context()).Error("metadata operation failed", zap.String("op", op), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, op+" failed")
	}
}

func toListEntry(row *metadata.FileRow) protocol.ListEntry {
	e := protocol.ListEntry{
		Path:     row.Path,
		Name:     row.Name,
		IsDir:    row.IsDir,
		Size:     row.Size,
		Modified: row.ModTime.Unix(),
	}
	if row.Link != nil {
		info := row.Link.Info()
		e.LinkedInfo = &info
	}
	return e
}
