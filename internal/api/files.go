package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/events"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metadata"
	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// ─── Listing ────────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	dir, ok := s.cleanPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	rows, err := s.metadata.ListDir(r.Context(), caseID, dir)
	if err != nil {
		s.sendStoreError(w, r, "list", err)
		return
	}

	entries := make([]protocol.ListEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toListEntry(row))
	}
	sendListing(w, r, entries)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}

	rows, err := s.metadata.ListFolders(r.Context(), caseID)
	if err != nil {
		s.sendStoreError(w, r, "list_folders", err)
		return
	}

	folders := make([]protocol.FolderEntry, 0, len(rows))
	for _, row := range rows {
		folders = append(folders, protocol.FolderEntry{Name: row.Name, Path: row.Path})
	}
	sendListing(w, r, folders)
}

// ─── Create ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var req protocol.CreateFolderRequest
	if !s.decode(w, r, &req) {
		return
	}
	parent, ok := s.cleanPath(w, req.Path)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.Name)
	if !metadata.ValidName(name) {
		s.sendError(w, http.StatusBadRequest, "invalid folder name")
		return
	}

	row, err := s.metadata.CreateDir(r.Context(), caseID, parent, name)
	if err != nil {
		s.sendStoreError(w, r, "create", err)
		return
	}

	metrics.RecordFileOperation("create", "success")
	logging.WithContext(r.Context()).Info("folder created",
		zap.String("case_id", caseID), zap.String("path", row.Path))
	s.publishEvent(caseID, events.EventCreated, row.Path, "")

	sendJSON(w, http.StatusCreated, toListEntry(row))
}

// ─── Rename & Move ──────────────────────────────────────────────────────────

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var req protocol.RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, ok := s.cleanPath(w, req.Path)
	if !ok {
		return
	}
	newName := strings.TrimSpace(req.NewName)
	if !metadata.ValidName(newName) {
		s.sendError(w, http.StatusBadRequest, "invalid name")
		return
	}

	newPath, err := s.metadata.Rename(r.Context(), caseID, src, newName)
	if err != nil {
		s.sendStoreError(w, r, "rename", err)
		return
	}
	s.finishRelocation(w, r, caseID, "rename", events.EventRenamed, src, newPath)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var req protocol.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	src, ok := s.cleanPath(w, req.SourcePath)
	if !ok {
		return
	}
	target, ok := s.cleanPath(w, req.TargetPath)
	if !ok {
		return
	}

	newPath, err := s.metadata.Move(r.Context(), caseID, src, target)
	if err != nil {
		s.sendStoreError(w, r, "move", err)
		return
	}
	s.finishRelocation(w, r, caseID, "move", events.EventMoved, src, newPath)
}

func (s *Server) finishRelocation(w http.ResponseWriter, r *http.Request, caseID, op, eventType, src, dst string) {
	row, err := s.metadata.Get(r.Context(), caseID, dst)
	if err != nil {
		s.sendStoreError(w, r, op, err)
		return
	}

	if src == dst {
		metrics.RecordFileOperation(op, "noop")
		sendJSON(w, http.StatusOK, toListEntry(row))
		return
	}

	metrics.RecordFileOperation(op, "success")
	logging.WithContext(r.Context()).Info("entry relocated",
		zap.String("op", op),
		zap.String("case_id", caseID),
		zap.String("from", src),
		zap.String("to", dst))
	s.publishEvent(caseID, eventType, dst, src)

	sendJSON(w, http.StatusOK, toListEntry(row))
}

// ─── Delete ─────────────────────────────────────────────────────────────────

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	p, ok := s.cleanPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if p == "" {
		s.sendError(w, http.StatusBadRequest, "cannot delete the case root")
		return
	}

	keys, err := s.metadata.Delete(r.Context(), caseID, p)
	if err != nil {
		s.sendStoreError(w, r, "delete", err)
		return
	}

	// Metadata is gone; orphaned objects are only logged.
	for _, key := range keys {
		if err := s.storage.DeleteObject(r.Context(), key); err != nil {
			logging.WithContext(r.Context()).Warn("failed to delete object",
				zap.String("key", key), zap.Error(err))
		}
	}

	metrics.RecordFileOperation("delete", "success")
	logging.WithContext(r.Context()).Info("entry deleted",
		zap.String("case_id", caseID), zap.String("path", p), zap.Int("objects", len(keys)))
	s.publishEvent(caseID, events.EventDeleted, p, "")

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"path":    p,
		"deleted": true,
	})
}
