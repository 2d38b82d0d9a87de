package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/events"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metadata"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// ─── Cases ──────────────────────────────────────────────────────────────────

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	c, err := s.metadata.GetCase(r.Context(), caseID)
	if err != nil {
		s.sendStoreError(w, r, "get_case", err)
		return
	}
	sendJSON(w, http.StatusOK, protocol.CaseInfo{ID: c.ID, CaseNumber: c.Number})
}

func (s *Server) handlePutCase(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var req protocol.CaseInfo
	if !s.decode(w, r, &req) {
		return
	}
	number := strings.TrimSpace(req.CaseNumber)
	if number == "" {
		s.sendError(w, http.StatusBadRequest, "case_number required")
		return
	}
	if err := s.metadata.UpsertCase(r.Context(), caseID, number); err != nil {
		s.sendStoreError(w, r, "put_case", err)
		return
	}
	logging.WithContext(r.Context()).Info("case registered",
		zap.String("case_id", caseID), zap.String("case_number", number))
	sendJSON(w, http.StatusOK, protocol.CaseInfo{ID: caseID, CaseNumber: number})
}

// ─── Checklist links ────────────────────────────────────────────────────────

func (s *Server) handleSetLink(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var req protocol.LinkRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, ok := s.cleanPath(w, req.Path)
	if !ok {
		return
	}
	if req.Item.ID <= 0 {
		s.sendError(w, http.StatusBadRequest, "checklist item id required")
		return
	}

	err := s.metadata.SetLink(r.Context(), caseID, metadata.Link{
		Path:        p,
		ItemID:      req.Item.ID,
		GroupNumber: req.Item.GroupNumber,
		GroupName:   req.Item.GroupName,
		Title:       req.Item.Title,
	})
	if err != nil {
		s.sendStoreError(w, r, "link", err)
		return
	}

	logging.WithContext(r.Context()).Info("entry linked",
		zap.String("case_id", caseID), zap.String("path", p), zap.Int64("item_id", req.Item.ID))
	s.publishEvent(caseID, events.EventLinked, p, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveLink(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	p, ok := s.cleanPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if err := s.metadata.RemoveLink(r.Context(), caseID, p); err != nil {
		s.sendStoreError(w, r, "unlink", err)
		return
	}
	s.publishEvent(caseID, events.EventUnlinked, p, "")
	w.WriteHeader(http.StatusNoContent)
}
