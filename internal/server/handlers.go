package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"status": schemas.StatusError,
		"error":  msg,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions, pages := s.backend.Counts()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": sessions,
		"pages":    pages,
		"version":  s.version,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BrowserType string `json:"browser_type"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	// Only Chrome is available; other engines are not silently substituted.
	if body.BrowserType != "" && body.BrowserType != "chromium" {
		respondError(w, http.StatusBadRequest, "unsupported browser_type: "+body.BrowserType)
		return
	}

	info, err := s.backend.CreateSession(r.Context())
	if err != nil {
		s.logger.Error("Session creation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":     schemas.StatusSuccess,
		"session_id": info.SessionID,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.backend.ListSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !s.backend.SessionExists(sessionID) {
		respondError(w, http.StatusNotFound, "session not found: "+sessionID)
		return
	}
	if err := s.backend.CloseSession(r.Context(), sessionID); err != nil {
		s.logger.Error("Session close failed", zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed", "session_id": sessionID})
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body struct {
		URL string `json:"url"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	pageID, err := s.backend.CreatePage(r.Context(), sessionID, body.URL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found: "+sessionID)
			return
		}
		s.logger.Error("Page creation failed",
			zap.String("session_id", sessionID), zap.Error(err))
		if pageID != "" {
			// Page exists but the initial navigation failed.
			respondJSON(w, http.StatusCreated, map[string]any{
				"status":     schemas.StatusSuccess,
				"page_id":    pageID,
				"session_id": sessionID,
				"warning":    err.Error(),
			})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":     schemas.StatusSuccess,
		"page_id":    pageID,
		"session_id": sessionID,
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageID")
	p, ok := s.backend.LookupPage(pageID)
	if !ok {
		respondError(w, http.StatusNotFound, "page not found: "+pageID)
		return
	}

	var req schemas.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid command body: "+err.Error())
		return
	}
	if req.Command == "" {
		respondError(w, http.StatusBadRequest, "missing command")
		return
	}

	result, status := s.execute(r.Context(), p, req)
	respondJSON(w, status, result)
}

func (s *Server) handleConsoleLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := s.backend.LookupPage(chi.URLParam(r, "pageID"))
	if !ok {
		respondError(w, http.StatusNotFound, "page not found")
		return
	}
	q, err := logQueryFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs := p.ConsoleLogs(q)
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (s *Server) handleNetworkLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := s.backend.LookupPage(chi.URLParam(r, "pageID"))
	if !ok {
		respondError(w, http.StatusNotFound, "page not found")
		return
	}
	q, err := logQueryFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs := p.NetworkLogs(q.Since, q.Limit)
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// handleErrorLogs merges uncaught page exceptions with console errors and
// warnings, oldest first.
func (s *Server) handleErrorLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := s.backend.LookupPage(chi.URLParam(r, "pageID"))
	if !ok {
		respondError(w, http.StatusNotFound, "page not found")
		return
	}
	q, err := logQueryFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	consoleQ := q
	consoleQ.Types = []string{"error", "warning"}
	logs := append(p.PageErrors(q), p.ConsoleLogs(consoleQ)...)
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})
	if q.Limit > 0 && len(logs) > q.Limit {
		logs = logs[len(logs)-q.Limit:]
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	pageID := chi.URLParam(r, "pageID")

	p, ok := s.backend.LookupPage(pageID)
	if !ok || p.SessionID() != sessionID {
		respondError(w, http.StatusNotFound, "page not found in session")
		return
	}

	fullPage := r.URL.Query().Get("full_page") == "true"
	data, err := p.Screenshot(r.Context(), fullPage)
	if err != nil {
		s.logger.Error("Screenshot failed", zap.String("page_id", pageID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// logQueryFromRequest parses the shared filter query parameters: types
// (comma separated), since/until (RFC 3339), limit, contains.
func logQueryFromRequest(r *http.Request) (schemas.LogQuery, error) {
	var q schemas.LogQuery
	params := r.URL.Query()

	if raw := params.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Types = append(q.Types, t)
			}
		}
	}
	if raw := params.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, err
		}
		q.Since = &ts
	}
	if raw := params.Get("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, err
		}
		q.Until = &ts
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, err
		}
		q.Limit = limit
	}
	q.TextContains = params.Get("contains")
	return q, nil
}
