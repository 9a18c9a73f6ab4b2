package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"theduck/internal/app"
	"theduck/internal/sse"
	"theduck/internal/util"
	"theduck/pkg/ai"
	"theduck/pkg/domain"
	"theduck/pkg/storage"
)

type chatRequest struct {
	Messages  []domain.Message `json:"messages"`
	Model     string           `json:"model"`
	SessionID string           `json:"sessionId"`
	Stream    bool             `json:"stream"`
	Options   struct {
		Temperature *float64 `json:"temperature"`
		MaxTokens   int      `json:"maxTokens"`
	} `json:"options"`
}

type titleRequest struct {
	Messages                  []domain.Message `json:"messages"`
	SessionID                 string           `json:"sessionId"`
	PreserveExistingOnFailure bool             `json:"preserveExistingOnFailure"`
}

type summaryRequest struct {
	Messages  []domain.Message `json:"messages"`
	SessionID string           `json:"sessionId"`
}

// handleChat proxies a completion to the upstream gateway, either as a
// single JSON response or reframed as an SSE stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	opts := ai.Options{Temperature: req.Options.Temperature, MaxTokens: req.Options.MaxTokens}

	if req.Stream {
		stream, err := s.app.StreamChat(r.Context(), req.Messages, req.Model, opts)
		if err != nil {
			s.writeChatError(w, r, err)
			return
		}
		defer stream.Close()
		sse.WriteHeaders(w)
		if err := sse.Reframe(w, stream); err != nil {
			util.LoggerFromContext(r.Context()).Warn("chat stream aborted", "err", err)
		}
		return
	}

	content, err := s.app.Chat(r.Context(), req.Messages, req.Model, opts)
	if err != nil {
		s.writeChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

// handleTitle derives a session title. The endpoint is total: apart from
// request validation it always answers 200 with a title, degrading to the
// deterministic fallback when the upstream is unavailable.
func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req titleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	result := s.app.GenerateTitle(r.Context(), req.Messages, req.SessionID, req.PreserveExistingOnFailure, userID)
	writeJSON(w, http.StatusOK, result)
}

// handleSummary summarizes a conversation. Total like handleTitle: any
// upstream or persistence failure yields the neutral default summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req summaryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	summary := s.app.SummarizeConversation(r.Context(), req.SessionID, req.Messages, userID)
	writeJSON(w, http.StatusOK, summary)
}

// /api/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		sessions, err := s.app.ListSessions(userID, limit)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": sessions,
			"count": len(sessions),
		})
	case http.MethodPost:
		var req struct {
			Title string `json:"title"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		session, err := s.app.CreateSession(userID, req.Title, req.Model)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	default:
		methodNotAllowed(w)
	}
}

// /api/sessions/{id}, /api/sessions/{id}/messages, /api/sessions/{id}/end
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request, userID string) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "messages":
			s.handleSessionMessages(w, r, userID, id)
		case "end":
			s.handleEndSession(w, r, userID, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := s.app.GetSession(userID, id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodPatch:
		var req struct {
			Title    *string `json:"title"`
			Model    *string `json:"model"`
			IsActive *bool   `json:"isActive"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		session, err := s.app.UpdateSession(userID, id, app.SessionUpdate{
			Title:    req.Title,
			Model:    req.Model,
			IsActive: req.IsActive,
		})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		if err := s.app.DeleteSession(userID, id); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		messages, err := s.app.ListSessionMessages(userID, sessionID, limit)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": messages,
			"count": len(messages),
		})
	case http.MethodPost:
		var req struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := s.app.AppendSessionMessage(userID, sessionID, req.Role, req.Content)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w)
	}
}

// handleEndSession marks the session inactive and schedules summarization.
// Queue trouble never fails the request; ending a chat must always work.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request, userID, sessionID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session, err := s.app.EndSession(userID, sessionID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	response := map[string]any{"session": session}
	if s.jobs != nil {
		job, err := s.jobs.Enqueue(r.Context(), sessionID, userID)
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("summarize enqueue failed", "session_id", sessionID, "err", err)
		} else {
			response["job"] = job
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// /api/jobs/{id}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	job, found, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("job lookup failed", "job_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found || job.UserID != userID {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// /api/preferences
func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		prefs, err := s.app.GetPreferences(userID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
	case http.MethodPut:
		var req struct {
			Preferences map[string]string `json:"preferences"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.SavePreferences(userID, req.Preferences); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"preferences": req.Preferences})
	default:
		methodNotAllowed(w)
	}
}

// /api/uploads
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request, userID string) {
	if s.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleCreateUpload(w, r, userID)
	case http.MethodGet:
		s.handleListUploads(w, r, userID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request, userID string) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upload := domain.Upload{
		ID:               util.NewID(),
		OwnerID:          userID,
		OriginalFilename: header.Filename,
		ContentType:      contentType,
		SizeBytes:        header.Size,
		CreatedAt:        time.Now().UTC(),
	}
	upload.StorageKey = storage.UploadKey(userID, upload.ID, header.Filename)
	if err := s.objects.Put(r.Context(), upload.StorageKey, file, header.Size, contentType); err != nil {
		util.LoggerFromContext(r.Context()).Error("upload store failed", "err", err)
		writeError(w, http.StatusInternalServerError, "store upload failed")
		return
	}
	if err := s.app.Store().SaveUpload(upload); err != nil {
		util.LoggerFromContext(r.Context()).Error("upload record failed", "err", err)
		writeError(w, http.StatusInternalServerError, "store upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request, userID string) {
	uploads, err := s.app.Store().ListUploadsByOwner(userID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	type uploadItem struct {
		domain.Upload
		URL string `json:"url,omitempty"`
	}
	items := make([]uploadItem, 0, len(uploads))
	for _, upload := range uploads {
		item := uploadItem{Upload: upload}
		if url, err := s.objects.PresignGet(r.Context(), upload.StorageKey, storage.DefaultPresignExpiry); err == nil {
			item.URL = url
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *ai.UpstreamError
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrAINotConfigured):
		writeError(w, http.StatusServiceUnavailable, "chat upstream not configured")
	case errors.As(err, &upstream):
		util.LoggerFromContext(r.Context()).Warn("upstream chat failed", "status", upstream.Status, "err", err)
		writeError(w, http.StatusBadGateway, "chat upstream failed")
	default:
		util.LoggerFromContext(r.Context()).Error("chat request failed", "err", err)
		writeError(w, http.StatusBadGateway, "chat upstream unavailable")
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
