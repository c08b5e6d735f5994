package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/chatcore/internal/authctx"
	"github.com/haasonsaas/chatcore/internal/convo"
)

// handleConversations serves GET (list) and POST (create) on
// /v1/conversations.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.listConversations(w, r, user.ID)
	case http.MethodPost:
		s.createConversation(w, r, user.ID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request, userID string) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	conversations, err := s.store.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request, userID string) {
	var req createConversationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	conversation, err := s.store.Create(r.Context(), userID, req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conversation)
}

// handleConversationByID serves GET (fetch with messages) and DELETE on
// /v1/conversations/{id}.
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	user, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getConversation(w, r, id, user.ID)
	case http.MethodDelete:
		s.deleteConversation(w, r, id, user.ID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or DELETE required")
	}
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request, id, userID string) {
	conversation, err := s.store.Get(r.Context(), id, userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	messages, err := s.store.Messages(r.Context(), id, 0)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conversation,
		"messages":     messages,
	})
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request, id, userID string) {
	if err := s.store.Delete(r.Context(), id, userID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, convo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
