package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/haasonsaas/chatcore/internal/authctx"
	"github.com/haasonsaas/chatcore/internal/orchestrator"
)

// chatRequest is the body of POST /v1/chat.
type chatRequest struct {
	Utterance   string `json:"utterance"`
	ThreadID    string `json:"thread_id,omitempty"`
	UserContext string `json:"user_context,omitempty"`
}

// maxUtteranceLength is the upper bound on chatRequest.Utterance's length.
const maxUtteranceLength = 10000

// handleChat streams one utterance's ChatChunks back as Server-Sent Events,
// one `data: <json>\n\n` frame per chunk, flushed immediately so the client
// observes tool calls and partial content as they are produced.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	user, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Utterance == "" {
		writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}
	if len(req.Utterance) > maxUtteranceLength {
		writeError(w, http.StatusBadRequest, "utterance exceeds maximum length of 10000 characters")
		return
	}

	if s.throttle != nil {
		if allowed, retryAfter := s.throttle.AllowChatRequest(user.ID); !allowed {
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chunks, err := s.orch.Handle(r.Context(), orchestrator.HandleInput{
		User:        user.ID,
		Utterance:   req.Utterance,
		ThreadID:    req.ThreadID,
		UserContext: req.UserContext,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start chat")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamChunks(w, flusher, chunks)
}

// elicitRequest is the body of POST /v1/elicit.
type elicitRequest struct {
	ThreadID   string         `json:"thread_id"`
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Data       map[string]any `json:"data"`
}

// handleElicit resumes a paused elicitation directly, streaming the same
// SSE chunk shape as handleChat (a TOOL_RESULT chunk, then DONE).
func (s *Server) handleElicit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	user, ok := authctx.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req elicitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ThreadID == "" || req.ToolCallID == "" || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "thread_id, tool_call_id, and tool_name are required")
		return
	}

	if s.throttle != nil && !s.throttle.AllowToolInvocation(user.ID, req.ToolName) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chunks, err := s.orch.Elicit(r.Context(), orchestrator.ElicitInput{
		User:       user.ID,
		ThreadID:   req.ThreadID,
		ToolCallID: req.ToolCallID,
		ToolName:   req.ToolName,
		Data:       req.Data,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resume elicitation")
		return
	}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamChunks(w, flusher, chunks)
}
