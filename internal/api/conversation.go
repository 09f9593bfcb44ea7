package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kalambet/leaveflow/internal/llm"
)

type conversationRequest struct {
	Message     string `json:"message"`
	ChatHistory []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"chat_history"`
}

func handleConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req conversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		history := make([]llm.Message, 0, len(req.ChatHistory))
		for _, m := range req.ChatHistory {
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		}

		resp, err := deps.Conversation.Handle(r.Context(), currentUser(r), req.Message, history)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "handling conversation: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
