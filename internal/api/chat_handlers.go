package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"storyforge.app/story-forge/internal/core"
	"storyforge.app/story-forge/internal/store"
)

type ChatRequest struct {
	Message        string  `json:"message"`
	Response       string  `json:"response,omitempty"`
	Source         string  `json:"source,omitempty"`
	ConversationID *string `json:"conversation_id,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}

	res, err := h.chat.Send(r.Context(), core.ChatRequest{
		Message:        req.Message,
		Response:       req.Response,
		Source:         req.Source,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.fail(w, r, err, "Failed to generate content", nil)
		return
	}
	if res.ID != "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": res.ID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": res.Message})
}

func (h *APIHandler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	turns, err := h.chat.History(r.Context(), queryInt(r, "limit"))
	if err != nil {
		h.fail(w, r, err, "Database error", map[string]any{"chats": []store.ChatTurn{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chats": turns})
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Delete(r.Context(), r.URL.Query().Get("id")); err != nil {
		h.fail(w, r, err, "Failed to delete chat", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
