package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/core"
	"storyforge.app/story-forge/internal/store"
)

type VoiceInteractionRequest struct {
	UserAudioTranscript string  `json:"user_audio_transcript"`
	AIResponse          string  `json:"ai_response"`
	InteractionType     string  `json:"interaction_type"`
	DurationMS          *int64  `json:"duration_ms"`
	AudioURL            *string `json:"audio_url"`
}

type AgentActionRequest struct {
	AgentID string `json:"agentId"`
	Action  string `json:"action"`
}

func (h *APIHandler) VoiceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	voice, err := h.voice.History(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch voice interactions", map[string]any{"voice": []store.VoiceInteraction{}, "count": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "voice": voice, "count": len(voice)})
}

func (h *APIHandler) CreateVoiceHandler(w http.ResponseWriter, r *http.Request) {
	var req VoiceInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}
	v, err := h.voice.Record(r.Context(), core.VoiceInput{
		UserAudioTranscript: req.UserAudioTranscript,
		AIResponse:          req.AIResponse,
		InteractionType:     req.InteractionType,
		DurationMS:          req.DurationMS,
		AudioURL:            req.AudioURL,
	})
	if err != nil {
		h.fail(w, r, err, "Failed to store voice interaction", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"id":      v.ID,
		"message": "Voice interaction stored successfully",
	})
}

func (h *APIHandler) VoiceChatHandler(w http.ResponseWriter, r *http.Request) {
	audio, header, ok, err := formFile(w, r, "audio", maxAudioSize)
	if err != nil {
		audioUploadFailed(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "No audio file provided", "", nil)
		return
	}

	res, err := h.voice.Chat(r.Context(), header.Filename, audio)
	if err != nil {
		h.fail(w, r, err, "Failed to process voice chat", nil)
		return
	}
	if n := len(res.Posts); n > 0 {
		w.Header().Set("X-Posts-Created", strconv.Itoa(n))
	}
	writeAudio(w, res.Audio)
}

func (h *APIHandler) SpeechToSpeechHandler(w http.ResponseWriter, r *http.Request) {
	audio, _, ok, err := formFile(w, r, "audio", maxAudioSize)
	if err != nil {
		audioUploadFailed(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "No audio file provided", "", nil)
		return
	}
	out, err := h.voice.SpeechToSpeech(r.Context(), audio)
	if err != nil {
		h.fail(w, r, err, "Failed to convert speech", nil)
		return
	}
	writeAudio(w, out)
}

// ConversationalAgentHandler accepts either a JSON control message or a
// multipart recording for the agent.
func (h *APIHandler) ConversationalAgentHandler(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		h.agentAction(w, r)
		return
	}

	audio, _, ok, err := formFile(w, r, "audio", maxAudioSize)
	if err != nil {
		audioUploadFailed(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "No audio file provided for processing", "", nil)
		return
	}
	out, err := h.voice.AgentReply(r.Context(), r.FormValue("agentId"), audio)
	if err != nil {
		h.fail(w, r, err, "Failed to process conversational agent audio", nil)
		return
	}
	writeAudio(w, out)
}

func (h *APIHandler) agentAction(w http.ResponseWriter, r *http.Request) {
	var req AgentActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}

	switch strings.ToLower(req.Action) {
	case "connect":
		agent, err := h.voice.ConnectAgent(r.Context(), req.AgentID)
		if err != nil {
			h.agentConnectFailed(w, r, req.AgentID, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"message":   "Connected to conversational agent",
			"agentId":   req.AgentID,
			"agentName": agent.Name,
			"status":    "connected",
		})
	case "disconnect":
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Disconnected from conversational agent",
			"status":  "disconnected",
		})
	default:
		writeError(w, http.StatusBadRequest, "No audio file provided for processing", "", nil)
	}
}

func (h *APIHandler) agentConnectFailed(w http.ResponseWriter, r *http.Request, agentID string, err error) {
	var upErr *apperr.UpstreamError
	if !errors.As(err, &upErr) {
		h.fail(w, r, err, "Failed to connect to conversational agent", nil)
		return
	}
	h.logger.Warn("agent verification failed", "agent_id", agentID, "status", upErr.Status)
	if upErr.Status == http.StatusNotFound {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("Conversational agent not found. Please verify the agent ID '%s' exists.", agentID),
			upErr.Body, map[string]any{"agentId": agentID})
		return
	}
	status := upErr.Status
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	writeError(w, status, fmt.Sprintf("Failed to verify agent: %d - %s", upErr.Status, upErr.Message), upErr.Body, nil)
}

// VoiceConversationHandler upgrades to the live agent relay.
func (h *APIHandler) VoiceConversationHandler(w http.ResponseWriter, r *http.Request) {
	if h.relay == nil {
		writeError(w, http.StatusServiceUnavailable, "Voice relay is not configured", "", nil)
		return
	}
	h.relay.ServeHTTP(w, r)
}
