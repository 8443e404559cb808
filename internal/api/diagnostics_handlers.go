package api

import (
	"context"
	"net/http"

	"storyforge.app/story-forge/internal/core"
)

// diagnostic adapts a diagnostics check to a handler.
func (h *APIHandler) diagnostic(check func(*core.DiagnosticsService, context.Context) core.Report) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := check(h.diag, r.Context())
		writeJSON(w, report.Status, report.Body)
	}
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolCallBody struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

func (h *APIHandler) FunctionCallingHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.diag.TestFunctionCalling(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to test function calling", nil)
		return
	}

	var calls []toolCallBody
	for _, c := range res.ToolCalls {
		calls = append(calls, toolCallBody{
			ID:       c.ID,
			Type:     "function",
			Function: toolCallFunction{Name: c.Name, Arguments: c.Arguments},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message_content": res.MessageContent,
		"tool_calls":      calls,
	})
}
