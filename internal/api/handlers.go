package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/auth"
	"storyforge.app/story-forge/internal/core"
)

// Services are the collaborators the handlers delegate to.
type Services struct {
	Chat        *core.ChatService
	Posts       *core.PostService
	Voice       *core.VoiceService
	Media       *core.MediaService
	Diagnostics *core.DiagnosticsService
	Relay       http.Handler
	Issuer      *auth.Issuer
	Logger      *slog.Logger
}

type APIHandler struct {
	chat   *core.ChatService
	posts  *core.PostService
	voice  *core.VoiceService
	media  *core.MediaService
	diag   *core.DiagnosticsService
	relay  http.Handler
	issuer *auth.Issuer
	logger *slog.Logger
}

func NewAPIHandler(s Services) *APIHandler {
	issuer := s.Issuer
	if issuer == nil {
		issuer = auth.NewIssuer("")
	}
	return &APIHandler{
		chat:   s.Chat,
		posts:  s.Posts,
		voice:  s.Voice,
		media:  s.Media,
		diag:   s.Diagnostics,
		relay:  s.Relay,
		issuer: issuer,
		logger: s.Logger,
	}
}

type ctxKey string

const subjectKey ctxKey = "subject"

// SubjectFromContext returns the token subject set by JWTAuthMiddleware.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// JWTAuthMiddleware enforces bearer tokens when a secret is configured.
// WebSocket clients may pass the token as ?token= instead.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.issuer.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required", "", nil)
			return
		}
		subject, err := h.issuer.Validate(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", "", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, subject)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError writes {error, details?} plus any extra keys.
func writeError(w http.ResponseWriter, status int, message, details string, extra map[string]any) {
	body := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["error"] = message
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

// fail converts err into a JSON error response. fallback names the failed
// operation when err carries no client-facing message of its own.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error, fallback string, extra map[string]any) {
	status := apperr.HTTPStatus(err)
	message, details := describe(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error(fallback, "path", r.URL.Path, "subject", SubjectFromContext(r.Context()), "error", err)
	} else {
		h.logger.Debug(fallback, "path", r.URL.Path, "subject", SubjectFromContext(r.Context()), "error", err)
	}
	writeError(w, status, message, details, extra)
}

func describe(err error, fallback string) (string, string) {
	var (
		cfgErr   *apperr.ConfigError
		valErr   *apperr.ValidationError
		upErr    *apperr.UpstreamError
		storeErr *apperr.StoreError
	)
	switch {
	case errors.As(err, &valErr):
		return valErr.Message, ""
	case errors.As(err, &cfgErr):
		return cfgErr.Message, ""
	case errors.Is(err, apperr.ErrNotFound):
		return "Not found", err.Error()
	case errors.As(err, &upErr):
		return upErr.Error(), ""
	case errors.As(err, &storeErr):
		return fallback, storeErr.Error()
	default:
		return fallback, err.Error()
	}
}

func writeAudio(w http.ResponseWriter, audio []byte) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
