package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"storyforge.app/story-forge/internal/core"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	requestLog := slog.NewLogLogger(apiHandler.logger.Handler(), slog.LevelInfo)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: requestLog, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/chat", apiHandler.ChatHandler)
			r.Get("/chat-history", apiHandler.ChatHistoryHandler)
			r.Delete("/chat-history", apiHandler.DeleteChatHandler)

			r.Get("/posts-history", apiHandler.ListPostsHandler)
			r.Post("/posts-history", apiHandler.CreatePostHandler)
			r.Put("/posts-history", apiHandler.UpdatePostHandler)

			r.Get("/voice-history", apiHandler.VoiceHistoryHandler)
			r.Post("/voice-history", apiHandler.CreateVoiceHandler)
			r.Post("/voice-chat", apiHandler.VoiceChatHandler)
			r.Post("/voice-speech-to-speech", apiHandler.SpeechToSpeechHandler)
			r.Post("/voice-conversational-agent", apiHandler.ConversationalAgentHandler)
			r.Get("/voice-conversation", apiHandler.VoiceConversationHandler)

			r.Post("/upload-image", apiHandler.UploadImageHandler)
			r.Get("/upload-image", apiHandler.ListImagesHandler)
			r.Delete("/upload-image", apiHandler.DeleteImageHandler)

			// Diagnostics
			r.Get("/test-supabase", apiHandler.diagnostic((*core.DiagnosticsService).TestDatabase))
			r.Get("/test-storage", apiHandler.diagnostic((*core.DiagnosticsService).TestStorage))
			r.Get("/test-voice", apiHandler.diagnostic((*core.DiagnosticsService).TestVoice))
			r.Get("/test-speech-to-speech", apiHandler.diagnostic((*core.DiagnosticsService).TestSpeechToSpeech))
			r.Get("/test-conversational-agent", apiHandler.diagnostic((*core.DiagnosticsService).TestConversationalAgent))
			r.Get("/list-agents", apiHandler.diagnostic((*core.DiagnosticsService).ListAgents))
			r.Post("/test-function-calling", apiHandler.FunctionCallingHandler)
		})
	})

	return r
}
