package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storyforge.app/story-forge/internal/api"
	"storyforge.app/story-forge/internal/apperr"
	"storyforge.app/story-forge/internal/auth"
	"storyforge.app/story-forge/internal/config"
	"storyforge.app/story-forge/internal/core"
	"storyforge.app/story-forge/internal/elevenlabs"
	"storyforge.app/story-forge/internal/llm"
	"storyforge.app/story-forge/internal/logging"
	"storyforge.app/story-forge/internal/objectstore"
	"storyforge.app/story-forge/internal/retry"
	"storyforge.app/story-forge/internal/store"
	"storyforge.app/story-forge/internal/voicesession"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Apply the database schema and exit")
	issueToken := flag.String("issue-token", "", "Print a signed API token for the given subject and exit")
	flag.Parse()

	cfg := config.LoadConfig()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	slog.SetDefault(logger)

	issuer := auth.NewIssuer(cfg.JWTSecret)
	if *issueToken != "" {
		token, err := issuer.Generate(*issueToken)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Missing database credentials are not fatal: row routes answer with the
	// configuration error until the process is restarted with a DSN.
	var repo core.Repository
	dbStore, err := store.Open(cfg.DatabaseURL)
	var cfgErr *apperr.ConfigError
	switch {
	case err == nil:
		defer dbStore.Close()
		repo = dbStore
	case errors.As(err, &cfgErr) && !*migrateFlag:
		logger.Warn("database not configured; row operations will fail", "error", err)
		repo = core.UnavailableRepository(err)
	default:
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if *migrateFlag {
		logger.Info("database schema is up to date")
		return
	}

	policy := retry.Default().WithMaxAttempts(cfg.VendorMaxAttempts)

	blobs := objectstore.New(objectstore.Config{
		BaseURL:        cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.StorageBucket,
	}, objectstore.WithRetryPolicy(policy))

	openAI := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:    cfg.OpenAIAPIKey,
		ChatModel: cfg.OpenAIChatModel,
		ToolModel: cfg.OpenAIToolModel,
	}, llm.WithOpenAIRetryPolicy(policy))

	var generator llm.Generator = openAI
	if cfg.LLMProvider == "gemini" {
		gemini, err := llm.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, policy)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini: %v", err)
		}
		defer gemini.Close()
		generator = gemini
	}
	logger.Info("text generation configured", "provider", cfg.LLMProvider)

	speech := elevenlabs.NewClient(elevenlabs.Config{APIKey: cfg.ElevenLabsAPIKey}, elevenlabs.WithRetryPolicy(policy))

	posts := core.NewPostService(repo, logger)
	voice := core.NewVoiceService(core.VoiceDeps{
		Repo:        repo,
		Generator:   generator,
		Transcriber: openAI,
		Speech:      speech,
		Posts:       posts,
		VoiceID:     cfg.ElevenLabsVoiceID,
		Logger:      logger,
	})

	relayHeader := http.Header{}
	relayHeader.Set("xi-api-key", speech.APIKey())
	relay := voicesession.NewRelay(voicesession.RelayConfig{
		AgentURL:       speech.ConversationURL,
		Header:         relayHeader,
		DefaultAgentID: cfg.ElevenLabsAgentID,
		AllowedOrigins: cfg.WSAllowedOrigins,
		Logger:         logger,
		OnExchange:     voice.RecordExchange,
	})

	apiHandler := api.NewAPIHandler(api.Services{
		Chat:  core.NewChatService(repo, generator, logger),
		Posts: posts,
		Voice: voice,
		Media: core.NewMediaService(blobs, repo, logger),
		Diagnostics: core.NewDiagnosticsService(core.DiagnosticsDeps{
			Repo:         repo,
			Blobs:        blobs,
			Speech:       speech,
			Generator:    generator,
			StoreReady:   dbStore != nil,
			HasOpenAIKey: openAI.Configured(),
			VoiceID:      cfg.ElevenLabsVoiceID,
			AgentID:      cfg.ElevenLabsAgentID,
			Logger:       logger,
		}),
		Relay:  relay,
		Issuer: issuer,
		Logger: logger,
	})
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // transcription, generation and synthesis run back to back
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", serverAddr, "auth", issuer.Enabled())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited gracefully")
}
