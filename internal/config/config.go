package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	DefaultAgentID = "agent_1101k161d5y2fp1ssvejv791505r"
)

type Config struct {
	HTTPPort  string
	LogLevel  string
	LogFormat string
	JWTSecret string

	// DatabaseURL is a Postgres DSN/URL (the hosted Supabase database) or a SQLite file path.
	DatabaseURL string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	StorageBucket          string

	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIChatModel string
	OpenAIToolModel string
	GeminiAPIKey    string
	GeminiModel     string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsAgentID string

	// WSAllowedOrigins are extra browser origins admitted by the voice relay.
	WSAllowedOrigins []string

	VendorMaxAttempts int
}

// LoadConfig reads .env (when present) and the process environment. Missing
// vendor credentials are not fatal here; each gateway reports them on first use.
func LoadConfig() *Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		HTTPPort:  getEnv("HTTP_PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SupabaseURL:            strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		StorageBucket:          getEnv("STORAGE_BUCKET", "images"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel: getEnv("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
		OpenAIToolModel: getEnv("OPENAI_TOOL_MODEL", "gpt-4-turbo-preview"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),

		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", DefaultVoiceID),
		ElevenLabsAgentID: getEnv("ELEVENLABS_AGENT_ID", DefaultAgentID),

		WSAllowedOrigins: getEnvAsList("WS_ALLOWED_ORIGINS"),

		VendorMaxAttempts: getEnvAsInt("VENDOR_MAX_ATTEMPTS", 1),
	}
}

// HasSupabaseStorage reports whether object storage credentials are present.
func (c *Config) HasSupabaseStorage() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
