package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// DefaultInstructions is the prompt sent with every new session unless
// AGENT_INSTRUCTIONS overrides it.
const DefaultInstructions = "You are a friendly voice assistant. Keep answers short and conversational."

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Upstream realtime API
	OpenAI struct {
		APIKey             string
		BaseURL            string
		Model              string
		Voice              string
		Instructions       string
		Modalities         []string
		TranscriptionModel string
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
	}

	// Session quota per client
	Quota struct {
		Limit    int
		Window   time.Duration
		RedisURL string
	}

	// Vault configuration
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Observability
	Observability struct {
		MetricsEnabled    bool
		TracingEnabled    bool
		OpenAPISchemaPath string
	}

	// Agent client settings
	Agent struct {
		BrokerURL  string
		Transport  string
		FeedAddr   string
		ICEServers []string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment, bypassing the singleton.
func Load() *Config {
	// Load .env file if exists
	godotenv.Load()

	c := &Config{}

	// Server config
	c.Server.Port = getEnvString("SERVER_PORT", getEnvString("PORT", "3001"))
	c.Server.Env = getEnvString("APP_ENV", "development")
	c.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

	// Upstream config
	c.OpenAI.APIKey = getEnvString("OPENAI_API_KEY", "")
	c.OpenAI.BaseURL = strings.TrimRight(getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/")
	c.OpenAI.Model = getEnvString("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17")
	c.OpenAI.Voice = getEnvString("OPENAI_REALTIME_VOICE", "alloy")
	c.OpenAI.Instructions = getEnvString("AGENT_INSTRUCTIONS", DefaultInstructions)
	c.OpenAI.Modalities = getEnvStringSlice("OPENAI_REALTIME_MODALITIES", []string{"text", "audio"})
	c.OpenAI.TranscriptionModel = getEnvOptional("OPENAI_TRANSCRIPTION_MODEL", "whisper-1")

	// Security config
	c.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	c.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	c.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})

	// Quota config
	c.Quota.Limit = getEnvInt("SESSION_QUOTA", 0)
	c.Quota.Window = getEnvDuration("SESSION_QUOTA_WINDOW", time.Hour)
	c.Quota.RedisURL = getEnvString("REDIS_URL", "")

	// Vault config
	c.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	c.Vault.Address = getEnvString("VAULT_ADDR", "http://localhost:8200")
	c.Vault.Token = getEnvString("VAULT_TOKEN", "")
	c.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	c.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "secret/data/realtime-voice-agent")

	// Logging config
	c.Logging.Level = getEnvString("LOG_LEVEL", "info")
	c.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Observability config
	c.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	c.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	c.Observability.OpenAPISchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	// Agent config
	c.Agent.BrokerURL = strings.TrimRight(getEnvString("AGENT_BROKER_URL", "http://localhost:3001"), "/")
	c.Agent.Transport = getEnvString("AGENT_TRANSPORT", "webrtc")
	c.Agent.FeedAddr = getEnvString("AGENT_FEED_ADDR", "")
	c.Agent.ICEServers = getEnvStringSlice("AGENT_ICE_SERVERS", []string{"stun:stun.l.google.com:19302"})

	return c
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvOptional is like getEnvString but an explicitly empty value wins
// over the default.
func getEnvOptional(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return defaultValue
}
