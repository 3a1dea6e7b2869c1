package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Security     SecurityConfig
	Logging      LoggingConfig
	Eligibility  EligibilityConfig
	Providers    ProvidersConfig
	Retrieval    RetrievalConfig
	Conversation ConversationConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	TurnTimeout  int // wall-clock budget for one user turn, seconds
}

// DatabaseConfig holds the relational store configuration
type DatabaseConfig struct {
	Path string // SQLite database file
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	APIKeyHeader string
	APIKey       string
	UserIDHeader string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// EligibilityConfig holds the paths of the three eligibility config documents
// and the two tabular data sources
type EligibilityConfig struct {
	CatalogPath      string
	RulesPath        string
	PlaybookPath     string
	EligibleListPath string
	ReasonsFilePath  string
}

// ProviderConfig holds settings for one concrete provider backing
type ProviderConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	EmbeddingModel  string
	Dimensions      int
	PersistencePath string
	Timeout         int    // seconds, per call
	ThinkingLevel   string // opaque passthrough, hosted provider only
}

// ProvidersConfig selects the active embedding and generation providers and
// carries the per-provider settings
type ProvidersConfig struct {
	EmbeddingProvider  string
	GenerationProvider string
	Ollama             ProviderConfig
	Gemini             ProviderConfig
	Temperature        float64
	MaxTokens          int
}

// RetrievalConfig holds retrieval tuning
type RetrievalConfig struct {
	TopK            int
	AdaptiveK       bool
	MaxContextChars int
	CacheTTL        int // seconds; 0 disables the embedding cache
	PromptVersion   string
}

// ConversationConfig holds memory and window settings
type ConversationConfig struct {
	MaxConversations    int
	WarningThreshold    int
	SummaryWindow       int // regenerate summary every K messages
	ContextMessageLimit int // last-N messages in the prompt
}

var AppConfig *Config

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_TURN_TIMEOUT", "120")
	viper.SetDefault("DB_PATH", "data/assistant.db")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("ELIGIBILITY_CATALOG_PATH", "configs/checks_catalog.json")
	viper.SetDefault("ELIGIBILITY_RULES_PATH", "configs/reason_rules.json")
	viper.SetDefault("ELIGIBILITY_PLAYBOOK_PATH", "configs/reason_playbook.json")
	viper.SetDefault("ELIGIBILITY_ELIGIBLE_LIST_PATH", "configs/eligible_customers.csv")
	viper.SetDefault("ELIGIBILITY_REASONS_FILE_PATH", "configs/reasons_file.csv")
	viper.SetDefault("EMBEDDING_PROVIDER", "ollama")
	viper.SetDefault("GENERATION_PROVIDER", "ollama")
	viper.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	viper.SetDefault("OLLAMA_MODEL", "llama3.1")
	viper.SetDefault("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text")
	viper.SetDefault("OLLAMA_DIMENSIONS", "768")
	viper.SetDefault("OLLAMA_PERSISTENCE_PATH", "data/vectors_ollama.db")
	viper.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai")
	viper.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	viper.SetDefault("GEMINI_EMBEDDING_MODEL", "text-embedding-004")
	viper.SetDefault("GEMINI_DIMENSIONS", "768")
	viper.SetDefault("GEMINI_PERSISTENCE_PATH", "data/vectors_gemini.db")
	viper.SetDefault("RETRIEVAL_TOP_K", "5")
	viper.SetDefault("RETRIEVAL_MAX_CONTEXT_CHARS", "12000")
	viper.SetDefault("MAX_CONVERSATIONS", "20")
	viper.SetDefault("WARNING_THRESHOLD", "15")
	viper.SetDefault("SUMMARY_WINDOW", "15")
	viper.SetDefault("CONTEXT_MESSAGE_LIMIT", "5")
	viper.SetDefault("LOGGING_LEVEL", "info")
	viper.SetDefault("LOGGING_FORMAT", "json")

	viper.AutomaticEnv()

	AppConfig = &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  30,
			WriteTimeout: 150,
			IdleTimeout:  120,
			TurnTimeout:  getEnvInt("SERVER_TURN_TIMEOUT", 120),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "data/assistant.db"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			APIKeyHeader: getEnv("SECURITY_API_KEY_HEADER", "X-API-Key"),
			APIKey:       getEnv("SECURITY_API_KEY", ""),
			UserIDHeader: getEnv("SECURITY_USER_ID_HEADER", "X-User-ID"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOGGING_LEVEL", "info"),
			Format: getEnv("LOGGING_FORMAT", "json"),
		},
		Eligibility: EligibilityConfig{
			CatalogPath:      getEnv("ELIGIBILITY_CATALOG_PATH", "configs/checks_catalog.json"),
			RulesPath:        getEnv("ELIGIBILITY_RULES_PATH", "configs/reason_rules.json"),
			PlaybookPath:     getEnv("ELIGIBILITY_PLAYBOOK_PATH", "configs/reason_playbook.json"),
			EligibleListPath: getEnv("ELIGIBILITY_ELIGIBLE_LIST_PATH", "configs/eligible_customers.csv"),
			ReasonsFilePath:  getEnv("ELIGIBILITY_REASONS_FILE_PATH", "configs/reasons_file.csv"),
		},
		Providers: ProvidersConfig{
			EmbeddingProvider:  getEnv("EMBEDDING_PROVIDER", "ollama"),
			GenerationProvider: getEnv("GENERATION_PROVIDER", "ollama"),
			Ollama: ProviderConfig{
				BaseURL:         getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:           getEnv("OLLAMA_MODEL", "llama3.1"),
				EmbeddingModel:  getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
				Dimensions:      getEnvInt("OLLAMA_DIMENSIONS", 768),
				PersistencePath: getEnv("OLLAMA_PERSISTENCE_PATH", "data/vectors_ollama.db"),
				Timeout:         getEnvInt("OLLAMA_TIMEOUT", 60),
			},
			Gemini: ProviderConfig{
				BaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
				APIKey:          getEnv("GEMINI_API_KEY", ""),
				Model:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
				EmbeddingModel:  getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
				Dimensions:      getEnvInt("GEMINI_DIMENSIONS", 768),
				PersistencePath: getEnv("GEMINI_PERSISTENCE_PATH", "data/vectors_gemini.db"),
				Timeout:         getEnvInt("GEMINI_TIMEOUT", 60),
				ThinkingLevel:   getEnv("GEMINI_THINKING_LEVEL", ""),
			},
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		},
		Retrieval: RetrievalConfig{
			TopK:            getEnvInt("RETRIEVAL_TOP_K", 5),
			AdaptiveK:       getEnvBool("RETRIEVAL_ADAPTIVE_K", false),
			MaxContextChars: getEnvInt("RETRIEVAL_MAX_CONTEXT_CHARS", 12000),
			CacheTTL:        getEnvInt("RETRIEVAL_CACHE_TTL", 300),
			PromptVersion:   getEnv("PROMPT_VERSION", "v1"),
		},
		Conversation: ConversationConfig{
			MaxConversations:    getEnvInt("MAX_CONVERSATIONS", 20),
			WarningThreshold:    getEnvInt("WARNING_THRESHOLD", 15),
			SummaryWindow:       getEnvInt("SUMMARY_WINDOW", 15),
			ContextMessageLimit: getEnvInt("CONTEXT_MESSAGE_LIMIT", 5),
		},
	}

	return AppConfig, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
