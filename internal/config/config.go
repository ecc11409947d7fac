package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr string

	// AI provider
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// generation defaults
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	TopP         float64

	HistoryLimit int

	// transcript store
	StoreDriver          string // memory | redis | sqlite | mysql
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	DBDSN                string
	SQLitePath           string
	TranscriptTTLSeconds int

	// exchange events (optional)
	RabbitURL   string
	RabbitQueue string
}

const DefaultSystemPrompt = "You are a concise, helpful assistant."

func Load() Config {
	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "ollama"
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}
	ollamaModel := os.Getenv("OLLAMA_MODEL")
	if ollamaModel == "" {
		ollamaModel = "llama3:latest"
	}

	openRouterBaseURL := os.Getenv("OPENROUTER_BASE_URL")
	if openRouterBaseURL == "" {
		openRouterBaseURL = "https://openrouter.ai/api/v1"
	}
	openRouterModel := os.Getenv("OPENROUTER_MODEL")
	if openRouterModel == "" {
		openRouterModel = "openrouter/auto"
	}

	systemPrompt := os.Getenv("DEFAULT_SYSTEM_PROMPT")
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	temperature := envFloat("TEMPERATURE", 0.7, 0, 2)
	topP := envFloat("TOP_P", 0.9, 0, 1)
	maxTokens := envInt("MAX_TOKENS", 1024, 1, 8192)
	// the transcript holds user/assistant pairs, so the limit must be even
	// or trimming would leave an assistant entry with its user turn evicted
	historyLimit := envInt("HISTORY_LIMIT", 10, 2, 100)
	historyLimit -= historyLimit % 2

	storeDriver := os.Getenv("STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	redisDB := envInt("REDIS_DB", 0, 0, 15)

	dsn := os.Getenv("DB_DSN")
	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "chatrelay.db"
	}
	ttl := envInt("TRANSCRIPT_TTL_SECONDS", 0, 0, 30*24*3600)

	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "chat_exchanges"
	}

	return Config{
		Addr: addr,

		AIProvider:        aiProvider,
		OllamaBaseURL:     ollamaBaseURL,
		OllamaModel:       ollamaModel,
		OpenRouterBaseURL: openRouterBaseURL,
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   openRouterModel,
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		SystemPrompt: systemPrompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		TopP:         topP,

		HistoryLimit: historyLimit,

		StoreDriver:          storeDriver,
		RedisAddr:            redisAddr,
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		DBDSN:                dsn,
		SQLitePath:           sqlitePath,
		TranscriptTTLSeconds: ttl,

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: rabbitQueue,
	}
}

// envInt reads an integer env var, falling back to def when unset, not a
// number, or outside [min, max].
func envInt(name string, def, min, max int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func envFloat(name string, def, min, max float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < min || f > max {
		return def
	}
	return f
}
