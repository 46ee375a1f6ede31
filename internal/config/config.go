package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates all service configuration.
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Transcribe TranscribeConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	Quota      QuotaConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	transcribe, err := loadTranscribeConfig()
	if err != nil {
		return nil, err
	}

	quota, err := loadQuotaConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Transcribe: transcribe,
		Database:   DatabaseConfig{URL: strings.TrimSpace(os.Getenv("DATABASE_URL"))},
		Auth:       AuthConfig{JWTSecret: strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET"))},
		Quota:      quota,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the response-generation model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL or AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationSecondsEnv("AI_TIMEOUT_SECONDS", 30)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// TranscribeConfig describes the speech-to-text provider.
type TranscribeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Enabled bool
}

func loadTranscribeConfig() (TranscribeConfig, error) {
	timeout, err := parseDurationSecondsEnv("TRANSCRIBE_TIMEOUT_SECONDS", 30)
	if err != nil {
		return TranscribeConfig{}, err
	}

	baseURL := getEnvOrDefault("TRANSCRIBE_BASE_URL", "https://api.openai.com")
	apiKey := strings.TrimSpace(os.Getenv("TRANSCRIBE_API_KEY"))

	return TranscribeConfig{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   getEnvOrDefault("TRANSCRIBE_MODEL", "whisper-1"),
		Timeout: timeout,
		Enabled: apiKey != "" || !strings.Contains(baseURL, "api.openai.com"),
	}, nil
}

// DatabaseConfig describes the persistent store; an empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string
}

// AuthConfig describes credential verification.
type AuthConfig struct {
	JWTSecret string
}

// QuotaConfig describes the daily voice-minute allowance.
type QuotaConfig struct {
	FreeDailyMinutes int
}

func loadQuotaConfig() (QuotaConfig, error) {
	minutes := 10
	if override, err := parseOptionalIntEnv("QUOTA_FREE_DAILY_MINUTES"); err != nil {
		return QuotaConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return QuotaConfig{}, fmt.Errorf("QUOTA_FREE_DAILY_MINUTES must not be negative")
		}
		minutes = *override
	}
	return QuotaConfig{FreeDailyMinutes: minutes}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationSecondsEnv(key string, defaultSeconds int) (time.Duration, error) {
	seconds := defaultSeconds
	if override, err := parseOptionalIntEnv(key); err != nil {
		return 0, err
	} else if override != nil {
		if *override <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		seconds = *override
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
