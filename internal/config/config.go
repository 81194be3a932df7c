package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppName  string
	Env      string
	LogLevel string

	APIBaseURL   string
	WebSocketURL string

	AccessToken   string
	SigningSecret string
	UserID        string
	Username      string
	TokenTTL      time.Duration

	MaxReconnectAttempts int
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration
	PingInterval         time.Duration
	HTTPTimeout          time.Duration
	FetchRetries         int
	MaxUploadBytes       int64

	Host               string
	Port               int
	CORSOrigins        []string
	BridgeJWTSecret    string
	BridgePasscodeHash string
	BridgeTokenMinutes int

	CacheDSN   string
	EncryptKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first without overriding variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "Medius Bridge"),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:   strings.TrimRight(getEnv("MEDIUS_API_BASE_URL", "http://localhost:8080/api"), "/"),
		WebSocketURL: os.Getenv("MEDIUS_WEBSOCKET_URL"),

		AccessToken:   os.Getenv("MEDIUS_ACCESS_TOKEN"),
		SigningSecret: os.Getenv("MEDIUS_SIGNING_SECRET"),
		UserID:        os.Getenv("MEDIUS_USER_ID"),
		Username:      os.Getenv("MEDIUS_USERNAME"),
		TokenTTL:      getEnvAsDuration("MEDIUS_TOKEN_TTL", time.Minute),

		MaxReconnectAttempts: getEnvAsInt("WS_MAX_RECONNECT_ATTEMPTS", 5),
		BaseReconnectDelay:   getEnvAsDuration("WS_BASE_RECONNECT_DELAY", time.Second),
		MaxReconnectDelay:    getEnvAsDuration("WS_MAX_RECONNECT_DELAY", 30*time.Second),
		PingInterval:         getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
		HTTPTimeout:          getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		FetchRetries:         getEnvAsInt("FETCH_RETRIES", 2),
		MaxUploadBytes:       int64(getEnvAsInt("MAX_UPLOAD_BYTES", 50<<20)),

		Host:               getEnv("HTTP_HOST", "127.0.0.1"),
		Port:               getEnvAsInt("HTTP_PORT", 8700),
		BridgeJWTSecret:    os.Getenv("BRIDGE_JWT_SECRET"),
		BridgePasscodeHash: os.Getenv("BRIDGE_PASSCODE_HASH"),
		BridgeTokenMinutes: getEnvAsInt("BRIDGE_TOKEN_MINUTES", 12*60),

		CacheDSN:   getEnv("CACHE_DSN", "medius.db"),
		EncryptKey: os.Getenv("ENCRYPTION_KEY"),
	}

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	if cfg.AccessToken == "" && cfg.SigningSecret == "" {
		return nil, fmt.Errorf("MEDIUS_ACCESS_TOKEN or MEDIUS_SIGNING_SECRET is required")
	}
	if cfg.SigningSecret != "" && cfg.UserID == "" {
		return nil, fmt.Errorf("MEDIUS_USER_ID is required with MEDIUS_SIGNING_SECRET")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.MaxReconnectAttempts < 1 {
		return nil, fmt.Errorf("WS_MAX_RECONNECT_ATTEMPTS must be at least 1")
	}
	if cfg.BaseReconnectDelay <= 0 || cfg.MaxReconnectDelay < cfg.BaseReconnectDelay {
		return nil, fmt.Errorf("reconnect delays must satisfy 0 < base <= max")
	}

	return cfg, nil
}

// ValidateServer reports settings the bridge needs on top of Load's checks.
func (c *Config) ValidateServer() error {
	if c.BridgeJWTSecret == "" {
		return fmt.Errorf("BRIDGE_JWT_SECRET is required")
	}
	if c.BridgePasscodeHash == "" {
		return fmt.Errorf("BRIDGE_PASSCODE_HASH is required")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare numbers are milliseconds, as in the web client's constants
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
