package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Realtime RealtimeConfig
	Chat     ChatConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Environment string // "development", "production", "test"
	Debug       bool
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	IssuerURL string
	ClientID  string
	// DevHeader trusts X-Dev-User-ID. Only honoured in development.
	DevHeader bool
}

type GatewayConfig struct {
	Timeout time.Duration
}

const (
	RealtimeRedis  = "redis"
	RealtimeMemory = "memory"
)

type RealtimeConfig struct {
	Backend string
}

type ChatConfig struct {
	MessageRateLimit int // per user per minute; 0 disables
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

// Load reads configuration from the environment. Variables in an optional
// .env file are applied first without overriding ones already set.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("SERVER_PORT", 8080),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvBool("DEBUG", false),
			LogLevel:    getEnvNonEmpty("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "petpals"),
			Password: getEnv("DB_PASSWORD", "petpals"),
			DBName:   getEnv("DB_NAME", "petpals"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			IssuerURL: getEnv("OIDC_ISSUER_URL", ""),
			ClientID:  getEnv("OIDC_CLIENT_ID", ""),
			DevHeader: getEnvBool("AUTH_DEV_HEADER", false),
		},
		Gateway: GatewayConfig{
			Timeout: getEnvDuration("GATEWAY_TIMEOUT", 5*time.Second),
		},
		Realtime: RealtimeConfig{
			Backend: strings.ToLower(getEnvNonEmpty("REALTIME_BACKEND", RealtimeRedis)),
		},
		Chat: ChatConfig{
			MessageRateLimit: getEnvInt("MESSAGE_RATE_LIMIT", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Realtime.Backend {
	case RealtimeRedis, RealtimeMemory:
	default:
		return fmt.Errorf("invalid REALTIME_BACKEND %q: want %q or %q", c.Realtime.Backend, RealtimeRedis, RealtimeMemory)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("invalid GATEWAY_TIMEOUT %s: must be positive", c.Gateway.Timeout)
	}
	if c.Auth.IssuerURL == "" && !(c.Auth.DevHeader && c.Server.IsDevelopment()) {
		return errors.New("OIDC_ISSUER_URL is required unless AUTH_DEV_HEADER is enabled in development")
	}
	return nil
}

func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvNonEmpty(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		if strings.TrimSpace(value) != "" {
			return value
		}
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
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
