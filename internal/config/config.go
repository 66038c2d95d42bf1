package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Email    EmailConfig
	Platform PlatformConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Secure      bool   // Use HTTPS-only cookies
	Environment string // "development", "production", "test"
	Debug       bool
	BaseURL     string
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

type EmailConfig struct {
	Provider     string // "resend", "console"
	FromAddress  string
	FromName     string
	ResendAPIKey string
}

// PlatformConfig holds the messaging-platform integration settings. The
// company ID scopes which virtual card catalog this deployment sells.
type PlatformConfig struct {
	CompanyID     string
	LoginEnabled  bool
	ChannelID     string
	ChannelSecret string
	RedirectURL   string
	IssuerURL     string
	Scopes        []string
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

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("SERVER_PORT", 8080),
			Secure:      getEnvBool("SERVER_SECURE", false),
			Environment: getEnv("APP_ENV", "development"),
			Debug:       getEnvBool("DEBUG", false),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "farepass"),
			Password: getEnv("DB_PASSWORD", "farepass"),
			DBName:   getEnv("DB_NAME", "farepass"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			Provider:     getEnv("EMAIL_PROVIDER", "console"),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "noreply@farepass.app"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Farepass"),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		},
		Platform: PlatformConfig{
			CompanyID:     getEnv("PLATFORM_COMPANY_ID", ""),
			LoginEnabled:  getEnvBool("PLATFORM_LOGIN_ENABLED", false),
			ChannelID:     getEnv("PLATFORM_CHANNEL_ID", ""),
			ChannelSecret: getEnv("PLATFORM_CHANNEL_SECRET", ""),
			RedirectURL:   getEnv("PLATFORM_REDIRECT_URL", ""),
			IssuerURL:     getEnvNonEmpty("PLATFORM_ISSUER_URL", "https://access.line.me"),
			Scopes:        getEnvList("PLATFORM_SCOPES", []string{"openid", "profile"}),
		},
	}

	// Misconfiguration must be loud at startup, not a silent runtime failure.
	if strings.TrimSpace(cfg.Platform.CompanyID) == "" {
		return nil, fmt.Errorf("PLATFORM_COMPANY_ID is required")
	}
	if cfg.Platform.LoginEnabled {
		if cfg.Platform.ChannelID == "" || cfg.Platform.ChannelSecret == "" {
			return nil, fmt.Errorf("platform login enabled but PLATFORM_CHANNEL_ID/PLATFORM_CHANNEL_SECRET are not set")
		}
		if cfg.Platform.RedirectURL == "" {
			return nil, fmt.Errorf("platform login enabled but PLATFORM_REDIRECT_URL is not set")
		}
	}

	return cfg, nil
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
		return defaultValue
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

func getEnvList(key string, defaultValues []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return defaultValues
		}
		parts := strings.Split(trimmed, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			item := strings.TrimSpace(part)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return defaultValues
}
