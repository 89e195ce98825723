package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Notify   NotifyConfig
	SMTP     SMTPConfig
	Kafka    KafkaConfig
	Webhook  WebhookConfig
	Cleanup  CleanupConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AllowedOrigins []string
}

// AuthConfig keeps raw values; service.NewAuthService parses and validates them.
type AuthConfig struct {
	JWTSecret             string
	JWTAlgorithm          string
	AccessTTLMinutes      string
	RefreshTTLDays        string
	ResetTTLMinutes       string
	Scopes                string
	CheckAccessDenylist   string
	RefreshRotation       string
	HideUnknownResetEmail string
	ResetURL              string
}

type StoreConfig struct {
	Driver string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type NotifyConfig struct {
	Driver string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Subject  string
	Body     string
}

type KafkaConfig struct {
	Brokers    []string
	ResetTopic string
}

type WebhookConfig struct {
	URL  string
	Body string
}

type CleanupConfig struct {
	Interval string
}

type LogConfig struct {
	Level string
}

const (
	defaultResetSubject = "Reset your password"
	defaultResetBody    = `<p>Hi {{user.full_name}}, this is your link to reset your password</p>
<p>{{reset.link}}</p>
<p>The link expires at {{reset.expires_at}}.</p>`
	defaultWebhookBody = `{"event":"password_reset_requested","username":"{{user.username}}","email":"{{user.email}}","link":"{{reset.link}}","expires_at":"{{reset.expires_at}}"}`
)

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			GinMode:        getenv("GIN_MODE", "release"),
			AllowedOrigins: csv(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Auth: AuthConfig{
			JWTSecret:             os.Getenv("JWT_SECRET"),
			JWTAlgorithm:          getenv("JWT_ALGORITHM", "HS256"),
			AccessTTLMinutes:      getenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15"),
			RefreshTTLDays:        getenv("REFRESH_TOKEN_EXPIRE_DAYS", "7"),
			ResetTTLMinutes:       getenv("RESET_TOKEN_EXPIRE_MINUTES", "30"),
			Scopes:                getenv("AUTH_SCOPES", "me"),
			CheckAccessDenylist:   os.Getenv("DENYLIST_CHECK_ACCESS"),
			RefreshRotation:       os.Getenv("REFRESH_ROTATION"),
			HideUnknownResetEmail: os.Getenv("RESET_HIDE_UNKNOWN_EMAIL"),
			ResetURL:              getenv("RESET_PASSWORD_URL", "http://localhost:8080/reset-password"),
		},
		Store: StoreConfig{
			Driver: getenv("STORE_DRIVER", "postgres"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Notify: NotifyConfig{
			Driver: getenv("NOTIFY_DRIVER", "log"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getenv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			Subject:  getenv("RESET_EMAIL_SUBJECT", defaultResetSubject),
			Body:     getenv("RESET_EMAIL_BODY", defaultResetBody),
		},
		Kafka: KafkaConfig{
			Brokers:    csv(os.Getenv("KAFKA_BROKERS")),
			ResetTopic: getenv("KAFKA_RESET_TOPIC", "user_events"),
		},
		Webhook: WebhookConfig{
			URL:  os.Getenv("RESET_WEBHOOK_URL"),
			Body: getenv("RESET_WEBHOOK_BODY", defaultWebhookBody),
		},
		Cleanup: CleanupConfig{
			Interval: getenv("DENYLIST_CLEANUP_INTERVAL", "24h"),
		},
		Log: LogConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
