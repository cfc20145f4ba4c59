package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Core
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backends
	LedgerBackend     string `env:"LEDGER_BACKEND" envDefault:"memory"`
	StoreBackend      string `env:"STORE_BACKEND" envDefault:"memory"`
	ExchangeBackend   string `env:"EXCHANGE_BACKEND" envDefault:"backend"`
	AttachmentBackend string `env:"ATTACHMENT_BACKEND" envDefault:"memory"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// RabbitMQ: message events are published only when the URL is set
	RabbitMQURL  string `env:"RABBITMQ_URL"`
	MessageQueue string `env:"RABBITMQ_MESSAGE_QUEUE" envDefault:"chat.message.appended"`

	// Remote exchange: backend
	BackendURL string `env:"CHAT_BACKEND_URL" envDefault:"http://127.0.0.1:5000"`

	// Remote exchange: OpenRouter
	OpenRouterKey   string `env:"OPENROUTER_API_KEY"`
	OpenRouterURL   string `env:"OPENROUTER_API_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterModel string `env:"OPENROUTER_MODEL" envDefault:"google/gemini-flash-1.5"`

	// Attachments: S3
	AwsAccessKey string `env:"AWS_ACCESS_KEY"`
	AwsSecretKey string `env:"AWS_SECRET_KEY"`
	AwsRegion    string `env:"AWS_REGION" envDefault:"us-east-2"`
	BucketName   string `env:"BUCKET_NAME" envDefault:"mindchat-attachments"`

	// Auth
	JWTSecret    string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpireMin int    `env:"JWT_EXPIRE_MINUTE" envDefault:"1440"`

	// CORS
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8081,http://localhost:19006"`

	// Telegram: the bot starts only when the token is set
	BotToken           string `env:"BOT_TOKEN"`
	DropPendingUpdates bool   `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`

	// Telegram logging
	LogTelegramChatID     int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError         int   `env:"LOG_TOPIC_ERROR"`
	LogTopicRegistration  int   `env:"LOG_TOPIC_REGISTRATION"`
	LogTopicRejectedSpend int   `env:"LOG_TOPIC_REJECTED_SPEND"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.ExchangeBackend {
	case ExchangeBackendHTTP:
		if c.BackendURL == "" {
			return errors.New("CHAT_BACKEND_URL is required")
		}
	case ExchangeOpenRouter:
		if c.OpenRouterKey == "" {
			return errors.New("OPENROUTER_API_KEY is required for the openrouter exchange")
		}
	default:
		return fmt.Errorf("unknown EXCHANGE_BACKEND %q", c.ExchangeBackend)
	}

	switch c.AttachmentBackend {
	case BackendMemory, BackendS3:
	default:
		return fmt.Errorf("unknown ATTACHMENT_BACKEND %q", c.AttachmentBackend)
	}
	return nil
}

// UsesPostgres reports whether any backend needs a database pool.
func (c *Config) UsesPostgres() bool {
	return c.LedgerBackend == BackendPostgres || c.StoreBackend == BackendPostgres
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
