// Package config содержит логику чтения конфигурации сервиса учёта ежедневных показателей.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envFile = ".env"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddress string `env:"REDIS_ADDRESS"`
	SecretKey    string `env:"SECRET_KEY"`
	// SiteURL внешний адрес сервиса, используется в ссылке подтверждения почты.
	SiteURL string `env:"SITE_URL"`

	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	RememberTTL  time.Duration `env:"REMEMBER_TTL" envDefault:"720h"`
	AutoConfirm  bool          `env:"AUTO_CONFIRM"`
	CookieSecure bool          `env:"COOKIE_SECURE"`

	MailerAddress string `env:"MAILER_ADDRESS"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config параметры хранилища фотографий. Пустой Bucket отключает загрузку.
type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	Bucket    string `env:"BUCKET"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	PublicURL string `env:"PUBLIC_URL"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и
// переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envSecretKey := cfg.SecretKey
	envSiteURL := cfg.SiteURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "localhost:6379", "redis address for the session registry")
	flag.StringVar(&cfg.SecretKey, "k", "", "secret key for signing session tokens")
	flag.StringVar(&cfg.SiteURL, "s", "", "public site URL used in confirmation links")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envSecretKey != "" {
		cfg.SecretKey = envSecretKey
	}
	if envSiteURL != "" {
		cfg.SiteURL = envSiteURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = "http://" + cfg.RunAddress
	}

	if cfg.SecretKey == "" {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
