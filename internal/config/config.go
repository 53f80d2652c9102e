// Package config содержит логику чтения конфигурации сервиса проката.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/hireme/internal/model"
)

// Config содержит параметры конфигурации сервиса проката.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	BaseURL     string `env:"BASE_URL"`

	JWTSecret   string        `env:"JWT_SECRET"`
	JWTTTL      time.Duration `env:"JWT_TTL" envDefault:"24h"`
	AdminAPIKey string        `env:"ADMIN_API_KEY"`

	SMTP  SMTPConfig
	Mpesa MpesaConfig

	LockoutShortThreshold int           `env:"LOCKOUT_SHORT_THRESHOLD" envDefault:"3"`
	LockoutShortDuration  time.Duration `env:"LOCKOUT_SHORT_DURATION" envDefault:"15m"`
	LockoutLongThreshold  int           `env:"LOCKOUT_LONG_THRESHOLD" envDefault:"5"`
	LockoutLongDuration   time.Duration `env:"LOCKOUT_LONG_DURATION" envDefault:"1h"`

	NotifyPollInterval time.Duration `env:"NOTIFY_POLL_INTERVAL" envDefault:"1s"`
}

// SMTPConfig содержит параметры почтового сервера.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"HIRE-ME <no-reply@hire-me.co.ke>"`
}

// Enabled сообщает, настроена ли отправка почты.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// MpesaConfig содержит параметры подключения к M-Pesa Daraja API.
type MpesaConfig struct {
	BaseURL        string        `env:"MPESA_BASE_URL"`
	ConsumerKey    string        `env:"MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `env:"MPESA_CONSUMER_SECRET"`
	ShortCode      string        `env:"MPESA_SHORTCODE" envDefault:"174379"`
	Passkey        string        `env:"MPESA_PASSKEY"`
	CallbackURL    string        `env:"MPESA_CALLBACK_URL"`
	CallbackToken  string        `env:"MPESA_CALLBACK_TOKEN"`
	Timeout        time.Duration `env:"MPESA_TIMEOUT" envDefault:"30s"`
}

// LockoutPolicy собирает политику блокировки входа из конфигурации.
func (c *Config) LockoutPolicy() model.LockoutPolicy {
	return model.LockoutPolicy{
		ShortThreshold: c.LockoutShortThreshold,
		ShortDuration:  c.LockoutShortDuration,
		LongThreshold:  c.LockoutLongThreshold,
		LongDuration:   c.LockoutLongDuration,
	}
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBaseURL := cfg.BaseURL
	envMpesaURL := cfg.Mpesa.BaseURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:3000", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.BaseURL, "b", "http://localhost:3000", "public base URL used in email links")
	flag.StringVar(&cfg.Mpesa.BaseURL, "m", "https://sandbox.safaricom.co.ke", "M-Pesa API base URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBaseURL != "" {
		cfg.BaseURL = envBaseURL
	}
	if envMpesaURL != "" {
		cfg.Mpesa.BaseURL = envMpesaURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:3000"
	}

	if cfg.LockoutShortThreshold <= 0 || cfg.LockoutLongThreshold < cfg.LockoutShortThreshold {
		return nil, fmt.Errorf("invalid lockout thresholds: %d/%d", cfg.LockoutShortThreshold, cfg.LockoutLongThreshold)
	}

	return cfg, nil
}
