package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devJWTSecret = "dev-insecure-secret-change"

// Config is read from ./.env (if present) and the environment. Environment
// variables win over the file.
type Config struct {
	DSN             string
	JWTSecret       string
	HTTPAddr        string
	UploadBase      string
	AnthropicKey    string
	AIModel         string
	SignedURLTTL    time.Duration
	AutoMigrate     bool
	LogFile         string
	OTelEnabled     bool
	DefaultCurrency string
}

func loadConfig() (Config, error) {
	v := viper.New()
	v.SetDefault("http_addr", ":8081")
	v.SetDefault("upload_base", "uploads")
	v.SetDefault("signed_url_ttl", "15m")
	v.SetDefault("db_auto_migrate", true)
	v.SetDefault("default_currency", "GBP")
	v.AutomaticEnv()

	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, err
			}
		}
	}

	cfg := Config{
		DSN:             v.GetString("db_dsn"),
		JWTSecret:       v.GetString("jwt_secret"),
		HTTPAddr:        v.GetString("http_addr"),
		UploadBase:      v.GetString("upload_base"),
		AnthropicKey:    v.GetString("anthropic_api_key"),
		AIModel:         v.GetString("ai_model"),
		SignedURLTTL:    v.GetDuration("signed_url_ttl"),
		AutoMigrate:     v.GetBool("db_auto_migrate"),
		LogFile:         v.GetString("log_file"),
		OTelEnabled:     v.GetBool("otel_enabled"),
		DefaultCurrency: strings.ToUpper(v.GetString("default_currency")),
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	return cfg, nil
}
