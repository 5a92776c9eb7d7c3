package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort    string `envconfig:"HTTP_PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Admin  AdminAuthConfig
	Device DeviceTokenConfig
	FCM    FCMConfig
}

// AdminAuthConfig covers console logins.
type AdminAuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET"`
	TokenTTL  time.Duration `envconfig:"JWT_EXPIRES_IN" default:"24h"`
}

// DeviceTokenConfig covers the tokens handed to activated devices.
// The secret is deliberately separate from the admin one: a leaked
// device token must never verify against an admin route.
type DeviceTokenConfig struct {
	TokenSecret string        `envconfig:"DEVICE_TOKEN_SECRET"`
	TokenTTL    time.Duration `envconfig:"DEVICE_TOKEN_EXPIRES_IN" default:"24h"`
}

type FCMConfig struct {
	Endpoint  string        `envconfig:"FCM_ENDPOINT" default:"https://fcm.googleapis.com/fcm/send"`
	ServerKey string        `envconfig:"FCM_SERVER_KEY"`
	Timeout   time.Duration `envconfig:"FCM_TIMEOUT" default:"10s"`
}

// Load reads .env (if present) and decodes the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is empty")
	}
	if cfg.Admin.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is empty")
	}
	if cfg.Device.TokenSecret == "" {
		return Config{}, errors.New("DEVICE_TOKEN_SECRET is empty")
	}
	return cfg, nil
}
