package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/coinsync/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT" default:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `env:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	// JWTSecret enables bearer auth on account routes.
	JWTSecret string  `env:"API_JWT_SECRET" default:""`
	RateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
	RateBurst int     `env:"API_RATE_BURST" default:"40"`
	Postgres  config.PostgresConfig
}
