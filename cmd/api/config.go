package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/tokenledger/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" envDefault:"8080"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:""`
	AwardSweepSpec  string        `env:"AWARD_SWEEP_SPEC" envDefault:"@every 1m"`
	AuditBuffer     int           `env:"AUDIT_BUFFER" envDefault:"1024"`

	Postgres  config.PostgresConfig
	Redis     config.RedisConfig
	Ledger    config.LedgerConfig
	RateLimit config.RateLimitConfig
	Poster    config.PosterConfig
}
