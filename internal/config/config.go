package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig is optional: an empty Addr disables the Redis audit sink.
type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR" envDefault:""`
	AuditChannel string `env:"AUDIT_CHANNEL" envDefault:"tokenledger.audit"`
}

type LedgerConfig struct {
	VerificationReward int64  `env:"LEDGER_VERIFICATION_REWARD" envDefault:"5"`
	TxRetries          int    `env:"LEDGER_TX_RETRIES" envDefault:"3"`
	PricingFile        string `env:"LEDGER_PRICING_FILE" envDefault:""`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"5"`
	Burst int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

type PosterConfig struct {
	RendererURL string        `env:"RENDERER_URL" envDefault:""`
	Workers     int           `env:"POSTER_WORKERS" envDefault:"2"`
	RenderLimit time.Duration `env:"POSTER_RENDER_TIMEOUT" envDefault:"2m"`
}
