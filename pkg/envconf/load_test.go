package envconf

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nestedConf struct {
	DSN      string        `env:"PG_DSN"`
	MaxConns int           `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	Idle     time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"30s"`
}

type testConf struct {
	Port     uint16     `env:"APP_PORT"`
	LogLevel slog.Level `env:"APP_LOG_LEVEL" envDefault:"INFO"`
	Origins  []string   `env:"CORS_ORIGINS" envDefault:"*"`
	Reward   int64      `env:"LEDGER_VERIFICATION_REWARD" envDefault:"5"`
	Postgres nestedConf
	Skipped  string `env:"-"`
}

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadWith_DefaultsAndNested(t *testing.T) {
	t.Parallel()

	cfg := new(testConf)
	err := LoadWith(cfg, lookupFrom(map[string]string{
		"APP_PORT":     "8080",
		"PG_DSN":       "postgres://x",
		"CORS_ORIGINS": "https://a.example, https://b.example",
	}))
	require.NoError(t, err)

	assert.Equal(t, uint16(8080), cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins)
	assert.Equal(t, int64(5), cfg.Reward)
	assert.Equal(t, "postgres://x", cfg.Postgres.DSN)
	assert.Equal(t, 10, cfg.Postgres.MaxConns)
	assert.Equal(t, 30*time.Second, cfg.Postgres.Idle)
}

func TestLoadWith_MissingRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "absent", env: map[string]string{"PG_DSN": "postgres://x"}},
		{name: "empty", env: map[string]string{"APP_PORT": "", "PG_DSN": "postgres://x"}},
		{name: "nested_absent", env: map[string]string{"APP_PORT": "80"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := LoadWith(new(testConf), lookupFrom(tt.env))
			require.ErrorIs(t, err, ErrMissingRequired)
		})
	}
}

func TestLoadWith_BadValue(t *testing.T) {
	t.Parallel()

	err := LoadWith(new(testConf), lookupFrom(map[string]string{
		"APP_PORT": "not-a-port",
		"PG_DSN":   "postgres://x",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT")
}

func TestLoadWith_RejectsNonPointer(t *testing.T) {
	t.Parallel()

	require.Error(t, LoadWith(testConf{}, lookupFrom(nil)))
	require.Error(t, LoadWith(nil, lookupFrom(nil)))
}
