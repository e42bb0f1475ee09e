// Command ledgerctl is the operator CLI for award lifecycle changes and
// single-account inspection. It talks to Postgres directly with the same
// configuration as the API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fastprodman/tokenledger/internal/config"
	"github.com/fastprodman/tokenledger/internal/infra/logging"
	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/services/awards"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
	"github.com/fastprodman/tokenledger/pkg/envconf"
)

type ctlConfig struct {
	LogLevel slog.Level `env:"APP_LOG_LEVEL" envDefault:"WARN"`

	Postgres config.PostgresConfig
	Ledger   config.LedgerConfig
}

// deps is filled by rootCmd's PersistentPreRunE before any subcommand runs.
var deps struct {
	db     *sql.DB
	ledger *ledger.Service
	awards *awards.Service
}

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Operate awards and inspect token accounts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return connect(cmd.Context())
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if deps.db == nil {
			return nil
		}

		return deps.db.Close()
	},
}

func connect(ctx context.Context) error {
	_ = godotenv.Load()

	cfg := new(ctlConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	cat := catalog.New()
	if cfg.Ledger.PricingFile != "" {
		cat, err = catalog.LoadFile(cfg.Ledger.PricingFile)
		if err != nil {
			return fmt.Errorf("load pricing: %w", err)
		}
	}

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	deps.db = db
	deps.ledger = ledger.New(db,
		ledger.WithCatalog(cat),
		ledger.WithRetries(cfg.Ledger.TxRetries),
		ledger.WithVerificationReward(cfg.Ledger.VerificationReward),
	)
	deps.awards = awards.New(db)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}
