package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/fastprodman/tokenledger/internal/api"
	"github.com/fastprodman/tokenledger/internal/audit"
	"github.com/fastprodman/tokenledger/internal/config"
	"github.com/fastprodman/tokenledger/internal/infra/logging"
	"github.com/fastprodman/tokenledger/internal/infra/metrics"
	"github.com/fastprodman/tokenledger/internal/infra/pgutils"
	"github.com/fastprodman/tokenledger/internal/services/awards"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
	"github.com/fastprodman/tokenledger/internal/services/posters"
	"github.com/fastprodman/tokenledger/pkg/envconf"
	"github.com/fastprodman/tokenledger/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

//nolint:funlen
func run(ctx context.Context) (retErr error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.AddNamed("postgres", func(context.Context) error {
		return db.Close()
	})

	emitter := newAuditEmitter(cfg.Redis, cfg.AuditBuffer)

	cat := catalog.New()
	if cfg.Ledger.PricingFile != "" {
		cat, err = catalog.LoadFile(cfg.Ledger.PricingFile)
		if err != nil {
			return fmt.Errorf("load pricing: %w", err)
		}
	}

	// --- Services ---
	ledgerOpts := []ledger.Option{
		ledger.WithCatalog(cat),
		ledger.WithEmitter(emitter),
		ledger.WithRetries(cfg.Ledger.TxRetries),
		ledger.WithVerificationReward(cfg.Ledger.VerificationReward),
	}

	if cfg.Poster.RendererURL != "" {
		pool, perr := startPosterPool(ctx, db, cfg.Poster, emitter)
		if perr != nil {
			return perr
		}

		ledgerOpts = append(ledgerOpts, ledger.WithPosterQueue(pool))
	} else {
		slog.Warn("RENDERER_URL not set, poster jobs stay pending")
	}

	ledgerSrv := ledger.New(db, ledgerOpts...)

	sweeper, err := awards.NewSweeper(awards.New(db, awards.WithEmitter(emitter)), cfg.AwardSweepSpec, slog.Default())
	if err != nil {
		return fmt.Errorf("award sweeper: %w", err)
	}

	sweeper.Start()
	shutdownqueue.AddNamed("award sweeper", sweeper.Stop)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(ledgerSrv, api.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		Logger:         slog.Default(),
	}))

	// Register HTTP server graceful shutdown
	shutdownqueue.AddNamed("http server", func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

// newAuditEmitter always logs events and also publishes them to Redis when
// an address is configured. Delivery happens off the request path.
func newAuditEmitter(cfg config.RedisConfig, buffer int) audit.Emitter {
	sinks := audit.Multi{audit.LogEmitter{Logger: slog.Default()}}

	if cfg.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
		sinks = append(sinks, audit.NewRedisEmitter(client, cfg.AuditChannel))

		shutdownqueue.AddNamed("redis", func(context.Context) error {
			return client.Close()
		})
	}

	disp := audit.NewDispatcher(sinks, slog.Default(), buffer,
		audit.WithDropHook(func(audit.Event) { metrics.RecordAuditDrop() }),
	)

	// registered after redis so it drains before the client closes
	shutdownqueue.AddNamed("audit dispatcher", disp.Close)

	return disp
}

func startPosterPool(ctx context.Context, db *sql.DB, cfg config.PosterConfig, emitter audit.Emitter) (*posters.Pool, error) {
	renderer := posters.NewHTTPRenderer(cfg.RendererURL, &http.Client{Timeout: cfg.RenderLimit + 10*time.Second})

	pool := posters.NewPool(db, renderer,
		posters.WithWorkers(cfg.Workers),
		posters.WithRenderTimeout(cfg.RenderLimit),
		posters.WithEmitter(emitter),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	done := make(chan struct{})

	go func() {
		defer close(done)

		rerr := pool.Run(runCtx)
		if rerr != nil {
			slog.Error("poster pool stopped", "error", rerr)
		}
	}()

	n, err := pool.Requeue(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("requeue poster jobs: %w", err)
	}

	slog.Info("poster pool started", "workers", cfg.Workers, "requeued", n)

	shutdownqueue.AddNamed("poster pool", func(c context.Context) error {
		cancel()

		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})

	return pool, nil
}
