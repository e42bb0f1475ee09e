package awards

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs the expiry sweep every minute.
const DefaultSweepSpec = "@every 1m"

// Sweeper closes expired awards on a cron schedule.
type Sweeper struct {
	svc     *Service
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
}

// NewSweeper validates spec (standard five-field cron or a descriptor such as
// "@every 30s") and schedules the sweep. Call Start to begin running it.
func NewSweeper(svc *Service, spec string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sw := &Sweeper{
		svc:     svc,
		cron:    cron.New(),
		logger:  logger,
		timeout: 30 * time.Second,
	}

	_, err := sw.cron.AddFunc(spec, sw.run)
	if err != nil {
		return nil, fmt.Errorf("schedule award sweep %q: %w", spec, err)
	}

	return sw, nil
}

func (sw *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sw.timeout)
	defer cancel()

	closed, err := sw.svc.SweepExpired(ctx)
	if err != nil {
		sw.logger.Error("award expiry sweep failed", "closed", closed, "error", err)
		return
	}

	if closed > 0 {
		sw.logger.Info("closed expired awards", "closed", closed)
	}
}

func (sw *Sweeper) Start() {
	sw.cron.Start()
}

// Stop prevents new sweeps and waits for a running one to finish or ctx to end.
func (sw *Sweeper) Stop(ctx context.Context) error {
	done := sw.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for award sweep: %w", ctx.Err())
	}
}
