package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// SchedulerConfig collects the timing and concurrency knobs of the poll loop.
type SchedulerConfig struct {
	Tickers      []string
	PollInterval time.Duration
	Cooldown     time.Duration
	StaleAfter   time.Duration
	WorkerLimit  int
	CycleTimeout time.Duration
}

// Scheduler is the recurring background loop. Each cycle it makes sure every
// watched ticker has a status row, selects the ones due for ingestion, and
// fans their pipelines out over a bounded worker pool. Claiming happens
// inside the pipeline, so a second scheduler instance on the same database is
// harmless.
type Scheduler struct {
	cfg      SchedulerConfig
	pipeline *Pipeline
	status   StatusStore
	pool     *ants.Pool
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, pipeline *Pipeline, status StatusStore, logger *slog.Logger) (*Scheduler, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.WorkerLimit < 1 {
		cfg.WorkerLimit = 1
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.WorkerLimit)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:      cfg,
		pipeline: pipeline,
		status:   status,
		pool:     pool,
		logger:   logger.With("component", "scheduler"),
	}, nil
}

// Start launches the poll loop. It returns immediately; the loop runs until
// Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()

		s.logger.Info("scheduler started",
			"interval", s.cfg.PollInterval, "workers", s.cfg.WorkerLimit, "tickers", len(s.cfg.Tickers))
		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for in-flight ticker pipelines to finish.
// Anything not started rolls over to the next process via the stale-running
// reclaim.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.pool.Release()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	for _, ticker := range s.cfg.Tickers {
		if err := s.status.EnsureExists(cycleCtx, ticker); err != nil {
			s.logger.Error("ensure status row failed", "ticker", ticker, "err", err)
			return
		}
	}

	due, err := s.status.ListDue(cycleCtx, s.cfg.Cooldown, s.cfg.StaleAfter)
	if err != nil {
		s.logger.Error("list due tickers failed", "err", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Debug("cycle selected tickers", "count", len(due))

	var cycleWG sync.WaitGroup
	for _, status := range due {
		// Past the cycle deadline, unclaimed tickers roll over to the next
		// cycle rather than extending this one.
		if cycleCtx.Err() != nil {
			s.logger.Warn("cycle deadline reached, deferring remaining tickers")
			break
		}

		ticker := status.Ticker
		cycleWG.Add(1)
		submitErr := s.pool.Submit(func() {
			defer cycleWG.Done()
			if err := s.pipeline.IngestTicker(cycleCtx, ticker); err != nil {
				s.logger.Error("ticker ingestion resolved with error", "ticker", ticker, "err", err)
			}
		})
		if submitErr != nil {
			cycleWG.Done()
			s.logger.Error("submit ticker to pool failed", "ticker", ticker, "err", submitErr)
			break
		}
	}
	cycleWG.Wait()
}
