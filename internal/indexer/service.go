package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/observability"
	"github.com/coldbell/lp-pricer/internal/pricing"
)

type Valuer interface {
	Value(ctx context.Context, pool string) (pricing.Valuation, error)
}

type TickWriter interface {
	InsertTicks(ctx context.Context, ticks []PriceTick) error
}

type Recorder interface {
	ObserveValuation(pool string, lpPrice, tvl float64, elapsed time.Duration, err error)
	ObserveStoreWrite(err error)
}

// PollResult summarises one pass over the configured pools.
type PollResult struct {
	Valued []PriceTick
	Failed map[string]error
}

// Service values every configured pool each poll interval and records the
// results.
type Service struct {
	cfg     config.PricerConfig
	pools   []string
	valuer  Valuer
	store   TickWriter
	metrics Recorder
	logger  *slog.Logger

	metricsHandler http.Handler
	closeStore     func() error
}

func New(cfg config.PricerConfig, logger *slog.Logger) (*Service, error) {
	selected, err := cfg.Registry.Select(cfg.Pools)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(selected))
	for _, pool := range selected {
		names = append(names, pool.Name)
	}

	store, err := NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	metrics := observability.NewMetrics(nil, nil)
	source := chain.NewRPCSource(cfg.RPC.URL, cfg.RPC.Commitment, metrics)
	engine := pricing.NewEngine(source, cfg.Registry, logger)

	svc := newService(cfg, names, engine, store, metrics, logger)
	svc.metricsHandler = metrics.Handler()
	svc.closeStore = store.Close
	return svc, nil
}

func newService(cfg config.PricerConfig, pools []string, valuer Valuer, store TickWriter, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Service{
		cfg:     cfg,
		pools:   pools,
		valuer:  valuer,
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if s.closeStore == nil {
			return
		}
		if err := s.closeStore(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	s.logger.Info("indexer started",
		"rpc", s.cfg.RPC.URL,
		"commitment", s.cfg.RPC.Commitment,
		"pools", len(s.pools),
		"poll_interval", s.cfg.PollInterval.String(),
		"max_concurrency", s.cfg.MaxConcurrency,
	)

	g, runCtx := errgroup.WithContext(ctx)
	if s.cfg.MetricsAddr != "" && s.metricsHandler != nil {
		metricsSrv := &http.Server{
			Addr:              s.cfg.MetricsAddr,
			Handler:           s.metricsHandler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			err := metricsSrv.ListenAndServe()
			if err == nil || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("metrics server: %w", err)
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
			return nil
		})
		s.logger.Info("metrics endpoint enabled", "addr", s.cfg.MetricsAddr)
	}

	g.Go(func() error {
		return s.pollLoop(runCtx)
	})
	return g.Wait()
}

func (s *Service) pollLoop(ctx context.Context) error {
	if _, err := s.PollOnce(ctx); err != nil {
		s.logger.Error("initial poll failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("indexer stopped")
			return nil
		case <-ticker.C:
			if _, err := s.PollOnce(ctx); err != nil {
				s.logger.Error("poll failed", "err", err)
			}
		}
	}
}

// PollOnce values every pool with at most MaxConcurrency in flight. A pool
// that fails is logged and left out; the returned error only reports a
// failed store write.
func (s *Service) PollOnce(ctx context.Context) (PollResult, error) {
	valuations := make([]*pricing.Valuation, len(s.pools))
	failures := make([]error, len(s.pools))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, pool := range s.pools {
		g.Go(func() error {
			poolCtx := ctx
			if s.cfg.RPC.RequestTimeout > 0 {
				var cancel context.CancelFunc
				poolCtx, cancel = context.WithTimeout(ctx, s.cfg.RPC.RequestTimeout)
				defer cancel()
			}

			started := time.Now()
			v, err := s.valuer.Value(poolCtx, pool)
			if s.metrics != nil {
				s.metrics.ObserveValuation(pool, v.LPPrice, v.TVL(), time.Since(started), err)
			}
			if err != nil {
				failures[i] = err
				s.logger.Warn("pool valuation failed", "pool", pool, "err", err)
				return nil
			}
			valuations[i] = &v
			return nil
		})
	}
	_ = g.Wait()

	result := PollResult{Failed: map[string]error{}}
	for i, pool := range s.pools {
		if failures[i] != nil {
			result.Failed[pool] = failures[i]
			continue
		}
		tick, err := TickFromValuation(*valuations[i])
		if err != nil {
			result.Failed[pool] = err
			s.logger.Warn("pool valuation not storable", "pool", pool, "err", err)
			continue
		}
		result.Valued = append(result.Valued, tick)
	}

	if len(result.Valued) == 0 {
		return result, nil
	}
	err := s.store.InsertTicks(ctx, result.Valued)
	if s.metrics != nil {
		s.metrics.ObserveStoreWrite(err)
	}
	if err != nil {
		return result, fmt.Errorf("store ticks: %w", err)
	}
	s.logger.Info("poll complete", "valued", len(result.Valued), "failed", len(result.Failed))
	return result, nil
}
