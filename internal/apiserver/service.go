package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coldbell/lp-pricer/internal/amm"
	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/indexer"
	"github.com/coldbell/lp-pricer/internal/observability"
	"github.com/coldbell/lp-pricer/internal/pricing"
)

// PriceReader is the read side of the indexer store.
type PriceReader interface {
	LatestTick(ctx context.Context, pool string) (indexer.PriceTick, error)
	LatestTicks(ctx context.Context) ([]indexer.PriceTick, error)
	History(ctx context.Context, pool string, limit int) ([]indexer.PriceTick, error)
	Candles(ctx context.Context, pool string, intervalSec int64, limit int) ([]indexer.CandleRecord, error)
}

// LiveValuer prices a pool on demand from chain state.
type LiveValuer interface {
	Value(ctx context.Context, pool string) (pricing.Valuation, error)
}

type Service struct {
	cfg              config.APIServerConfig
	logger           *slog.Logger
	store            PriceReader
	live             LiveValuer
	metrics          *observability.Metrics
	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
	closeStore       func() error

	wsReadTimeout  time.Duration
	wsPingInterval time.Duration
}

func New(cfg config.APIServerConfig, logger *slog.Logger) (*Service, error) {
	store, err := indexer.NewStore(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	metrics := observability.NewMetrics(nil, nil)
	var live LiveValuer
	if cfg.EnableLiveQuotes {
		source := chain.NewRPCSource(cfg.RPC.URL, cfg.RPC.Commitment, metrics)
		live = pricing.NewEngine(source, cfg.Registry, logger)
	}

	svc := newService(cfg, store, live, metrics, logger)
	svc.closeStore = store.Close
	return svc, nil
}

func newService(cfg config.APIServerConfig, store PriceReader, live LiveValuer, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(nil, nil)
	}
	if cfg.WSPushInterval <= 0 {
		cfg.WSPushInterval = 5 * time.Second
	}

	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		store:            store,
		live:             live,
		metrics:          metrics,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
		wsReadTimeout:    websocketReadTimeout,
		wsPingInterval:   websocketPingInterval,
	}
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/pools", s.handlePools)
	mux.HandleFunc("/api/v1/lp-prices", s.handleLatestPrices)
	mux.HandleFunc("/api/v1/lp-prices/history", s.handlePriceHistory)
	mux.HandleFunc("/api/v1/lp-prices/candles", s.handlePriceCandles)
	mux.HandleFunc("/api/v1/lp-prices/live", s.handleLivePrice)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s.withCORS(mux)
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

	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("api-server started",
		"listen_addr", s.cfg.ListenAddr,
		"db_driver", "postgres",
		"live_quotes", s.live != nil,
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("api-server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown api-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Limit int `json:"limit,omitempty"`
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type poolResponse struct {
	Name       string      `json:"name"`
	Base       string      `json:"base"`
	Quote      string      `json:"quote"`
	Market     string      `json:"market"`
	Layout     amm.Version `json:"layout"`
	AmmID      string      `json:"amm_id"`
	OpenOrders string      `json:"open_orders"`
	LPMint     string      `json:"lp_mint"`
	StablePair bool        `json:"stable_pair"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Service) handlePools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	registry := s.cfg.Registry
	items := make([]poolResponse, 0, len(registry.Pools))
	for _, name := range registry.PoolNames() {
		pool := registry.Pools[name]
		items = append(items, poolResponse{
			Name:       pool.Name,
			Base:       pool.Base,
			Quote:      pool.Quote,
			Market:     pool.Market,
			Layout:     pool.Layout,
			AmmID:      pool.AmmID.String(),
			OpenOrders: pool.OpenOrders.String(),
			LPMint:     pool.LPMint.String(),
			StablePair: pool.StablePair,
		})
	}
	s.respondJSON(w, http.StatusOK, listResponse[poolResponse]{Items: items})
}

func (s *Service) handleLatestPrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}

	items, err := s.store.LatestTicks(r.Context())
	if err != nil {
		s.logger.Error("list latest lp prices failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list lp prices")
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[indexer.PriceTick]{Items: items})
}

func (s *Service) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	pool, ok := s.requirePool(w, r)
	if !ok {
		return
	}
	limit, err := parseOptionalInt(r, "limit", s.cfg.HistoryLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.HistoryLimit > 0 && (limit <= 0 || limit > s.cfg.HistoryLimit) {
		limit = s.cfg.HistoryLimit
	}

	items, err := s.store.History(r.Context(), pool.Name, limit)
	if err != nil {
		s.logger.Error("list lp price history failed", "pool", pool.Name, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list lp price history")
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse[indexer.PriceTick]{Items: items, Limit: limit})
}

func (s *Service) handlePriceCandles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	pool, ok := s.requirePool(w, r)
	if !ok {
		return
	}
	interval, err := parseOptionalInt64(r, "interval", 300)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if interval <= 0 {
		s.respondError(w, http.StatusBadRequest, "interval must be > 0")
		return
	}
	limit, err := parseOptionalInt(r, "limit", 120)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	candles, err := s.store.Candles(r.Context(), pool.Name, interval, limit)
	if err != nil {
		s.logger.Error("list lp price candles failed", "pool", pool.Name, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list lp price candles")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"pool":         pool.Name,
		"interval_sec": interval,
		"candles":      candles,
	})
}

func (s *Service) handleLivePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	if s.live == nil {
		s.respondError(w, http.StatusServiceUnavailable, "live quotes are disabled")
		return
	}
	pool, ok := s.requirePool(w, r)
	if !ok {
		return
	}

	started := time.Now()
	v, err := s.live.Value(r.Context(), pool.Name)
	s.metrics.ObserveValuation(pool.Name, v.LPPrice, v.TVL(), time.Since(started), err)
	if err != nil {
		s.logger.Warn("live valuation failed", "pool", pool.Name, "err", err)
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	tick, err := indexer.TickFromValuation(v)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"tick":      tick,
		"valuation": v,
	})
}

func (s *Service) requirePool(w http.ResponseWriter, r *http.Request) (config.Pool, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("pool"))
	if raw == "" {
		s.respondError(w, http.StatusBadRequest, "pool is required")
		return config.Pool{}, false
	}
	pool, ok := s.cfg.Registry.Pool(raw)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown pool %q", raw))
		return config.Pool{}, false
	}
	return pool, true
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if s.isOriginAllowed(origin) {
				if s.allowAllOrigins {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "300")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" || s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseOptionalInt64(r *http.Request, key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
