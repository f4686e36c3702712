package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/lp-pricer/internal/amm"
	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/indexer"
	"github.com/coldbell/lp-pricer/internal/pricing"
)

type fakeStore struct {
	mu        sync.Mutex
	ticks     map[string][]indexer.PriceTick
	lastLimit int
	err       error
}

func (f *fakeStore) LatestTick(_ context.Context, pool string) (indexer.PriceTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticks := f.ticks[pool]
	if len(ticks) == 0 {
		return indexer.PriceTick{}, indexer.ErrNotFound
	}
	return ticks[0], nil
}

func (f *fakeStore) LatestTicks(_ context.Context) ([]indexer.PriceTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []indexer.PriceTick{}
	for _, ticks := range f.ticks {
		if len(ticks) > 0 {
			out = append(out, ticks[0])
		}
	}
	return out, nil
}

func (f *fakeStore) History(_ context.Context, pool string, limit int) ([]indexer.PriceTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	ticks := f.ticks[pool]
	if len(ticks) > limit {
		ticks = ticks[:limit]
	}
	return ticks, nil
}

func (f *fakeStore) Candles(_ context.Context, pool string, intervalSec int64, limit int) ([]indexer.CandleRecord, error) {
	return []indexer.CandleRecord{{TS: 600, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2), Samples: 3}}, nil
}

type fakeLive struct {
	err error
}

func (f fakeLive) Value(_ context.Context, pool string) (pricing.Valuation, error) {
	if f.err != nil {
		return pricing.Valuation{}, f.err
	}
	return pricing.Valuation{
		Pool:          pool,
		Layout:        amm.V4,
		BaseValueUSD:  25,
		QuoteValueUSD: 25,
		LPPrice:       2.5,
		LPSupply:      20_000_000,
		LPDecimals:    6,
		ComputedAt:    time.Unix(1_700_000_000, 0).UTC(),
	}, nil
}

func tick(pool string, price string, at int64) indexer.PriceTick {
	return indexer.PriceTick{Pool: pool, Layout: "v4", LPPrice: decimal.RequireFromString(price), TVL: decimal.NewFromInt(1), ComputedAt: at}
}

func newTestService(t *testing.T, store *fakeStore, live LiveValuer, mutate func(*config.APIServerConfig)) *httptest.Server {
	t.Helper()
	return newTestServer(t, newTestServiceWith(store, live, mutate))
}

func newTestServer(t *testing.T, svc *Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newTestServiceWith(store *fakeStore, live LiveValuer, mutate func(*config.APIServerConfig)) *Service {
	cfg := config.APIServerConfig{
		Registry:       config.DefaultRegistry(),
		HistoryLimit:   2,
		WSPushInterval: 20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return newService(cfg, store, live, nil, nil)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthAndPools(t *testing.T) {
	srv := newTestService(t, &fakeStore{}, nil, nil)

	var health healthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &health))
	assert.True(t, health.OK)

	var pools listResponse[poolResponse]
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/pools", &pools))
	require.Len(t, pools.Items, 7)
	assert.Equal(t, "RAY-SOL", pools.Items[0].Name)
	for _, pool := range pools.Items {
		if pool.Name == "USDT-USDC" {
			assert.True(t, pool.StablePair)
			assert.Equal(t, amm.V4, pool.Layout)
		}
	}
}

func TestLatestPrices(t *testing.T) {
	store := &fakeStore{ticks: map[string][]indexer.PriceTick{
		"RAY-USDC": {tick("RAY-USDC", "1.25", 20), tick("RAY-USDC", "1.20", 10)},
	}}
	srv := newTestService(t, store, nil, nil)

	var body struct {
		Items []struct {
			Pool    string `json:"pool"`
			LPPrice string `json:"lp_price"`
		} `json:"items"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/lp-prices", &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "1.25", body.Items[0].LPPrice)

	store.err = errors.New("db down")
	var failure errorResponse
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+"/api/v1/lp-prices", &failure))
	assert.Equal(t, "failed to list lp prices", failure.Error)
}

func TestPriceHistory(t *testing.T) {
	store := &fakeStore{ticks: map[string][]indexer.PriceTick{
		"RAY-USDC": {tick("RAY-USDC", "3", 30), tick("RAY-USDC", "2", 20), tick("RAY-USDC", "1", 10)},
	}}
	srv := newTestService(t, store, nil, nil)

	var body listResponse[indexer.PriceTick]
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/lp-prices/history?pool=ray_usdc&limit=50", &body))
	assert.Equal(t, 2, store.lastLimit)
	assert.Len(t, body.Items, 2)
	assert.Equal(t, int64(30), body.Items[0].ComputedAt)

	var failure errorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/lp-prices/history", &failure))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/lp-prices/history?pool=DOGE-USDC", &failure))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/lp-prices/history?pool=RAY-USDC&limit=x", &failure))
}

func TestPriceCandles(t *testing.T) {
	srv := newTestService(t, &fakeStore{}, nil, nil)

	var body struct {
		Pool        string                 `json:"pool"`
		IntervalSec int64                  `json:"interval_sec"`
		Candles     []indexer.CandleRecord `json:"candles"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/lp-prices/candles?pool=SOL-USDC&interval=60", &body))
	assert.Equal(t, "SOL-USDC", body.Pool)
	assert.Equal(t, int64(60), body.IntervalSec)
	require.Len(t, body.Candles, 1)

	var failure errorResponse
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/lp-prices/candles?pool=SOL-USDC&interval=0", &failure))
}

func TestLivePrice(t *testing.T) {
	srv := newTestService(t, &fakeStore{}, fakeLive{}, nil)

	var body struct {
		Tick      indexer.PriceTick `json:"tick"`
		Valuation struct {
			Pool    string  `json:"pool"`
			Layout  string  `json:"layout"`
			LPPrice float64 `json:"lp_price"`
		} `json:"valuation"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/lp-prices/live?pool=sol/usdc", &body))
	assert.Equal(t, "SOL-USDC", body.Valuation.Pool)
	assert.Equal(t, "v4", body.Valuation.Layout)
	assert.Equal(t, 2.5, body.Valuation.LPPrice)
	assert.Equal(t, "50", body.Tick.TVL.String())

	failing := newTestService(t, &fakeStore{}, fakeLive{err: pricing.ErrNoAsks}, nil)
	var failure errorResponse
	assert.Equal(t, http.StatusBadGateway, getJSON(t, failing.URL+"/api/v1/lp-prices/live?pool=SOL-USDC", &failure))
	assert.Contains(t, failure.Error, pricing.ErrNoAsks.Error())

	disabled := newTestService(t, &fakeStore{}, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, disabled.URL+"/api/v1/lp-prices/live?pool=SOL-USDC", &failure))
}

func TestMethodNotAllowedAndMetrics(t *testing.T) {
	srv := newTestService(t, &fakeStore{}, fakeLive{}, nil)

	resp, err := http.Post(srv.URL+"/api/v1/pools", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/lp-prices/live?pool=RAY-USDC", nil))
	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lp_pricer_pricing_lp_price_usd{pool="RAY-USDC"} 2.5`)
}

func TestCORS(t *testing.T) {
	srv := newTestService(t, &fakeStore{}, nil, func(cfg *config.APIServerConfig) {
		cfg.AllowedOrigins = []string{"https://app.example"}
	})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/pools", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebsocketPushesSubscribedPool(t *testing.T) {
	store := &fakeStore{ticks: map[string][]indexer.PriceTick{
		"RAY-USDC": {tick("RAY-USDC", "1.75", 40)},
	}}
	srv := newTestService(t, store, nil, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: "lp.price.ray-usdc"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var envelope struct {
		Type    string            `json:"type"`
		Channel string            `json:"channel"`
		Data    indexer.PriceTick `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&envelope))
	assert.Equal(t, "event", envelope.Type)
	assert.Equal(t, "lp.price.RAY-USDC", envelope.Channel)
	assert.Equal(t, "1.75", envelope.Data.LPPrice.String())
}

func TestWebsocketKeepsReadOnlySubscriber(t *testing.T) {
	store := &fakeStore{ticks: map[string][]indexer.PriceTick{
		"RAY-USDC": {tick("RAY-USDC", "1.75", 40)},
	}}
	svc := newTestServiceWith(store, nil, nil)
	svc.wsReadTimeout = 300 * time.Millisecond
	svc.wsPingInterval = 50 * time.Millisecond
	srv := newTestServer(t, svc)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: "lp.price.ray-usdc"}))

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	until := time.Now().Add(4 * svc.wsReadTimeout)
	events := 0
	for time.Now().Before(until) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var envelope websocketEnvelope
		require.NoError(t, conn.ReadJSON(&envelope), "subscriber dropped after %d events", events)
		events++
	}
	assert.Positive(t, events)
	assert.Positive(t, pings.Load())
}

func TestNormalizeChannel(t *testing.T) {
	svc := newService(config.APIServerConfig{Registry: config.DefaultRegistry()}, &fakeStore{}, nil, nil, nil)

	channel, ok := svc.normalizeChannel(" lp.prices ")
	assert.True(t, ok)
	assert.Equal(t, channelAllPrices, channel)

	channel, ok = svc.normalizeChannel("lp.price.usdt_usdc")
	assert.True(t, ok)
	assert.Equal(t, "lp.price.USDT-USDC", channel)

	_, ok = svc.normalizeChannel("lp.price.DOGE-USDC")
	assert.False(t, ok)
	_, ok = svc.normalizeChannel("market.price.BTC")
	assert.False(t, ok)
}
