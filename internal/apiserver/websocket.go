package apiserver

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coldbell/lp-pricer/internal/indexer"
)

const (
	channelAllPrices  = "lp.prices"
	channelPoolPrefix = "lp.price."

	websocketReadTimeout  = 90 * time.Second
	websocketPingInterval = 30 * time.Second
	websocketWriteTimeout = 10 * time.Second
)

type websocketSubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type websocketEnvelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts"`
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebsocket pushes stored prices for every subscribed channel each
// push interval. Channels are lp.prices (latest of every pool) and
// lp.price.<POOL>.
func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	upgrader := websocketUpgrader
	upgrader.CheckOrigin = func(req *http.Request) bool {
		origin := strings.TrimSpace(req.Header.Get("Origin"))
		return s.isOriginAllowed(origin)
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newSubscriptionSet()
	readErrCh := make(chan error, 1)
	go s.websocketReadLoop(ctx, conn, subs, readErrCh)

	ticker := time.NewTicker(s.cfg.WSPushInterval)
	defer ticker.Stop()
	// Subscribers only read, so pings are what keep the read deadline moving.
	pinger := time.NewTicker(s.wsPingInterval)
	defer pinger.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			if err != nil {
				s.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case <-pinger.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(websocketWriteTimeout)); err != nil {
				s.logger.Debug("websocket ping failed", "err", err)
				return
			}
		case <-ticker.C:
			for _, channel := range subs.List() {
				payload, err := s.getWebsocketPayload(ctx, channel)
				if err != nil {
					s.logger.Warn("websocket payload failed", "channel", channel, "err", err)
					if err := writeWebsocketJSON(conn, websocketEnvelope{Type: "error", Channel: channel, Error: "failed to fetch channel data", TS: time.Now().Unix()}); err != nil {
						return
					}
					continue
				}
				if payload == nil {
					continue
				}
				if err := writeWebsocketJSON(conn, websocketEnvelope{Type: "event", Channel: channel, Data: payload, TS: time.Now().Unix()}); err != nil {
					return
				}
			}
		}
	}
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, subs *subscriptionSet, readErrCh chan<- error) {
	conn.SetReadLimit(64 * 1024)
	if err := conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout)); err == nil {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
		})
	}
	for {
		select {
		case <-ctx.Done():
			readErrCh <- nil
			return
		default:
		}
		var message websocketSubscribeRequest
		if err := conn.ReadJSON(&message); err != nil {
			readErrCh <- err
			return
		}
		message.Type = strings.ToLower(strings.TrimSpace(message.Type))
		channel, ok := s.normalizeChannel(message.Channel)
		if !ok {
			s.logger.Debug("ignoring unknown websocket channel", "channel", message.Channel)
			continue
		}
		switch message.Type {
		case "subscribe":
			subs.Add(channel)
		case "unsubscribe":
			subs.Remove(channel)
		}
	}
}

// normalizeChannel maps lp.price.<alias> to the registry's pool name.
func (s *Service) normalizeChannel(raw string) (string, bool) {
	channel := strings.TrimSpace(raw)
	if channel == channelAllPrices {
		return channel, true
	}
	if !strings.HasPrefix(channel, channelPoolPrefix) {
		return "", false
	}
	pool, ok := s.cfg.Registry.Pool(strings.TrimPrefix(channel, channelPoolPrefix))
	if !ok {
		return "", false
	}
	return channelPoolPrefix + pool.Name, true
}

func (s *Service) getWebsocketPayload(ctx context.Context, channel string) (any, error) {
	if channel == channelAllPrices {
		return s.store.LatestTicks(ctx)
	}
	pool := strings.TrimPrefix(channel, channelPoolPrefix)
	tick, err := s.store.LatestTick(ctx, pool)
	if err != nil {
		if errors.Is(err, indexer.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return tick, nil
}

func writeWebsocketJSON(conn *websocket.Conn, payload websocketEnvelope) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

type subscriptionSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{items: map[string]struct{}{}}
}

func (s *subscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[channel] = struct{}{}
}

func (s *subscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, channel)
}

func (s *subscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for channel := range s.items {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}
