package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradeflow/internal/model"
	"tradeflow/logger"
)

// tickerStream maintains a public websocket subscription to v5 ticker topics
// and caches the latest quote per native symbol. Deltas only carry changed
// fields, so updates merge into the cached ticker.
type tickerStream struct {
	url string
	log *logger.Entry

	mu      sync.RWMutex
	conn    *websocket.Conn
	latest  map[string]*model.Ticker
	topics  map[string]struct{}
	running bool
	cancel  context.CancelFunc
}

func newTickerStream(url string) *tickerStream {
	return &tickerStream{
		url:    url,
		log:    logger.GetLogger().WithVenue(venueName).WithComponent("ticker_stream"),
		latest: make(map[string]*model.Ticker),
		topics: make(map[string]struct{}),
	}
}

// Start dials the stream and launches the read and keepalive loops.
func (s *tickerStream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ticker stream already running")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("dial ticker stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	go s.readLoop(streamCtx)
	go s.keepalive(streamCtx)

	s.log.WithFields(logger.Fields{"url": s.url}).Info("ticker stream connected")
	return nil
}

// Stop closes the connection and stops background loops.
func (s *tickerStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	s.log.Info("ticker stream stopped")
}

// Watch subscribes to a symbol's ticker topic. Idempotent per symbol.
func (s *tickerStream) Watch(symbol string) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("ticker stream not running")
	}
	if _, ok := s.topics[symbol]; ok {
		s.mu.Unlock()
		return nil
	}
	s.topics[symbol] = struct{}{}
	conn := s.conn
	s.mu.Unlock()

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + symbol},
	}
	return conn.WriteJSON(sub)
}

// Latest returns the cached quote for a native symbol.
func (s *tickerStream) Latest(symbol string) (*model.Ticker, bool) {
	s.mu.RLock()
	t, ok := s.latest[symbol]
	s.mu.RUnlock()
	if !ok {
		// Subscribe so the next lookup can be served from cache.
		if err := s.Watch(symbol); err != nil {
			s.log.WithError(err).Debug("ticker subscription failed")
		}
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (s *tickerStream) keepalive(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			running := s.running
			s.mu.RUnlock()
			if !running || conn == nil {
				return
			}
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				s.log.WithError(err).Warn("keepalive write failed")
				return
			}
		}
	}
}

type tickerMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		Bid1Price string `json:"bid1Price"`
		Ask1Price string `json:"ask1Price"`
		LastPrice string `json:"lastPrice"`
		Volume24h string `json:"volume24h"`
	} `json:"data"`
}

func (s *tickerStream) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.WithError(err).Warn("ticker stream read failed")
			}
			return
		}
		s.handleMessage(raw)
	}
}

func (s *tickerStream) handleMessage(raw []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Data.Symbol == "" {
		return
	}

	ts := time.Now()
	if msg.Ts > 0 {
		ts = time.UnixMilli(msg.Ts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.latest[msg.Data.Symbol]
	if !ok {
		t = &model.Ticker{Venue: venueName, Symbol: msg.Data.Symbol}
		s.latest[msg.Data.Symbol] = t
	}
	t.Timestamp = ts
	// Deltas omit unchanged fields; only overwrite what arrived.
	if msg.Data.Bid1Price != "" {
		t.Bid, _ = decimal.NewFromString(msg.Data.Bid1Price)
	}
	if msg.Data.Ask1Price != "" {
		t.Ask, _ = decimal.NewFromString(msg.Data.Ask1Price)
	}
	if msg.Data.LastPrice != "" {
		t.Last, _ = decimal.NewFromString(msg.Data.LastPrice)
	}
	if msg.Data.Volume24h != "" {
		t.Volume24h, _ = decimal.NewFromString(msg.Data.Volume24h)
	}
}
