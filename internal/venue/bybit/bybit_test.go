package bybit

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradeflow/internal/model"
	"tradeflow/internal/symbols"
)

func TestConvertStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.OrderStatus
	}{
		{"New", model.StatusOpen},
		{"Untriggered", model.StatusOpen},
		{"PartiallyFilled", model.StatusPartiallyFilled},
		{"Filled", model.StatusFilled},
		{"Cancelled", model.StatusCancelled},
		{"PartiallyFilledCanceled", model.StatusCancelled},
		{"Deactivated", model.StatusCancelled},
		{"Rejected", model.StatusRejected},
		{"Expired", model.StatusExpired},
		{"BrandNewState", model.StatusPending},
	}
	for _, tt := range tests {
		if got := convertStatus(tt.in); got != tt.want {
			t.Errorf("convertStatus(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestClassifyRetCodes(t *testing.T) {
	tests := []struct {
		code int
		want model.ErrorKind
	}{
		{10003, model.KindAuthentication},
		{10004, model.KindAuthentication},
		{10006, model.KindRateLimit},
		{110001, model.KindOrderNotFound},
		{110007, model.KindOrderRejected},
		{10002, model.KindTransientNetwork},
	}
	for _, tt := range tests {
		err := classify("op", tt.code, "msg")
		if got := model.ErrorKindOf(err); got != tt.want {
			t.Errorf("retCode %d classified as %s, want %s", tt.code, got, tt.want)
		}
	}

	// Unknown codes fall back to message sniffing.
	err := classify("op", 99999, "Too many visits!")
	if model.ErrorKindOf(err) != model.KindRateLimit {
		t.Errorf("throttle message not detected: %v", err)
	}
}

func TestConvertOrderTriggerTypes(t *testing.T) {
	b := &Bybit{table: symbols.Bybit()}

	e := orderEntry{
		OrderID:      "o1",
		OrderLinkID:  "c1",
		Symbol:       "BTCUSDT",
		Side:         "Sell",
		OrderType:    "Market",
		OrderStatus:  "Untriggered",
		Qty:          "0.5",
		CumExecQty:   "0",
		TriggerPrice: "58000",
		CreatedTime:  "1699000000000",
		UpdatedTime:  "1699000001000",
	}
	o := b.convertOrder(e)
	if o.Type != model.TypeStop {
		t.Errorf("triggered market order should be stop, got %s", o.Type)
	}
	if o.Side != model.SideSell {
		t.Errorf("unexpected side %s", o.Side)
	}
	if o.Symbol != "BTCUSD" {
		t.Errorf("symbol not canonical: %s", o.Symbol)
	}
	if !o.StopPrice.Equal(decimal.NewFromInt(58000)) {
		t.Errorf("unexpected stop price %s", o.StopPrice)
	}
	if o.CreatedAt.IsZero() || o.UpdatedAt.Before(o.CreatedAt) {
		t.Errorf("timestamps not parsed: %s %s", o.CreatedAt, o.UpdatedAt)
	}
}

func TestTickerStreamCache(t *testing.T) {
	s := newTickerStream("wss://example.invalid")

	// Snapshot populates every field.
	s.handleMessage([]byte(`{
		"topic": "tickers.BTCUSDT",
		"type": "snapshot",
		"ts": 1699000000000,
		"data": {"symbol":"BTCUSDT","bid1Price":"59999.5","ask1Price":"60000.5","lastPrice":"60000","volume24h":"12345"}
	}`))

	// Delta only carries the changed field and must not wipe the rest.
	s.handleMessage([]byte(`{
		"topic": "tickers.BTCUSDT",
		"type": "delta",
		"ts": 1699000001000,
		"data": {"symbol":"BTCUSDT","lastPrice":"60100"}
	}`))

	s.mu.RLock()
	tk := s.latest["BTCUSDT"]
	s.mu.RUnlock()
	if tk == nil {
		t.Fatal("ticker not cached")
	}
	if !tk.Last.Equal(decimal.NewFromInt(60100)) {
		t.Errorf("delta not applied: %s", tk.Last)
	}
	if !tk.Bid.Equal(decimal.NewFromFloat(59999.5)) {
		t.Errorf("delta wiped bid: %s", tk.Bid)
	}
	if !tk.Volume24h.Equal(decimal.NewFromInt(12345)) {
		t.Errorf("delta wiped volume: %s", tk.Volume24h)
	}
}

func TestTickerStreamIgnoresAcks(t *testing.T) {
	s := newTickerStream("wss://example.invalid")
	s.handleMessage([]byte(`{"op":"subscribe","success":true,"ret_msg":""}`))
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.latest) != 0 {
		t.Errorf("ack message cached as ticker: %v", s.latest)
	}
}
