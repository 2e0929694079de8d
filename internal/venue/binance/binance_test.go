package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/model"
)

func newTestBinance(t *testing.T, handler http.Handler) *Binance {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.BinanceConfig{
		BaseURL:   srv.URL,
		APIKey:    "k",
		APISecret: "s",
	}, 5*time.Second)
}

func TestPlaceMarketOrder(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/order" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.FormValue("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol not translated: %s", got)
		}
		if got := r.FormValue("newClientOrderId"); got != "client-1" {
			t.Errorf("client order id not forwarded: %s", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":              "BTCUSDT",
			"orderId":             12345,
			"clientOrderId":       "client-1",
			"transactTime":        1699000000000,
			"price":               "0.00000000",
			"origQty":             "0.50000000",
			"executedQty":         "0.50000000",
			"cummulativeQuoteQty": "30000.00000000",
			"status":              "FILLED",
			"type":                "MARKET",
			"side":                "BUY",
			"fills": []map[string]string{
				{"price": "60000.00", "qty": "0.5", "commission": "0.0005", "commissionAsset": "BTC"},
			},
		})
	}))

	order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:        "BTCUSD",
		Side:          model.SideBuy,
		Type:          model.TypeMarket,
		Quantity:      decimal.NewFromFloat(0.5),
		ClientOrderID: "client-1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.VenueOrderID != "12345" {
		t.Errorf("unexpected venue order id %s", order.VenueOrderID)
	}
	if order.Status != model.StatusFilled {
		t.Errorf("unexpected status %s", order.Status)
	}
	if !order.AvgFillPrice.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("unexpected avg fill price %s", order.AvgFillPrice)
	}
	if order.Symbol != "BTCUSD" {
		t.Errorf("symbol not canonical: %s", order.Symbol)
	}
}

func TestConvertStatus(t *testing.T) {
	tests := []struct {
		in   binance.OrderStatusType
		want model.OrderStatus
	}{
		{binance.OrderStatusTypeNew, model.StatusOpen},
		{binance.OrderStatusTypePartiallyFilled, model.StatusPartiallyFilled},
		{binance.OrderStatusTypeFilled, model.StatusFilled},
		{binance.OrderStatusTypeCanceled, model.StatusCancelled},
		{binance.OrderStatusTypeRejected, model.StatusRejected},
		{binance.OrderStatusTypeExpired, model.StatusExpired},
		{binance.OrderStatusType("SOMETHING_NEW"), model.StatusPending},
	}
	for _, tt := range tests {
		if got := convertStatus(tt.in); got != tt.want {
			t.Errorf("convertStatus(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestWrapClassifiesAPIErrors(t *testing.T) {
	b := New(config.BinanceConfig{APIKey: "k", APISecret: "s"}, 0)

	tests := []struct {
		code int64
		want model.ErrorKind
	}{
		{-1003, model.KindRateLimit},
		{-2014, model.KindAuthentication},
		{-2015, model.KindAuthentication},
		{-2013, model.KindOrderNotFound},
		{-2010, model.KindOrderRejected},
		{-1021, model.KindTransientNetwork},
	}
	for _, tt := range tests {
		err := b.wrap("op", &common.APIError{Code: tt.code, Message: "m"})
		if got := model.ErrorKindOf(err); got != tt.want {
			t.Errorf("code %d classified as %s, want %s", tt.code, got, tt.want)
		}
	}

	plain := b.wrap("op", context.DeadlineExceeded)
	if model.ErrorKindOf(plain) != model.KindTransientNetwork {
		t.Errorf("non-API error should be transient, got %s", model.ErrorKindOf(plain))
	}
}

func TestBalancesSkipsEmpty(t *testing.T) {
	b := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/account" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"balances": []map[string]string{
				{"asset": "BTC", "free": "0.5", "locked": "0.1"},
				{"asset": "DUST", "free": "0", "locked": "0"},
			},
		})
	}))

	balances, err := b.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("expected 1 balance, got %d", len(balances))
	}
	if balances[0].Currency != "BTC" || !balances[0].Total.Equal(decimal.NewFromFloat(0.6)) {
		t.Errorf("unexpected balance %+v", balances[0])
	}
}

func TestAvgFillPrice(t *testing.T) {
	fills := []*binance.Fill{
		{Price: "100", Quantity: "1"},
		{Price: "110", Quantity: "1"},
	}
	if got := avgFillPrice(fills); !got.Equal(decimal.NewFromInt(105)) {
		t.Errorf("avgFillPrice = %s, want 105", got)
	}
	if got := avgFillPrice(nil); !got.IsZero() {
		t.Errorf("empty fills should be zero, got %s", got)
	}
}

func TestSpotLeverage(t *testing.T) {
	b := New(config.BinanceConfig{APIKey: "k", APISecret: "s"}, 0)
	if err := b.SetLeverage(context.Background(), "BTCUSD", model.SpotLeverage, model.MarginCross); err != nil {
		t.Errorf("leverage 1 rejected: %v", err)
	}
	err := b.SetLeverage(context.Background(), "BTCUSD", decimal.NewFromInt(2), model.MarginCross)
	if model.ErrorKindOf(err) != model.KindUnsupported {
		t.Errorf("expected unsupported, got %v", err)
	}
}
