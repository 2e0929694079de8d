package tradestation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/model"
)

// newTestVenue stands up one server handling both the token endpoint and the
// brokerage API, the way the real gateway fronts both behind one host.
func newTestVenue(t *testing.T, tokenGrants *int64, api http.Handler) *Tradestation {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("unexpected grant_type %s", got)
		}
		if tokenGrants != nil {
			atomic.AddInt64(tokenGrants, 1)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   1200,
		})
	})
	mux.Handle("/", api)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ts, err := New(config.TradestationConfig{
		BaseURL:      srv.URL,
		AuthURL:      srv.URL + "/oauth/token",
		ClientID:     "client",
		ClientSecret: "secret",
		AccountID:    "ACC1",
		Route:        "Intelligent",
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ts
}

func TestPlaceOrderCarriesBearerToken(t *testing.T) {
	ts := newTestVenue(t, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orderexecution/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var payload orderPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.AccountID != "ACC1" {
			t.Errorf("account id not set: %s", payload.AccountID)
		}
		if payload.OrderType != "Limit" || payload.LimitPrice != "150.5" {
			t.Errorf("limit fields wrong: %s %s", payload.OrderType, payload.LimitPrice)
		}
		if payload.TradeAction != "BUY" {
			t.Errorf("unexpected trade action %s", payload.TradeAction)
		}
		if payload.TimeInForce.Duration != "GTC" {
			t.Errorf("unexpected duration %s", payload.TimeInForce.Duration)
		}
		if payload.Route != "Intelligent" {
			t.Errorf("route not forwarded: %s", payload.Route)
		}
		json.NewEncoder(w).Encode(orderResponse{Orders: []orderAck{{OrderID: "123456", Message: "received"}}})
	}))

	order, err := ts.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:        "AAPL",
		Side:          model.SideBuy,
		Type:          model.TypeLimit,
		Quantity:      decimal.NewFromInt(10),
		LimitPrice:    decimal.NewFromFloat(150.5),
		ClientOrderID: "c1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.VenueOrderID != "123456" {
		t.Errorf("unexpected venue order id %s", order.VenueOrderID)
	}
	if order.ClientOrderID != "c1" {
		t.Errorf("client order id dropped: %s", order.ClientOrderID)
	}
}

func TestPlaceOrderRejection(t *testing.T) {
	ts := newTestVenue(t, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(orderResponse{Errors: []orderError{{
			OrderID: "",
			Error:   "INSUFFICIENT_FUNDS",
			Message: "account cannot cover order",
		}}})
	}))

	_, err := ts.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:   "AAPL",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: decimal.NewFromInt(10),
	})
	if model.ErrorKindOf(err) != model.KindOrderRejected {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	var grants int64
	var calls int64
	ts := newTestVenue(t, &grants, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(apiError{Error: "Unauthorized", Message: "token expired"})
			return
		}
		json.NewEncoder(w).Encode(balancesResponse{Balances: []balanceDetail{{
			AccountID:   "ACC1",
			CashBalance: "10000",
			BuyingPower: "20000",
		}}})
	}))

	_, err := ts.Balances(context.Background())
	if model.ErrorKindOf(err) != model.KindAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}

	// The 401 dropped the session, so the next call mints a fresh token.
	if _, err := ts.Balances(context.Background()); err != nil {
		t.Fatalf("retry after invalidation failed: %v", err)
	}
	if got := atomic.LoadInt64(&grants); got != 2 {
		t.Errorf("expected 2 token grants, got %d", got)
	}
}

func TestOpenAndClosedOrdersSplitByStatus(t *testing.T) {
	details := []orderDetail{
		{
			OrderID:        "1",
			Status:         "OPN",
			OpenedDateTime: "2026-08-28T14:00:00Z",
			OrderType:      "Limit",
			LimitPrice:     "150",
			Legs:           []orderLeg{{Symbol: "AAPL", BuyOrSell: "Buy", QuantityOrdered: "10", ExecQuantity: "0"}},
		},
		{
			OrderID:        "2",
			Status:         "FLL",
			OpenedDateTime: "2026-08-28T13:00:00Z",
			OrderType:      "Market",
			FilledPrice:    "149.8",
			Legs:           []orderLeg{{Symbol: "AAPL", BuyOrSell: "Sell", QuantityOrdered: "5", ExecQuantity: "5"}},
		},
	}
	ts := newTestVenue(t, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/brokerage/accounts/ACC1/orders", "/brokerage/accounts/ACC1/historicalorders":
			json.NewEncoder(w).Encode(ordersResponse{Orders: details})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	open, err := ts.OpenOrders(context.Background())
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(open) != 1 || open[0].VenueOrderID != "1" {
		t.Errorf("open snapshot wrong: %v", open)
	}
	if open[0].Side != model.SideBuy || open[0].Type != model.TypeLimit {
		t.Errorf("leg fields not converted: %+v", open[0])
	}

	closed, err := ts.ClosedOrders(context.Background())
	if err != nil {
		t.Fatalf("ClosedOrders failed: %v", err)
	}
	if len(closed) != 1 || closed[0].VenueOrderID != "2" {
		t.Errorf("closed snapshot wrong: %v", closed)
	}
	if closed[0].Status != model.StatusFilled {
		t.Errorf("unexpected status %s", closed[0].Status)
	}
	if !closed[0].AvgFillPrice.Equal(decimal.NewFromFloat(149.8)) {
		t.Errorf("fill price not parsed: %s", closed[0].AvgFillPrice)
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   model.ErrorKind
	}{
		{http.StatusUnauthorized, model.KindAuthentication},
		{http.StatusForbidden, model.KindAuthentication},
		{http.StatusTooManyRequests, model.KindRateLimit},
		{http.StatusNotFound, model.KindOrderNotFound},
		{http.StatusBadRequest, model.KindOrderRejected},
		{http.StatusBadGateway, model.KindTransientNetwork},
	}
	for _, tt := range tests {
		ts := newTestVenue(t, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := ts.Positions(context.Background())
		if got := model.ErrorKindOf(err); got != tt.want {
			t.Errorf("status %d classified as %s, want %s", tt.status, got, tt.want)
		}
	}
}

func TestConvertStatusDefaultsToPending(t *testing.T) {
	tests := []struct {
		in   string
		want model.OrderStatus
	}{
		{"ACK", model.StatusOpen},
		{"OPN", model.StatusOpen},
		{"FPR", model.StatusPartiallyFilled},
		{"FLL", model.StatusFilled},
		{"CAN", model.StatusCancelled},
		{"OUT", model.StatusCancelled},
		{"REJ", model.StatusRejected},
		{"EXP", model.StatusExpired},
		{"NEWCODE", model.StatusPending},
	}
	for _, tt := range tests {
		if got := convertStatus(tt.in); got != tt.want {
			t.Errorf("convertStatus(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTickerQuote(t *testing.T) {
	ts := newTestVenue(t, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/marketdata/quotes/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(quotesResponse{Quotes: []quoteDetail{{
			Symbol: "AAPL",
			Bid:    "149.9",
			Ask:    "150.1",
			Last:   "150.0",
			Volume: "123456",
		}}})
	}))

	tk, err := ts.Ticker(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if !tk.Last.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected last %s", tk.Last)
	}
	if !tk.Bid.Equal(decimal.NewFromFloat(149.9)) || !tk.Ask.Equal(decimal.NewFromFloat(150.1)) {
		t.Errorf("quote sides wrong: %s %s", tk.Bid, tk.Ask)
	}
}
