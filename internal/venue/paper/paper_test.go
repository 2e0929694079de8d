package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/model"
)

func testPaper(t *testing.T) *Paper {
	t.Helper()
	p, err := New(config.PaperConfig{
		InitialCash: "10000",
		FillPrices:  map[string]string{"BTCUSD": "50000", "ETHUSD": "2500"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestMarketOrderFillsAndSettles(t *testing.T) {
	p := testPaper(t)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, &model.OrderRequest{
		Symbol:        "ETHUSD",
		Side:          model.SideBuy,
		Type:          model.TypeMarket,
		Quantity:      decimal.NewFromInt(2),
		ClientOrderID: "c1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.Status != model.StatusFilled {
		t.Errorf("market order not filled: %s", order.Status)
	}
	if !order.AvgFillPrice.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("unexpected fill price %s", order.AvgFillPrice)
	}

	balances, _ := p.Balances(ctx)
	if !balances[0].Total.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("cash not debited: %s", balances[0].Total)
	}

	positions, _ := p.Positions(ctx)
	if len(positions) != 1 || !positions[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected positions: %+v", positions)
	}
}

func TestInsufficientCashRejected(t *testing.T) {
	p := testPaper(t)

	_, err := p.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:   "BTCUSD",
		Side:     model.SideBuy,
		Type:     model.TypeMarket,
		Quantity: decimal.NewFromInt(1),
	})
	if model.ErrorKindOf(err) != model.KindOrderRejected {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestLimitOrderLifecycle(t *testing.T) {
	p := testPaper(t)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, &model.OrderRequest{
		Symbol:        "BTCUSD",
		Side:          model.SideBuy,
		Type:          model.TypeLimit,
		Quantity:      decimal.NewFromFloat(0.1),
		LimitPrice:    decimal.NewFromInt(40000),
		ClientOrderID: "lim-1",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.Status != model.StatusOpen {
		t.Fatalf("limit order not open: %s", order.Status)
	}

	open, _ := p.OpenOrders(ctx)
	if len(open) != 1 {
		t.Fatalf("expected 1 open order, got %d", len(open))
	}

	if err := p.CancelOrder(ctx, "BTCUSD", order.VenueOrderID); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}

	got, err := p.GetOrder(ctx, "BTCUSD", order.VenueOrderID, "")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Errorf("cancelled order has status %s", got.Status)
	}

	if err := p.CancelOrder(ctx, "BTCUSD", order.VenueOrderID); model.ErrorKindOf(err) != model.KindOrderNotFound {
		t.Errorf("second cancel should be not-found, got %v", err)
	}
}

func TestDuplicateClientOrderID(t *testing.T) {
	p := testPaper(t)
	ctx := context.Background()

	req := &model.OrderRequest{
		Symbol:        "ETHUSD",
		Side:          model.SideBuy,
		Type:          model.TypeMarket,
		Quantity:      decimal.NewFromInt(1),
		ClientOrderID: "dup",
	}
	first, err := p.PlaceOrder(ctx, req)
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	second, err := p.PlaceOrder(ctx, req)
	if err != nil {
		t.Fatalf("duplicate PlaceOrder failed: %v", err)
	}
	if second.VenueOrderID != first.VenueOrderID {
		t.Errorf("duplicate client id produced a new order")
	}

	balances, _ := p.Balances(ctx)
	if !balances[0].Total.Equal(decimal.NewFromInt(7500)) {
		t.Errorf("duplicate submission settled twice: %s", balances[0].Total)
	}
}

func TestSellWithoutPositionRejected(t *testing.T) {
	p := testPaper(t)

	_, err := p.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:   "ETHUSD",
		Side:     model.SideSell,
		Type:     model.TypeMarket,
		Quantity: decimal.NewFromInt(1),
	})
	if model.ErrorKindOf(err) != model.KindOrderRejected {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestTicker(t *testing.T) {
	p := testPaper(t)

	tk, err := p.Ticker(context.Background(), "BTCUSD")
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if !tk.Last.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("unexpected last price %s", tk.Last)
	}
	if _, err := p.Ticker(context.Background(), "DOGEUSD"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}
