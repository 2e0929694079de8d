package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderRequestValidate(t *testing.T) {
	base := OrderRequest{
		Symbol:   "BTCUSD",
		Side:     SideBuy,
		Type:     TypeMarket,
		Quantity: decimal.NewFromFloat(0.5),
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid market order rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*OrderRequest)
	}{
		{"empty symbol", func(r *OrderRequest) { r.Symbol = "" }},
		{"bad side", func(r *OrderRequest) { r.Side = "hold" }},
		{"zero quantity", func(r *OrderRequest) { r.Quantity = decimal.Zero }},
		{"negative quantity", func(r *OrderRequest) { r.Quantity = decimal.NewFromInt(-1) }},
		{"limit without price", func(r *OrderRequest) { r.Type = TypeLimit }},
		{"stop without trigger", func(r *OrderRequest) { r.Type = TypeStop }},
		{"unknown type", func(r *OrderRequest) { r.Type = "trailing" }},
	}
	for _, c := range cases {
		r := base
		c.mutate(&r)
		if err := r.Validate(); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestEnsureClientOrderID(t *testing.T) {
	r := OrderRequest{}
	id := r.EnsureClientOrderID()
	if id == "" {
		t.Fatal("expected generated client order id")
	}
	if got := r.EnsureClientOrderID(); got != id {
		t.Errorf("second call regenerated the id: %s != %s", got, id)
	}

	r2 := OrderRequest{ClientOrderID: "caller-id"}
	if got := r2.EnsureClientOrderID(); got != "caller-id" {
		t.Errorf("caller id overwritten: %s", got)
	}
}

func TestOrderAdvanceMonotonic(t *testing.T) {
	o := Order{Status: StatusPending}

	if !o.Advance(StatusOpen) {
		t.Fatal("pending -> open should advance")
	}
	if !o.Advance(StatusPartiallyFilled) {
		t.Fatal("open -> partially_filled should advance")
	}
	if !o.Advance(StatusFilled) {
		t.Fatal("partially_filled -> filled should advance")
	}

	// Terminal states never move again, even sideways.
	if o.Advance(StatusCancelled) {
		t.Error("filled order advanced to cancelled")
	}
	if o.Advance(StatusOpen) {
		t.Error("filled order regressed to open")
	}
	if o.Status != StatusFilled {
		t.Errorf("status changed after terminal: %s", o.Status)
	}
}

func TestOrderAdvanceRejectsRegression(t *testing.T) {
	o := Order{Status: StatusPartiallyFilled}
	if o.Advance(StatusOpen) {
		t.Error("partially_filled regressed to open")
	}
	if o.Advance(StatusPending) {
		t.Error("partially_filled regressed to pending")
	}
	if !o.Advance(StatusCancelled) {
		t.Error("partially_filled -> cancelled should advance")
	}
}

func TestOrderValidateFillBounds(t *testing.T) {
	o := Order{
		Quantity:       decimal.NewFromFloat(1.5),
		FilledQuantity: decimal.NewFromFloat(1.5),
	}
	if err := o.Validate(); err != nil {
		t.Errorf("full fill rejected: %v", err)
	}

	o.FilledQuantity = decimal.Zero
	if err := o.Validate(); err != nil {
		t.Errorf("unfilled order rejected: %v", err)
	}

	o.FilledQuantity = decimal.NewFromFloat(1.6)
	if err := o.Validate(); err == nil {
		t.Error("fill above order quantity accepted")
	}

	o.FilledQuantity = decimal.NewFromFloat(-0.1)
	if err := o.Validate(); err == nil {
		t.Error("negative fill accepted")
	}
}

func TestVenueErrorRetryable(t *testing.T) {
	retryable := []ErrorKind{KindRateLimit, KindTransientNetwork}
	fatal := []ErrorKind{KindConnection, KindAuthentication, KindOrderRejected, KindOrderNotFound, KindUnsupported}

	for _, k := range retryable {
		e := NewVenueError("kraken", "place_order", k, "boom", nil)
		if !e.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range fatal {
		e := NewVenueError("kraken", "place_order", k, "boom", nil)
		if e.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestVenueErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	e := NewVenueError("okx", "get_order", KindTransientNetwork, "", cause)
	if !errors.Is(e, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if e.Msg != "connection reset" {
		t.Errorf("empty msg should inherit cause text, got %q", e.Msg)
	}
	if ErrorKindOf(e) != KindTransientNetwork {
		t.Errorf("unexpected kind: %s", ErrorKindOf(e))
	}
	if ErrorKindOf(cause) != KindConnection {
		t.Errorf("plain errors should default to connection kind")
	}
}
