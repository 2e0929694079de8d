package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderType string

const (
	TypeMarket    OrderType = "market"
	TypeLimit     OrderType = "limit"
	TypeStop      OrderType = "stop"
	TypeStopLimit OrderType = "stop_limit"
)

type TimeInForce string

const (
	TIFGoodTillCancel    TimeInForce = "gtc"
	TIFImmediateOrCancel TimeInForce = "ioc"
	TIFFillOrKill        TimeInForce = "fok"
	TIFDay               TimeInForce = "day"
)

type MarginType string

const (
	MarginCross    MarginType = "cross"
	MarginIsolated MarginType = "isolated"
	MarginNone     MarginType = "none"
)

// OrderStatus is the canonical lifecycle state. Transitions only ever move
// forward through statusRank; a fill report arriving after a cancel ack must
// not regress the order back to an open state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

var statusRank = map[OrderStatus]int{
	StatusPending:         0,
	StatusOpen:            1,
	StatusPartiallyFilled: 2,
	StatusFilled:          3,
	StatusCancelled:       3,
	StatusRejected:        3,
	StatusExpired:         3,
}

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// OrderRequest is what callers hand to an adapter. Symbol uses the canonical
// BASEQUOTE form; adapters translate to venue notation themselves.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	StopPrice     decimal.Decimal
	TimeInForce   TimeInForce
	ClientOrderID string
	ReduceOnly    bool
}

// EnsureClientOrderID fills ClientOrderID with a fresh UUID when the caller
// did not supply one. Submission retries must reuse the same request value so
// the venue can deduplicate.
func (r *OrderRequest) EnsureClientOrderID() string {
	if r.ClientOrderID == "" {
		r.ClientOrderID = uuid.NewString()
	}
	return r.ClientOrderID
}

// Validate checks the request before it reaches the wire.
func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("order symbol is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("invalid order side %q", r.Side)
	}
	if r.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("order quantity must be positive, got %s", r.Quantity)
	}
	switch r.Type {
	case TypeMarket:
	case TypeLimit:
		if r.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("limit order requires a positive limit price")
		}
	case TypeStop:
		if r.StopPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("stop order requires a positive stop price")
		}
	case TypeStopLimit:
		if r.LimitPrice.LessThanOrEqual(decimal.Zero) || r.StopPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("stop-limit order requires positive limit and stop prices")
		}
	default:
		return fmt.Errorf("invalid order type %q", r.Type)
	}
	return nil
}

// Order is the canonical view of a working or finished order.
type Order struct {
	Venue          string
	VenueOrderID   string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Status         OrderStatus
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	LimitPrice     decimal.Decimal
	StopPrice      decimal.Decimal
	AvgFillPrice   decimal.Decimal
	Fee            decimal.Decimal
	FeeCurrency    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the fill bound on a venue-reported order. A fill outside
// [0, Quantity] means the payload cannot be trusted as canonical state.
func (o *Order) Validate() error {
	if o.FilledQuantity.IsNegative() {
		return fmt.Errorf("negative filled quantity %s", o.FilledQuantity)
	}
	if o.FilledQuantity.GreaterThan(o.Quantity) {
		return fmt.Errorf("filled quantity %s exceeds order quantity %s", o.FilledQuantity, o.Quantity)
	}
	return nil
}

// Advance moves the order to next only when that is a forward transition.
// It returns true when the status changed.
func (o *Order) Advance(next OrderStatus) bool {
	cur, ok := statusRank[o.Status]
	if !ok {
		o.Status = next
		return true
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	if o.Status.Terminal() || nxt < cur || o.Status == next {
		return false
	}
	o.Status = next
	return true
}
