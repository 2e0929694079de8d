package venue

import (
	"context"

	"github.com/shopspring/decimal"

	"tradeflow/internal/model"
)

// Capabilities declares what a venue adapter supports. Callers check the
// contract instead of probing operations and catching unsupported errors.
type Capabilities struct {
	// Derivatives is true for venues trading futures or swaps. Spot-only
	// venues report leverage 1 and reject SetLeverage above it.
	Derivatives bool
	// NativeClientOrderID is true when the venue deduplicates submissions
	// by a caller supplied order id. Venues without it get idempotency
	// from the facade's submission cache.
	NativeClientOrderID bool
	// Leverage is true when SetLeverage is supported at all.
	Leverage bool
	// MaxLeverage is the largest leverage the venue accepts.
	MaxLeverage decimal.Decimal
	// Shorting is true when sells may open a short position.
	Shorting bool
	// ReduceOnly is true when the venue honors reduce-only flags.
	ReduceOnly bool
	// Streaming is true when the adapter can serve tickers from a live
	// market data stream.
	Streaming bool
}

// Venue is the contract every adapter implements. Symbols are canonical
// BASEQUOTE form on the way in and out; adapters own the translation.
// All blocking operations honor their context.
type Venue interface {
	Name() string
	Capabilities() Capabilities

	// Connect verifies credentials with an authenticated probe and
	// reports whether the session is usable.
	Connect(ctx context.Context) (bool, error)

	PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, symbol, venueOrderID string) error
	GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error)
	OpenOrders(ctx context.Context) ([]model.Order, error)
	ClosedOrders(ctx context.Context) ([]model.Order, error)

	Positions(ctx context.Context) ([]model.Position, error)
	Balances(ctx context.Context) ([]model.Balance, error)
	SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error
	LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error)
	Ticker(ctx context.Context, symbol string) (*model.Ticker, error)

	Close() error
}

// Unsupported builds the error adapters return for operations outside their
// capability contract.
func Unsupported(venue, op string) error {
	return model.NewVenueError(venue, op, model.KindUnsupported, "operation not supported by venue", nil)
}

// CheckLeverage validates a requested leverage against the capabilities.
// Requests beyond the venue maximum are rejected rather than clamped so the
// caller's risk math never silently diverges from the venue's.
func CheckLeverage(name string, caps Capabilities, leverage decimal.Decimal) error {
	if !caps.Leverage {
		if leverage.Equal(model.SpotLeverage) {
			return nil
		}
		return Unsupported(name, "set_leverage")
	}
	if leverage.LessThan(model.SpotLeverage) {
		return model.NewVenueError(name, "set_leverage", model.KindOrderRejected, "leverage below 1", nil)
	}
	if caps.MaxLeverage.IsPositive() && leverage.GreaterThan(caps.MaxLeverage) {
		return model.NewVenueError(name, "set_leverage", model.KindOrderRejected,
			"requested leverage exceeds venue maximum "+caps.MaxLeverage.String(), nil)
	}
	return nil
}
