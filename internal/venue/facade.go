package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/govern"
	"tradeflow/internal/metrics"
	"tradeflow/internal/model"
	"tradeflow/logger"
)

// Facade wraps an adapter with the cross-venue execution policies: traffic
// governing, retry with backoff, idempotent submission and metrics. It
// implements Venue itself so callers never talk to a raw adapter.
type Facade struct {
	inner    Venue
	governor *govern.Governor
	retry    config.RetryConfig
	cache    *submissionCache
	log      *logger.Entry
}

// Wrap builds the facade for an adapter.
func Wrap(inner Venue, limits config.VenueLimits, exec config.ExecutionConfig) *Facade {
	return &Facade{
		inner:    inner,
		governor: govern.New(inner.Name(), limits),
		retry:    exec.Retry,
		cache:    newSubmissionCache(exec.IdempotencyTTL),
		log:      logger.GetLogger().WithVenue(inner.Name()).WithComponent("facade"),
	}
}

func (f *Facade) Name() string               { return f.inner.Name() }
func (f *Facade) Capabilities() Capabilities { return f.inner.Capabilities() }
func (f *Facade) Close() error               { return f.inner.Close() }

func (f *Facade) Connect(ctx context.Context) (bool, error) {
	var ok bool
	err := f.do(ctx, "connect", "", func() error {
		var err error
		ok, err = f.inner.Connect(ctx)
		return err
	})
	return ok, err
}

// PlaceOrder submits the request at most once per client order id. A repeat
// call with the same id returns the cached acknowledgement; venues with
// native client order id support additionally deduplicate on their side, so
// a retry that raced a successful first attempt still cannot double-fill.
func (f *Facade) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, model.NewVenueError(f.Name(), "place_order", model.KindOrderRejected, err.Error(), err)
	}
	clientOrderID := req.EnsureClientOrderID()

	if cached, ok := f.cache.Get(clientOrderID); ok {
		f.log.WithFields(logger.Fields{"client_order_id": clientOrderID}).Info("returning cached submission")
		return cached, nil
	}

	var order *model.Order
	err := f.do(ctx, "place_order", req.Symbol, func() error {
		var err error
		order, err = f.inner.PlaceOrder(ctx, req)
		return err
	})
	if err != nil {
		if !model.IsRetryable(err) {
			metrics.ReportOrderFailed(logger.GetLogger(), f.Name(), req.Symbol, string(model.ErrorKindOf(err)))
		}
		return nil, err
	}
	if verr := f.checkOrder("place_order", order); verr != nil {
		return nil, verr
	}

	f.cache.Put(clientOrderID, order)
	metrics.ReportOrderPlaced(logger.GetLogger(), f.Name(), req.Symbol)
	return order, nil
}

func (f *Facade) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	err := f.do(ctx, "cancel_order", symbol, func() error {
		return f.inner.CancelOrder(ctx, symbol, venueOrderID)
	})
	if err != nil {
		return err
	}
	metrics.ReportOrderCancelled(logger.GetLogger(), f.Name(), symbol)
	return nil
}

func (f *Facade) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	var order *model.Order
	err := f.do(ctx, "get_order", symbol, func() error {
		var err error
		order, err = f.inner.GetOrder(ctx, symbol, venueOrderID, clientOrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if verr := f.checkOrder("get_order", order); verr != nil {
		return nil, verr
	}
	return order, nil
}

func (f *Facade) OpenOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := f.do(ctx, "open_orders", "", func() error {
		var err error
		orders, err = f.inner.OpenOrders(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if verr := f.checkOrder("open_orders", &orders[i]); verr != nil {
			return nil, verr
		}
	}
	return orders, nil
}

func (f *Facade) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := f.do(ctx, "closed_orders", "", func() error {
		var err error
		orders, err = f.inner.ClosedOrders(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if verr := f.checkOrder("closed_orders", &orders[i]); verr != nil {
			return nil, verr
		}
	}
	return orders, nil
}

func (f *Facade) Positions(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := f.do(ctx, "positions", "", func() error {
		var err error
		positions, err = f.inner.Positions(ctx)
		return err
	})
	return positions, err
}

func (f *Facade) Balances(ctx context.Context) ([]model.Balance, error) {
	var balances []model.Balance
	err := f.do(ctx, "balances", "", func() error {
		var err error
		balances, err = f.inner.Balances(ctx)
		return err
	})
	return balances, err
}

func (f *Facade) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	if err := CheckLeverage(f.Name(), f.Capabilities(), leverage); err != nil {
		return err
	}
	return f.do(ctx, "set_leverage", symbol, func() error {
		return f.inner.SetLeverage(ctx, symbol, leverage, margin)
	})
}

func (f *Facade) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	var info *model.LeverageInfo
	err := f.do(ctx, "leverage_info", symbol, func() error {
		var err error
		info, err = f.inner.LeverageInfo(ctx, symbol)
		return err
	})
	return info, err
}

func (f *Facade) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	var ticker *model.Ticker
	err := f.do(ctx, "ticker", symbol, func() error {
		var err error
		ticker, err = f.inner.Ticker(ctx, symbol)
		return err
	})
	return ticker, err
}

// checkOrder guards the canonical fill invariant on orders coming back from
// the adapter. Violations surface as connection errors so the caller never
// sees an impossible order as authoritative state.
func (f *Facade) checkOrder(op string, o *model.Order) error {
	if o == nil {
		return nil
	}
	if err := o.Validate(); err != nil {
		return model.NewVenueError(f.Name(), op, model.KindConnection, err.Error(), err)
	}
	return nil
}

// do applies the governor and retry policy around a single adapter call.
// Each retry attempt re-acquires its own traffic slot so backoff time is not
// spent holding capacity.
func (f *Facade) do(ctx context.Context, op, symbol string, fn func() error) error {
	return WithRetry(ctx, f.retry, f.log, f.Name(), op, func() error {
		release, err := f.governor.Acquire(ctx, symbol)
		if err != nil {
			return err
		}
		defer release()

		start := time.Now()
		err = fn()
		logger.LogPerformanceEntry(f.log, "facade", op, time.Since(start), logger.Fields{"symbol": symbol})

		if err != nil {
			if model.ErrorKindOf(err) == model.KindRateLimit {
				metrics.ReportRateLimitExceeded(logger.GetLogger(), f.Name(), symbol, op)
			} else {
				// Venues sometimes throttle under a generic error code; the
				// message wording still identifies those.
				metrics.ReportThrottleFromMessage(logger.GetLogger(), f.Name(), symbol, op, err.Error())
			}
		}
		return err
	})
}
