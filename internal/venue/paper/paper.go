package paper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/model"
	"tradeflow/internal/venue"
	"tradeflow/logger"
)

const venueName = "paper"

// Paper is an in-memory venue that fills market orders instantly at a
// configured price and keeps limit orders open. It exists so strategies can
// run end to end without touching a real venue.
type Paper struct {
	log *logger.Entry

	mu      sync.Mutex
	seq     int64
	prices  map[string]decimal.Decimal
	cash    decimal.Decimal
	open    map[string]*model.Order
	closed  []model.Order
	holding map[string]decimal.Decimal
}

// New builds the paper venue from config. Fill prices are keyed by canonical
// symbol.
func New(cfg config.PaperConfig) (*Paper, error) {
	prices := make(map[string]decimal.Decimal, len(cfg.FillPrices))
	for sym, raw := range cfg.FillPrices {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, model.NewVenueError(venueName, "configure", model.KindConnection, "bad fill price for "+sym, err)
		}
		prices[sym] = p
	}

	cash := decimal.NewFromInt(100000)
	if cfg.InitialCash != "" {
		c, err := decimal.NewFromString(cfg.InitialCash)
		if err != nil {
			return nil, model.NewVenueError(venueName, "configure", model.KindConnection, "bad initial cash", err)
		}
		cash = c
	}

	return &Paper{
		log:     logger.GetLogger().WithVenue(venueName),
		prices:  prices,
		cash:    cash,
		open:    make(map[string]*model.Order),
		holding: make(map[string]decimal.Decimal),
	}, nil
}

func (p *Paper) Name() string { return venueName }

func (p *Paper) Capabilities() venue.Capabilities {
	return venue.Capabilities{
		NativeClientOrderID: true,
		MaxLeverage:         model.SpotLeverage,
	}
}

func (p *Paper) Connect(ctx context.Context) (bool, error) { return true, nil }
func (p *Paper) Close() error                              { return nil }

func (p *Paper) nextID() string {
	p.seq++
	return "paper-" + strconv.FormatInt(p.seq, 10)
}

func (p *Paper) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Native client order id behaviour: a duplicate id returns the
	// original order.
	if req.ClientOrderID != "" {
		for _, existing := range p.open {
			if existing.ClientOrderID == req.ClientOrderID {
				o := *existing
				return &o, nil
			}
		}
		for i := range p.closed {
			if p.closed[i].ClientOrderID == req.ClientOrderID {
				o := p.closed[i]
				return &o, nil
			}
		}
	}

	now := time.Now()
	order := &model.Order{
		Venue:         venueName,
		VenueOrderID:  p.nextID(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        model.StatusOpen,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if req.Type == model.TypeMarket {
		price, ok := p.prices[req.Symbol]
		if !ok {
			return nil, model.NewVenueError(venueName, "place_order", model.KindOrderRejected, "no fill price configured for "+req.Symbol, nil)
		}
		cost := price.Mul(req.Quantity)
		if req.Side == model.SideBuy {
			if cost.GreaterThan(p.cash) {
				return nil, model.NewVenueError(venueName, "place_order", model.KindOrderRejected, "insufficient cash", nil)
			}
			p.cash = p.cash.Sub(cost)
			p.holding[req.Symbol] = p.holding[req.Symbol].Add(req.Quantity)
		} else {
			held := p.holding[req.Symbol]
			if req.Quantity.GreaterThan(held) {
				return nil, model.NewVenueError(venueName, "place_order", model.KindOrderRejected, "insufficient position", nil)
			}
			p.cash = p.cash.Add(cost)
			p.holding[req.Symbol] = held.Sub(req.Quantity)
		}
		order.Advance(model.StatusFilled)
		order.FilledQuantity = req.Quantity
		order.AvgFillPrice = price
		p.closed = append(p.closed, *order)
		p.log.WithFields(logger.Fields{
			"symbol":   req.Symbol,
			"side":     req.Side,
			"quantity": req.Quantity.String(),
			"price":    price.String(),
		}).Debug("filled market order")
	} else {
		p.open[order.VenueOrderID] = order
	}

	o := *order
	return &o, nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o, ok := p.open[venueOrderID]; ok {
		o.Advance(model.StatusCancelled)
		o.UpdatedAt = time.Now()
		p.closed = append(p.closed, *o)
		delete(p.open, venueOrderID)
		return nil
	}
	return model.NewVenueError(venueName, "cancel_order", model.KindOrderNotFound, "unknown order "+venueOrderID, nil)
}

func (p *Paper) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range p.open {
		if o.VenueOrderID == venueOrderID || (clientOrderID != "" && o.ClientOrderID == clientOrderID) {
			cp := *o
			return &cp, nil
		}
	}
	for i := range p.closed {
		o := p.closed[i]
		if o.VenueOrderID == venueOrderID || (clientOrderID != "" && o.ClientOrderID == clientOrderID) {
			return &o, nil
		}
	}
	return nil, model.NewVenueError(venueName, "get_order", model.KindOrderNotFound, "unknown order", nil)
}

func (p *Paper) OpenOrders(ctx context.Context) ([]model.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	orders := make([]model.Order, 0, len(p.open))
	for _, o := range p.open {
		orders = append(orders, *o)
	}
	return orders, nil
}

func (p *Paper) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Order(nil), p.closed...), nil
}

func (p *Paper) Positions(ctx context.Context) ([]model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make([]model.Position, 0, len(p.holding))
	for sym, qty := range p.holding {
		if qty.IsZero() {
			continue
		}
		positions = append(positions, model.Position{
			Venue:      venueName,
			Symbol:     sym,
			Side:       model.SideBuy,
			Quantity:   qty,
			MarkPrice:  p.prices[sym],
			EntryPrice: p.prices[sym],
			Leverage:   model.SpotLeverage,
			UpdatedAt:  time.Now(),
		})
	}
	return positions, nil
}

func (p *Paper) Balances(ctx context.Context) ([]model.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return []model.Balance{{
		Currency:  "USD",
		Total:     p.cash,
		Available: p.cash,
	}}, nil
}

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	if leverage.Equal(model.SpotLeverage) {
		return nil
	}
	return venue.Unsupported(venueName, "set_leverage")
}

func (p *Paper) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	return model.SpotLeverageInfo(symbol), nil
}

func (p *Paper) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	p.mu.Lock()
	price, ok := p.prices[symbol]
	p.mu.Unlock()
	if !ok {
		return nil, model.NewVenueError(venueName, "ticker", model.KindOrderNotFound, "no price for "+symbol, nil)
	}
	return &model.Ticker{
		Venue:     venueName,
		Symbol:    symbol,
		Bid:       price,
		Ask:       price,
		Last:      price,
		Timestamp: time.Now(),
	}, nil
}
