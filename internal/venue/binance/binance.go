package binance

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/model"
	"tradeflow/internal/symbols"
	"tradeflow/internal/venue"
	"tradeflow/logger"
)

const venueName = "binance"

// Binance is the spot adapter built on the official-style go-binance client.
// The venue deduplicates submissions natively through newClientOrderId, so
// the adapter advertises NativeClientOrderID.
type Binance struct {
	client *binance.Client
	table  *symbols.Table
	log    *logger.Entry

	// Binance's order history endpoint is per symbol, so the adapter
	// remembers which symbols it has traded to aggregate ClosedOrders.
	mu     sync.Mutex
	traded map[string]struct{}
}

// New builds the adapter. An empty BaseURL keeps the client's default
// endpoint; tests point it at a local server.
func New(cfg config.BinanceConfig, timeout time.Duration) *Binance {
	binance.UseTestnet = cfg.Testnet
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if timeout > 0 {
		client.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Binance{
		client: client,
		table:  symbols.Binance(),
		log:    logger.GetLogger().WithVenue(venueName),
		traded: make(map[string]struct{}),
	}
}

func (b *Binance) Name() string { return venueName }

func (b *Binance) Capabilities() venue.Capabilities {
	return venue.Capabilities{
		NativeClientOrderID: true,
		MaxLeverage:         model.SpotLeverage,
	}
}

func (b *Binance) Close() error { return nil }

// Connect probes the account endpoint so both reachability and credentials
// are verified in one call.
func (b *Binance) Connect(ctx context.Context) (bool, error) {
	if _, err := b.client.NewGetAccountService().Do(ctx); err != nil {
		return false, b.wrap("connect", err)
	}
	return true, nil
}

func (b *Binance) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(b.table.ToVenue(req.Symbol)).
		Quantity(req.Quantity.String()).
		NewClientOrderID(req.ClientOrderID)

	if req.Side == model.SideBuy {
		svc = svc.Side(binance.SideTypeBuy)
	} else {
		svc = svc.Side(binance.SideTypeSell)
	}

	switch req.Type {
	case model.TypeMarket:
		svc = svc.Type(binance.OrderTypeMarket)
	case model.TypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			Price(req.LimitPrice.String()).
			TimeInForce(convertTIF(req.TimeInForce))
	case model.TypeStop:
		svc = svc.Type(binance.OrderTypeStopLoss).
			StopPrice(req.StopPrice.String())
	case model.TypeStopLimit:
		svc = svc.Type(binance.OrderTypeStopLossLimit).
			StopPrice(req.StopPrice.String()).
			Price(req.LimitPrice.String()).
			TimeInForce(convertTIF(req.TimeInForce))
	default:
		return nil, venue.Unsupported(venueName, "place_order")
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, b.wrap("place_order", err)
	}

	b.mu.Lock()
	b.traded[res.Symbol] = struct{}{}
	b.mu.Unlock()

	now := time.Now()
	order := &model.Order{
		Venue:         venueName,
		VenueOrderID:  strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        convertStatus(res.Status),
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.FilledQuantity, _ = decimal.NewFromString(res.ExecutedQuantity)
	if len(res.Fills) > 0 {
		order.AvgFillPrice = avgFillPrice(res.Fills)
	}
	return order, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	orderID, err := strconv.ParseInt(venueOrderID, 10, 64)
	if err != nil {
		return model.NewVenueError(venueName, "cancel_order", model.KindOrderNotFound, "malformed order id "+venueOrderID, err)
	}
	_, err = b.client.NewCancelOrderService().
		Symbol(b.table.ToVenue(symbol)).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return b.wrap("cancel_order", err)
	}
	return nil
}

func (b *Binance) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	svc := b.client.NewGetOrderService().Symbol(b.table.ToVenue(symbol))
	if venueOrderID != "" {
		orderID, err := strconv.ParseInt(venueOrderID, 10, 64)
		if err != nil {
			return nil, model.NewVenueError(venueName, "get_order", model.KindOrderNotFound, "malformed order id "+venueOrderID, err)
		}
		svc = svc.OrderID(orderID)
	} else {
		svc = svc.OrigClientOrderID(clientOrderID)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, b.wrap("get_order", err)
	}
	order := b.convertOrder(res)
	return &order, nil
}

func (b *Binance) OpenOrders(ctx context.Context) ([]model.Order, error) {
	res, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, b.wrap("open_orders", err)
	}
	orders := make([]model.Order, 0, len(res))
	for _, o := range res {
		orders = append(orders, b.convertOrder(o))
	}
	return orders, nil
}

// ClosedOrders aggregates per-symbol history for every symbol this process
// has traded, keeping only terminal orders.
func (b *Binance) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	b.mu.Lock()
	traded := make([]string, 0, len(b.traded))
	for s := range b.traded {
		traded = append(traded, s)
	}
	b.mu.Unlock()

	var orders []model.Order
	for _, native := range traded {
		res, err := b.client.NewListOrdersService().Symbol(native).Do(ctx)
		if err != nil {
			return nil, b.wrap("closed_orders", err)
		}
		for _, o := range res {
			converted := b.convertOrder(o)
			if converted.Status.Terminal() {
				orders = append(orders, converted)
			}
		}
	}
	return orders, nil
}

// Positions returns nothing; spot holdings surface through Balances.
func (b *Binance) Positions(ctx context.Context) ([]model.Position, error) {
	return nil, nil
}

func (b *Binance) Balances(ctx context.Context) ([]model.Balance, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, b.wrap("balances", err)
	}

	balances := make([]model.Balance, 0, len(account.Balances))
	for _, bal := range account.Balances {
		free, _ := decimal.NewFromString(bal.Free)
		locked, _ := decimal.NewFromString(bal.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		balances = append(balances, model.Balance{
			Currency:  bal.Asset,
			Total:     free.Add(locked),
			Available: free,
			Locked:    locked,
		})
	}
	return balances, nil
}

func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	if leverage.Equal(model.SpotLeverage) {
		return nil
	}
	return venue.Unsupported(venueName, "set_leverage")
}

// LeverageInfo reports the fixed spot profile. The spot account has no margin
// data, so the default is stated rather than computed.
func (b *Binance) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	b.log.WithFields(logger.Fields{"symbol": symbol}).Debug("spot venue, reporting fixed 1x leverage profile")
	return model.SpotLeverageInfo(symbol), nil
}

func (b *Binance) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	res, err := b.client.NewListBookTickersService().
		Symbol(b.table.ToVenue(symbol)).
		Do(ctx)
	if err != nil {
		return nil, b.wrap("ticker", err)
	}
	if len(res) == 0 {
		return nil, model.NewVenueError(venueName, "ticker", model.KindOrderNotFound, "symbol not in response", nil)
	}

	t := &model.Ticker{Venue: venueName, Symbol: symbol, Timestamp: time.Now()}
	t.Bid, _ = decimal.NewFromString(res[0].BidPrice)
	t.Ask, _ = decimal.NewFromString(res[0].AskPrice)
	t.Last = t.Bid
	return t, nil
}

func (b *Binance) convertOrder(o *binance.Order) model.Order {
	order := model.Order{
		Venue:         venueName,
		VenueOrderID:  strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        b.table.ToCanonical(o.Symbol),
		Status:        convertStatus(o.Status),
		CreatedAt:     time.UnixMilli(o.Time),
		UpdatedAt:     time.UnixMilli(o.UpdateTime),
	}

	if o.Side == binance.SideTypeBuy {
		order.Side = model.SideBuy
	} else {
		order.Side = model.SideSell
	}

	switch o.Type {
	case binance.OrderTypeMarket:
		order.Type = model.TypeMarket
	case binance.OrderTypeLimit:
		order.Type = model.TypeLimit
	case binance.OrderTypeStopLoss:
		order.Type = model.TypeStop
	case binance.OrderTypeStopLossLimit:
		order.Type = model.TypeStopLimit
	}

	order.Quantity, _ = decimal.NewFromString(o.OrigQuantity)
	order.FilledQuantity, _ = decimal.NewFromString(o.ExecutedQuantity)
	order.LimitPrice, _ = decimal.NewFromString(o.Price)
	order.StopPrice, _ = decimal.NewFromString(o.StopPrice)
	if order.FilledQuantity.IsPositive() {
		if quote, err := decimal.NewFromString(o.CummulativeQuoteQuantity); err == nil && quote.IsPositive() {
			order.AvgFillPrice = quote.Div(order.FilledQuantity)
		}
	}
	return order
}

// convertStatus maps Binance order states to canonical ones. Unknown states
// map to pending, never to a fill.
func convertStatus(s binance.OrderStatusType) model.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew:
		return model.StatusOpen
	case binance.OrderStatusTypePartiallyFilled:
		return model.StatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return model.StatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel:
		return model.StatusCancelled
	case binance.OrderStatusTypeRejected:
		return model.StatusRejected
	case binance.OrderStatusTypeExpired:
		return model.StatusExpired
	default:
		return model.StatusPending
	}
}

func convertTIF(tif model.TimeInForce) binance.TimeInForceType {
	switch tif {
	case model.TIFImmediateOrCancel:
		return binance.TimeInForceTypeIOC
	case model.TIFFillOrKill:
		return binance.TimeInForceTypeFOK
	default:
		return binance.TimeInForceTypeGTC
	}
}

func avgFillPrice(fills []*binance.Fill) decimal.Decimal {
	totalQty := decimal.Zero
	totalQuote := decimal.Zero
	for _, f := range fills {
		qty, err1 := decimal.NewFromString(f.Quantity)
		price, err2 := decimal.NewFromString(f.Price)
		if err1 != nil || err2 != nil {
			continue
		}
		totalQty = totalQty.Add(qty)
		totalQuote = totalQuote.Add(qty.Mul(price))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalQuote.Div(totalQty)
}

// wrap maps SDK errors onto the error taxonomy using Binance numeric codes.
func (b *Binance) wrap(op string, err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return model.NewVenueError(venueName, op, model.KindTransientNetwork, "", err)
	}

	kind := model.KindConnection
	switch apiErr.Code {
	case -1003, -1015:
		kind = model.KindRateLimit
	case -2014, -2015, -1022:
		kind = model.KindAuthentication
	case -2013:
		kind = model.KindOrderNotFound
	case -2010, -2011, -1013, -1111, -1121:
		kind = model.KindOrderRejected
	case -1001, -1021:
		kind = model.KindTransientNetwork
	default:
		msg := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(msg, "too many requests"):
			kind = model.KindRateLimit
		case strings.Contains(msg, "api-key") || strings.Contains(msg, "signature"):
			kind = model.KindAuthentication
		}
	}
	return model.NewVenueError(venueName, op, kind, apiErr.Message, err).
		WithCode(strconv.FormatInt(apiErr.Code, 10))
}
