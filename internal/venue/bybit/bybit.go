package bybit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	bybit_connector "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/model"
	"tradeflow/internal/symbols"
	"tradeflow/internal/venue"
	"tradeflow/logger"
)

const (
	venueName = "bybit"
	category  = "linear"
)

// leverage not modified; the requested value already matches.
const retCodeLeverageUnchanged = 110043

// Bybit is the linear perpetuals adapter for the v5 unified trading API.
// Submissions carry orderLinkId, Bybit's native client order id.
type Bybit struct {
	client *bybit_connector.Client
	table  *symbols.Table
	log    *logger.Entry
	stream *tickerStream
}

// New builds the adapter. StreamURL enables the live ticker stream; when it
// is empty Ticker falls back to REST.
func New(cfg config.BybitConfig) *Bybit {
	opts := []bybit_connector.ClientOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, bybit_connector.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	b := &Bybit{
		client: bybit_connector.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, opts...),
		table:  symbols.Bybit(),
		log:    logger.GetLogger().WithVenue(venueName),
	}
	if cfg.StreamURL != "" {
		b.stream = newTickerStream(cfg.StreamURL)
	}
	return b
}

func (b *Bybit) Name() string { return venueName }

func (b *Bybit) Capabilities() venue.Capabilities {
	return venue.Capabilities{
		Derivatives:         true,
		NativeClientOrderID: true,
		Leverage:            true,
		MaxLeverage:         decimal.NewFromInt(100),
		Shorting:            true,
		ReduceOnly:          true,
		Streaming:           b.stream != nil,
	}
}

func (b *Bybit) Close() error {
	if b.stream != nil {
		b.stream.Stop()
	}
	return nil
}

// Connect probes the wallet endpoint and starts the ticker stream.
func (b *Bybit) Connect(ctx context.Context) (bool, error) {
	if _, err := b.Balances(ctx); err != nil {
		return false, err
	}
	if b.stream != nil {
		if err := b.stream.Start(ctx); err != nil {
			// Stream is an optimization; REST still serves tickers.
			b.log.WithError(err).Warn("ticker stream unavailable, using REST fallback")
		}
	}
	return true, nil
}

func (b *Bybit) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	params := map[string]interface{}{
		"category":    category,
		"symbol":      b.table.ToVenue(req.Symbol),
		"qty":         req.Quantity.String(),
		"orderLinkId": req.ClientOrderID,
	}
	if req.Side == model.SideBuy {
		params["side"] = "Buy"
	} else {
		params["side"] = "Sell"
	}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}

	switch req.Type {
	case model.TypeMarket:
		params["orderType"] = "Market"
	case model.TypeLimit:
		params["orderType"] = "Limit"
		params["price"] = req.LimitPrice.String()
		params["timeInForce"] = convertTIF(req.TimeInForce)
	case model.TypeStop:
		params["orderType"] = "Market"
		params["triggerPrice"] = req.StopPrice.String()
	case model.TypeStopLimit:
		params["orderType"] = "Limit"
		params["price"] = req.LimitPrice.String()
		params["triggerPrice"] = req.StopPrice.String()
		params["timeInForce"] = convertTIF(req.TimeInForce)
	default:
		return nil, venue.Unsupported(venueName, "place_order")
	}

	res, err := b.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "place_order", model.KindTransientNetwork, "", err)
	}
	var ack orderAckResult
	if err := b.decode("place_order", res, &ack); err != nil {
		return nil, err
	}

	now := time.Now()
	return &model.Order{
		Venue:         venueName,
		VenueOrderID:  ack.OrderID,
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
	}, nil
}

func (b *Bybit) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	params := map[string]interface{}{
		"category": category,
		"symbol":   b.table.ToVenue(symbol),
		"orderId":  venueOrderID,
	}
	res, err := b.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return model.NewVenueError(venueName, "cancel_order", model.KindTransientNetwork, "", err)
	}
	return b.decode("cancel_order", res, nil)
}

// GetOrder queries the realtime endpoint first; orders that have left the
// realtime window are served from history.
func (b *Bybit) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	params := map[string]interface{}{"category": category}
	if symbol != "" {
		params["symbol"] = b.table.ToVenue(symbol)
	}
	if venueOrderID != "" {
		params["orderId"] = venueOrderID
	} else if clientOrderID != "" {
		params["orderLinkId"] = clientOrderID
	}

	res, err := b.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "get_order", model.KindTransientNetwork, "", err)
	}
	var open orderListResult
	if err := b.decode("get_order", res, &open); err != nil {
		return nil, err
	}
	if len(open.List) > 0 {
		o := b.convertOrder(open.List[0])
		return &o, nil
	}

	res, err = b.client.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "get_order", model.KindTransientNetwork, "", err)
	}
	var hist orderListResult
	if err := b.decode("get_order", res, &hist); err != nil {
		return nil, err
	}
	if len(hist.List) > 0 {
		o := b.convertOrder(hist.List[0])
		return &o, nil
	}
	return nil, model.NewVenueError(venueName, "get_order", model.KindOrderNotFound, "order not in realtime or history", nil)
}

func (b *Bybit) OpenOrders(ctx context.Context) ([]model.Order, error) {
	params := map[string]interface{}{"category": category, "settleCoin": "USDT"}
	res, err := b.client.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "open_orders", model.KindTransientNetwork, "", err)
	}
	var result orderListResult
	if err := b.decode("open_orders", res, &result); err != nil {
		return nil, err
	}
	return b.convertOrders(result.List), nil
}

func (b *Bybit) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	params := map[string]interface{}{"category": category}
	res, err := b.client.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "closed_orders", model.KindTransientNetwork, "", err)
	}
	var result orderListResult
	if err := b.decode("closed_orders", res, &result); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(result.List))
	for _, e := range result.List {
		o := b.convertOrder(e)
		if o.Status.Terminal() {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (b *Bybit) Positions(ctx context.Context) ([]model.Position, error) {
	params := map[string]interface{}{"category": category, "settleCoin": "USDT"}
	res, err := b.client.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "positions", model.KindTransientNetwork, "", err)
	}
	var result positionListResult
	if err := b.decode("positions", res, &result); err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(result.List))
	for _, e := range result.List {
		size, _ := decimal.NewFromString(e.Size)
		if size.IsZero() {
			continue
		}
		p := model.Position{
			Venue:      venueName,
			Symbol:     b.table.ToCanonical(e.Symbol),
			Quantity:   size,
			MarginType: model.MarginCross,
			UpdatedAt:  time.Now(),
		}
		if e.Side == "Buy" {
			p.Side = model.SideBuy
		} else {
			p.Side = model.SideSell
		}
		if e.TradeMode == 1 {
			p.MarginType = model.MarginIsolated
		}
		p.EntryPrice, _ = decimal.NewFromString(e.AvgPrice)
		p.MarkPrice, _ = decimal.NewFromString(e.MarkPrice)
		p.UnrealizedPnl, _ = decimal.NewFromString(e.UnrealisedPnl)
		p.Leverage, _ = decimal.NewFromString(e.Leverage)
		positions = append(positions, p)
	}
	return positions, nil
}

func (b *Bybit) Balances(ctx context.Context) ([]model.Balance, error) {
	params := map[string]interface{}{"accountType": "UNIFIED"}
	res, err := b.client.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "balances", model.KindTransientNetwork, "", err)
	}
	var result walletResult
	if err := b.decode("balances", res, &result); err != nil {
		return nil, err
	}

	var balances []model.Balance
	for _, account := range result.List {
		for _, coin := range account.Coin {
			total, _ := decimal.NewFromString(coin.WalletBalance)
			locked, _ := decimal.NewFromString(coin.Locked)
			if total.IsZero() {
				continue
			}
			balances = append(balances, model.Balance{
				Currency:  coin.Coin,
				Total:     total,
				Available: total.Sub(locked),
				Locked:    locked,
			})
		}
	}
	return balances, nil
}

func (b *Bybit) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	params := map[string]interface{}{
		"category":     category,
		"symbol":       b.table.ToVenue(symbol),
		"buyLeverage":  leverage.String(),
		"sellLeverage": leverage.String(),
	}
	res, err := b.client.NewUtaBybitServiceWithParams(params).SetPositionLeverage(ctx)
	if err != nil {
		return model.NewVenueError(venueName, "set_leverage", model.KindTransientNetwork, "", err)
	}
	if res != nil && res.RetCode == retCodeLeverageUnchanged {
		return nil
	}
	return b.decode("set_leverage", res, nil)
}

// LeverageInfo builds the margin profile from the position list. Bybit's
// position payload carries no equity figure, so the health ratio stays at the
// conservative default and the gap is logged.
func (b *Bybit) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	params := map[string]interface{}{"category": category, "symbol": b.table.ToVenue(symbol)}
	res, err := b.client.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "leverage_info", model.KindTransientNetwork, "", err)
	}
	var result positionListResult
	if err := b.decode("leverage_info", res, &result); err != nil {
		return nil, err
	}

	info := &model.LeverageInfo{
		Symbol:      symbol,
		Current:     model.SpotLeverage,
		Max:         b.Capabilities().MaxLeverage,
		MarginType:  model.MarginCross,
		HealthRatio: decimal.NewFromInt(1),
	}
	if len(result.List) > 0 {
		e := result.List[0]
		if lev, err := decimal.NewFromString(e.Leverage); err == nil && lev.IsPositive() {
			info.Current = lev
		}
		if e.TradeMode == 1 {
			info.MarginType = model.MarginIsolated
		}
		info.Collateral, _ = decimal.NewFromString(e.PositionIM)
		if liq, err := decimal.NewFromString(e.LiqPrice); err == nil && liq.IsPositive() {
			info.LiquidationPrice = &liq
		}
	}
	b.log.WithFields(logger.Fields{"symbol": symbol}).Warn("health ratio computation not implemented for bybit, reporting conservative default")
	return info, nil
}

func (b *Bybit) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	native := b.table.ToVenue(symbol)

	if b.stream != nil {
		if t, ok := b.stream.Latest(native); ok {
			t.Symbol = symbol
			return t, nil
		}
	}

	params := map[string]interface{}{"category": category, "symbol": native}
	res, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, model.NewVenueError(venueName, "ticker", model.KindTransientNetwork, "", err)
	}
	var result tickerListResult
	if err := b.decode("ticker", res, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, model.NewVenueError(venueName, "ticker", model.KindOrderNotFound, "symbol not in response", nil)
	}
	t := convertTicker(result.List[0])
	t.Symbol = symbol
	return t, nil
}

// decode checks the response code and unmarshals the generic Result payload.
func (b *Bybit) decode(op string, res *bybit_connector.ServerResponse, out interface{}) error {
	if res == nil {
		return model.NewVenueError(venueName, op, model.KindConnection, "empty response", nil)
	}
	if res.RetCode != 0 {
		return classify(op, res.RetCode, res.RetMsg)
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res.Result)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindConnection, "unencodable result payload", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return model.NewVenueError(venueName, op, model.KindConnection, "malformed result payload", err)
	}
	return nil
}

// classify maps v5 retCodes onto the error taxonomy.
func classify(op string, code int, msg string) error {
	kind := model.KindConnection
	switch code {
	case 10003, 10004, 10005, 33004:
		kind = model.KindAuthentication
	case 10006, 10018:
		kind = model.KindRateLimit
	case 110001:
		kind = model.KindOrderNotFound
	case 10001, 110004, 110007, 110012, 110017:
		kind = model.KindOrderRejected
	case 10002, 10016:
		kind = model.KindTransientNetwork
	default:
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "too many visits"), strings.Contains(lower, "rate limit"):
			kind = model.KindRateLimit
		case strings.Contains(lower, "api key"), strings.Contains(lower, "signature"):
			kind = model.KindAuthentication
		}
	}
	return model.NewVenueError(venueName, op, kind, msg, nil).WithCode(strconv.Itoa(code))
}

func (b *Bybit) convertOrders(entries []orderEntry) []model.Order {
	orders := make([]model.Order, 0, len(entries))
	for _, e := range entries {
		orders = append(orders, b.convertOrder(e))
	}
	return orders
}

func (b *Bybit) convertOrder(e orderEntry) model.Order {
	o := model.Order{
		Venue:         venueName,
		VenueOrderID:  e.OrderID,
		ClientOrderID: e.OrderLinkID,
		Symbol:        b.table.ToCanonical(e.Symbol),
		Status:        convertStatus(e.OrderStatus),
	}
	if e.Side == "Buy" {
		o.Side = model.SideBuy
	} else {
		o.Side = model.SideSell
	}
	if e.OrderType == "Market" {
		o.Type = model.TypeMarket
	} else {
		o.Type = model.TypeLimit
	}
	if e.TriggerPrice != "" && e.TriggerPrice != "0" {
		o.StopPrice, _ = decimal.NewFromString(e.TriggerPrice)
		if o.Type == model.TypeMarket {
			o.Type = model.TypeStop
		} else {
			o.Type = model.TypeStopLimit
		}
	}
	o.Quantity, _ = decimal.NewFromString(e.Qty)
	o.FilledQuantity, _ = decimal.NewFromString(e.CumExecQty)
	o.LimitPrice, _ = decimal.NewFromString(e.Price)
	o.AvgFillPrice, _ = decimal.NewFromString(e.AvgPrice)
	o.Fee, _ = decimal.NewFromString(e.CumExecFee)
	o.FeeCurrency = "USDT"
	if ms, err := strconv.ParseInt(e.CreatedTime, 10, 64); err == nil {
		o.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(e.UpdatedTime, 10, 64); err == nil {
		o.UpdatedAt = time.UnixMilli(ms)
	}
	return o
}

// convertStatus maps v5 order states to canonical ones. Unknown states map
// to pending, never to a fill.
func convertStatus(s string) model.OrderStatus {
	switch s {
	case "New", "Untriggered", "Triggered":
		return model.StatusOpen
	case "PartiallyFilled":
		return model.StatusPartiallyFilled
	case "Filled":
		return model.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return model.StatusCancelled
	case "Rejected":
		return model.StatusRejected
	case "Expired":
		return model.StatusExpired
	default:
		return model.StatusPending
	}
}

func convertTIF(tif model.TimeInForce) string {
	switch tif {
	case model.TIFImmediateOrCancel:
		return "IOC"
	case model.TIFFillOrKill:
		return "FOK"
	default:
		return "GTC"
	}
}

func convertTicker(e tickerEntry) *model.Ticker {
	t := &model.Ticker{Venue: venueName, Timestamp: time.Now()}
	t.Bid, _ = decimal.NewFromString(e.Bid1Price)
	t.Ask, _ = decimal.NewFromString(e.Ask1Price)
	t.Last, _ = decimal.NewFromString(e.LastPrice)
	t.Volume24h, _ = decimal.NewFromString(e.Volume24h)
	return t
}
