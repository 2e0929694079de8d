package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	okex "github.com/tfxq/okx-go-sdk"
	"github.com/tfxq/okx-go-sdk/api/rest"

	"tradeflow/config"
	"tradeflow/internal/model"
	"tradeflow/internal/symbols"
	"tradeflow/internal/venue"
	"tradeflow/logger"
)

const venueName = "okx"

// Okx is the perpetual swap adapter for OKX's v5 API. Submissions carry
// clOrdId, OKX's native client order id, and OKX has a direct order lookup so
// GetOrder never needs snapshot reconciliation.
type Okx struct {
	client *rest.ClientRest
	table  *symbols.Table
	log    *logger.Entry
	margin model.MarginType
}

// New builds the adapter. Simulated selects OKX's demo trading server.
func New(cfg config.OkxConfig) *Okx {
	base := okex.RestURL
	if cfg.BaseURL != "" {
		base = okex.BaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	}
	server := okex.NormalServer
	if cfg.Simulated {
		server = okex.DemoServer
	}

	return &Okx{
		client: rest.NewClient(cfg.APIKey, cfg.APISecret, cfg.Passphrase, base, server),
		table:  symbols.Okx(),
		log:    logger.GetLogger().WithVenue(venueName),
		margin: model.MarginCross,
	}
}

func (o *Okx) Name() string { return venueName }

func (o *Okx) Capabilities() venue.Capabilities {
	return venue.Capabilities{
		Derivatives:         true,
		NativeClientOrderID: true,
		Leverage:            true,
		MaxLeverage:         decimal.NewFromInt(125),
		Shorting:            true,
		ReduceOnly:          true,
	}
}

func (o *Okx) Close() error { return nil }

// Connect probes the balance endpoint as an authenticated check.
func (o *Okx) Connect(ctx context.Context) (bool, error) {
	if _, err := o.Balances(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Okx) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	params := map[string]string{
		"instId":  o.table.ToVenue(req.Symbol),
		"tdMode":  string(o.margin),
		"side":    string(req.Side),
		"sz":      req.Quantity.String(),
		"clOrdId": sanitizeClOrdID(req.ClientOrderID),
	}
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}

	switch req.Type {
	case model.TypeMarket:
		params["ordType"] = "market"
	case model.TypeLimit:
		params["ordType"] = "limit"
		params["px"] = req.LimitPrice.String()
		if req.TimeInForce == model.TIFImmediateOrCancel {
			params["ordType"] = "ioc"
		} else if req.TimeInForce == model.TIFFillOrKill {
			params["ordType"] = "fok"
		}
	default:
		// Trigger orders go through the separate algo endpoint, which
		// this adapter does not expose.
		return nil, venue.Unsupported(venueName, "place_order")
	}

	var resp orderAckResponse
	if err := o.call(ctx, http.MethodPost, "/api/v5/trade/order", true, params, &resp, "place_order"); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, model.NewVenueError(venueName, "place_order", model.KindConnection, "empty ack", nil)
	}
	ack := resp.Data[0]
	if ack.SCode != "" && ack.SCode != "0" {
		return nil, classify("place_order", ack.SCode, ack.SMsg)
	}

	now := time.Now()
	return &model.Order{
		Venue:         venueName,
		VenueOrderID:  ack.OrdID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        model.StatusOpen,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (o *Okx) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	params := map[string]string{
		"instId": o.table.ToVenue(symbol),
		"ordId":  venueOrderID,
	}
	var resp orderAckResponse
	if err := o.call(ctx, http.MethodPost, "/api/v5/trade/cancel-order", true, params, &resp, "cancel_order"); err != nil {
		return err
	}
	if len(resp.Data) > 0 {
		if ack := resp.Data[0]; ack.SCode != "" && ack.SCode != "0" {
			return classify("cancel_order", ack.SCode, ack.SMsg)
		}
	}
	return nil
}

func (o *Okx) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	params := map[string]string{"instId": o.table.ToVenue(symbol)}
	if venueOrderID != "" {
		params["ordId"] = venueOrderID
	} else {
		params["clOrdId"] = sanitizeClOrdID(clientOrderID)
	}

	var resp orderListResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/trade/order", true, params, &resp, "get_order"); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, model.NewVenueError(venueName, "get_order", model.KindOrderNotFound, "order not found", nil)
	}
	order := o.convertOrder(resp.Data[0])
	return &order, nil
}

func (o *Okx) OpenOrders(ctx context.Context) ([]model.Order, error) {
	params := map[string]string{"instType": "SWAP"}
	var resp orderListResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/trade/orders-pending", true, params, &resp, "open_orders"); err != nil {
		return nil, err
	}
	return o.convertOrders(resp.Data), nil
}

func (o *Okx) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	params := map[string]string{"instType": "SWAP"}
	var resp orderListResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/trade/orders-history", true, params, &resp, "closed_orders"); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(resp.Data))
	for _, d := range resp.Data {
		converted := o.convertOrder(d)
		if converted.Status.Terminal() {
			orders = append(orders, converted)
		}
	}
	return orders, nil
}

func (o *Okx) Positions(ctx context.Context) ([]model.Position, error) {
	params := map[string]string{"instType": "SWAP"}
	var resp positionListResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/account/positions", true, params, &resp, "positions"); err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(resp.Data))
	for _, d := range resp.Data {
		pos, _ := decimal.NewFromString(d.Pos)
		if pos.IsZero() {
			continue
		}
		p := model.Position{
			Venue:     venueName,
			Symbol:    o.table.ToCanonical(d.InstID),
			Quantity:  pos.Abs(),
			UpdatedAt: time.Now(),
		}
		// Net mode encodes direction in the sign of pos.
		if d.PosSide == "short" || (d.PosSide == "net" && pos.IsNegative()) {
			p.Side = model.SideSell
		} else {
			p.Side = model.SideBuy
		}
		if d.MgnMode == "isolated" {
			p.MarginType = model.MarginIsolated
		} else {
			p.MarginType = model.MarginCross
		}
		p.EntryPrice, _ = decimal.NewFromString(d.AvgPx)
		p.MarkPrice, _ = decimal.NewFromString(d.MarkPx)
		p.UnrealizedPnl, _ = decimal.NewFromString(d.Upl)
		p.Leverage, _ = decimal.NewFromString(d.Lever)
		if ms, err := strconv.ParseInt(d.UTime, 10, 64); err == nil {
			p.UpdatedAt = time.UnixMilli(ms)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func (o *Okx) Balances(ctx context.Context) ([]model.Balance, error) {
	var resp balanceResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/account/balance", true, nil, &resp, "balances"); err != nil {
		return nil, err
	}

	var balances []model.Balance
	for _, account := range resp.Data {
		for _, d := range account.Details {
			total, _ := decimal.NewFromString(d.CashBal)
			if total.IsZero() {
				continue
			}
			avail, _ := decimal.NewFromString(d.AvailBal)
			frozen, _ := decimal.NewFromString(d.FrozenBal)
			balances = append(balances, model.Balance{
				Currency:  d.Ccy,
				Total:     total,
				Available: avail,
				Locked:    frozen,
			})
		}
	}
	return balances, nil
}

func (o *Okx) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	params := map[string]string{
		"instId":  o.table.ToVenue(symbol),
		"lever":   leverage.String(),
		"mgnMode": string(margin),
	}
	var resp envelope
	return o.call(ctx, http.MethodPost, "/api/v5/account/set-leverage", true, params, &resp, "set_leverage")
}

// LeverageInfo builds the margin profile for a swap instrument from the
// position payload. With no open position the configured defaults are
// reported.
func (o *Okx) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	params := map[string]string{"instType": "SWAP", "instId": o.table.ToVenue(symbol)}
	var resp positionListResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/account/positions", true, params, &resp, "leverage_info"); err != nil {
		return nil, err
	}

	info := &model.LeverageInfo{
		Symbol:      symbol,
		Current:     model.SpotLeverage,
		Max:         o.Capabilities().MaxLeverage,
		MarginType:  model.MarginCross,
		HealthRatio: decimal.NewFromInt(1),
	}
	if len(resp.Data) == 0 {
		o.log.WithFields(logger.Fields{"symbol": symbol}).Debug("no open position, reporting default leverage profile")
		return info, nil
	}

	d := resp.Data[0]
	if lev, err := decimal.NewFromString(d.Lever); err == nil && lev.IsPositive() {
		info.Current = lev
	}
	if d.MgnMode == "isolated" {
		info.MarginType = model.MarginIsolated
	}
	info.Collateral, _ = decimal.NewFromString(d.Margin)
	info.Borrowed, _ = decimal.NewFromString(d.Liab)
	if liq, err := decimal.NewFromString(d.LiqPx); err == nil && liq.IsPositive() {
		info.LiquidationPrice = &liq
	}
	if ratio, err := decimal.NewFromString(d.MgnRatio); err == nil && ratio.IsPositive() {
		info.HealthRatio = ratio
	}
	return info, nil
}

func (o *Okx) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	params := map[string]string{"instId": o.table.ToVenue(symbol)}
	var resp tickerResponse
	if err := o.call(ctx, http.MethodGet, "/api/v5/market/ticker", false, params, &resp, "ticker"); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, model.NewVenueError(venueName, "ticker", model.KindOrderNotFound, "instrument not in response", nil)
	}

	d := resp.Data[0]
	t := &model.Ticker{Venue: venueName, Symbol: symbol, Timestamp: time.Now()}
	t.Bid, _ = decimal.NewFromString(d.BidPx)
	t.Ask, _ = decimal.NewFromString(d.AskPx)
	t.Last, _ = decimal.NewFromString(d.Last)
	t.Volume24h, _ = decimal.NewFromString(d.Vol24h)
	if ms, err := strconv.ParseInt(d.TS, 10, 64); err == nil {
		t.Timestamp = time.UnixMilli(ms)
	}
	return t, nil
}

// call issues a request through the SDK client and decodes the envelope. The
// envelope's code is checked by the caller-provided response type embedding
// envelope.
func (o *Okx) call(ctx context.Context, method, uri string, private bool, params map[string]string, out interface{}, op string) error {
	res, err := o.client.Do(method, uri, private, params)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindTransientNetwork, "", err)
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return model.NewVenueError(venueName, op, model.KindConnection,
			fmt.Sprintf("malformed response (status %d)", res.StatusCode), err)
	}

	if env, ok := out.(interface{ status() (string, string) }); ok {
		if code, msg := env.status(); code != "" && code != "0" {
			return classify(op, code, msg)
		}
	}
	return nil
}

func (e *envelope) status() (string, string) { return e.Code, e.Msg }

// classify maps v5 error codes onto the error taxonomy.
func classify(op, code, msg string) error {
	kind := model.KindConnection
	switch code {
	case "50011", "50013", "50014":
		kind = model.KindRateLimit
	case "50100", "50101", "50102", "50103", "50111", "50113", "50114":
		kind = model.KindAuthentication
	case "51000", "51008", "51020", "51119", "51121":
		kind = model.KindOrderRejected
	case "51001", "51003", "51603":
		kind = model.KindOrderNotFound
	case "50001", "50004", "50026":
		kind = model.KindTransientNetwork
	default:
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "too many requests"), strings.Contains(lower, "frequency limit"):
			kind = model.KindRateLimit
		case strings.Contains(lower, "api key"), strings.Contains(lower, "signature"), strings.Contains(lower, "passphrase"):
			kind = model.KindAuthentication
		case strings.Contains(lower, "insufficient"):
			kind = model.KindOrderRejected
		}
	}
	return model.NewVenueError(venueName, op, kind, msg, nil).WithCode(code)
}

func (o *Okx) convertOrders(details []orderDetail) []model.Order {
	orders := make([]model.Order, 0, len(details))
	for _, d := range details {
		orders = append(orders, o.convertOrder(d))
	}
	return orders
}

func (o *Okx) convertOrder(d orderDetail) model.Order {
	order := model.Order{
		Venue:         venueName,
		VenueOrderID:  d.OrdID,
		ClientOrderID: d.ClOrdID,
		Symbol:        o.table.ToCanonical(d.InstID),
		Side:          model.OrderSide(d.Side),
		Status:        convertStatus(d.State),
		FeeCurrency:   d.FeeCcy,
	}

	switch d.OrdType {
	case "market":
		order.Type = model.TypeMarket
	default:
		// limit, ioc and fok all carry a price.
		order.Type = model.TypeLimit
		order.LimitPrice, _ = decimal.NewFromString(d.Px)
	}

	order.Quantity, _ = decimal.NewFromString(d.Sz)
	order.FilledQuantity, _ = decimal.NewFromString(d.AccFillSz)
	order.AvgFillPrice, _ = decimal.NewFromString(d.AvgPx)
	// OKX reports fees as negative deductions.
	if fee, err := decimal.NewFromString(d.Fee); err == nil {
		order.Fee = fee.Abs()
	}
	if ms, err := strconv.ParseInt(d.CTime, 10, 64); err == nil {
		order.CreatedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(d.UTime, 10, 64); err == nil {
		order.UpdatedAt = time.UnixMilli(ms)
	}
	return order
}

// convertStatus maps v5 order states to canonical ones. Unknown states map
// to pending, never to a fill.
func convertStatus(state string) model.OrderStatus {
	switch state {
	case "live":
		return model.StatusOpen
	case "partially_filled":
		return model.StatusPartiallyFilled
	case "filled":
		return model.StatusFilled
	case "canceled", "mmp_canceled":
		return model.StatusCancelled
	default:
		return model.StatusPending
	}
}

// sanitizeClOrdID strips characters OKX rejects; clOrdId must be
// alphanumeric and at most 32 characters.
func sanitizeClOrdID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}
