package tradestation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/creds"
	"tradeflow/internal/model"
	"tradeflow/internal/symbols"
	"tradeflow/internal/venue"
	"tradeflow/logger"
)

const venueName = "tradestation"

// Tradestation is the equities adapter for TradeStation's brokerage API.
// Authentication is OAuth2 client credentials; every request carries a bearer
// token from the shared token source. The venue has no client order id field,
// so idempotent resubmission comes from the facade's submission cache.
type Tradestation struct {
	baseURL   string
	accountID string
	route     string
	client    *http.Client
	tokens    *creds.TokenSource
	table     *symbols.Table
	log       *logger.Entry
}

// New builds the adapter from config.
func New(cfg config.TradestationConfig, timeout time.Duration) (*Tradestation, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, model.NewVenueError(venueName, "configure", model.KindAuthentication, "missing client credentials", nil)
	}
	if cfg.AccountID == "" {
		return nil, model.NewVenueError(venueName, "configure", model.KindAuthentication, "missing account id", nil)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return &Tradestation{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		accountID: cfg.AccountID,
		route:     cfg.Route,
		client:    client,
		tokens:    creds.NewTokenSource(venueName, cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, client),
		table:     symbols.Tradestation(),
		log:       logger.GetLogger().WithVenue(venueName),
	}, nil
}

func (t *Tradestation) Name() string { return venueName }

func (t *Tradestation) Capabilities() venue.Capabilities {
	return venue.Capabilities{
		MaxLeverage: model.SpotLeverage,
	}
}

func (t *Tradestation) Close() error { return nil }

// Connect fetches the account list, proving both reachability and that the
// client credentials can mint a working token.
func (t *Tradestation) Connect(ctx context.Context) (bool, error) {
	if err := t.call(ctx, "connect", http.MethodGet, "/brokerage/accounts", nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tradestation) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	payload := orderPayload{
		AccountID:   t.accountID,
		Symbol:      t.table.ToVenue(req.Symbol),
		Quantity:    req.Quantity.String(),
		TradeAction: "BUY",
		Route:       t.route,
	}
	if req.Side == model.SideSell {
		payload.TradeAction = "SELL"
	}

	switch req.Type {
	case model.TypeMarket:
		payload.OrderType = "Market"
	case model.TypeLimit:
		payload.OrderType = "Limit"
		payload.LimitPrice = req.LimitPrice.String()
	case model.TypeStop:
		payload.OrderType = "StopMarket"
		payload.StopPrice = req.StopPrice.String()
	case model.TypeStopLimit:
		payload.OrderType = "StopLimit"
		payload.LimitPrice = req.LimitPrice.String()
		payload.StopPrice = req.StopPrice.String()
	default:
		return nil, venue.Unsupported(venueName, "place_order")
	}

	switch req.TimeInForce {
	case model.TIFDay:
		payload.TimeInForce = timeInForce{Duration: "DAY"}
	default:
		payload.TimeInForce = timeInForce{Duration: "GTC"}
	}

	var result orderResponse
	if err := t.call(ctx, "place_order", http.MethodPost, "/orderexecution/orders", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		return nil, model.NewVenueError(venueName, "place_order", model.KindOrderRejected, e.Message, nil).WithCode(e.Error)
	}
	if len(result.Orders) == 0 {
		return nil, model.NewVenueError(venueName, "place_order", model.KindConnection, "no order id in response", nil)
	}

	now := time.Now()
	return &model.Order{
		Venue:         venueName,
		VenueOrderID:  result.Orders[0].OrderID,
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

func (t *Tradestation) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	path := "/orderexecution/orders/" + url.PathEscape(venueOrderID)
	return t.call(ctx, "cancel_order", http.MethodDelete, path, nil, nil)
}

func (t *Tradestation) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	path := fmt.Sprintf("/brokerage/accounts/%s/orders/%s", url.PathEscape(t.accountID), url.PathEscape(venueOrderID))

	var result ordersResponse
	if err := t.call(ctx, "get_order", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	for _, d := range result.Orders {
		if d.OrderID == venueOrderID {
			o := t.convertOrder(d)
			return &o, nil
		}
	}
	return nil, model.NewVenueError(venueName, "get_order", model.KindOrderNotFound, "order not in account history", nil)
}

func (t *Tradestation) OpenOrders(ctx context.Context) ([]model.Order, error) {
	path := fmt.Sprintf("/brokerage/accounts/%s/orders", url.PathEscape(t.accountID))

	var result ordersResponse
	if err := t.call(ctx, "open_orders", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(result.Orders))
	for _, d := range result.Orders {
		o := t.convertOrder(d)
		if !o.Status.Terminal() {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (t *Tradestation) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	path := fmt.Sprintf("/brokerage/accounts/%s/historicalorders", url.PathEscape(t.accountID))

	var result ordersResponse
	if err := t.call(ctx, "closed_orders", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(result.Orders))
	for _, d := range result.Orders {
		o := t.convertOrder(d)
		if o.Status.Terminal() {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (t *Tradestation) Positions(ctx context.Context) ([]model.Position, error) {
	path := fmt.Sprintf("/brokerage/accounts/%s/positions", url.PathEscape(t.accountID))

	var result positionsResponse
	if err := t.call(ctx, "positions", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(result.Positions))
	for _, p := range result.Positions {
		pos := model.Position{
			Venue:     venueName,
			Symbol:    t.table.ToCanonical(p.Symbol),
			Side:      model.SideBuy,
			Leverage:  model.SpotLeverage,
			UpdatedAt: time.Now(),
		}
		if strings.EqualFold(p.LongShort, "Short") {
			pos.Side = model.SideSell
		}
		pos.Quantity, _ = decimal.NewFromString(p.Quantity)
		pos.EntryPrice, _ = decimal.NewFromString(p.AveragePrice)
		pos.MarkPrice, _ = decimal.NewFromString(p.Last)
		pos.UnrealizedPnl, _ = decimal.NewFromString(p.UnrealizedProfitLoss)
		positions = append(positions, pos)
	}
	return positions, nil
}

func (t *Tradestation) Balances(ctx context.Context) ([]model.Balance, error) {
	path := fmt.Sprintf("/brokerage/accounts/%s/balances", url.PathEscape(t.accountID))

	var result balancesResponse
	if err := t.call(ctx, "balances", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0, len(result.Balances))
	for _, b := range result.Balances {
		total, err := decimal.NewFromString(b.CashBalance)
		if err != nil {
			t.log.WithFields(logger.Fields{"account": b.AccountID, "value": b.CashBalance}).Warn("skipping unparseable balance")
			continue
		}
		available, _ := decimal.NewFromString(b.BuyingPower)
		balances = append(balances, model.Balance{
			Currency:  "USD",
			Total:     total,
			Available: available,
		})
	}
	return balances, nil
}

func (t *Tradestation) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	if leverage.Equal(model.SpotLeverage) {
		return nil
	}
	return venue.Unsupported(venueName, "set_leverage")
}

// LeverageInfo reports the fixed cash-account profile; TradeStation margin
// data is not surfaced here.
func (t *Tradestation) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	t.log.WithFields(logger.Fields{"symbol": symbol}).Debug("cash account, reporting fixed 1x leverage profile")
	return model.SpotLeverageInfo(symbol), nil
}

func (t *Tradestation) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	path := "/marketdata/quotes/" + url.PathEscape(t.table.ToVenue(symbol))

	var result quotesResponse
	if err := t.call(ctx, "ticker", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Quotes) == 0 {
		return nil, model.NewVenueError(venueName, "ticker", model.KindOrderNotFound, "symbol not in response", nil)
	}

	q := result.Quotes[0]
	tk := &model.Ticker{Venue: venueName, Symbol: symbol, Timestamp: time.Now()}
	tk.Bid, _ = decimal.NewFromString(q.Bid)
	tk.Ask, _ = decimal.NewFromString(q.Ask)
	tk.Last, _ = decimal.NewFromString(q.Last)
	tk.Volume24h, _ = decimal.NewFromString(q.Volume)
	return tk, nil
}

// call issues a bearer-authenticated request and decodes the JSON body into
// out. A 401 drops the cached token so the next attempt refreshes.
func (t *Tradestation) call(ctx context.Context, op, method, path string, payload, out interface{}) error {
	token, err := t.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return model.NewVenueError(venueName, op, model.KindConnection, "encoding request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindConnection, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindTransientNetwork, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindTransientNetwork, "reading response", err)
	}

	if resp.StatusCode >= 400 {
		return t.classify(op, resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return model.NewVenueError(venueName, op, model.KindConnection, "malformed response", err)
		}
	}
	return nil
}

// classify maps HTTP statuses onto the error taxonomy. The response body is
// parsed for the venue's error code when present.
func (t *Tradestation) classify(op string, status int, raw []byte) error {
	var e apiError
	_ = json.Unmarshal(raw, &e)
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("http status %d", status)
	}

	kind := model.KindConnection
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// The session may simply have outlived its token; refresh on the
		// next call before treating repeats as fatal.
		t.tokens.Invalidate()
		kind = model.KindAuthentication
	case status == http.StatusTooManyRequests:
		kind = model.KindRateLimit
	case status == http.StatusNotFound:
		kind = model.KindOrderNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = model.KindOrderRejected
	case status >= 500:
		kind = model.KindTransientNetwork
	}
	return model.NewVenueError(venueName, op, kind, msg, nil).WithCode(e.Error)
}

func (t *Tradestation) convertOrder(d orderDetail) model.Order {
	o := model.Order{
		Venue:        venueName,
		VenueOrderID: d.OrderID,
		Status:       convertStatus(d.Status),
	}

	switch d.OrderType {
	case "Market":
		o.Type = model.TypeMarket
	case "Limit":
		o.Type = model.TypeLimit
	case "StopMarket":
		o.Type = model.TypeStop
	case "StopLimit":
		o.Type = model.TypeStopLimit
	}

	o.LimitPrice, _ = decimal.NewFromString(d.LimitPrice)
	o.StopPrice, _ = decimal.NewFromString(d.StopPrice)
	o.AvgFillPrice, _ = decimal.NewFromString(d.FilledPrice)

	if len(d.Legs) > 0 {
		leg := d.Legs[0]
		o.Symbol = t.table.ToCanonical(leg.Symbol)
		o.Side = model.SideBuy
		if strings.EqualFold(leg.BuyOrSell, "Sell") {
			o.Side = model.SideSell
		}
		o.Quantity, _ = decimal.NewFromString(leg.QuantityOrdered)
		o.FilledQuantity, _ = decimal.NewFromString(leg.ExecQuantity)
	}

	if ts, err := time.Parse(time.RFC3339, d.OpenedDateTime); err == nil {
		o.CreatedAt = ts
		o.UpdatedAt = ts
	}
	return o
}

// convertStatus maps TradeStation's status codes to canonical ones. Unknown
// codes map to pending, never to a fill.
func convertStatus(status string) model.OrderStatus {
	switch status {
	case "ACK", "OPN", "DON":
		return model.StatusOpen
	case "FPR":
		return model.StatusPartiallyFilled
	case "FLL":
		return model.StatusFilled
	case "CAN", "OUT", "UCN":
		return model.StatusCancelled
	case "REJ":
		return model.StatusRejected
	case "EXP":
		return model.StatusExpired
	default:
		return model.StatusPending
	}
}
