package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/config"
	"tradeflow/internal/creds"
	"tradeflow/internal/model"
	"tradeflow/internal/reconcile"
	"tradeflow/internal/symbols"
	"tradeflow/internal/venue"
	"tradeflow/logger"
)

const venueName = "kraken"

// Kraken is the spot adapter for Kraken's REST API. The venue has no order
// lookup endpoint, so GetOrder reconciles against the open and closed order
// snapshots.
type Kraken struct {
	baseURL string
	client  *http.Client
	signer  *creds.KrakenSigner
	table   *symbols.Table
	rec     *reconcile.Reconciler
	log     *logger.Entry
}

// New builds the adapter from config.
func New(cfg config.KrakenConfig, timeout time.Duration) (*Kraken, error) {
	signer, err := creds.NewKrakenSigner(cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, model.NewVenueError(venueName, "configure", model.KindAuthentication, "", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	k := &Kraken{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		signer:  signer,
		table:   symbols.Kraken(),
		log:     logger.GetLogger().WithVenue(venueName),
	}
	k.rec = reconcile.New(venueName, k)
	return k, nil
}

func (k *Kraken) Name() string { return venueName }

func (k *Kraken) Capabilities() venue.Capabilities {
	return venue.Capabilities{
		MaxLeverage: model.SpotLeverage,
	}
}

func (k *Kraken) Close() error { return nil }

// Connect probes the private Balance endpoint; success proves both
// reachability and valid credentials.
func (k *Kraken) Connect(ctx context.Context) (bool, error) {
	if _, err := k.Balances(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (k *Kraken) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	values := url.Values{}
	values.Set("pair", k.table.ToVenue(req.Symbol))
	values.Set("type", string(req.Side))
	values.Set("volume", req.Quantity.String())

	switch req.Type {
	case model.TypeMarket:
		values.Set("ordertype", "market")
	case model.TypeLimit:
		values.Set("ordertype", "limit")
		values.Set("price", req.LimitPrice.String())
	case model.TypeStop:
		values.Set("ordertype", "stop-loss")
		values.Set("price", req.StopPrice.String())
	case model.TypeStopLimit:
		values.Set("ordertype", "stop-loss-limit")
		values.Set("price", req.StopPrice.String())
		values.Set("price2", req.LimitPrice.String())
	default:
		return nil, venue.Unsupported(venueName, "place_order")
	}
	if req.TimeInForce == model.TIFImmediateOrCancel {
		values.Set("timeinforce", "IOC")
	}
	if req.ClientOrderID != "" {
		values.Set("userref", userref(req.ClientOrderID))
		k.log.WithFields(logger.Fields{"client_order_id": req.ClientOrderID}).
			Warn("venue has no native client order id, resubmission dedup is local only")
	}

	var result addOrderResult
	if err := k.private(ctx, "place_order", "/0/private/AddOrder", values, &result); err != nil {
		return nil, err
	}
	if len(result.Txid) == 0 {
		return nil, model.NewVenueError(venueName, "place_order", model.KindConnection, "no transaction id in response", nil)
	}

	now := time.Now()
	return &model.Order{
		Venue:         venueName,
		VenueOrderID:  result.Txid[0],
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

func (k *Kraken) CancelOrder(ctx context.Context, symbol, venueOrderID string) error {
	values := url.Values{}
	values.Set("txid", venueOrderID)

	var result cancelOrderResult
	if err := k.private(ctx, "cancel_order", "/0/private/CancelOrder", values, &result); err != nil {
		return err
	}
	if result.Count == 0 {
		return model.NewVenueError(venueName, "cancel_order", model.KindOrderNotFound, "no order cancelled", nil)
	}
	return nil
}

// GetOrder reconciles against the open and closed snapshots since Kraken has
// no direct lookup by transaction id outside QueryOrders' history window.
func (k *Kraken) GetOrder(ctx context.Context, symbol, venueOrderID, clientOrderID string) (*model.Order, error) {
	return k.rec.FindOrder(ctx, venueOrderID, clientOrderID)
}

func (k *Kraken) OpenOrders(ctx context.Context) ([]model.Order, error) {
	var result openOrdersResult
	if err := k.private(ctx, "open_orders", "/0/private/OpenOrders", url.Values{}, &result); err != nil {
		return nil, err
	}
	return k.convertOrders(result.Open), nil
}

func (k *Kraken) ClosedOrders(ctx context.Context) ([]model.Order, error) {
	var result closedOrdersResult
	if err := k.private(ctx, "closed_orders", "/0/private/ClosedOrders", url.Values{}, &result); err != nil {
		return nil, err
	}
	return k.convertOrders(result.Closed), nil
}

// Positions returns nothing; Kraken spot holdings surface through Balances.
func (k *Kraken) Positions(ctx context.Context) ([]model.Position, error) {
	return nil, nil
}

func (k *Kraken) Balances(ctx context.Context) ([]model.Balance, error) {
	var result map[string]string
	if err := k.private(ctx, "balances", "/0/private/Balance", url.Values{}, &result); err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0, len(result))
	for currency, raw := range result {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			k.log.WithFields(logger.Fields{"currency": currency, "value": raw}).Warn("skipping unparseable balance")
			continue
		}
		balances = append(balances, model.Balance{
			Currency:  normalizeCurrency(currency),
			Total:     amount,
			Available: amount,
		})
	}
	return balances, nil
}

func (k *Kraken) SetLeverage(ctx context.Context, symbol string, leverage decimal.Decimal, margin model.MarginType) error {
	if leverage.Equal(model.SpotLeverage) {
		return nil
	}
	return venue.Unsupported(venueName, "set_leverage")
}

// LeverageInfo reports the fixed spot profile. Kraken spot carries no margin
// data, so the default is stated rather than computed.
func (k *Kraken) LeverageInfo(ctx context.Context, symbol string) (*model.LeverageInfo, error) {
	k.log.WithFields(logger.Fields{"symbol": symbol}).Debug("spot venue, reporting fixed 1x leverage profile")
	return model.SpotLeverageInfo(symbol), nil
}

func (k *Kraken) Ticker(ctx context.Context, symbol string) (*model.Ticker, error) {
	pair := k.table.ToVenue(symbol)
	endpoint := fmt.Sprintf("%s/0/public/Ticker?pair=%s", k.baseURL, url.QueryEscape(pair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, model.NewVenueError(venueName, "ticker", model.KindConnection, "", err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, model.NewVenueError(venueName, "ticker", model.KindTransientNetwork, "", err)
	}
	defer resp.Body.Close()

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, model.NewVenueError(venueName, "ticker", model.KindConnection, "malformed response", err)
	}
	if len(env.Error) > 0 {
		return nil, classify("ticker", env.Error)
	}

	var pairs map[string]tickerInfo
	if err := json.Unmarshal(env.Result, &pairs); err != nil {
		return nil, model.NewVenueError(venueName, "ticker", model.KindConnection, "malformed ticker result", err)
	}

	for _, info := range pairs {
		t := &model.Ticker{Venue: venueName, Symbol: symbol, Timestamp: time.Now()}
		if len(info.Bid) > 0 {
			t.Bid, _ = decimal.NewFromString(info.Bid[0])
		}
		if len(info.Ask) > 0 {
			t.Ask, _ = decimal.NewFromString(info.Ask[0])
		}
		if len(info.Last) > 0 {
			t.Last, _ = decimal.NewFromString(info.Last[0])
		}
		if len(info.Vol) > 1 {
			t.Volume24h, _ = decimal.NewFromString(info.Vol[1])
		}
		return t, nil
	}
	return nil, model.NewVenueError(venueName, "ticker", model.KindOrderNotFound, "pair not in response", nil)
}

// private issues a signed POST and decodes the result payload into out.
func (k *Kraken) private(ctx context.Context, op, path string, values url.Values, out interface{}) error {
	values.Set("nonce", k.signer.Nonce())
	body := values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, strings.NewReader(body))
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindConnection, "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.signer.APIKey())
	req.Header.Set("API-Sign", k.signer.Sign(path, values))

	resp, err := k.client.Do(req)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindTransientNetwork, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewVenueError(venueName, op, model.KindTransientNetwork, "reading response", err)
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.NewVenueError(venueName, op, model.KindConnection,
			fmt.Sprintf("malformed response (status %d)", resp.StatusCode), err)
	}
	if len(env.Error) > 0 {
		return classify(op, env.Error)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return model.NewVenueError(venueName, op, model.KindConnection, "malformed result payload", err)
		}
	}
	return nil
}

// classify maps Kraken's severity-prefixed error strings onto the error
// taxonomy.
func classify(op string, errs []string) error {
	msg := strings.Join(errs, "; ")
	lower := strings.ToLower(msg)

	kind := model.KindConnection
	switch {
	case strings.Contains(lower, "invalid key"),
		strings.Contains(lower, "invalid signature"),
		strings.Contains(lower, "invalid nonce"),
		strings.Contains(lower, "permission denied"):
		kind = model.KindAuthentication
	case strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "temporary lockout"):
		kind = model.KindRateLimit
	case strings.Contains(lower, "unknown order"):
		kind = model.KindOrderNotFound
	case strings.HasPrefix(msg, "EOrder:"):
		kind = model.KindOrderRejected
	case strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "busy"),
		strings.Contains(lower, "timeout"):
		kind = model.KindTransientNetwork
	}
	return model.NewVenueError(venueName, op, kind, msg, nil)
}

func (k *Kraken) convertOrders(infos map[string]orderInfo) []model.Order {
	orders := make([]model.Order, 0, len(infos))
	for txid, info := range infos {
		orders = append(orders, k.convertOrder(txid, info))
	}
	return orders
}

func (k *Kraken) convertOrder(txid string, info orderInfo) model.Order {
	o := model.Order{
		Venue:        venueName,
		VenueOrderID: txid,
		Symbol:       k.table.ToCanonical(info.Descr.Pair),
		Side:         model.OrderSide(info.Descr.Type),
		Status:       convertStatus(info),
		CreatedAt:    time.Unix(int64(info.OpenTm), 0),
		UpdatedAt:    time.Unix(int64(info.OpenTm), 0),
	}
	if info.CloseTm > 0 {
		o.UpdatedAt = time.Unix(int64(info.CloseTm), 0)
	}

	switch info.Descr.OrderType {
	case "market":
		o.Type = model.TypeMarket
	case "limit":
		o.Type = model.TypeLimit
	case "stop-loss":
		o.Type = model.TypeStop
	case "stop-loss-limit":
		o.Type = model.TypeStopLimit
	}

	o.Quantity, _ = decimal.NewFromString(info.Vol)
	o.FilledQuantity, _ = decimal.NewFromString(info.VolExec)
	o.AvgFillPrice, _ = decimal.NewFromString(info.Price)
	o.Fee, _ = decimal.NewFromString(info.Fee)
	if info.Descr.Price != "" {
		if o.Type == model.TypeStop || o.Type == model.TypeStopLimit {
			o.StopPrice, _ = decimal.NewFromString(info.Descr.Price)
			o.LimitPrice, _ = decimal.NewFromString(info.Descr.Price2)
		} else {
			o.LimitPrice, _ = decimal.NewFromString(info.Descr.Price)
		}
	}
	return o
}

// convertStatus maps Kraken order states to canonical ones. Anything
// unrecognised maps to pending, never to a fill.
func convertStatus(info orderInfo) model.OrderStatus {
	switch info.Status {
	case "pending":
		return model.StatusPending
	case "open":
		if exec, err := decimal.NewFromString(info.VolExec); err == nil && exec.IsPositive() {
			return model.StatusPartiallyFilled
		}
		return model.StatusOpen
	case "closed":
		return model.StatusFilled
	case "canceled":
		return model.StatusCancelled
	case "expired":
		return model.StatusExpired
	default:
		return model.StatusPending
	}
}

// userref folds the client order id into Kraken's int32 order tag. The tag
// correlates orders on the venue side; it does not deduplicate them.
func userref(clientOrderID string) string {
	h := fnv.New32a()
	h.Write([]byte(clientOrderID))
	return strconv.FormatInt(int64(int32(h.Sum32())), 10)
}

// normalizeCurrency strips Kraken's legacy X/Z prefixes from currency codes.
func normalizeCurrency(code string) string {
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		code = code[1:]
	}
	if code == "XBT" {
		code = "BTC"
	}
	return code
}
