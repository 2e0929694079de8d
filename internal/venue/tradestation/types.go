package tradestation

type orderPayload struct {
	AccountID   string      `json:"AccountID"`
	Symbol      string      `json:"Symbol"`
	Quantity    string      `json:"Quantity"`
	OrderType   string      `json:"OrderType"`
	TradeAction string      `json:"TradeAction"`
	TimeInForce timeInForce `json:"TimeInForce"`
	Route       string      `json:"Route,omitempty"`
	LimitPrice  string      `json:"LimitPrice,omitempty"`
	StopPrice   string      `json:"StopPrice,omitempty"`
}

type timeInForce struct {
	Duration string `json:"Duration"`
}

type orderAck struct {
	OrderID string `json:"OrderID"`
	Message string `json:"Message"`
}

type orderError struct {
	OrderID string `json:"OrderID"`
	Error   string `json:"Error"`
	Message string `json:"Message"`
}

type orderResponse struct {
	Orders []orderAck   `json:"Orders"`
	Errors []orderError `json:"Errors"`
}

type orderDetail struct {
	OrderID           string     `json:"OrderID"`
	Status            string     `json:"Status"`
	StatusDescription string     `json:"StatusDescription"`
	OpenedDateTime    string     `json:"OpenedDateTime"`
	OrderType         string     `json:"OrderType"`
	LimitPrice        string     `json:"LimitPrice"`
	StopPrice         string     `json:"StopPrice"`
	FilledPrice       string     `json:"FilledPrice"`
	Legs              []orderLeg `json:"Legs"`
}

type orderLeg struct {
	Symbol          string `json:"Symbol"`
	BuyOrSell       string `json:"BuyOrSell"`
	QuantityOrdered string `json:"QuantityOrdered"`
	ExecQuantity    string `json:"ExecQuantity"`
}

type ordersResponse struct {
	Orders []orderDetail `json:"Orders"`
}

type positionDetail struct {
	Symbol               string `json:"Symbol"`
	Quantity             string `json:"Quantity"`
	AveragePrice         string `json:"AveragePrice"`
	Last                 string `json:"Last"`
	UnrealizedProfitLoss string `json:"UnrealizedProfitLoss"`
	LongShort            string `json:"LongShort"`
}

type positionsResponse struct {
	Positions []positionDetail `json:"Positions"`
}

type balanceDetail struct {
	AccountID   string `json:"AccountID"`
	CashBalance string `json:"CashBalance"`
	BuyingPower string `json:"BuyingPower"`
}

type balancesResponse struct {
	Balances []balanceDetail `json:"Balances"`
}

type quoteDetail struct {
	Symbol string `json:"Symbol"`
	Bid    string `json:"Bid"`
	Ask    string `json:"Ask"`
	Last   string `json:"Last"`
	Volume string `json:"Volume"`
}

type quotesResponse struct {
	Quotes []quoteDetail `json:"Quotes"`
}

type apiError struct {
	Error   string `json:"Error"`
	Message string `json:"Message"`
}
