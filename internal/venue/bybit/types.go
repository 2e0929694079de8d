package bybit

// Result payloads for the v5 unified trading API. The connector returns
// Result as interface{}, so these are decoded out of the generic response.

type orderAckResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

type orderEntry struct {
	OrderID      string `json:"orderId"`
	OrderLinkID  string `json:"orderLinkId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"orderType"`
	OrderStatus  string `json:"orderStatus"`
	Qty          string `json:"qty"`
	CumExecQty   string `json:"cumExecQty"`
	Price        string `json:"price"`
	AvgPrice     string `json:"avgPrice"`
	TriggerPrice string `json:"triggerPrice"`
	CumExecFee   string `json:"cumExecFee"`
	CreatedTime  string `json:"createdTime"`
	UpdatedTime  string `json:"updatedTime"`
}

type orderListResult struct {
	Category string       `json:"category"`
	List     []orderEntry `json:"list"`
}

type positionEntry struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	Leverage      string `json:"leverage"`
	LiqPrice      string `json:"liqPrice"`
	PositionIM    string `json:"positionIM"`
	TradeMode     int    `json:"tradeMode"`
	UpdatedTime   string `json:"updatedTime"`
}

type positionListResult struct {
	List []positionEntry `json:"list"`
}

type walletCoin struct {
	Coin          string `json:"coin"`
	WalletBalance string `json:"walletBalance"`
	Locked        string `json:"locked"`
}

type walletAccount struct {
	AccountType string       `json:"accountType"`
	Coin        []walletCoin `json:"coin"`
}

type walletResult struct {
	List []walletAccount `json:"list"`
}

type tickerEntry struct {
	Symbol    string `json:"symbol"`
	Bid1Price string `json:"bid1Price"`
	Ask1Price string `json:"ask1Price"`
	LastPrice string `json:"lastPrice"`
	Volume24h string `json:"volume24h"`
}

type tickerListResult struct {
	List []tickerEntry `json:"list"`
}
