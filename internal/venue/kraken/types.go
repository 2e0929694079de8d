package kraken

import "encoding/json"

// response is the envelope Kraken wraps every REST reply in. Errors arrive as
// severity-prefixed strings ("EOrder:Insufficient funds").
type response struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

type addOrderResult struct {
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	Txid []string `json:"txid"`
}

type cancelOrderResult struct {
	Count int `json:"count"`
}

type orderInfo struct {
	Status  string  `json:"status"`
	OpenTm  float64 `json:"opentm"`
	CloseTm float64 `json:"closetm"`
	Vol     string  `json:"vol"`
	VolExec string  `json:"vol_exec"`
	Price   string  `json:"price"`
	Fee     string  `json:"fee"`
	Descr   struct {
		Pair      string `json:"pair"`
		Type      string `json:"type"`
		OrderType string `json:"ordertype"`
		Price     string `json:"price"`
		Price2    string `json:"price2"`
	} `json:"descr"`
}

type openOrdersResult struct {
	Open map[string]orderInfo `json:"open"`
}

type closedOrdersResult struct {
	Closed map[string]orderInfo `json:"closed"`
}

type tickerInfo struct {
	Ask  []string `json:"a"`
	Bid  []string `json:"b"`
	Last []string `json:"c"`
	Vol  []string `json:"v"`
}
