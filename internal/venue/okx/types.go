package okx

// envelope is the response wrapper on every v5 endpoint. Data payloads are
// arrays even for single-object results.
type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type orderAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type orderAckResponse struct {
	envelope
	Data []orderAck `json:"data"`
}

type orderDetail struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	ClOrdID   string `json:"clOrdId"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	OrdType   string `json:"ordType"`
	Side      string `json:"side"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
	State     string `json:"state"`
	Fee       string `json:"fee"`
	FeeCcy    string `json:"feeCcy"`
	CTime     string `json:"cTime"`
	UTime     string `json:"uTime"`
}

type orderListResponse struct {
	envelope
	Data []orderDetail `json:"data"`
}

type positionDetail struct {
	InstID   string `json:"instId"`
	Pos      string `json:"pos"`
	PosSide  string `json:"posSide"`
	AvgPx    string `json:"avgPx"`
	MarkPx   string `json:"markPx"`
	Upl      string `json:"upl"`
	Lever    string `json:"lever"`
	MgnMode  string `json:"mgnMode"`
	Margin   string `json:"margin"`
	Liab     string `json:"liab"`
	LiqPx    string `json:"liqPx"`
	MgnRatio string `json:"mgnRatio"`
	UTime    string `json:"uTime"`
}

type positionListResponse struct {
	envelope
	Data []positionDetail `json:"data"`
}

type balanceDetail struct {
	Ccy       string `json:"ccy"`
	CashBal   string `json:"cashBal"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
}

type balanceResponse struct {
	envelope
	Data []struct {
		Details []balanceDetail `json:"details"`
	} `json:"data"`
}

type tickerDetail struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Vol24h string `json:"vol24h"`
	TS     string `json:"ts"`
}

type tickerResponse struct {
	envelope
	Data []tickerDetail `json:"data"`
}
