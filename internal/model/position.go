package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an open position on a derivatives venue or a synthetic one
// derived from spot balances.
type Position struct {
	Venue         string
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnl decimal.Decimal
	Leverage      decimal.Decimal
	MarginType    MarginType
	UpdatedAt     time.Time
}

// Balance is a single-currency account balance.
type Balance struct {
	Currency  string
	Total     decimal.Decimal
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// LeverageInfo is the margin profile for a symbol. LiquidationPrice is nil
// when the venue reports none (no open position, or spot).
type LeverageInfo struct {
	Symbol           string
	Current          decimal.Decimal
	Max              decimal.Decimal
	MarginType       MarginType
	Collateral       decimal.Decimal
	Borrowed         decimal.Decimal
	LiquidationPrice *decimal.Decimal
	HealthRatio      decimal.Decimal
}

// SpotLeverage is the canonical leverage for venues that only trade spot.
var SpotLeverage = decimal.NewFromInt(1)

// SpotLeverageInfo is the fixed profile spot venues report: 1x, full health,
// nothing borrowed. It is a stated default, never derived from margin data
// the venue does not have.
func SpotLeverageInfo(symbol string) *LeverageInfo {
	return &LeverageInfo{
		Symbol:      symbol,
		Current:     SpotLeverage,
		Max:         SpotLeverage,
		MarginType:  MarginNone,
		HealthRatio: decimal.NewFromInt(1),
	}
}

// Ticker is a point-in-time market quote used for paper fills and
// reconciliation sanity checks.
type Ticker struct {
	Venue     string
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Volume24h decimal.Decimal
	Timestamp time.Time
}
