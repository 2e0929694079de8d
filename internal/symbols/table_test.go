package symbols

import "testing"

func TestKrakenRoundTrip(t *testing.T) {
	tbl := Kraken()
	tests := []struct {
		canonical string
		native    string
	}{
		{"BTCUSD", "XXBTZUSD"},
		{"ETHUSD", "XETHZUSD"},
		{"XRPUSD", "XXRPZUSD"},
	}
	for _, tt := range tests {
		if got := tbl.ToVenue(tt.canonical); got != tt.native {
			t.Errorf("ToVenue(%s)=%s want %s", tt.canonical, got, tt.native)
		}
		if got := tbl.ToCanonical(tt.native); got != tt.canonical {
			t.Errorf("ToCanonical(%s)=%s want %s", tt.native, got, tt.canonical)
		}
	}
}

func TestKrakenRuleFallback(t *testing.T) {
	tbl := Kraken()
	if got := tbl.ToCanonical("XLTCZEUR"); got != "LTCEUR" {
		t.Errorf("legacy pair rule failed: %s", got)
	}
	if got := tbl.ToCanonical("SOL/USD"); got != "SOLUSD" {
		t.Errorf("slash pair rule failed: %s", got)
	}
	// Unknown canonical symbols pass through unchanged.
	if got := tbl.ToVenue("DOGEUSD"); got != "DOGEUSD" {
		t.Errorf("passthrough failed: %s", got)
	}
}

func TestBinanceUSDTQuoting(t *testing.T) {
	tbl := Binance()
	if got := tbl.ToVenue("BTCUSD"); got != "BTCUSDT" {
		t.Errorf("ToVenue(BTCUSD)=%s", got)
	}
	if got := tbl.ToVenue("DOGEUSD"); got != "DOGEUSDT" {
		t.Errorf("rule fallback failed: %s", got)
	}
	if got := tbl.ToCanonical("DOGEUSDT"); got != "DOGEUSD" {
		t.Errorf("ToCanonical(DOGEUSDT)=%s", got)
	}
}

func TestOkxSwapNotation(t *testing.T) {
	tbl := Okx()
	if got := tbl.ToVenue("BTCUSD"); got != "BTC-USDT-SWAP" {
		t.Errorf("ToVenue(BTCUSD)=%s", got)
	}
	if got := tbl.ToCanonical("BTC-USDT-SWAP"); got != "BTCUSD" {
		t.Errorf("ToCanonical(BTC-USDT-SWAP)=%s", got)
	}
	if got := tbl.ToVenue("AVAXUSD"); got != "AVAX-USDT-SWAP" {
		t.Errorf("rule fallback failed: %s", got)
	}
}

func TestTradestationPassthrough(t *testing.T) {
	tbl := Tradestation()
	if got := tbl.ToVenue("AAPL"); got != "AAPL" {
		t.Errorf("ToVenue(AAPL)=%s", got)
	}
	if got := tbl.ToCanonical("msft"); got != "MSFT" {
		t.Errorf("ToCanonical(msft)=%s", got)
	}
}
