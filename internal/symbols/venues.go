package symbols

import "strings"

// Kraken keeps legacy X/Z prefixed pair names for the oldest listings while
// newer pairs use plain concatenation. The explicit table carries the legacy
// pairs; everything else passes through unchanged.
func Kraken() *Table {
	pairs := map[string]string{
		"BTCUSD": "XXBTZUSD",
		"BTCEUR": "XXBTZEUR",
		"ETHUSD": "XETHZUSD",
		"ETHEUR": "XETHZEUR",
		"XRPUSD": "XXRPZUSD",
		"LTCUSD": "XLTCZUSD",
		"XLMUSD": "XXLMZUSD",
	}
	canonRule := func(native string) string {
		s := native
		if len(s) == 8 && strings.HasPrefix(s, "X") && s[4] == 'Z' {
			base := s[1:4]
			quote := s[5:]
			if base == "XBT" {
				base = "BTC"
			}
			return base + quote
		}
		s = strings.ReplaceAll(s, "/", "")
		if strings.HasPrefix(s, "XBT") {
			s = "BTC" + s[3:]
		}
		return strings.ToUpper(s)
	}
	return NewTable("kraken", pairs, nil, canonRule)
}

// Binance spot uses USDT quoted pairs for the majors, so canonical USD pairs
// map onto their USDT book.
func Binance() *Table {
	pairs := map[string]string{
		"BTCUSD": "BTCUSDT",
		"ETHUSD": "ETHUSDT",
		"XRPUSD": "XRPUSDT",
		"SOLUSD": "SOLUSDT",
		"BNBUSD": "BNBUSDT",
	}
	venueRule := func(canonical string) string {
		if strings.HasSuffix(canonical, "USD") && !strings.HasSuffix(canonical, "USDT") {
			return canonical + "T"
		}
		return canonical
	}
	canonRule := func(native string) string {
		if strings.HasSuffix(native, "USDT") {
			return strings.TrimSuffix(native, "T")
		}
		return strings.ToUpper(native)
	}
	return NewTable("binance", pairs, venueRule, canonRule)
}

// Bybit linear perpetuals quote in USDT with no separator.
func Bybit() *Table {
	pairs := map[string]string{
		"BTCUSD": "BTCUSDT",
		"ETHUSD": "ETHUSDT",
		"SOLUSD": "SOLUSDT",
	}
	venueRule := func(canonical string) string {
		if strings.HasSuffix(canonical, "USD") && !strings.HasSuffix(canonical, "USDT") {
			return canonical + "T"
		}
		return canonical
	}
	canonRule := func(native string) string {
		if strings.HasSuffix(native, "USDT") {
			return strings.TrimSuffix(native, "T")
		}
		return strings.ToUpper(native)
	}
	return NewTable("bybit", pairs, venueRule, canonRule)
}

// Okx instruments are dash separated; perpetual swaps carry a -SWAP suffix.
func Okx() *Table {
	pairs := map[string]string{
		"BTCUSD": "BTC-USDT-SWAP",
		"ETHUSD": "ETH-USDT-SWAP",
		"SOLUSD": "SOL-USDT-SWAP",
	}
	venueRule := func(canonical string) string {
		base := strings.TrimSuffix(canonical, "USD")
		if base == canonical {
			return canonical
		}
		return base + "-USDT-SWAP"
	}
	canonRule := func(native string) string {
		s := strings.TrimSuffix(native, "-SWAP")
		s = strings.ReplaceAll(s, "-", "")
		if strings.HasSuffix(s, "USDT") {
			s = strings.TrimSuffix(s, "T")
		}
		return strings.ToUpper(s)
	}
	return NewTable("okx", pairs, venueRule, canonRule)
}

// Tradestation trades listed equities under their plain ticker, so symbols
// pass through both ways.
func Tradestation() *Table {
	return NewTable("tradestation",
		nil,
		func(canonical string) string { return canonical },
		func(native string) string { return strings.ToUpper(native) },
	)
}

// Paper echoes canonical symbols unchanged.
func Paper() *Table {
	return NewTable("paper",
		nil,
		func(canonical string) string { return canonical },
		func(native string) string { return strings.ToUpper(native) },
	)
}
