package metrics

import (
	"testing"

	"tradeflow/logger"
)

func TestDetectThrottle(t *testing.T) {
	tests := []struct {
		venue string
		msg   string
		want  bool
	}{
		{"binance", "Too many requests; current limit is 1200", true},
		{"binance", "Filter failure: LOT_SIZE", false},
		{"okx", "Requests too frequent, frequency limit reached", true},
		{"bybit", "Too many visits!", true},
		{"kraken", "EAPI:Rate limit exceeded", true},
		{"kraken", "EGeneral:Temporary lockout", true},
		{"kraken", "EOrder:Insufficient funds", false},
		{"tradestation", "rate limit reached", true},
		{"tradestation", "invalid account", false},
	}
	for _, tt := range tests {
		if got := detectThrottle(tt.venue, tt.msg); got != tt.want {
			t.Errorf("detectThrottle(%s, %q) = %v, want %v", tt.venue, tt.msg, got, tt.want)
		}
	}
}

func TestReportThrottleFromMessage(t *testing.T) {
	log := logger.GetLogger()
	if !ReportThrottleFromMessage(log, "kraken", "BTCUSD", "place_order", "EAPI:Rate limit exceeded") {
		t.Error("throttle wording not reported")
	}
	if ReportThrottleFromMessage(log, "kraken", "BTCUSD", "place_order", "EOrder:Insufficient funds") {
		t.Error("rejection misreported as throttle")
	}
}
