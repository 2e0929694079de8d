package metrics

import (
	"strings"

	"tradeflow/logger"
)

// ReportRateLimitExceeded increments the rate limit counter for the given
// venue and operation and emits the metric to CloudWatch. The venue and
// symbol are attached to the log entry so throttled symbols can be picked
// out per venue.
func ReportRateLimitExceeded(log *logger.Log, venue, symbol, op string) {
	venue = strings.ToLower(venue)
	l := log.WithVenue(venue)
	fields := logger.Fields{
		"venue":     venue,
		"symbol":    symbol,
		"operation": op,
	}
	l.LogMetric("governor", "RateLimitExceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportOrderPlaced records a successful submission.
func ReportOrderPlaced(log *logger.Log, venue, symbol string) {
	venue = strings.ToLower(venue)
	logger.IncrementOrderPlaced(venue)
	log.WithVenue(venue).LogMetric("execution", "OrdersPlaced", int64(1), "counter", logger.Fields{
		"venue":  venue,
		"symbol": symbol,
	})
}

// ReportOrderCancelled records a successful cancellation.
func ReportOrderCancelled(log *logger.Log, venue, symbol string) {
	venue = strings.ToLower(venue)
	logger.IncrementOrderCancelled(venue)
	log.WithVenue(venue).LogMetric("execution", "OrdersCancelled", int64(1), "counter", logger.Fields{
		"venue":  venue,
		"symbol": symbol,
	})
}

// ReportOrderFailed records a submission that ended in a non-retryable error.
func ReportOrderFailed(log *logger.Log, venue, symbol, reason string) {
	venue = strings.ToLower(venue)
	logger.IncrementOrderFailed(venue)
	log.WithVenue(venue).LogMetric("execution", "OrdersFailed", int64(1), "counter", logger.Fields{
		"venue":  venue,
		"symbol": symbol,
		"reason": reason,
	})
}

// detectThrottle inspects a venue error message and reports whether it signals
// throttling. Detection is customised per venue as each one uses different
// wording.
func detectThrottle(venue, msg string) bool {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(venue) {
	case "binance":
		return strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
	case "okx":
		return strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
	case "bybit":
		return strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many visits")
	case "kraken":
		return strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "temporary lockout")
	default:
		return strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
	}
}

// ReportThrottleFromMessage checks a venue error message for throttle wording
// and records the metric when it matches. No action is taken otherwise.
func ReportThrottleFromMessage(log *logger.Log, venue, symbol, op, msg string) bool {
	if !detectThrottle(venue, msg) {
		return false
	}
	ReportRateLimitExceeded(log, venue, symbol, op)
	return true
}
