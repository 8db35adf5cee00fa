package rate

import (
	"strings"

	"heatflow/internal/metrics"
	"heatflow/logger"
)

// ReportRateLimitExceeded emits a rate_limit_exceeded counter for the given
// feed source and symbol.
func ReportRateLimitExceeded(log *logger.Log, source, symbol string) {
	component := strings.ToLower(source) + "_reader"
	fields := logger.Fields{
		"source": strings.ToLower(source),
		"symbol": symbol,
	}
	metrics.EmitMetric(log, component, "rate_limit_exceeded", int64(1), "counter", fields)
	log.WithComponent(component).WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan emits an ip_ban counter for the given feed source and symbol.
func ReportIPBan(log *logger.Log, source, symbol string) {
	component := strings.ToLower(source) + "_reader"
	fields := logger.Fields{
		"source": strings.ToLower(source),
		"symbol": symbol,
	}
	metrics.EmitMetric(log, component, "ip_ban", int64(1), "counter", fields)
	log.WithComponent(component).WithFields(fields).Error("ip banned")
}

// detectLimit inspects an error message returned by an upstream feed and
// determines whether it signals a rate limit or an IP ban. Binance uses its
// own wording; every other source is matched on the generic phrases.
func detectLimit(source, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(source) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "-1003")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "429")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage checks msg for rate limit or IP ban wording and
// records the matching metrics. It reports whether anything matched.
func ReportLimitFromMessage(log *logger.Log, source, symbol, msg string) bool {
	rateLimit, ipBan := detectLimit(source, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, source, symbol)
	}
	if ipBan {
		ReportIPBan(log, source, symbol)
	}
	return rateLimit || ipBan
}
