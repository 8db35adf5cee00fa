package rate

import (
	"testing"

	"heatflow/logger"
)

func TestReportRateLimitExceeded(t *testing.T) {
	log := logger.GetLogger()
	ReportRateLimitExceeded(log, "binance", "BTCUSDT")
}

func TestReportIPBan(t *testing.T) {
	log := logger.GetLogger()
	ReportIPBan(log, "binance", "BTCUSDT")
}

func TestDetectLimit(t *testing.T) {
	cases := []struct {
		source string
		msg    string
		rate   bool
		ban    bool
	}{
		{"binance", "Too many requests", true, false},
		{"binance", "code=-1003, msg=Way too much request weight used", true, false},
		{"binance", "IP banned until 1700000000000", false, true},
		{"websocket", "websocket: bad handshake (429)", true, false},
		{"kafka", "hello world", false, false},
	}
	for _, c := range cases {
		rl, ban := detectLimit(c.source, c.msg)
		if rl != c.rate {
			t.Errorf("source %s, msg %q: expected rateLimit %v got %v", c.source, c.msg, c.rate, rl)
		}
		if ban != c.ban {
			t.Errorf("source %s, msg %q: expected ipBan %v got %v", c.source, c.msg, c.ban, ban)
		}
	}
}

func TestReportLimitFromMessage(t *testing.T) {
	log := logger.GetLogger()
	if ReportLimitFromMessage(log, "websocket", "", "connection reset by peer") {
		t.Fatal("unrelated error should not be reported")
	}
	if !ReportLimitFromMessage(log, "binance", "BTCUSDT", "rate limit reached") {
		t.Fatal("rate limit wording should be reported")
	}
}
