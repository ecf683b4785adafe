package logger

import "strings"

// defaultKeyOrder puts the correlation and dialogue keys first. Keys not
// listed follow in alphabetical order.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type",
	"handler", "state", "cb_key", "outcome", "duration_ms",
	"messages", "kb", "payload",
	"event_id", "summary", "hash", "uses",
	"sessions", "evicted", "db_driver", "shortener",
	"listen", "mode", "public_url", "http_code",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"collapsed", "repeats", "pending_count",
}

// statusValues and outcomeValues are the accepted spellings. An unknown
// status is logged as given, an unknown outcome is dropped.
var (
	statusValues  = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	outcomeValues = set("ok", "fail", "cancelled", "rate_limited")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func levelName(l string) string {
	switch strings.ToLower(l) {
	case "", "info":
		return "INFO"
	case "warning":
		return "WARN"
	}
	return strings.ToUpper(l)
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}
