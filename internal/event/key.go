package event

import (
	"strconv"
	"time"

	"dbmon/internal/models"
)

// queryTextKeyLen bounds identity keys derived from free-text query fields.
// Volatility beyond this prefix is irrelevant to identity.
const queryTextKeyLen = 100

// extractor derives an identity key from one payload, reporting whether it
// applies.
type extractor func(payload map[string]any) (string, bool)

// fieldKey returns the stringified value of a single payload field.
func fieldKey(field string) extractor {
	return func(payload map[string]any) (string, bool) {
		v, ok := payload[field]
		if !ok {
			return "", false
		}
		return stringify(v)
	}
}

// textPrefixKey returns the first maxLen characters of a free-text field.
func textPrefixKey(field string, maxLen int) extractor {
	return func(payload map[string]any) (string, bool) {
		v, ok := payload[field]
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", false
		}
		if len(s) > maxLen {
			s = s[:maxLen]
		}
		return s, true
	}
}

// defaultChain is the generic fallback chain: session identity, then query
// text prefix, then deadlock identity. Several event types share the same
// shape of "the session is the identity" or "the query text is the
// identity", so the chain is type-agnostic beyond the first entry.
var defaultChain = []extractor{
	fieldKey("session_id"),
	textPrefixKey("query_text", queryTextKeyLen),
	fieldKey("deadlock_id"),
}

// keyChains overrides the extractor chain for event types whose identity
// lives in a differently named field.
var keyChains = map[string][]extractor{
	models.EventTypeBlocking: {
		fieldKey("blocking_session_id"),
		fieldKey("session_id"),
		textPrefixKey("query_text", queryTextKeyLen),
		fieldKey("deadlock_id"),
	},
}

// Key derives the identity key correlating "the same" real-world condition
// across polling cycles. The second return is false when no usable key
// exists; such events cannot participate in delta tracking.
func Key(eventType string, payload map[string]any) (string, bool) {
	chain, ok := keyChains[eventType]
	if !ok {
		chain = defaultChain
	}
	for _, extract := range chain {
		if key, ok := extract(payload); ok {
			return key, true
		}
	}
	return "", false
}

// stringify renders a scalar payload value as a key fragment. Integral
// floats render without a fractional part so that a session id decoded from
// JSON matches one scanned from the database.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}
