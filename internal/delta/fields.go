package delta

import "dbmon/internal/models"

// sensitiveFields configures, per event type, which payload fields count as
// a meaningful change between cycles. Fields irrelevant to a type are
// simply not listed for it.
var sensitiveFields = map[string][]string{
	models.EventTypeBlocking: {
		"elapsed_time_ms", "cpu_time_ms", "logical_reads", "wait_time_ms",
	},
	models.EventTypeOpenTransactions: {
		"duration_seconds", "transaction_state", "wait_time_ms", "is_blocking",
	},
	models.EventTypeMissingIndexes: {
		"user_seeks", "user_scans", "avg_user_impact", "avg_total_user_cost",
	},
}

// genericSensitiveFields applies to event types without a dedicated list.
var genericSensitiveFields = []string{"status", "message"}

// SensitiveFields returns the change-detection fields for one event type.
func SensitiveFields(eventType string) []string {
	if fields, ok := sensitiveFields[eventType]; ok {
		return fields
	}
	return genericSensitiveFields
}

// liveOnly marks event types whose source query returns only currently
// active rows. For these the delta engine is bypassed: the current batch is
// the view, and "resolved" is meaningless.
var liveOnly = map[string]bool{
	models.EventTypeSlowQueries: true,
}

// LiveOnly reports whether classification is bypassed for this event type.
func LiveOnly(eventType string) bool { return liveOnly[eventType] }
