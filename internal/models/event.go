package models

import "time"

// Known event types. Anything else is carried through the pipeline as an
// opaque type with no identity-key logic.
const (
	EventTypeBlocking         = "blocking"
	EventTypeDeadlocks        = "deadlocks"
	EventTypeOpenTransactions = "open_transactions"
	EventTypeMissingIndexes   = "missing_indexes"
	EventTypeSlowQueries      = "slow_queries"
	EventTypeCPUMemory        = "cpu_memory"
	EventTypeTempdbHealth     = "tempdb_health"
)

// EventTypes lists the known event types in collection order.
var EventTypes = []string{
	EventTypeBlocking,
	EventTypeDeadlocks,
	EventTypeOpenTransactions,
	EventTypeMissingIndexes,
	EventTypeSlowQueries,
	EventTypeCPUMemory,
	EventTypeTempdbHealth,
}

// Event is one normalized observation of monitored state at a point in time.
// The payload carries the raw sampled columns verbatim; events are never
// mutated after construction.
type Event struct {
	Timestamp   time.Time      `json:"@timestamp"`
	EventType   string         `json:"event_type"`
	Host        string         `json:"host"`
	SQLInstance string         `json:"sql_instance"`
	Payload     map[string]any `json:"payload"`
}

// Explanation is a human-readable breakdown of one event. All four fields
// are always populated, whether it came from the AI backend or a template.
type Explanation struct {
	Summary         string   `json:"summary"`
	Details         string   `json:"details"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

// Complete reports whether every explanation field carries content. Used to
// reject partial responses from the AI backend.
func (e Explanation) Complete() bool {
	return e.Summary != "" && e.Details != "" && e.Analysis != "" && len(e.Recommendations) > 0
}
