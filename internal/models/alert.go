package models

import "time"

// Severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rule is a declarative threshold condition over one payload field of one
// event type. Rules are loaded from YAML and immutable for the lifetime of
// an evaluation pass.
type Rule struct {
	ID              string   `yaml:"id" json:"id"`
	EventType       string   `yaml:"event_type" json:"event_type"`
	Field           string   `yaml:"field" json:"field"`
	Op              string   `yaml:"op" json:"op"`
	Value           any      `yaml:"value" json:"value"`
	Severity        Severity `yaml:"severity" json:"severity"`
	Message         string   `yaml:"message" json:"message"`
	Recommendations []string `yaml:"recommendations" json:"recommendations"`
}

// Alert is the output of a matched rule. One alert per (event, matching
// rule) pair; an event may raise several alerts in one cycle.
type Alert struct {
	Timestamp       time.Time   `json:"@timestamp"`
	AlertID         string      `json:"alert_id"`
	Severity        Severity    `json:"severity"`
	Message         string      `json:"message"`
	Event           Event       `json:"event"`
	Explanation     Explanation `json:"explanation"`
	Recommendations []string    `json:"recommendations"`
}
