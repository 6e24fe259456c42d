// Package rules evaluates declarative threshold rules over event batches
// and emits severity-tagged alerts.
package rules

import (
	"context"
	"time"

	"dbmon/internal/models"
)

// Explainer resolves a human-readable explanation for one event. It never
// fails; a degraded backend falls back to deterministic templates.
type Explainer interface {
	Explain(ctx context.Context, ev models.Event) models.Explanation
}

// Engine evaluates rules against event batches. It holds no mutable state
// between calls; the same inputs produce the same alerts, explanation text
// aside.
type Engine struct {
	explainer Explainer
	now       func() time.Time
}

func NewEngine(explainer Explainer) *Engine {
	return &Engine{explainer: explainer, now: time.Now}
}

// Evaluate applies every rule of matching event type to every event, in
// event-then-rule order. A rule whose field is absent from the payload, or
// whose threshold is not comparable with the payload value, silently does
// not match. Matches are not deduplicated across rules: one event may
// legitimately raise several alerts in one cycle.
func (e *Engine) Evaluate(ctx context.Context, events []models.Event, ruleSet []models.Rule) []models.Alert {
	var alerts []models.Alert
	for _, ev := range events {
		for _, rule := range ruleSet {
			if rule.EventType != ev.EventType {
				continue
			}
			value, ok := ev.Payload[rule.Field]
			if !ok {
				continue
			}
			if !compare(value, rule.Op, rule.Value) {
				continue
			}
			alerts = append(alerts, models.Alert{
				Timestamp:       e.now().UTC(),
				AlertID:         rule.ID,
				Severity:        rule.Severity,
				Message:         rule.Message,
				Event:           ev,
				Explanation:     e.explain(ctx, ev),
				Recommendations: rule.Recommendations,
			})
		}
	}
	return alerts
}

func (e *Engine) explain(ctx context.Context, ev models.Event) models.Explanation {
	if e.explainer == nil {
		return models.Explanation{}
	}
	return e.explainer.Explain(ctx, ev)
}

// compare applies op between a payload value and a rule threshold using the
// scalars' native ordering. Numbers compare numerically regardless of
// representation; strings compare lexically. Mismatched kinds never match
// and never error.
func compare(value any, op string, threshold any) bool {
	if value == nil {
		return false
	}
	if fv, ok := toFloat(value); ok {
		ft, ok := toFloat(threshold)
		if !ok {
			return false
		}
		return compareFloat(fv, op, ft)
	}
	sv, ok := value.(string)
	if !ok {
		return false
	}
	st, ok := threshold.(string)
	if !ok {
		return false
	}
	return compareString(sv, op, st)
}

func compareFloat(v float64, op string, t float64) bool {
	switch op {
	case ">":
		return v > t
	case ">=":
		return v >= t
	case "<":
		return v < t
	case "<=":
		return v <= t
	case "==":
		return v == t
	case "!=":
		return v != t
	}
	return false
}

func compareString(v, op, t string) bool {
	switch op {
	case ">":
		return v > t
	case ">=":
		return v >= t
	case "<":
		return v < t
	case "<=":
		return v <= t
	case "==":
		return v == t
	case "!=":
		return v != t
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}
