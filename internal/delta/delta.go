// Package delta classifies a current snapshot of events against the most
// recently persisted one, surfacing only what is new or has changed.
package delta

import (
	"sort"

	"dbmon/internal/event"
	"dbmon/internal/models"
)

// FieldChange records one sensitive field whose value moved between cycles.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// ChangedEvent is a current event plus the fields that changed since the
// previous cycle.
type ChangedEvent struct {
	models.Event
	ChangedFields []FieldChange `json:"changed_fields"`
}

// Result partitions one current batch against the previous snapshot. Every
// current event lands in exactly one of New, Changed or Unchanged. Resolved
// holds the identity keys seen last cycle but absent now; they are kept for
// observability but excluded from the operator-facing view.
type Result struct {
	New       []models.Event `json:"new"`
	Changed   []ChangedEvent `json:"changed"`
	Unchanged []models.Event `json:"unchanged"`
	Resolved  []string       `json:"resolved"`
}

// UnchangedCount is a convenience for API responses.
func (r Result) UnchangedCount() int { return len(r.Unchanged) }

// Visible returns the operator-facing subset: new plus changed, in batch
// order.
func (r Result) Visible() []models.Event {
	out := make([]models.Event, 0, len(r.New)+len(r.Changed))
	out = append(out, r.New...)
	for _, c := range r.Changed {
		out = append(out, c.Event)
	}
	return out
}

// Classify compares the current batch of one event type against the
// previous snapshot keyed by identity. Events without a usable identity key
// never participate in comparison and are always classified as new. Only
// fields named in sensitiveFields and present on both sides are compared;
// a field missing on either side is silently skipped.
func Classify(current []models.Event, previous map[string]models.Event, sensitiveFields []string) Result {
	res := Result{
		New:       []models.Event{},
		Changed:   []ChangedEvent{},
		Unchanged: []models.Event{},
		Resolved:  []string{},
	}

	currentKeys := make(map[string]struct{}, len(current))
	for _, ev := range current {
		key, ok := event.Key(ev.EventType, ev.Payload)
		if !ok {
			res.New = append(res.New, ev)
			continue
		}
		currentKeys[key] = struct{}{}

		prev, seen := previous[key]
		if !seen {
			res.New = append(res.New, ev)
			continue
		}

		changes := diffFields(prev.Payload, ev.Payload, sensitiveFields)
		if len(changes) > 0 {
			res.Changed = append(res.Changed, ChangedEvent{Event: ev, ChangedFields: changes})
		} else {
			res.Unchanged = append(res.Unchanged, ev)
		}
	}

	for key := range previous {
		if _, ok := currentKeys[key]; !ok {
			res.Resolved = append(res.Resolved, key)
		}
	}
	sort.Strings(res.Resolved)

	return res
}

// Passthrough is the classification for event types whose source query
// already filters to currently-active rows: the whole batch is "new" and
// resolved is empty by construction, since absence from the batch already
// implies completion.
func Passthrough(current []models.Event) Result {
	res := Result{
		New:       make([]models.Event, len(current)),
		Changed:   []ChangedEvent{},
		Unchanged: []models.Event{},
		Resolved:  []string{},
	}
	copy(res.New, current)
	return res
}

func diffFields(prev, cur map[string]any, sensitiveFields []string) []FieldChange {
	var changes []FieldChange
	for _, field := range sensitiveFields {
		oldVal, inPrev := prev[field]
		newVal, inCur := cur[field]
		if !inPrev || !inCur {
			continue
		}
		if !valuesEqual(oldVal, newVal) {
			changes = append(changes, FieldChange{Field: field, Old: oldVal, New: newVal})
		}
	}
	return changes
}

// valuesEqual compares payload scalars across representations: a value
// scanned from the database (int64) must compare equal to the same value
// decoded from a persisted document (float64).
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
		return false
	}
	return a == b
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
	}
	return 0, false
}
