package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmon/internal/event"
	"dbmon/internal/models"
)

func blockingEvent(blockingSession int, waitMs float64) models.Event {
	return models.Event{
		EventType: models.EventTypeBlocking,
		Payload: map[string]any{
			"blocking_session_id": float64(blockingSession),
			"wait_time_ms":        waitMs,
			"database_name":       "Sales",
		},
	}
}

func snapshot(events ...models.Event) map[string]models.Event {
	out := make(map[string]models.Event, len(events))
	for _, ev := range events {
		key, ok := event.Key(ev.EventType, ev.Payload)
		if ok {
			out[key] = ev
		}
	}
	return out
}

func TestClassifyAgainstEmptySnapshot(t *testing.T) {
	current := []models.Event{blockingEvent(51, 1000), blockingEvent(52, 2000)}

	res := Classify(current, map[string]models.Event{}, SensitiveFields(models.EventTypeBlocking))

	assert.Len(t, res.New, 2)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Unchanged)
	assert.Empty(t, res.Resolved)
}

func TestClassifyAgainstOwnSnapshotIsStable(t *testing.T) {
	current := []models.Event{blockingEvent(51, 1000), blockingEvent(52, 2000)}

	res := Classify(current, snapshot(current...), SensitiveFields(models.EventTypeBlocking))

	assert.Empty(t, res.New)
	assert.Empty(t, res.Changed)
	assert.Len(t, res.Unchanged, 2)
	assert.Empty(t, res.Resolved)
}

func TestClassifySensitiveFieldChange(t *testing.T) {
	previous := snapshot(blockingEvent(51, 1000))
	current := []models.Event{blockingEvent(51, 2000)}

	res := Classify(current, previous, SensitiveFields(models.EventTypeBlocking))

	require.Len(t, res.Changed, 1)
	require.Len(t, res.Changed[0].ChangedFields, 1)
	change := res.Changed[0].ChangedFields[0]
	assert.Equal(t, "wait_time_ms", change.Field)
	assert.Equal(t, float64(1000), change.Old)
	assert.Equal(t, float64(2000), change.New)
	assert.Empty(t, res.New)
	assert.Empty(t, res.Unchanged)
}

func TestClassifyIgnoresNonSensitiveChange(t *testing.T) {
	prev := blockingEvent(51, 1000)
	cur := blockingEvent(51, 1000)
	cur.Payload["database_name"] = "HR"

	res := Classify([]models.Event{cur}, snapshot(prev), SensitiveFields(models.EventTypeBlocking))

	assert.Empty(t, res.Changed)
	assert.Len(t, res.Unchanged, 1)
}

func TestClassifyCrossRepresentationEquality(t *testing.T) {
	// Scanned int64 vs decoded float64 with the same numeric value is not a
	// change.
	prev := blockingEvent(51, 0)
	prev.Payload["wait_time_ms"] = int64(1500)
	cur := blockingEvent(51, 1500)

	res := Classify([]models.Event{cur}, snapshot(prev), SensitiveFields(models.EventTypeBlocking))

	assert.Empty(t, res.Changed)
	assert.Len(t, res.Unchanged, 1)
}

func TestClassifyResolved(t *testing.T) {
	previous := snapshot(blockingEvent(51, 1000), blockingEvent(52, 2000), blockingEvent(9, 500))

	res := Classify([]models.Event{blockingEvent(52, 2000)}, previous, SensitiveFields(models.EventTypeBlocking))

	assert.Len(t, res.Unchanged, 1)
	assert.Equal(t, []string{"51", "9"}, res.Resolved)
}

func TestClassifyEmptyCurrentResolvesEverything(t *testing.T) {
	previous := snapshot(blockingEvent(51, 1000), blockingEvent(52, 2000))

	res := Classify(nil, previous, SensitiveFields(models.EventTypeBlocking))

	assert.Empty(t, res.New)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Unchanged)
	assert.Equal(t, []string{"51", "52"}, res.Resolved)
}

func TestClassifyKeylessEventsAreAlwaysNew(t *testing.T) {
	keyless := models.Event{
		EventType: models.EventTypeCPUMemory,
		Payload:   map[string]any{"cpu_percent": float64(90)},
	}

	res := Classify([]models.Event{keyless, keyless}, map[string]models.Event{}, SensitiveFields(models.EventTypeCPUMemory))

	// Duplicates are each classified, never collapsed.
	assert.Len(t, res.New, 2)
}

func TestClassifyFieldMissingOnOneSideIsSkipped(t *testing.T) {
	prev := blockingEvent(51, 1000)
	delete(prev.Payload, "wait_time_ms")
	cur := blockingEvent(51, 2000)

	res := Classify([]models.Event{cur}, snapshot(prev), SensitiveFields(models.EventTypeBlocking))

	assert.Empty(t, res.Changed)
	assert.Len(t, res.Unchanged, 1)
}

func TestVisibleIsNewPlusChanged(t *testing.T) {
	previous := snapshot(blockingEvent(51, 1000), blockingEvent(52, 2000))
	current := []models.Event{
		blockingEvent(53, 100),  // new
		blockingEvent(51, 9000), // changed
		blockingEvent(52, 2000), // unchanged
	}

	res := Classify(current, previous, SensitiveFields(models.EventTypeBlocking))

	visible := res.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, float64(53), visible[0].Payload["blocking_session_id"])
	assert.Equal(t, float64(51), visible[1].Payload["blocking_session_id"])
	assert.Equal(t, 1, res.UnchangedCount())
}

func TestPassthrough(t *testing.T) {
	current := []models.Event{blockingEvent(51, 1000), blockingEvent(52, 2000)}

	res := Passthrough(current)

	assert.Equal(t, current, res.New)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Unchanged)
	assert.Empty(t, res.Resolved)
}

func TestLiveOnly(t *testing.T) {
	assert.True(t, LiveOnly(models.EventTypeSlowQueries))
	assert.False(t, LiveOnly(models.EventTypeBlocking))
}

func TestSensitiveFieldsFallsBackToGeneric(t *testing.T) {
	assert.Equal(t, []string{"status", "message"}, SensitiveFields("something_else"))
	assert.Contains(t, SensitiveFields(models.EventTypeBlocking), "wait_time_ms")
}
