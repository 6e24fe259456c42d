package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmon/internal/models"
)

func TestFallbackCoversEveryEventType(t *testing.T) {
	for _, eventType := range models.EventTypes {
		expl := Fallback(models.Event{EventType: eventType, Payload: map[string]any{}})
		assert.True(t, expl.Complete(), "incomplete fallback for %s", eventType)
	}
}

func TestFallbackUnknownTypeIsGeneric(t *testing.T) {
	expl := Fallback(models.Event{EventType: "something_else", Payload: map[string]any{}})
	require.True(t, expl.Complete())
	assert.Contains(t, expl.Summary, "Database metric captured")
}

func TestFallbackBlockingInterpolatesSessions(t *testing.T) {
	expl := Fallback(models.Event{
		EventType: models.EventTypeBlocking,
		Payload: map[string]any{
			"blocked_session_id":  float64(73),
			"blocking_session_id": float64(51),
			"wait_time_ms":        float64(12000),
		},
	})
	assert.Contains(t, expl.Summary, "session 73")
	assert.Contains(t, expl.Details, "12000 ms")
	assert.Contains(t, expl.Details, "session 51")
}

func TestFallbackSlowQueryFormatting(t *testing.T) {
	expl := Fallback(models.Event{
		EventType: models.EventTypeSlowQueries,
		Payload: map[string]any{
			"avg_elapsed_time_ms": float64(8421.5),
			"execution_count":     float64(312),
			"avg_logical_reads":   float64(45210),
			"query_text":          "SELECT * FROM Orders",
		},
	})
	assert.Contains(t, expl.Summary, "8.4 seconds")
	assert.Contains(t, expl.Details, "45,210")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "999 milliseconds", formatElapsed(999))
	assert.Equal(t, "1.0 seconds", formatElapsed(1000))
	assert.Equal(t, "8.4 seconds", formatElapsed(8421.5))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", formatCount(0))
	assert.Equal(t, "999", formatCount(999))
	assert.Equal(t, "1,000", formatCount(1000))
	assert.Equal(t, "45,210", formatCount(45210))
	assert.Equal(t, "1,234,567", formatCount(1234567))
}
