package collector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmon/internal/event"
	"dbmon/internal/models"
)

func TestJSONLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	records := []map[string]any{
		{"event_type": "blocking", "payload": map[string]any{"session_id": float64(51)}},
		{"event_type": "cpu_memory", "payload": map[string]any{"cpu_percent": float64(90)}},
	}

	require.NoError(t, WriteJSONL(path, records))

	got, err := ReadJSONL(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadJSONLSkipsEmptyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"event_type":"blocking"}

{"event_type":"deadlocks"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records, err := ReadJSONL(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadJSONLReportsBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"event_type":"blocking"}
not json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := ReadJSONL(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReplayCollectorNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	records := []map[string]any{
		{
			"@timestamp": "2026-01-02T03:04:05Z",
			"event_type": "blocking",
			"payload":    map[string]any{"session_id": float64(51)},
		},
	}
	require.NoError(t, WriteJSONL(path, records))

	norm := event.NewNormalizer("test-host", "test-host\\SQL1")
	events, err := NewReplayCollector(path, norm).Collect()
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, models.EventTypeBlocking, events[0].EventType)
	assert.Equal(t, "test-host", events[0].Host)
	assert.Equal(t, float64(51), events[0].Payload["session_id"])
	assert.Equal(t, 2026, events[0].Timestamp.Year())
}

func TestChunk(t *testing.T) {
	events := make([]models.Event, 5)

	chunks := Chunk(events, 2)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 2)
	assert.Len(t, chunks[2], 1)

	assert.Empty(t, Chunk(nil, 2))

	// Non-positive size falls back to the default.
	assert.Len(t, Chunk(events, 0), 1)
}

func TestGenerateEvents(t *testing.T) {
	records := GenerateEvents(50)
	require.Len(t, records, 50)

	known := make(map[string]bool, len(models.EventTypes))
	for _, eventType := range models.EventTypes {
		known[eventType] = true
	}

	for _, record := range records {
		eventType, ok := record["event_type"].(string)
		require.True(t, ok)
		assert.True(t, known[eventType], "unknown event type %q", eventType)
		assert.NotEmpty(t, record["@timestamp"])
		_, ok = record["payload"].(map[string]any)
		assert.True(t, ok)
	}
}
