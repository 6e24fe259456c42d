package event

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmon/internal/models"
)

func TestKeyBlockingPrefersBlockingSession(t *testing.T) {
	key, ok := Key(models.EventTypeBlocking, map[string]any{
		"blocking_session_id": float64(51),
		"session_id":          float64(73),
		"query_text":          "SELECT 1",
	})
	require.True(t, ok)
	assert.Equal(t, "51", key)
}

func TestKeySessionIDBeatsQueryText(t *testing.T) {
	key, ok := Key(models.EventTypeOpenTransactions, map[string]any{
		"session_id": float64(5),
		"query_text": "SELECT * FROM Orders",
	})
	require.True(t, ok)
	assert.Equal(t, "5", key)
}

func TestKeyNumericRepresentationsAgree(t *testing.T) {
	// A session id scanned from the database (int64) and the same id
	// decoded from a persisted document (float64) must produce the same key.
	fromDB, ok := Key(models.EventTypeOpenTransactions, map[string]any{"session_id": int64(42)})
	require.True(t, ok)
	fromDoc, ok := Key(models.EventTypeOpenTransactions, map[string]any{"session_id": float64(42)})
	require.True(t, ok)
	assert.Equal(t, fromDB, fromDoc)
}

func TestKeyQueryTextPrefix(t *testing.T) {
	long := strings.Repeat("SELECT * FROM Orders WHERE Id = 1; ", 10)
	require.Greater(t, len(long), 100)

	key, ok := Key(models.EventTypeSlowQueries, map[string]any{"query_text": long})
	require.True(t, ok)
	assert.Equal(t, long[:100], key)

	short, ok := Key(models.EventTypeSlowQueries, map[string]any{"query_text": "SELECT 1"})
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", short)
}

func TestKeyDeadlockID(t *testing.T) {
	key, ok := Key(models.EventTypeDeadlocks, map[string]any{
		"deadlock_id":  "deadlock-001",
		"deadlock_xml": "<deadlock/>",
	})
	require.True(t, ok)
	assert.Equal(t, "deadlock-001", key)
}

func TestKeyAbsent(t *testing.T) {
	cases := []map[string]any{
		{},
		{"cpu_percent": float64(90)},
		{"query_text": ""},
		{"session_id": nil},
	}
	for _, payload := range cases {
		_, ok := Key(models.EventTypeCPUMemory, payload)
		assert.False(t, ok, "payload %v should have no key", payload)
	}
}
