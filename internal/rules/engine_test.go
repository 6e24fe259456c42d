package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbmon/internal/models"
)

type stubExplainer struct {
	calls int
}

func (s *stubExplainer) Explain(_ context.Context, _ models.Event) models.Explanation {
	s.calls++
	return models.Explanation{
		Summary:         "stub",
		Details:         "stub",
		Analysis:        "stub",
		Recommendations: []string{"stub"},
	}
}

func waitRule(op string, value any) models.Rule {
	return models.Rule{
		ID:        "blocking-long-wait",
		EventType: models.EventTypeBlocking,
		Field:     "wait_time_ms",
		Op:        op,
		Value:     value,
		Severity:  models.SeverityHigh,
		Message:   "Session blocked too long",
	}
}

func blockingEvent(waitMs any) models.Event {
	return models.Event{
		EventType: models.EventTypeBlocking,
		Payload:   map[string]any{"wait_time_ms": waitMs, "blocking_session_id": float64(51)},
	}
}

func TestEvaluateThresholdMatch(t *testing.T) {
	stub := &stubExplainer{}
	engine := NewEngine(stub)

	alerts := engine.Evaluate(context.Background(),
		[]models.Event{blockingEvent(float64(12000))},
		[]models.Rule{waitRule(">", 5000)},
	)

	require.Len(t, alerts, 1)
	assert.Equal(t, "blocking-long-wait", alerts[0].AlertID)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Session blocked too long", alerts[0].Message)
	assert.True(t, alerts[0].Explanation.Complete())
	assert.Equal(t, 1, stub.calls)
}

func TestEvaluateOperators(t *testing.T) {
	cases := []struct {
		op      string
		value   any
		payload any
		match   bool
	}{
		{">", 5000, float64(12000), true},
		{">", 5000, float64(5000), false},
		{">=", 5000, float64(5000), true},
		{"<", 100, float64(50), true},
		{"<=", 100, float64(100), true},
		{"==", 100, float64(100), true},
		{"!=", 100, float64(100), false},
		// YAML integer threshold against int64 payload
		{">", 5000, int64(6000), true},
	}
	engine := NewEngine(nil)
	for _, tc := range cases {
		alerts := engine.Evaluate(context.Background(),
			[]models.Event{blockingEvent(tc.payload)},
			[]models.Rule{waitRule(tc.op, tc.value)},
		)
		if tc.match {
			assert.Len(t, alerts, 1, "op %s value %v payload %v", tc.op, tc.value, tc.payload)
		} else {
			assert.Empty(t, alerts, "op %s value %v payload %v", tc.op, tc.value, tc.payload)
		}
	}
}

func TestEvaluateStringComparison(t *testing.T) {
	engine := NewEngine(nil)
	rule := models.Rule{
		ID:        "lock-wait-type",
		EventType: models.EventTypeBlocking,
		Field:     "wait_type",
		Op:        "==",
		Value:     "LCK_M_X",
		Severity:  models.SeverityMedium,
	}
	ev := models.Event{
		EventType: models.EventTypeBlocking,
		Payload:   map[string]any{"wait_type": "LCK_M_X"},
	}

	alerts := engine.Evaluate(context.Background(), []models.Event{ev}, []models.Rule{rule})
	assert.Len(t, alerts, 1)
}

func TestEvaluateAbsentFieldNeverMatches(t *testing.T) {
	engine := NewEngine(nil)
	ev := models.Event{EventType: models.EventTypeBlocking, Payload: map[string]any{}}

	alerts := engine.Evaluate(context.Background(), []models.Event{ev}, []models.Rule{waitRule(">", 0)})
	assert.Empty(t, alerts)
}

func TestEvaluateKindMismatchNeverMatches(t *testing.T) {
	engine := NewEngine(nil)

	// numeric payload vs string threshold
	alerts := engine.Evaluate(context.Background(),
		[]models.Event{blockingEvent(float64(12000))},
		[]models.Rule{waitRule(">", "high")},
	)
	assert.Empty(t, alerts)

	// string payload vs numeric threshold
	alerts = engine.Evaluate(context.Background(),
		[]models.Event{blockingEvent("12000")},
		[]models.Rule{waitRule(">", 5000)},
	)
	assert.Empty(t, alerts)

	// nil payload value
	alerts = engine.Evaluate(context.Background(),
		[]models.Event{blockingEvent(nil)},
		[]models.Rule{waitRule(">", 5000)},
	)
	assert.Empty(t, alerts)
}

func TestEvaluateEventTypeFilter(t *testing.T) {
	engine := NewEngine(nil)
	ev := models.Event{
		EventType: models.EventTypeCPUMemory,
		Payload:   map[string]any{"wait_time_ms": float64(99999)},
	}

	alerts := engine.Evaluate(context.Background(), []models.Event{ev}, []models.Rule{waitRule(">", 0)})
	assert.Empty(t, alerts)
}

func TestEvaluateMultipleRulesPerEvent(t *testing.T) {
	engine := NewEngine(nil)
	second := waitRule(">", 1000)
	second.ID = "blocking-any-wait"

	alerts := engine.Evaluate(context.Background(),
		[]models.Event{blockingEvent(float64(12000)), blockingEvent(float64(500))},
		[]models.Rule{waitRule(">", 5000), second},
	)

	// First event matches both rules, second matches none; order is
	// event-then-rule.
	require.Len(t, alerts, 2)
	assert.Equal(t, "blocking-long-wait", alerts[0].AlertID)
	assert.Equal(t, "blocking-any-wait", alerts[1].AlertID)
}
