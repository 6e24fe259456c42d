package collector

import (
	"math/rand"
	"time"

	"dbmon/internal/models"
)

// GenerateEvents produces count randomized sample records across the known
// event types, shaped like replay input.
func GenerateEvents(count int) []map[string]any {
	records := make([]map[string]any, 0, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		eventType := models.EventTypes[rand.Intn(len(models.EventTypes))]
		record := generateEvent(eventType)
		record["@timestamp"] = now.Add(time.Duration(i) * time.Second).Format(time.RFC3339)
		records = append(records, record)
	}
	return records
}

func generateEvent(eventType string) map[string]any {
	switch eventType {
	case models.EventTypeBlocking:
		return map[string]any{
			"event_type": eventType,
			"payload": map[string]any{
				"blocked_session_id":  50 + rand.Intn(151),
				"blocking_session_id": 1 + rand.Intn(49),
				"wait_type":           pick("LCK_M_S", "LCK_M_X", "PAGEIOLATCH"),
				"wait_time_ms":        1000 + rand.Intn(119001),
				"database_name":       pick("Sales", "HR", "Orders"),
			},
		}
	case models.EventTypeDeadlocks:
		return map[string]any{
			"event_type": eventType,
			"payload":    map[string]any{"deadlock_xml": "<deadlock>...</deadlock>"},
		}
	case models.EventTypeOpenTransactions:
		return map[string]any{
			"event_type": eventType,
			"payload": map[string]any{
				"transaction_id":    100000 + rand.Intn(900000),
				"transaction_state": 1 + rand.Intn(6),
			},
		}
	case models.EventTypeMissingIndexes:
		return map[string]any{
			"event_type": eventType,
			"payload": map[string]any{
				"database_name":    "Sales",
				"table_name":       "dbo.Orders",
				"avg_user_impact":  10 + rand.Intn(86),
				"equality_columns": "CustomerId",
			},
		}
	case models.EventTypeSlowQueries:
		return map[string]any{
			"event_type": eventType,
			"payload": map[string]any{
				"avg_elapsed_time_ms": 500 + rand.Intn(59501),
				"execution_count":     1 + rand.Intn(1000),
				"query_text":          "SELECT * FROM Orders WHERE Status = 'Pending'",
			},
		}
	case models.EventTypeCPUMemory:
		return map[string]any{
			"event_type": eventType,
			"payload": map[string]any{
				"cpu_percent":         5 + rand.Intn(96),
				"available_memory_mb": 100 + rand.Intn(63901),
				"total_memory_mb":     65536,
			},
		}
	case models.EventTypeTempdbHealth:
		return map[string]any{
			"event_type": eventType,
			"payload": map[string]any{
				"user_objects_kb":     10000 + rand.Intn(190001),
				"internal_objects_kb": 10000 + rand.Intn(190001),
				"version_store_kb":    10000 + rand.Intn(190001),
				"free_space_kb":       1000 + rand.Intn(49001),
			},
		}
	}
	return map[string]any{"event_type": eventType, "payload": map[string]any{}}
}

func pick(options ...string) string {
	return options[rand.Intn(len(options))]
}
