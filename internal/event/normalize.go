package event

import (
	"time"

	"dbmon/internal/models"
)

// Normalizer converts raw sampled rows and replayed records into canonical
// events. Host and instance are the ambient identity of the monitored
// server; Now is swappable for tests.
type Normalizer struct {
	Host     string
	Instance string
	Now      func() time.Time
}

func NewNormalizer(host, instance string) *Normalizer {
	return &Normalizer{Host: host, Instance: instance, Now: time.Now}
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now().UTC()
	}
	return time.Now().UTC()
}

// FromRow builds an event from one raw data-source row. The payload is the
// full set of raw columns verbatim; nothing is dropped or renamed.
func (n *Normalizer) FromRow(eventType string, row map[string]any) models.Event {
	payload := make(map[string]any, len(row))
	for k, v := range row {
		payload[k] = v
	}
	return models.Event{
		Timestamp:   n.now(),
		EventType:   eventType,
		Host:        n.Host,
		SQLInstance: n.Instance,
		Payload:     payload,
	}
}

// FromRecord builds an event from a pre-shaped replay record. Timestamp,
// host and instance already present on the record are preserved for replay
// fidelity; missing ones are filled from the ambient values and the current
// time.
func (n *Normalizer) FromRecord(record map[string]any) models.Event {
	ev := models.Event{
		Timestamp:   n.now(),
		Host:        n.Host,
		SQLInstance: n.Instance,
	}
	if ts, ok := recordTime(record["@timestamp"]); ok {
		ev.Timestamp = ts
	}
	if s, ok := record["event_type"].(string); ok {
		ev.EventType = s
	}
	if s, ok := record["host"].(string); ok && s != "" {
		ev.Host = s
	}
	if s, ok := record["sql_instance"].(string); ok && s != "" {
		ev.SQLInstance = s
	}
	payload := map[string]any{}
	if raw, ok := record["payload"].(map[string]any); ok {
		for k, v := range raw {
			payload[k] = v
		}
	}
	ev.Payload = payload
	return ev
}

func recordTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
