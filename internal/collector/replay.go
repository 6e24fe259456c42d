package collector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"dbmon/internal/event"
	"dbmon/internal/models"
)

// ReplayCollector reads pre-shaped sample records from a JSONL file instead
// of a live instance. Used for demos and tests.
type ReplayCollector struct {
	path string
	norm *event.Normalizer
}

func NewReplayCollector(path string, norm *event.Normalizer) *ReplayCollector {
	return &ReplayCollector{path: path, norm: norm}
}

// Collect loads and normalizes the sample file. Timestamps, hosts and
// instances carried by the records are preserved for replay fidelity.
func (c *ReplayCollector) Collect() ([]models.Event, error) {
	records, err := ReadJSONL(c.path)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(records))
	for _, record := range records {
		events = append(events, c.norm.FromRecord(record))
	}
	return events, nil
}

// ReadJSONL reads one JSON object per non-empty line.
func ReadJSONL(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file: %w", err)
	}
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample file: %w", err)
	}
	return records, nil
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return w.Flush()
}

// Chunk splits a batch into slices of at most size events, for bounded bulk
// requests.
func Chunk(events []models.Event, size int) [][]models.Event {
	if size <= 0 {
		size = 200
	}
	var chunks [][]models.Event
	for start := 0; start < len(events); start += size {
		end := start + size
		if end > len(events) {
			end = len(events)
		}
		chunks = append(chunks, events[start:end])
	}
	return chunks
}
