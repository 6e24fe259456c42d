package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"dbmon/internal/config"
	"dbmon/internal/event"
	"dbmon/internal/logger"
	"dbmon/internal/models"
)

const (
	defaultSearchSize = 50
	maxSearchSize     = 200
	snapshotSize      = 100
)

// Client wraps the Elasticsearch store holding historical events and
// alerts. A nil client no-ops every operation, so the rest of the service
// works without a store (mock demos, unit tests).
type Client struct {
	es  *elasticsearch.Client
	cfg config.ElasticsearchConfig
}

func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	esConfig := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.APIKey != "" {
		esConfig.APIKey = cfg.APIKey
	} else if cfg.Username != "" {
		esConfig.Username = cfg.Username
		esConfig.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	logger.Info("Elasticsearch client initialized",
		zap.Strings("addresses", cfg.Addresses),
		zap.String("metrics_index", cfg.MetricsIndex),
		zap.String("alerts_index", cfg.AlertsIndex),
	)

	return &Client{es: es, cfg: cfg}, nil
}

// MetricsIndex is the index holding event documents.
func (c *Client) MetricsIndex() string { return c.cfg.MetricsIndex }

// AlertsIndex is the index holding alert documents.
func (c *Client) AlertsIndex() string { return c.cfg.AlertsIndex }

// IndexEvents bulk-appends events to the metrics index.
func (c *Client) IndexEvents(ctx context.Context, events []models.Event) error {
	if c == nil || c.es == nil {
		return nil
	}
	docs := make([]any, len(events))
	for i, ev := range events {
		docs[i] = ev
	}
	return c.BulkIndex(ctx, c.cfg.MetricsIndex, docs)
}

// IndexAlerts bulk-appends alerts to the alerts index.
func (c *Client) IndexAlerts(ctx context.Context, alerts []models.Alert) error {
	if c == nil || c.es == nil {
		return nil
	}
	docs := make([]any, len(alerts))
	for i, a := range alerts {
		docs[i] = a
	}
	return c.BulkIndex(ctx, c.cfg.AlertsIndex, docs)
}

// BulkIndex appends documents to an index with an immediate refresh so the
// next cycle's snapshot query can see them.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []any) error {
	if c == nil || c.es == nil || len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	action := fmt.Sprintf(`{"index":{"_index":%q}}`, index)
	for _, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal bulk document: %w", err)
		}
		buf.WriteString(action)
		buf.WriteByte('\n')
		buf.Write(body)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk index failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk error: %s", res.String())
	}

	logger.Debug("Documents indexed",
		zap.String("index", index),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Query selects historical documents by event type and time range. Start
// and End accept Elasticsearch date math ("now-2m") as well as absolute
// timestamps; both empty means the last two minutes.
type Query struct {
	EventType string
	Start     string
	End       string
	Size      int
	From      int
}

func (q Query) searchBody() map[string]any {
	var filters []map[string]any
	start, end := q.Start, q.End
	if start == "" && end == "" {
		start, end = "now-2m", "now"
	}
	rangeQuery := map[string]any{}
	if start != "" {
		rangeQuery["gte"] = start
	}
	if end != "" {
		rangeQuery["lte"] = end
	}
	filters = append(filters, map[string]any{
		"range": map[string]any{"@timestamp": rangeQuery},
	})
	if q.EventType != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"event_type": q.EventType},
		})
	}

	size := q.Size
	if size <= 0 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
		"size": size,
		"from": q.From,
		"sort": []map[string]any{
			{"@timestamp": map[string]any{"order": "desc"}},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

func (c *Client) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(raw),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var response searchResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &response, nil
}

// SearchEvents returns events matching the query, newest first, with the
// total hit count.
func (c *Client) SearchEvents(ctx context.Context, q Query) ([]models.Event, int64, error) {
	if c == nil || c.es == nil {
		return []models.Event{}, 0, nil
	}

	response, err := c.search(ctx, c.cfg.MetricsIndex, q.searchBody())
	if err != nil {
		return nil, 0, err
	}

	events := make([]models.Event, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		var ev models.Event
		if err := json.Unmarshal(hit.Source, &ev); err != nil {
			logger.Warn("Skipping undecodable event document", zap.Error(err))
			continue
		}
		events = append(events, ev)
	}
	return events, response.Hits.Total.Value, nil
}

// SearchAlerts returns alerts in the time range, newest first.
func (c *Client) SearchAlerts(ctx context.Context, q Query) ([]models.Alert, error) {
	if c == nil || c.es == nil {
		return []models.Alert{}, nil
	}

	response, err := c.search(ctx, c.cfg.AlertsIndex, q.searchBody())
	if err != nil {
		return nil, err
	}

	alerts := make([]models.Alert, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		var a models.Alert
		if err := json.Unmarshal(hit.Source, &a); err != nil {
			logger.Warn("Skipping undecodable alert document", zap.Error(err))
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// LatestSnapshot materializes the most recently persisted batch of one
// event type as an identity-key map, for delta classification. Documents
// are read newest first and the first occurrence per key wins; events
// without a usable key are skipped, since they can never be compared.
func (c *Client) LatestSnapshot(ctx context.Context, eventType string) (map[string]models.Event, error) {
	if c == nil || c.es == nil {
		return map[string]models.Event{}, nil
	}

	events, _, err := c.SearchEvents(ctx, Query{
		EventType: eventType,
		Start:     "now-1h",
		End:       "now",
		Size:      snapshotSize,
	})
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]models.Event, len(events))
	for _, ev := range events {
		key, ok := event.Key(ev.EventType, ev.Payload)
		if !ok {
			continue
		}
		if _, seen := snapshot[key]; !seen {
			snapshot[key] = ev
		}
	}
	return snapshot, nil
}

// Stats summarizes the metrics index over a time range.
type Stats struct {
	TotalEvents   int64            `json:"total_events"`
	EventCounts   map[string]int64 `json:"event_counts"`
	AvgCPU        *float64         `json:"avg_cpu"`
	AvgFreeTempdb *float64         `json:"avg_free_tempdb"`
}

// GetStats aggregates event counts by type plus average CPU and free
// tempdb space over the time range.
func (c *Client) GetStats(ctx context.Context, start, end string) (*Stats, error) {
	if c == nil || c.es == nil {
		return &Stats{EventCounts: map[string]int64{}}, nil
	}

	body := Query{Start: start, End: end}.searchBody()
	body["size"] = 0
	body["aggs"] = map[string]any{
		"by_event_type": map[string]any{
			"terms": map[string]any{"field": "event_type"},
		},
		"avg_cpu": map[string]any{
			"avg": map[string]any{"field": "payload.cpu_percent"},
		},
		"avg_free_tempdb": map[string]any{
			"avg": map[string]any{"field": "payload.free_space_kb"},
		},
	}
	delete(body, "sort")

	response, err := c.search(ctx, c.cfg.MetricsIndex, body)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalEvents: response.Hits.Total.Value,
		EventCounts: map[string]int64{},
	}

	if raw, ok := response.Aggregations["by_event_type"]; ok {
		var agg struct {
			Buckets []struct {
				Key      string `json:"key"`
				DocCount int64  `json:"doc_count"`
			} `json:"buckets"`
		}
		if err := json.Unmarshal(raw, &agg); err == nil {
			for _, bucket := range agg.Buckets {
				stats.EventCounts[bucket.Key] = bucket.DocCount
			}
		}
	}
	stats.AvgCPU = avgValue(response.Aggregations["avg_cpu"])
	stats.AvgFreeTempdb = avgValue(response.Aggregations["avg_free_tempdb"])

	return stats, nil
}

func avgValue(raw json.RawMessage) *float64 {
	if raw == nil {
		return nil
	}
	var agg struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil
	}
	return agg.Value
}

// CreateIndexTemplates installs templates for the metrics and alerts
// indices so event_type, severity and the timestamp are mapped correctly
// before the first document lands.
func (c *Client) CreateIndexTemplates() error {
	if c == nil || c.es == nil {
		return nil
	}

	templates := map[string]map[string]any{
		c.cfg.MetricsIndex: {
			"index_patterns": []string{c.cfg.MetricsIndex + "*"},
			"template": map[string]any{
				"settings": map[string]any{
					"number_of_shards":   1,
					"number_of_replicas": 1,
					"refresh_interval":   "5s",
				},
				"mappings": map[string]any{
					"properties": map[string]any{
						"@timestamp":   map[string]string{"type": "date"},
						"event_type":   map[string]string{"type": "keyword"},
						"host":         map[string]string{"type": "keyword"},
						"sql_instance": map[string]string{"type": "keyword"},
						"payload":      map[string]string{"type": "object"},
					},
				},
			},
		},
		c.cfg.AlertsIndex: {
			"index_patterns": []string{c.cfg.AlertsIndex + "*"},
			"template": map[string]any{
				"settings": map[string]any{
					"number_of_shards":   1,
					"number_of_replicas": 1,
					"refresh_interval":   "5s",
				},
				"mappings": map[string]any{
					"properties": map[string]any{
						"@timestamp":      map[string]string{"type": "date"},
						"alert_id":        map[string]string{"type": "keyword"},
						"severity":        map[string]string{"type": "keyword"},
						"message":         map[string]string{"type": "text"},
						"event":           map[string]string{"type": "object"},
						"explanation":     map[string]string{"type": "object"},
						"recommendations": map[string]string{"type": "text"},
					},
				},
			},
		},
	}

	for index, template := range templates {
		body, err := json.Marshal(template)
		if err != nil {
			return fmt.Errorf("failed to marshal index template: %w", err)
		}

		req := esapi.IndicesPutIndexTemplateRequest{
			Name: index + "-template",
			Body: bytes.NewReader(body),
		}
		res, err := req.Do(context.Background(), c.es)
		if err != nil {
			return fmt.Errorf("failed to create index template: %w", err)
		}
		res.Body.Close()

		if res.IsError() {
			logger.Warn("Failed to create index template",
				zap.String("index", index),
				zap.String("response", res.String()),
			)
		} else {
			logger.Info("Index template created", zap.String("index", index))
		}
	}
	return nil
}

// TotalEvents counts event documents in the time range.
func (c *Client) TotalEvents(ctx context.Context, start, end string) (int64, error) {
	if c == nil || c.es == nil {
		return 0, nil
	}
	body := Query{Start: start, End: end}.searchBody()
	body["size"] = 0
	delete(body, "sort")

	response, err := c.search(ctx, c.cfg.MetricsIndex, body)
	if err != nil {
		return 0, err
	}
	return response.Hits.Total.Value, nil
}

// WaitForCluster blocks until the cluster responds or the timeout elapses.
// Used at startup so a slow-starting store does not fail the service.
func (c *Client) WaitForCluster(timeout time.Duration) error {
	if c == nil || c.es == nil {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		res, err := c.es.Info()
		if err == nil {
			res.Body.Close()
			if !res.IsError() {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("elasticsearch not reachable within %s", timeout)
		}
		time.Sleep(2 * time.Second)
	}
}
