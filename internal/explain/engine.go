// Package explain resolves human-readable explanations for events through a
// primary AI backend with a deterministic template fallback. Explaining
// never fails: any backend problem degrades to the fallback.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dbmon/internal/logger"
	"dbmon/internal/models"

	"go.uber.org/zap"
)

// Source identifies which strategy produced an explanation.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

const defaultTimeout = 30 * time.Second

// Config for the primary backend (Ollama generate API). Passed explicitly
// at construction so concurrent engines with different settings do not
// interfere.
type Config struct {
	Enabled bool
	URL     string
	Model   string
	Timeout time.Duration
}

type Engine struct {
	cfg    Config
	client *http.Client
}

func NewEngine(cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Explain returns a well-formed explanation for the event, preferring the
// primary backend when it is enabled and responds with a complete result.
func (e *Engine) Explain(ctx context.Context, ev models.Event) models.Explanation {
	expl, _ := e.Resolve(ctx, ev)
	return expl
}

// Resolve is Explain plus the source that produced the result, so callers
// and tests can tell the variants apart without depending on the network.
func (e *Engine) Resolve(ctx context.Context, ev models.Event) (models.Explanation, Source) {
	if e.cfg.Enabled {
		expl, err := e.generate(ctx, ev)
		if err == nil {
			return expl, SourceAI
		}
		logger.Debug("AI explanation unavailable, using fallback",
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
	return Fallback(ev), SourceFallback
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (e *Engine) generate(ctx context.Context, ev models.Event) (models.Explanation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  e.cfg.Model,
		Prompt: buildPrompt(ev),
		Stream: false,
		Options: generateOptions{
			Temperature: 0.7,
			NumPredict:  500,
		},
	})
	if err != nil {
		return models.Explanation{}, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return models.Explanation{}, fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return models.Explanation{}, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Explanation{}, fmt.Errorf("generate returned status %d", resp.StatusCode)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return models.Explanation{}, fmt.Errorf("failed to decode generate response: %w", err)
	}

	var expl models.Explanation
	if err := json.Unmarshal([]byte(stripFences(gen.Response)), &expl); err != nil {
		return models.Explanation{}, fmt.Errorf("model response is not valid JSON: %w", err)
	}
	if !expl.Complete() {
		return models.Explanation{}, fmt.Errorf("model response is missing explanation fields")
	}
	return expl, nil
}

func buildPrompt(ev models.Event) string {
	payload, _ := json.MarshalIndent(ev.Payload, "", "  ")
	return fmt.Sprintf(`You are a database expert helping a junior developer understand a SQL Server issue.

EVENT TYPE: %s
EVENT DATA: %s

Provide a developer-friendly explanation with:
1. SUMMARY (one line, use emojis): What's happening in simple terms
2. DETAILS: Key metrics and what they mean
3. ANALYSIS: Why this is a problem (use analogies, no jargon)
4. RECOMMENDATIONS (3-5 items): Actionable steps starting with 👉 for immediate actions and 💡 for prevention tips

Keep it conversational and practical. Assume the developer knows SQL basics but not DBA concepts.

Respond ONLY with valid JSON in this exact format:
{
  "summary": "...",
  "details": "...",
  "analysis": "...",
  "recommendations": ["...", "..."]
}`, ev.EventType, payload)
}

// stripFences unwraps a markdown code block around the model's JSON, a
// common quirk of instruction-tuned models.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+len("```"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	return s
}
