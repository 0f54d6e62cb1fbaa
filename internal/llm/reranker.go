package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/lecturekb/internal/config"
	"github.com/raphaelgruber/lecturekb/internal/metrics"
)

// RerankResult is one scored document from a rerank call.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Reranker scores query/document relevance through a cross-encoder
// rerank HTTP API.
type Reranker struct {
	url       string
	model     string
	apiKey    string
	client    *http.Client
	collector *metrics.Collector
}

// NewReranker creates a rerank client. Returns an error when no
// endpoint is configured so callers can decide to skip reranking.
// collector may be nil; when set, successful calls record their timing
// under the rerank operation.
func NewReranker(cfg config.Config, collector *metrics.Collector) (*Reranker, error) {
	if cfg.RerankURL == "" {
		return nil, fmt.Errorf("rerank URL not configured")
	}
	return &Reranker{
		url:       cfg.RerankURL,
		model:     cfg.RerankModel,
		apiKey:    cfg.RerankAPIKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		collector: collector,
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank scores every document against the query. Results come back
// in API order; callers sort by score.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, wrapFatalError(fmt.Errorf("rerank status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	if r.collector != nil {
		r.collector.RecordTiming(metrics.OpRerank, time.Since(start))
	}
	slog.Debug("rerank complete", "model", r.model, "documents", len(documents), "duration_ms", time.Since(start).Milliseconds())
	return parsed.Results, nil
}

// Model returns the rerank model name.
func (r *Reranker) Model() string {
	return r.model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
