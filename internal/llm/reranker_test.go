package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raphaelgruber/lecturekb/internal/config"
	"github.com/raphaelgruber/lecturekb/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-reranker", req.Model)
		assert.Equal(t, "query text", req.Query)
		assert.Len(t, req.Documents, 2)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(rerankResponse{
			Results: []RerankResult{
				{Index: 1, Score: 0.99},
				{Index: 0, Score: 0.42},
			},
		})
	}))
	defer server.Close()

	collector := metrics.NewCollector()
	reranker, err := NewReranker(config.Config{
		RerankURL:    server.URL,
		RerankModel:  "test-reranker",
		RerankAPIKey: "secret",
	}, collector)
	require.NoError(t, err)

	results, err := reranker.Rerank(context.Background(), "query text", []string{"doc a", "doc b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Index)
	assert.InDelta(t, 0.99, results[0].Score, 1e-9)

	// A successful call shows up in the rerank metrics.
	snap := collector.Snapshot()
	require.NotNil(t, snap.Rerank)
	assert.Equal(t, int64(1), snap.Rerank.Count)
}

func TestRerankEmptyDocuments(t *testing.T) {
	reranker, err := NewReranker(config.Config{RerankURL: "http://localhost:1", RerankModel: "m"}, nil)
	require.NoError(t, err)

	results, err := reranker.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestRerankServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	reranker, err := NewReranker(config.Config{RerankURL: server.URL, RerankModel: "m"}, nil)
	require.NoError(t, err)

	_, err = reranker.Rerank(context.Background(), "q", []string{"doc"})
	require.Error(t, err)
	assert.False(t, IsFatal(err), "500 is transient, not fatal")
}

func TestRerankUnauthorizedIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	reranker, err := NewReranker(config.Config{RerankURL: server.URL, RerankModel: "m"}, nil)
	require.NoError(t, err)

	_, err = reranker.Rerank(context.Background(), "q", []string{"doc"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestNewRerankerRequiresURL(t *testing.T) {
	_, err := NewReranker(config.Config{}, nil)
	require.Error(t, err)
}
