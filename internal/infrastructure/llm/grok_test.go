package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
)

func chatBody(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(payload)
}

func newTestClient(t *testing.T, url string, ttl time.Duration) *GrokClient {
	t.Helper()

	client, err := NewGrokClient(config.EnrichmentConfig{
		Endpoint:    url,
		Model:       "grok-test",
		APIKey:      "secret",
		MaxTokens:   500,
		Temperature: 0.2,
		CacheTTL:    ttl,
	}, nil, nil)
	require.NoError(t, err)
	return client
}

func candidate(name, address string) domain.Candidate {
	return domain.Candidate{
		Name:       name,
		Address:    address,
		Coordinate: domain.Coordinate{Lat: 37.78, Lng: -122.41},
		Category:   domain.CategoryCoffee,
	}
}

func TestEnrichBuildsRequestAndMatchesResults(t *testing.T) {
	t.Parallel()

	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(chatBody("```json\n" + `[
			{"name":"blue bottle","wifi":4,"noise":"Low","plugs":true,"tip":"Great espresso"},
			{"name":"Sightglass at 270 7th Street","wifi":"5","noise":"loud","plugs":"yes","tip":"<b>Big</b> tables"}
		]` + "\n```")))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	batch := []domain.Candidate{
		candidate("Blue Bottle", "66 Mint Street"),
		candidate("Sightglass", "270 7th Street"),
		candidate("Ritual", "1026 Valencia Street"),
	}

	results, err := client.Enrich(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, domain.EnrichmentResult{Wifi: 4, Noise: "Low", HasOutlets: true, Tip: "Great espresso"}, results[0])
	assert.Equal(t, domain.EnrichmentResult{Wifi: 5, Noise: "High", HasOutlets: true, Tip: "Big tables"}, results[1])
	assert.Equal(t, domain.DefaultEnrichment(), results[2], "unmatched place falls back to defaults")

	assert.Equal(t, "grok-test", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Blue Bottle at 66 Mint Street")
	assert.Contains(t, got.Messages[0].Content, "Ritual at 1026 Valencia Street")
}

func TestEnrichErrorsAreTyped(t *testing.T) {
	t.Parallel()

	t.Run("api_error", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := newTestClient(t, server.URL, 0).Enrich(context.Background(), []domain.Candidate{candidate("A", "B")})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
		assert.Equal(t, "quota exceeded", apiErr.Body)
	})

	t.Run("malformed_envelope", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{broken"))
		}))
		defer server.Close()

		_, err := newTestClient(t, server.URL, 0).Enrich(context.Background(), []domain.Candidate{candidate("A", "B")})
		var decErr *DecodingError
		require.ErrorAs(t, err, &decErr)
	})

	t.Run("malformed_content", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(chatBody("Sorry, I cannot help with that.")))
		}))
		defer server.Close()

		_, err := newTestClient(t, server.URL, 0).Enrich(context.Background(), []domain.Candidate{candidate("A", "B")})
		var decErr *DecodingError
		require.ErrorAs(t, err, &decErr)
	})

	t.Run("network", func(t *testing.T) {
		t.Parallel()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := newTestClient(t, url, 0).Enrich(context.Background(), []domain.Candidate{candidate("A", "B")})
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
	})
}

func TestEnrichRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	batch := make([]domain.Candidate, MaxBatchSize+1)
	for i := range batch {
		batch[i] = candidate(fmt.Sprintf("Place %d", i), "Somewhere")
	}

	_, err := newTestClient(t, "http://127.0.0.1:0", 0).Enrich(context.Background(), batch)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestNewGrokClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGrokClient(config.EnrichmentConfig{Endpoint: "http://example"}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestEnrichCachesMatchedResults(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(chatBody(`[{"name":"Blue Bottle","wifi":4,"noise":"Low","plugs":true,"tip":"Great espresso"}]`)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Minute)
	batch := []domain.Candidate{candidate("Blue Bottle", "66 Mint Street")}

	first, err := client.Enrich(context.Background(), batch)
	require.NoError(t, err)
	second, err := client.Enrich(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnrichDoesNotCacheDefaults(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(chatBody(`[]`)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Minute)
	batch := []domain.Candidate{candidate("Ritual", "1026 Valencia Street")}

	for i := 0; i < 2; i++ {
		results, err := client.Enrich(context.Background(), batch)
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultEnrichment(), results[0])
	}
	assert.Equal(t, int32(2), calls.Load())
}
