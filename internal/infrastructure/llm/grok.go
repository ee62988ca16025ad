package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"SpotFinder/internal/config"
	"SpotFinder/internal/domain"
	"SpotFinder/internal/geo"
	"SpotFinder/internal/logging"
	"SpotFinder/internal/ports"
)

// MaxBatchSize is the largest number of places sent in one request.
const MaxBatchSize = 10

// GrokClient implements ports.Enricher backed by an OpenAI-compatible chat completions API.
type GrokClient struct {
	endpoint    string
	model       string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	cache       *cache.Cache
	logger      *slog.Logger
}

var _ ports.Enricher = (*GrokClient)(nil)

// NewGrokClient builds a client from configuration. A nil httpClient gets a timeout-bound default.
func NewGrokClient(cfg config.EnrichmentConfig, httpClient *http.Client, log *slog.Logger) (*GrokClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	var results *cache.Cache
	if cfg.CacheTTL > 0 {
		results = cache.New(cfg.CacheTTL, cfg.CacheTTL*2)
	}

	return &GrokClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
		cache:       results,
		logger:      logging.OrDiscard(log),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enrich asks the model for attributes of up to MaxBatchSize places.
// It never retries; callers fall back to default enrichment on error.
func (c *GrokClient) Enrich(ctx context.Context, batch []domain.Candidate) ([]domain.EnrichmentResult, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if len(batch) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	results := make([]domain.EnrichmentResult, len(batch))
	var (
		pending    []domain.Candidate
		pendingIdx []int
	)
	for i, cand := range batch {
		if cached, ok := c.lookup(cand); ok {
			results[i] = cached
			continue
		}
		pending = append(pending, cand)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) == 0 {
		c.logger.Debug("enrichment served from cache", "places", len(batch))
		return results, nil
	}

	content, err := c.complete(ctx, buildPrompt(pending))
	if err != nil {
		return nil, err
	}

	attrs, err := parseAttributes(content)
	if err != nil {
		return nil, &DecodingError{Cause: err}
	}

	fresh, matched := matchResults(pending, attrs)
	unmatched := 0
	for k, idx := range pendingIdx {
		results[idx] = fresh[k]
		if matched[k] {
			c.store(pending[k], fresh[k])
		} else {
			unmatched++
		}
	}

	c.logger.Debug("enrichment batch done",
		"places", len(batch),
		"requested", len(pending),
		"unmatched", unmatched)

	return results, nil
}

func (c *GrokClient) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", &EncodingError{Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &EncodingError{Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &DecodingError{Cause: err}
	}
	if len(decoded.Choices) == 0 {
		return "", &DecodingError{Cause: errors.New("response has no choices")}
	}

	return decoded.Choices[0].Message.Content, nil
}

func (c *GrokClient) lookup(cand domain.Candidate) (domain.EnrichmentResult, bool) {
	if c.cache == nil {
		return domain.EnrichmentResult{}, false
	}
	v, found := c.cache.Get(geo.CompositeKey(cand.Name, cand.Address))
	if !found {
		return domain.EnrichmentResult{}, false
	}
	result, ok := v.(domain.EnrichmentResult)
	return result, ok
}

func (c *GrokClient) store(cand domain.Candidate, result domain.EnrichmentResult) {
	if c.cache == nil {
		return
	}
	c.cache.Set(geo.CompositeKey(cand.Name, cand.Address), result, cache.DefaultExpiration)
}
