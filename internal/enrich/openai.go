package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig points the enrichment clients at an OpenAI-compatible API.
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	EmbedModel     string
	SummaryModel   string
	Timeout        time.Duration
	EmbedBatchSize int
	MaxInputRunes  int
}

const (
	defaultEmbedModel     = "text-embedding-3-small"
	defaultSummaryModel   = "gpt-4o-mini"
	defaultEmbedBatchSize = 64
	defaultMaxInputRunes  = 8000
)

func (c *OpenAIConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.EmbedModel == "" {
		c.EmbedModel = defaultEmbedModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = defaultSummaryModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = defaultEmbedBatchSize
	}
	if c.MaxInputRunes <= 0 {
		c.MaxInputRunes = defaultMaxInputRunes
	}
}

// OpenAIEmbedder implements catalog.Embedder over the /embeddings endpoint.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger *zap.Logger
}

// NewOpenAIEmbedder constructs an embedder client.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *zap.Logger) *OpenAIEmbedder {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch embeds texts in provider-sized chunks. A failed chunk degrades
// to nil vectors for its items; only context cancellation aborts the whole
// batch. The returned slice always has len(texts) entries.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.cfg.EmbedBatchSize {
		end := start + e.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := make([]string, end-start)
		for i, t := range texts[start:end] {
			chunk[i] = truncateRunes(t, e.cfg.MaxInputRunes)
		}

		vectors, err := e.embedChunk(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("embedding chunk failed",
				zap.Int("offset", start),
				zap.Int("size", len(chunk)),
				zap.Error(err))
			continue
		}
		copy(out[start:end], vectors)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedChunk(ctx context.Context, chunk []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.cfg.EmbedModel, Input: chunk})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embeddings endpoint returned %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	vectors := make([][]float32, len(chunk))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(vectors) {
			vectors[d.Index] = d.Embedding
		}
	}
	return vectors, nil
}

// OpenAISummarizer implements catalog.Summarizer over chat completions.
type OpenAISummarizer struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger *zap.Logger
}

// NewOpenAISummarizer constructs a summarizer client.
func NewOpenAISummarizer(cfg OpenAIConfig, logger *zap.Logger) *OpenAISummarizer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAISummarizer{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

const summaryPrompt = "Write one plain sentence, under 30 words, describing this product for a shopping catalog. No marketing language."

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize produces a one-line summary of the product text.
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.cfg.SummaryModel,
		Messages: []chatMessage{
			{Role: "system", Content: summaryPrompt},
			{Role: "user", Content: truncateRunes(text, s.cfg.MaxInputRunes)},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat endpoint returned %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
