// Package llm wraps the Gemini API behind the three capabilities the pipeline
// needs: text generation, sentence embeddings, and sentiment classification.
// Calls rotate round-robin across the configured key pool.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"marketintel/internal/core"
)

const (
	// DefaultModel is the generation model.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel produces the sentence embeddings for clustering.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// EmbeddingDimensions is the Matryoshka output dimension.
	EmbeddingDimensions = int32(384)
	// EmbedBatchSize caps texts per embedding request.
	EmbedBatchSize = 16
)

// Client is a Gemini client over an ordered key pool. One underlying client
// exists per key; calls rotate round-robin. A single failure does not bench a
// key.
type Client struct {
	model   string
	clients []*genai.Client

	mu   sync.Mutex
	next int
}

// NewClient creates the pooled client. At least one key is required.
func NewClient(ctx context.Context, keys []string, model string) (*Client, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	clients := make([]*genai.Client, 0, len(keys))
	for _, key := range keys {
		gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		clients = append(clients, gClient)
	}

	return &Client{model: model, clients: clients}, nil
}

// pick returns the next client in rotation.
func (c *Client) pick() *genai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	client := c.clients[c.next]
	c.next = (c.next + 1) % len(c.clients)
	return client
}

// GenerateText runs one prompt and returns the model's plain-text response.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := c.pick().Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// EmbedTexts embeds a batch of texts, at most EmbedBatchSize per API call,
// returning one vector per input in order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	var vectors [][]float64
	for start := 0; start < len(texts); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			if len(text) > 8000 {
				text = text[:8000]
			}
			contents = append(contents, &genai.Content{
				Parts: []*genai.Part{{Text: text}},
				Role:  "user",
			})
		}

		dims := EmbeddingDimensions
		config := &genai.EmbedContentConfig{OutputDimensionality: &dims}

		resp, err := c.pick().Models.EmbedContent(ctx, DefaultEmbeddingModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if resp == nil || len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d",
				len(resp.Embeddings), end-start)
		}

		for _, emb := range resp.Embeddings {
			if emb == nil {
				return nil, fmt.Errorf("no embedding values returned from API")
			}
			vector := make([]float64, len(emb.Values))
			for i, v := range emb.Values {
				vector[i] = float64(v)
			}
			vectors = append(vectors, vector)
		}
	}
	return vectors, nil
}

const classifyPromptTemplate = `Classify the financial sentiment of this news text as exactly one of: positive, negative, neutral.
Respond with JSON only: {"label": "...", "confidence": 0.0}

Text: %s`

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ClassifySentiment asks the model for a discrete sentiment label with
// confidence.
func (c *Client) ClassifySentiment(text string) (core.SentimentLabel, float64, error) {
	raw, err := c.GenerateText(context.Background(), fmt.Sprintf(classifyPromptTemplate, text))
	if err != nil {
		return "", 0, err
	}

	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return "", 0, fmt.Errorf("malformed classification response: %w", err)
	}

	label := core.SentimentLabel(strings.ToLower(parsed.Label))
	switch label {
	case core.LabelPositive, core.LabelNegative, core.LabelNeutral:
	default:
		return "", 0, fmt.Errorf("unexpected sentiment label %q", parsed.Label)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return "", 0, fmt.Errorf("confidence %f out of range", parsed.Confidence)
	}
	return label, parsed.Confidence, nil
}

// Classify satisfies the enrichment classifier contract.
func (c *Client) Classify(text string) (core.SentimentLabel, float64, error) {
	return c.ClassifySentiment(text)
}
