package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Client talks to an OpenAI-compatible chat completion API.
type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKeyEnv, model, baseURL string) (*Client, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (c *Client) Generate(prompt string) (string, error) {
	return c.GenerateWithSystem("", prompt)
}

func (c *Client) GenerateWithSystem(systemPrompt, userPrompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := c.client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *Client) ModelName() string {
	return c.model
}

// Embedder produces dense vectors via an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

func NewEmbedder(apiKeyEnv, model, baseURL string, dimension, batchSize int) (*Embedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}

	if dimension <= 0 {
		dimension = modelDimension(model)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Embedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	}
	return 1536
}

func (e *Embedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}

	return out, nil
}

func (e *Embedder) embedBatch(texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}

	return embeddings, nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) ModelName() string {
	return e.model
}

// MockLLM returns scripted responses, repeating the last one when exhausted.
// Safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	responses []string
	next      int

	Err   error
	Delay time.Duration

	Prompts []string
}

func NewMockLLM(responses ...string) *MockLLM {
	return &MockLLM{responses: responses}
}

func (m *MockLLM) Generate(prompt string) (string, error) {
	return m.GenerateWithSystem("", prompt)
}

func (m *MockLLM) GenerateWithSystem(systemPrompt, userPrompt string) (string, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, userPrompt)

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.responses) == 0 {
		return "", nil
	}

	resp := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}

	return resp, nil
}

func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Prompts)
}

func (m *MockLLM) ModelName() string {
	return "mock"
}

// MockEmbedder derives deterministic vectors from the input bytes.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = make([]float32, e.dimension)

		for j, r := range texts[i] {
			if j < e.dimension {
				embeddings[i][j] = float32(r) / 1000.0
			}
		}
	}

	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
