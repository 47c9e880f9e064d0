// Package googleai provides a thin wrapper around the Google Gen AI SDK (Gemini API)
// for embeddings and text generation.
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/pkg/embeddings"
)

const serviceName = "googleai"

var (
	// ErrEmptyInput is returned when CreateEmbedding or Generate is called with empty input.
	ErrEmptyInput = huberrors.NewInvalidArgumentError("input", "googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = huberrors.NewInvalidArgumentError("dimensions", "googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	defaultDimension      = 1024
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultChatModel      = "gemini-2.0-flash"
	defaultTemperature    = 0.1
	defaultTimeout        = 30 * time.Second
)

// Client calls the Gemini API via the Google Gen AI SDK.
type Client struct {
	client         *genai.Client
	embeddingModel string
	chatModel      string
	temperature    float32
	dimensions     int
	timeout        time.Duration
	baseURL        string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match DB column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithChatModel sets the generation model. Empty uses default.
func WithChatModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithTemperature sets the sampling temperature for Generate.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.temperature = float32(t)
	}
}

// WithBaseURL points the client at a different Gemini API endpoint. Empty uses the SDK default.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Gemini client. An empty API key is a ConfigurationError.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, huberrors.NewConfigurationError("GOOGLE_API_KEY", "googleai: API key is required")
	}

	client := &Client{
		embeddingModel: defaultEmbeddingModel,
		chatModel:      defaultChatModel,
		temperature:    defaultTemperature,
		dimensions:     defaultDimension,
		timeout:        defaultTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: client.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client.client = genaiClient

	return client, nil
}

// CreateEmbedding returns the embedding vector for the given text using the configured model.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// CreateEmbeddings embeds every input in one EmbedContent call.
// Vectors are L2-normalized because Gemini only returns unit vectors at full dimensionality.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 || c.dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	contents := make([]*genai.Content, 0, len(inputs))

	for i, in := range inputs {
		in = strings.TrimSpace(in)
		if in == "" {
			return nil, huberrors.NewInvalidArgumentError("inputs", fmt.Sprintf("googleai: input %d is empty", i))
		}

		contents = append(contents, genai.NewContentFromText(in, genai.RoleUser))
	}

	//nolint:gosec // G115: c.dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, huberrors.NewUpstreamError(serviceName, "embedding request failed", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, huberrors.NewUpstreamError(serviceName, "embedding response", ErrNoEmbeddingInResponse)
	}

	if len(resp.Embeddings) != len(inputs) {
		return nil, huberrors.NewUpstreamError(serviceName,
			fmt.Sprintf("embeddings returned %d vectors for %d inputs", len(resp.Embeddings), len(inputs)), nil)
	}

	out := make([][]float32, len(resp.Embeddings))

	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) != c.dimensions {
			got := 0
			if e != nil {
				got = len(e.Values)
			}

			return nil, huberrors.NewUpstreamError(serviceName, "embedding response",
				fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, got, c.dimensions))
		}

		vec := make([]float32, len(e.Values))
		copy(vec, e.Values)
		if !embeddings.NormalizeL2(vec) {
			return nil, huberrors.NewUpstreamError(serviceName, "embedding response",
				fmt.Errorf("embedding %d is all zeros", i))
		}

		out[i] = vec
	}

	return out, nil
}

// Generate runs a single-turn GenerateContent call and returns the concatenated text parts.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.temperature

	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", huberrors.NewUpstreamError(serviceName, "generate content failed", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", huberrors.NewUpstreamError(serviceName, "generate content returned no text", nil)
	}

	return text, nil
}

// EmbeddingModel returns the model name stored alongside each embedding.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}
