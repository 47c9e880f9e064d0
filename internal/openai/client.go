// Package openai provides a thin wrapper around the official OpenAI Go SDK for embeddings
// and chat completions. It also serves OpenAI-compatible endpoints through WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/filmgrid/hub/internal/huberrors"
)

const serviceName = "openai"

var (
	// ErrEmptyInput is returned when CreateEmbedding or Generate is called with empty input.
	ErrEmptyInput = huberrors.NewInvalidArgumentError("input", "openai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = huberrors.NewInvalidArgumentError("dimensions", "openai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
)

const (
	defaultDimension      = 1024
	defaultEmbeddingModel = openaisdk.EmbeddingModelTextEmbedding3Small
	defaultChatModel      = "gpt-4o-mini"
	defaultTemperature    = 0.1
	defaultTimeout        = 30 * time.Second
)

// Client calls the OpenAI embeddings and chat completions APIs via the official SDK.
type Client struct {
	sdk            openaisdk.Client
	baseURL        string
	embeddingModel string
	chatModel      string
	temperature    float64
	dimensions     int
	timeout        time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match DB column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithEmbeddingModel overrides the embedding model. Empty keeps the default.
func WithEmbeddingModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithChatModel overrides the chat model. Empty keeps the default.
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
		c.temperature = t
	}
}

// WithBaseURL points the SDK at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
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

// NewClient creates an OpenAI client using the official SDK.
// An empty API key is a ConfigurationError.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, huberrors.NewConfigurationError("OPENAI_API_KEY", "openai: API key is required")
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

	sdkOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}
	if client.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(client.baseURL))
	}

	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client, nil
}

// CreateEmbedding returns the embedding vector for the given text.
// The returned slice length equals the configured dimensions.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	vectors, err := c.embed(ctx, openaisdk.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(input)}, 1)
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// CreateEmbeddings embeds all inputs in one request; either every input gets a vector or the call fails.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	trimmed := make([]string, len(inputs))

	for i, in := range inputs {
		trimmed[i] = strings.TrimSpace(in)
		if trimmed[i] == "" {
			return nil, huberrors.NewInvalidArgumentError("inputs", fmt.Sprintf("openai: input %d is empty", i))
		}
	}

	return c.embed(ctx, openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: trimmed}, len(trimmed))
}

func (c *Client) embed(ctx context.Context, input openaisdk.EmbeddingNewParamsInputUnion, want int) ([][]float32, error) {
	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input:      input,
		Model:      c.embeddingModel,
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, huberrors.NewUpstreamError(serviceName, "embedding request failed", err)
	}

	if len(resp.Data) == 0 {
		return nil, huberrors.NewUpstreamError(serviceName, "embedding response", ErrNoEmbeddingInResponse)
	}

	if len(resp.Data) != want {
		return nil, huberrors.NewUpstreamError(serviceName,
			fmt.Sprintf("embeddings returned %d vectors for %d inputs", len(resp.Data), want), nil)
	}

	out := make([][]float32, want)

	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= want {
			return nil, huberrors.NewUpstreamError(serviceName, fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}

		if len(d.Embedding) != c.dimensions {
			return nil, huberrors.NewUpstreamError(serviceName, "embedding response",
				fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(d.Embedding), c.dimensions))
		}

		vec := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			vec[i] = float32(d.Embedding[i])
		}

		out[d.Index] = vec
	}

	for i := range out {
		if out[i] == nil {
			return nil, huberrors.NewUpstreamError(serviceName, fmt.Sprintf("missing embedding for input %d", i), nil)
		}
	}

	return out, nil
}

// Generate sends prompt as a single user message and returns the first choice's text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       c.chatModel,
		Temperature: param.NewOpt(c.temperature),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", huberrors.NewUpstreamError(serviceName, "chat completion failed", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", huberrors.NewUpstreamError(serviceName, "chat completion returned no content", nil)
	}

	return resp.Choices[0].Message.Content, nil
}

// EmbeddingModel returns the model name stored alongside each embedding.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}
