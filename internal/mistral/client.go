// Package mistral is an HTTP client for the Mistral embeddings and chat completion APIs.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/filmgrid/hub/internal/huberrors"
)

const (
	serviceName = "mistral"

	defaultBaseURL        = "https://api.mistral.ai"
	defaultEmbeddingModel = "mistral-embed"
	defaultChatModel      = "mistral-large-latest"
	defaultTemperature    = 0.1
	defaultRetryMax       = 2
	defaultTimeout        = 30 * time.Second

	// maxErrorBody bounds how much of an error response is kept in the error message.
	maxErrorBody = 512
)

// ErrEmptyInput is returned when an embedding or generation call gets empty input.
var ErrEmptyInput = huberrors.NewInvalidArgumentError("input", "mistral: input text is empty")

// ClientOptions configures the Mistral client.
type ClientOptions struct {
	// APIKey is required; NewClient fails with a ConfigurationError without it.
	APIKey string
	// BaseURL defaults to https://api.mistral.ai (no /v1 suffix).
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Temperature    *float64
	// Dimensions, when positive, is checked against every returned vector.
	Dimensions int
	// RetryMax is the number of retries on 429/5xx; 0 uses the default, negative disables retries.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Timeout bounds each call including retries.
	Timeout time.Duration
}

// Client talks to the Mistral REST API.
type Client struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string
	temperature    float64
	dimensions     int
	timeout        time.Duration
	httpClient     *retryablehttp.Client
}

// NewClient creates a Mistral client. The API key is validated here, once.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, huberrors.NewConfigurationError("MISTRAL_API_KEY", "mistral: API key is required")
	}

	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/v1")

	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultEmbeddingModel
	}

	if opts.ChatModel == "" {
		opts.ChatModel = defaultChatModel
	}

	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}

	switch {
	case opts.RetryMax == 0:
		opts.RetryMax = defaultRetryMax
	case opts.RetryMax < 0:
		opts.RetryMax = 0
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.Logger = nil // Disable logging by default
	// Return the last response instead of a generic "giving up" error so the status code is reported.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}

	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}

	return &Client{
		baseURL:        opts.BaseURL,
		apiKey:         opts.APIKey,
		embeddingModel: opts.EmbeddingModel,
		chatModel:      opts.ChatModel,
		temperature:    temperature,
		dimensions:     opts.Dimensions,
		timeout:        opts.Timeout,
		httpClient:     retryClient,
	}, nil
}

type embeddingsRequest struct {
	Model  string   `json:"model"`
	Inputs []string `json:"inputs"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbedding returns the embedding for one text.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{input})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

// CreateEmbeddings embeds all inputs in one request. It fails as a whole unless the
// response holds exactly one well-formed vector per input.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyInput
	}

	for i := range inputs {
		if strings.TrimSpace(inputs[i]) == "" {
			return nil, huberrors.NewInvalidArgumentError("inputs", fmt.Sprintf("mistral: input %d is empty", i))
		}
	}

	var out embeddingsResponse
	if err := c.post(ctx, "/v1/embeddings", embeddingsRequest{Model: c.embeddingModel, Inputs: inputs}, &out); err != nil {
		return nil, err
	}

	if len(out.Data) != len(inputs) {
		return nil, huberrors.NewUpstreamError(serviceName,
			fmt.Sprintf("embeddings returned %d vectors for %d inputs", len(out.Data), len(inputs)), nil)
	}

	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vectors := make([][]float32, len(out.Data))

	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, huberrors.NewUpstreamError(serviceName, fmt.Sprintf("embedding %d is empty", i), nil)
		}

		if c.dimensions > 0 && len(d.Embedding) != c.dimensions {
			return nil, huberrors.NewUpstreamError(serviceName,
				fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(d.Embedding), c.dimensions), nil)
		}

		vectors[i] = d.Embedding
	}

	return vectors, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the completion text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}

	req := chatRequest{
		Model:       c.chatModel,
		Temperature: c.temperature,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	}

	var out chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &out); err != nil {
		return "", err
	}

	if len(out.Choices) == 0 {
		return "", huberrors.NewUpstreamError(serviceName, "chat completion returned no choices", nil)
	}

	text, err := decodeContent(out.Choices[0].Message.Content)
	if err != nil {
		return "", huberrors.NewUpstreamError(serviceName, "decode chat completion content", err)
	}

	if strings.TrimSpace(text) == "" {
		return "", huberrors.NewUpstreamError(serviceName, "chat completion content is empty", nil)
	}

	return text, nil
}

// decodeContent accepts both a plain string and the chunked [{type, text}] content form.
func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var chunks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return "", fmt.Errorf("unexpected content shape: %w", err)
	}

	var b strings.Builder
	for _, ch := range chunks {
		if ch.Type == "" || ch.Type == "text" {
			b.WriteString(ch.Text)
		}
	}

	return b.String(), nil
}

func (c *Client) post(ctx context.Context, path string, body, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// With PassthroughErrorHandler a non-nil response may accompany err; the status check below handles it.
	resp, err := c.httpClient.Do(req)
	if resp == nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return huberrors.NewUpstreamError(serviceName, "request timed out", err)
		}

		return huberrors.NewUpstreamError(serviceName, "request failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			slog.Error("Failed to read error response body", "error", readErr)
		}

		return &huberrors.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(errBody))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return huberrors.NewUpstreamError(serviceName, "malformed response payload", err)
	}

	return nil
}

// EmbeddingModel returns the model name stored alongside each embedding.
func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}
