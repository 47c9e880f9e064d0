// Package embeddings provides deterministic, network-free stand-ins for the embedding and
// text-generation providers, selected with EMBEDDING_PROVIDER=mock / GENERATION_PROVIDER=mock.
package embeddings

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/pkg/embeddings"
)

// MockClient generates deterministic embeddings based on the input text hash.
type MockClient struct {
	dimensions int
}

// NewMockClient creates a new mock embedding client.
// Default dimensions is 1024 to match mistral-embed and the movies.embedding column.
func NewMockClient() *MockClient {
	return &MockClient{dimensions: 1024}
}

// NewMockClientWithDimensions creates a mock client with custom dimensions.
func NewMockClientWithDimensions(dimensions int) *MockClient {
	return &MockClient{dimensions: dimensions}
}

// CreateEmbedding generates a deterministic embedding based on the text hash.
func (c *MockClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, huberrors.NewInvalidArgumentError("input", "text cannot be empty")
	}
	return c.generateDeterministicEmbedding(text), nil
}

// CreateEmbeddings generates embeddings for multiple texts.
// Returns an error if any text is empty.
func (c *MockClient) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, huberrors.NewInvalidArgumentError("inputs", "texts cannot be empty")
	}

	for i, text := range texts {
		if text == "" {
			return nil, huberrors.NewInvalidArgumentError("inputs", fmt.Sprintf("text at index %d cannot be empty", i))
		}
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = c.generateDeterministicEmbedding(text)
	}
	return vectors, nil
}

// generateDeterministicEmbedding creates a normalized embedding vector from text hash.
func (c *MockClient) generateDeterministicEmbedding(text string) []float32 {
	hash := sha256.Sum256([]byte(text))
	vector := make([]float32, c.dimensions)

	for i := 0; i < c.dimensions; i++ {
		// Use hash bytes cyclically to generate float values in [-1, 1]
		byteIdx := i % len(hash)
		vector[i] = (float32(hash[byteIdx]) / 127.5) - 1.0
	}

	embeddings.NormalizeL2(vector)

	return vector
}

// EmbeddingModel names the mock model so mock vectors are distinguishable in the movies table.
func (c *MockClient) EmbeddingModel() string {
	return fmt.Sprintf("mock-%d", c.dimensions)
}
