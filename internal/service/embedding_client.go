package service

import "context"

// EmbeddingClient generates embedding vectors for text.
// Implemented by provider-specific clients (Mistral, OpenAI, Google Gemini) and the mock client.
// CreateEmbeddings is all-or-nothing: either every input gets a vector or an error is returned.
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
}

// TextGenerator runs a single prompt-completion round trip.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
