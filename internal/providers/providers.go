// Package providers builds the embedding and text-generation clients selected by configuration.
package providers

import (
	"context"
	"fmt"

	"github.com/filmgrid/hub/internal/config"
	"github.com/filmgrid/hub/internal/embeddings"
	"github.com/filmgrid/hub/internal/googleai"
	"github.com/filmgrid/hub/internal/huberrors"
	"github.com/filmgrid/hub/internal/mistral"
	"github.com/filmgrid/hub/internal/openai"
	"github.com/filmgrid/hub/internal/service"
)

// Embedder is an embedding client that also reports the model name persisted with its vectors.
type Embedder interface {
	service.EmbeddingClient
	EmbeddingModel() string
}

// NewEmbedder returns the client for cfg.EmbeddingProvider.
// Missing credentials and unknown providers are ConfigurationErrors.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderMistral:
		client, err := mistral.NewClient(mistral.ClientOptions{
			APIKey:         cfg.MistralAPIKey,
			BaseURL:        cfg.MistralBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
			Dimensions:     cfg.EmbeddingDimensions,
			Timeout:        cfg.EmbeddingTimeout,
		})
		if err != nil {
			return nil, err
		}

		return client, nil
	case config.ProviderOpenAI:
		client, err := openai.NewClient(cfg.OpenAIAPIKey,
			openai.WithEmbeddingModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithTimeout(cfg.EmbeddingTimeout),
		)
		if err != nil {
			return nil, err
		}

		return client, nil
	case config.ProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.GoogleAPIKey,
			googleai.WithBaseURL(cfg.GoogleBaseURL),
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
			googleai.WithTimeout(cfg.EmbeddingTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("create google embedding client: %w", err)
		}

		return client, nil
	case config.ProviderMock:
		return embeddings.NewMockClientWithDimensions(cfg.EmbeddingDimensions), nil
	default:
		return nil, unsupported("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	}
}

// NewGenerator returns the client for cfg.GenerationProvider.
func NewGenerator(ctx context.Context, cfg *config.Config) (service.TextGenerator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderMistral:
		temperature := cfg.GenerationTemperature

		client, err := mistral.NewClient(mistral.ClientOptions{
			APIKey:      cfg.MistralAPIKey,
			BaseURL:     cfg.MistralBaseURL,
			ChatModel:   cfg.GenerationModel,
			Temperature: &temperature,
			Timeout:     cfg.GenerationTimeout,
		})
		if err != nil {
			return nil, err
		}

		return client, nil
	case config.ProviderOpenAI:
		client, err := openai.NewClient(cfg.OpenAIAPIKey,
			openai.WithChatModel(cfg.GenerationModel),
			openai.WithTemperature(cfg.GenerationTemperature),
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithTimeout(cfg.GenerationTimeout),
		)
		if err != nil {
			return nil, err
		}

		return client, nil
	case config.ProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.GoogleAPIKey,
			googleai.WithBaseURL(cfg.GoogleBaseURL),
			googleai.WithChatModel(cfg.GenerationModel),
			googleai.WithTemperature(cfg.GenerationTemperature),
			googleai.WithTimeout(cfg.GenerationTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("create google generation client: %w", err)
		}

		return client, nil
	case config.ProviderMock:
		return embeddings.NewMockGenerator(), nil
	default:
		return nil, unsupported("GENERATION_PROVIDER", cfg.GenerationProvider)
	}
}

func unsupported(setting, value string) error {
	return huberrors.NewConfigurationError(setting,
		fmt.Sprintf("%s %q is not supported (want mistral, openai, google or mock)", setting, value))
}
