package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/hub/internal/config"
	"github.com/filmgrid/hub/internal/huberrors"
)

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("mock uses configured dimensions", func(t *testing.T) {
		cfg := &config.Config{EmbeddingProvider: config.ProviderMock, EmbeddingDimensions: 8}

		client, err := NewEmbedder(ctx, cfg)
		require.NoError(t, err)

		vec, err := client.CreateEmbedding(ctx, "a heist movie")
		require.NoError(t, err)
		assert.Len(t, vec, 8)
		assert.Equal(t, "mock-8", client.EmbeddingModel())
	})

	t.Run("mistral default model", func(t *testing.T) {
		cfg := &config.Config{EmbeddingProvider: config.ProviderMistral, MistralAPIKey: "key", EmbeddingDimensions: 1024}

		client, err := NewEmbedder(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "mistral-embed", client.EmbeddingModel())
	})

	t.Run("openai model override", func(t *testing.T) {
		cfg := &config.Config{
			EmbeddingProvider: config.ProviderOpenAI, OpenAIAPIKey: "key",
			EmbeddingModel: "text-embedding-3-large", EmbeddingDimensions: 1024,
		}

		client, err := NewEmbedder(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "text-embedding-3-large", client.EmbeddingModel())
	})

	t.Run("missing key is a configuration error", func(t *testing.T) {
		for _, provider := range []string{config.ProviderMistral, config.ProviderOpenAI, config.ProviderGoogle} {
			client, err := NewEmbedder(ctx, &config.Config{EmbeddingProvider: provider})
			require.Error(t, err, provider)
			assert.Nil(t, client)
			assert.True(t, errors.Is(err, huberrors.ErrConfiguration), provider)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewEmbedder(ctx, &config.Config{EmbeddingProvider: "cohere"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, huberrors.ErrConfiguration))
		assert.Contains(t, err.Error(), `"cohere"`)
	})
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("mock", func(t *testing.T) {
		gen, err := NewGenerator(ctx, &config.Config{GenerationProvider: config.ProviderMock})
		require.NoError(t, err)
		assert.NotNil(t, gen)
	})

	t.Run("openai with key", func(t *testing.T) {
		gen, err := NewGenerator(ctx, &config.Config{GenerationProvider: config.ProviderOpenAI, OpenAIAPIKey: "key"})
		require.NoError(t, err)
		assert.NotNil(t, gen)
	})

	t.Run("missing key", func(t *testing.T) {
		gen, err := NewGenerator(ctx, &config.Config{GenerationProvider: config.ProviderMistral})
		require.Error(t, err)
		assert.Nil(t, gen)
		assert.True(t, errors.Is(err, huberrors.ErrConfiguration))
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewGenerator(ctx, &config.Config{GenerationProvider: "llama"})
		assert.True(t, errors.Is(err, huberrors.ErrConfiguration))
	})
}
