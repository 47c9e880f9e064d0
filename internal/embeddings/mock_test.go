package embeddings

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/hub/internal/huberrors"
	pkgembeddings "github.com/filmgrid/hub/pkg/embeddings"
)

func TestMockClient(t *testing.T) {
	client := NewMockClientWithDimensions(64)
	ctx := context.Background()

	t.Run("deterministic and normalized", func(t *testing.T) {
		a, err := client.CreateEmbedding(ctx, "toy story")
		require.NoError(t, err)
		b, err := client.CreateEmbedding(ctx, "toy story")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, 64)

		sim, err := pkgembeddings.CosineSimilarity(a, b)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, sim, 1e-6)
	})

	t.Run("different text differs", func(t *testing.T) {
		a, err := client.CreateEmbedding(ctx, "toy story")
		require.NoError(t, err)
		b, err := client.CreateEmbedding(ctx, "alien")
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("batch matches single", func(t *testing.T) {
		single, err := client.CreateEmbedding(ctx, "heat")
		require.NoError(t, err)

		batch, err := client.CreateEmbeddings(ctx, []string{"alien", "heat"})
		require.NoError(t, err)
		require.Len(t, batch, 2)
		assert.Equal(t, single, batch[1])
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := client.CreateEmbedding(ctx, "")
		assert.ErrorIs(t, err, huberrors.ErrInvalidArgument)

		_, err = client.CreateEmbeddings(ctx, []string{"ok", ""})
		assert.ErrorIs(t, err, huberrors.ErrInvalidArgument)
	})
}

func TestMockGenerator(t *testing.T) {
	gen := NewMockGenerator()

	prompt := "1. ID: 0198c4a2-0000-7000-8000-000000000001 | Title: A\n" +
		"2. ID: 0198c4a2-0000-7000-8000-000000000002 | Title: B\n"

	out, err := gen.Generate(context.Background(), prompt)
	require.NoError(t, err)

	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []string{
		"0198c4a2-0000-7000-8000-000000000001",
		"0198c4a2-0000-7000-8000-000000000002",
	}, ids)

	out, err = gen.Generate(context.Background(), "Explain why this matches")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
