package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/filmgrid/hub/internal/huberrors"
)

var promptIDPattern = regexp.MustCompile(`(?m)ID:\s*([0-9a-fA-F-]{36})`)

// MockGenerator answers ranking prompts by echoing candidate IDs in prompt order,
// which the reranker accepts as a fast-mode response.
type MockGenerator struct{}

// NewMockGenerator creates a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns a JSON array of the IDs listed in prompt, or a short sentence when there are none.
func (g *MockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", huberrors.NewInvalidArgumentError("prompt", "prompt cannot be empty")
	}

	matches := promptIDPattern.FindAllStringSubmatch(prompt, -1)
	if len(matches) == 0 {
		return "This movie matches the themes you described.", nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m[1])
	}

	out, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}

	return string(out), nil
}
