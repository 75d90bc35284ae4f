// Package embed provides embedding vectors for snippets that arrive without
// one. Two backends are supported, a local Ollama server and the OpenAI
// embeddings API, selected by environment.
package embed

import (
	"context"
	"fmt"

	"momentum/internal/util"
)

// Embedder turns a batch of texts into one vector per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewFromEnv constructs the embedder named by EMBED_PROVIDER
// ("ollama" or "openai"). Unset defaults to ollama.
func NewFromEnv() (Embedder, error) {
	provider := util.GetEnvString("EMBED_PROVIDER", "ollama")
	switch provider {
	case "ollama":
		return NewOllama()
	case "openai":
		return NewOpenAI()
	default:
		return nil, fmt.Errorf("unknown embed provider %q", provider)
	}
}
