package embed

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/util"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

// OpenAIClient embeds text through the OpenAI embeddings API or any
// compatible endpoint.
type OpenAIClient struct {
	model      string
	timeoutMin int
	limiter    *rate.Limiter

	client *openai.Client
}

// NewOpenAI builds an OpenAI-backed embedder from the environment:
// OPENAI_API_KEY (required), OPENAI_BASE_URL, EMBED_MODEL, EMBED_RPS,
// EMBED_TIMEOUT_MIN.
func NewOpenAI() (*OpenAIClient, error) {
	key := util.GetEnvString("OPENAI_API_KEY", "")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	options := []option.RequestOption{
		option.WithAPIKey(key),
	}
	if base := util.GetEnvString("OPENAI_BASE_URL", ""); base != "" {
		options = append(options, option.WithBaseURL(base))
	}
	client := openai.NewClient(options...)

	rps := util.GetEnvNumeric("EMBED_RPS", 4)
	return &OpenAIClient{
		model:      util.GetEnvString("EMBED_MODEL", "text-embedding-3-small"),
		timeoutMin: util.GetEnvInt("EMBED_TIMEOUT_MIN", 2),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		client:     &client,
	}, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	response, err := c.client.Embeddings.New(rCtx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, embedding := range response.Data {
		idx := int(embedding.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("embedding index out of range: %d", embedding.Index)
		}
		vec := make([]float32, len(embedding.Embedding))
		for i, v := range embedding.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return out, nil
}
