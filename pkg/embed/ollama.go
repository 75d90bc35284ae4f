package embed

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"momentum/internal/util"

	"github.com/ollama/ollama/api"
	"golang.org/x/time/rate"
)

// OllamaClient embeds text with a model served by a local or remote Ollama
// instance.
type OllamaClient struct {
	model      string
	timeoutMin int
	limiter    *rate.Limiter

	client *api.Client
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllama builds an Ollama-backed embedder from the environment:
// OLLAMA_URL, OLLAMA_API_KEY, EMBED_MODEL, EMBED_RPS, EMBED_TIMEOUT_MIN.
func NewOllama() (*OllamaClient, error) {
	var (
		u   *url.URL
		err error
	)
	if base := util.GetEnvString("OLLAMA_URL", ""); base != "" {
		u, err = url.Parse(base)
		if err != nil {
			return nil, err
		}
	}

	httpClient := http.DefaultClient
	if key := util.GetEnvString("OLLAMA_API_KEY", ""); key != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + key,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	rps := util.GetEnvNumeric("EMBED_RPS", 4)
	return &OllamaClient{
		model:      util.GetEnvString("EMBED_MODEL", "nomic-embed-text"),
		timeoutMin: util.GetEnvInt("EMBED_TIMEOUT_MIN", 2),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		client:     api.NewClient(u, httpClient),
	}, nil
}

func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	res, err := c.client.Embed(rCtx, &api.EmbedRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(res.Embeddings))
	for _, v := range res.Embeddings {
		vec := make([]float32, len(v))
		for i, val := range v {
			vec[i] = float32(val)
		}
		out = append(out, vec)
	}
	return out, nil
}
