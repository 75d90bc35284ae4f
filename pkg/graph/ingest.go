package graph

import (
	"context"
	"time"

	"momentum/internal/config"
	"momentum/internal/util"
	"momentum/pkg/canon"
	"momentum/pkg/common"
	"momentum/pkg/embed"
	"momentum/pkg/logger"
	"momentum/pkg/store"
)

// MentionRecord is a raw entity mention as produced by the extraction step.
type MentionRecord struct {
	Raw  string            `json:"raw"`
	Kind common.EntityKind `json:"kind"`
	AI   bool              `json:"is_ai"`
}

// ArticleRecord is an ingested source document with its raw mentions.
type ArticleRecord struct {
	Link      string          `json:"link"`
	Title     string          `json:"title"`
	Published time.Time       `json:"published"`
	Source    string          `json:"source"`
	Mentions  []MentionRecord `json:"mentions"`
}

// SnippetRecord is a labeled excerpt; the embedding may be absent, in which
// case it is backfilled during ingest when an embedder is configured.
type SnippetRecord struct {
	ID          string            `json:"id"`
	ArticleLink string            `json:"article_link"`
	Text        string            `json:"text"`
	Embedding   []float32         `json:"embedding,omitempty"`
	Labels      []common.KPILabel `json:"labels"`
}

// Batch is one ingest unit. Ingesting the same batch repeatedly leaves the
// graph unchanged after the first application.
type Batch struct {
	Articles []ArticleRecord `json:"articles"`
	Snippets []SnippetRecord `json:"snippets"`
}

// IngestReport summarizes one batch application.
type IngestReport struct {
	Articles    int
	Snippets    int
	NewEntities int
	Mentions    int
	Rejected    int
}

// Ingestor canonicalizes and persists incoming batches.
type Ingestor struct {
	store    store.GraphStorage
	cfg      *config.Pipeline
	embedder embed.Embedder
}

// NewIngestor wires an ingestor to its store. embedder may be nil; snippets
// without vectors are then stored as-is and sit out of similarity building.
func NewIngestor(st store.GraphStorage, cfg *config.Pipeline, embedder embed.Embedder) *Ingestor {
	return &Ingestor{store: st, cfg: cfg, embedder: embedder}
}

// Ingest applies one batch: raw mentions are resolved to canonical entities,
// labels are validated, missing embeddings are backfilled, and everything is
// upserted under natural keys. Invalid records are rejected individually and
// never abort the batch.
func (in *Ingestor) Ingest(ctx context.Context, batch Batch) (IngestReport, error) {
	report := IngestReport{}

	existing, err := in.store.GetEntities(ctx)
	if err != nil {
		return report, err
	}
	resolver := canon.NewResolver(in.cfg.FuzzyThreshold, existing)

	articles := make([]common.Article, 0, len(batch.Articles))
	mentions := make([]common.Mention, 0)
	for _, rec := range batch.Articles {
		if rec.Link == "" {
			logger.Error("[Ingest] Rejecting article with empty link", "title", rec.Title)
			report.Rejected++
			continue
		}
		articles = append(articles, common.Article{
			Link:      rec.Link,
			Title:     rec.Title,
			Published: rec.Published,
			Source:    rec.Source,
		})
		seen := make(map[string]bool)
		for _, m := range rec.Mentions {
			if !m.Kind.Valid() {
				logger.Warn("[Ingest] Dropping mention with unknown kind", "raw", m.Raw, "article", rec.Link)
				report.Rejected++
				continue
			}
			entity, created := resolver.Resolve(m.Raw, m.Kind, m.AI)
			if entity.Name == "" {
				continue
			}
			if created {
				report.NewEntities++
			}
			key := entity.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			mentions = append(mentions, common.Mention{ArticleLink: rec.Link, EntityKey: key})
		}
	}

	snippets := make([]common.Snippet, 0, len(batch.Snippets))
	for _, rec := range batch.Snippets {
		if rec.ID == "" || rec.ArticleLink == "" {
			logger.Error("[Ingest] Rejecting snippet with missing identity", "article", rec.ArticleLink)
			report.Rejected++
			continue
		}
		labels := make([]common.KPILabel, 0, len(rec.Labels))
		for _, l := range rec.Labels {
			if err := common.ValidateLabel(l); err != nil {
				logger.Warn("[Ingest] Dropping invalid KPI label", "snippet", rec.ID, "error", err)
				continue
			}
			labels = append(labels, l)
		}
		snippets = append(snippets, common.Snippet{
			ID:          rec.ID,
			ArticleLink: rec.ArticleLink,
			Text:        rec.Text,
			Embedding:   rec.Embedding,
			Labels:      labels,
		})
	}

	if err := in.backfillEmbeddings(ctx, snippets); err != nil {
		// missing vectors degrade similarity building but are not fatal
		logger.Warn("[Ingest] Embedding backfill failed, continuing without vectors", "error", err)
	}

	if err := in.retry(ctx, func(ctx context.Context) error {
		rejected, err := in.store.UpsertEntities(ctx, resolver.Entities())
		if err != nil {
			return err
		}
		report.Rejected += rejected
		return nil
	}); err != nil {
		return report, err
	}
	if err := in.retry(ctx, func(ctx context.Context) error {
		rejected, err := in.store.UpsertArticles(ctx, articles)
		if err != nil {
			return err
		}
		report.Rejected += rejected
		report.Articles = len(articles) - rejected
		return nil
	}); err != nil {
		return report, err
	}
	if err := in.retry(ctx, func(ctx context.Context) error {
		rejected, err := in.store.UpsertSnippets(ctx, snippets)
		if err != nil {
			return err
		}
		report.Rejected += rejected
		report.Snippets = len(snippets) - rejected
		return nil
	}); err != nil {
		return report, err
	}
	if err := in.retry(ctx, func(ctx context.Context) error {
		return in.store.UpsertMentions(ctx, mentions)
	}); err != nil {
		return report, err
	}
	report.Mentions = len(mentions)

	logger.Info("[Ingest] Batch applied",
		"articles", report.Articles,
		"snippets", report.Snippets,
		"newEntities", report.NewEntities,
		"mentions", report.Mentions,
		"rejected", report.Rejected)
	return report, nil
}

func (in *Ingestor) backfillEmbeddings(ctx context.Context, snippets []common.Snippet) error {
	if in.embedder == nil {
		return nil
	}
	missing := make([]int, 0)
	texts := make([]string, 0)
	for i, s := range snippets {
		if len(s.Embedding) == 0 && s.Text != "" {
			missing = append(missing, i)
			texts = append(texts, s.Text)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	vectors, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(missing) {
		logger.Warn("[Ingest] Embedder returned unexpected vector count", "want", len(missing), "got", len(vectors))
		return nil
	}
	for i, idx := range missing {
		snippets[idx].Embedding = vectors[i]
	}
	return nil
}

func (in *Ingestor) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return util.RetryErrBackoff(ctx, in.cfg.StoreMaxRetries, in.cfg.StoreRetryBase, fn)
}
