package pgx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"momentum/pkg/common"
	"momentum/pkg/logger"
	"momentum/pkg/store"
)

func (s *GraphDBStorage) UpsertEntities(ctx context.Context, entities []common.Entity) (int, error) {
	rejected := 0
	valid := make([]common.Entity, 0, len(entities))
	for _, e := range entities {
		if !e.Kind.Valid() || e.Name == "" {
			logger.Error("[Store] Rejecting entity with invalid kind or empty name", "kind", string(e.Kind))
			rejected++
			continue
		}
		valid = append(valid, e)
	}

	err := store.ChunkRange(len(valid), writeChunk, func(start, end int) error {
		chunk := valid[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			keys := make([]string, len(chunk))
			for i, e := range chunk {
				keys[i] = e.Key()
			}
			ok, chunkRejected, err := claimNodeKeys(ctx, tx, keys, "entity")
			if err != nil {
				return err
			}
			rejected += chunkRejected

			for _, e := range chunk {
				if !ok[e.Key()] {
					continue
				}
				_, err := tx.Exec(ctx, `
					INSERT INTO entities (key, kind, name, is_ai, needs_review, aliases)
					VALUES ($1, $2, $3, $4, $5, $6)
					ON CONFLICT (key) DO UPDATE SET
						is_ai        = entities.is_ai OR EXCLUDED.is_ai,
						needs_review = entities.needs_review OR EXCLUDED.needs_review,
						aliases      = (
							SELECT array_agg(DISTINCT a ORDER BY a)
							FROM unnest(entities.aliases || EXCLUDED.aliases) AS a
						)
				`, e.Key(), string(e.Kind), e.Name, e.AI, e.NeedsReview, store.DedupeStrings(e.Aliases))
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	return rejected, err
}

func (s *GraphDBStorage) UpsertArticles(ctx context.Context, articles []common.Article) (int, error) {
	rejected := 0
	valid := make([]common.Article, 0, len(articles))
	for _, a := range articles {
		if a.Link == "" {
			logger.Error("[Store] Rejecting article with empty link")
			rejected++
			continue
		}
		valid = append(valid, a)
	}

	err := store.ChunkRange(len(valid), writeChunk, func(start, end int) error {
		chunk := valid[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			keys := make([]string, len(chunk))
			for i, a := range chunk {
				keys[i] = a.Link
			}
			ok, chunkRejected, err := claimNodeKeys(ctx, tx, keys, "article")
			if err != nil {
				return err
			}
			rejected += chunkRejected

			for _, a := range chunk {
				if !ok[a.Link] {
					continue
				}
				// centrality and cluster_id are owned by UpdateArticleMetrics
				_, err := tx.Exec(ctx, `
					INSERT INTO articles (link, title, published, source)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (link) DO UPDATE SET
						title     = EXCLUDED.title,
						published = EXCLUDED.published,
						source    = EXCLUDED.source
				`, a.Link, a.Title, nullableTime(a.Published), a.Source)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	return rejected, err
}

func (s *GraphDBStorage) UpsertSnippets(ctx context.Context, snippets []common.Snippet) (int, error) {
	rejected := 0
	valid := make([]common.Snippet, 0, len(snippets))
	for _, sn := range snippets {
		if sn.ID == "" || sn.ArticleLink == "" {
			logger.Error("[Store] Rejecting snippet with empty id or article link")
			rejected++
			continue
		}
		valid = append(valid, sn)
	}

	err := store.ChunkRange(len(valid), writeChunk, func(start, end int) error {
		chunk := valid[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			keys := make([]string, len(chunk))
			for i, sn := range chunk {
				keys[i] = sn.ID
			}
			ok, chunkRejected, err := claimNodeKeys(ctx, tx, keys, "snippet")
			if err != nil {
				return err
			}
			rejected += chunkRejected

			for _, sn := range chunk {
				if !ok[sn.ID] {
					continue
				}
				labels, err := json.Marshal(sn.Labels)
				if err != nil {
					return err
				}
				var embedding *pgvector.Vector
				if len(sn.Embedding) > 0 {
					v := pgvector.NewVector(sn.Embedding)
					embedding = &v
				}
				// an incoming null vector never erases a stored one
				_, err = tx.Exec(ctx, `
					INSERT INTO snippets (id, article_link, body, embedding, labels)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (id) DO UPDATE SET
						body      = EXCLUDED.body,
						labels    = EXCLUDED.labels,
						embedding = COALESCE(EXCLUDED.embedding, snippets.embedding)
				`, sn.ID, sn.ArticleLink, sn.Text, embedding, labels)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	return rejected, err
}

func (s *GraphDBStorage) GetEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT kind, name, is_ai, needs_review, aliases
		FROM entities ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Entity, 0)
	for rows.Next() {
		var e common.Entity
		var kind string
		if err := rows.Scan(&kind, &e.Name, &e.AI, &e.NeedsReview, &e.Aliases); err != nil {
			return nil, err
		}
		e.Kind = common.EntityKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetArticles(ctx context.Context) ([]common.Article, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT link, title, COALESCE(published, 'epoch'::timestamptz), source, centrality, cluster_id
		FROM articles ORDER BY link
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Article, 0)
	for rows.Next() {
		var a common.Article
		if err := rows.Scan(&a.Link, &a.Title, &a.Published, &a.Source, &a.Centrality, &a.ClusterID); err != nil {
			return nil, err
		}
		if a.Published.Unix() == 0 {
			a.Published = time.Time{}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetSnippets(ctx context.Context) ([]common.Snippet, error) {
	return s.querySnippets(ctx, `
		SELECT id, article_link, body, embedding, labels
		FROM snippets ORDER BY id
	`)
}

func (s *GraphDBStorage) GetSnippetsByCluster(ctx context.Context, clusterID int) ([]common.Snippet, error) {
	return s.querySnippets(ctx, `
		SELECT s.id, s.article_link, s.body, s.embedding, s.labels
		FROM snippets s
		JOIN articles a ON a.link = s.article_link
		WHERE a.cluster_id = $1
		ORDER BY s.id
	`, clusterID)
}

func (s *GraphDBStorage) querySnippets(ctx context.Context, sql string, args ...any) ([]common.Snippet, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Snippet, 0)
	for rows.Next() {
		var sn common.Snippet
		var embedding *pgvector.Vector
		var labels []byte
		if err := rows.Scan(&sn.ID, &sn.ArticleLink, &sn.Text, &embedding, &labels); err != nil {
			return nil, err
		}
		if embedding != nil {
			sn.Embedding = embedding.Slice()
		}
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &sn.Labels); err != nil {
				return nil, err
			}
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
