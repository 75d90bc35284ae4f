package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"

	"momentum/pkg/common"
	"momentum/pkg/store"
)

func (s *GraphDBStorage) UpsertMentions(ctx context.Context, mentions []common.Mention) error {
	return store.ChunkRange(len(mentions), writeChunk, func(start, end int) error {
		chunk := mentions[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			for _, m := range chunk {
				_, err := tx.Exec(ctx, `
					INSERT INTO mentions (article_link, entity_key)
					VALUES ($1, $2)
					ON CONFLICT (article_link, entity_key) DO NOTHING
				`, m.ArticleLink, m.EntityKey)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *GraphDBStorage) UpsertCoLinks(ctx context.Context, edges []common.CoLink) error {
	return store.ChunkRange(len(edges), writeChunk, func(start, end int) error {
		chunk := edges[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			for _, e := range chunk {
				a, b := common.OrderPair(e.A, e.B)
				if a == b || e.Weight <= 0 {
					continue
				}
				_, err := tx.Exec(ctx, `
					INSERT INTO co_links (a, b, weight)
					VALUES ($1, $2, $3)
					ON CONFLICT (a, b) DO UPDATE SET weight = EXCLUDED.weight
				`, a, b, e.Weight)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ReplaceSimEdges swaps one cluster's similarity edges atomically. Deleting
// by the endpoints' current cluster also clears edges left behind when the
// partition moved their articles here from another cluster.
func (s *GraphDBStorage) ReplaceSimEdges(ctx context.Context, clusterID int, edges []common.SimEdge) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM sim_edges e
			USING snippets s
			JOIN articles art ON art.link = s.article_link
			WHERE s.id = e.a AND art.cluster_id = $1
		`, clusterID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			a, b := common.OrderPair(e.A, e.B)
			if a == b {
				continue
			}
			shared := make([]string, len(e.SharedKPIs))
			for i, k := range e.SharedKPIs {
				shared[i] = string(k)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO sim_edges (a, b, weight, shared_kpis)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (a, b) DO UPDATE SET
					weight      = EXCLUDED.weight,
					shared_kpis = EXCLUDED.shared_kpis
			`, a, b, e.Weight, shared)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GraphDBStorage) UpsertRelations(ctx context.Context, relations []common.Relation) error {
	return store.ChunkRange(len(relations), writeChunk, func(start, end int) error {
		chunk := relations[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			for _, r := range chunk {
				_, err := tx.Exec(ctx, `
					INSERT INTO relations (source_key, target_key, kind, confidence)
					VALUES ($1, $2, $3, $4)
					ON CONFLICT (source_key, target_key, kind) DO UPDATE SET
						confidence = EXCLUDED.confidence
				`, r.SourceKey, r.TargetKey, string(r.Kind), r.Confidence)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *GraphDBStorage) GetMentions(ctx context.Context) ([]common.Mention, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT article_link, entity_key
		FROM mentions ORDER BY article_link, entity_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Mention, 0)
	for rows.Next() {
		var m common.Mention
		if err := rows.Scan(&m.ArticleLink, &m.EntityKey); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetCoLinks(ctx context.Context) ([]common.CoLink, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT a, b, weight FROM co_links ORDER BY a, b
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.CoLink, 0)
	for rows.Next() {
		var e common.CoLink
		if err := rows.Scan(&e.A, &e.B, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetSimEdgesByCluster(ctx context.Context, clusterID int) ([]common.SimEdge, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT e.a, e.b, e.weight, e.shared_kpis
		FROM sim_edges e
		JOIN snippets s ON s.id = e.a
		JOIN articles art ON art.link = s.article_link
		WHERE art.cluster_id = $1
		ORDER BY e.a, e.b
	`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.SimEdge, 0)
	for rows.Next() {
		var e common.SimEdge
		var shared []string
		if err := rows.Scan(&e.A, &e.B, &e.Weight, &shared); err != nil {
			return nil, err
		}
		e.SharedKPIs = make([]common.KPIType, len(shared))
		for i, k := range shared {
			e.SharedKPIs[i] = common.KPIType(k)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetRelations(ctx context.Context) ([]common.Relation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_key, target_key, kind, confidence
		FROM relations ORDER BY source_key, target_key, kind
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Relation, 0)
	for rows.Next() {
		var r common.Relation
		var kind string
		if err := rows.Scan(&r.SourceKey, &r.TargetKey, &kind, &r.Confidence); err != nil {
			return nil, err
		}
		r.Kind = common.RelationKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
