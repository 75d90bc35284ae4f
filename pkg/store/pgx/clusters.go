package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"

	"momentum/pkg/common"
	"momentum/pkg/store"
)

func (s *GraphDBStorage) UpdateArticleMetrics(ctx context.Context, metrics []common.ArticleMetric) error {
	return store.ChunkRange(len(metrics), writeChunk, func(start, end int) error {
		chunk := metrics[start:end]
		return s.withTx(ctx, func(tx pgx.Tx) error {
			for _, m := range chunk {
				_, err := tx.Exec(ctx, `
					UPDATE articles
					SET centrality = $2, cluster_id = $3
					WHERE link = $1
				`, m.Link, m.Centrality, m.ClusterID)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ReplaceSubThemes swaps one cluster's sub-theme set atomically. Sub-themes
// are derived wholesale per run, so stale rows are deleted rather than
// merged.
func (s *GraphDBStorage) ReplaceSubThemes(ctx context.Context, clusterID int, themes []common.SubTheme) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM sub_themes WHERE cluster_id = $1`, clusterID); err != nil {
			return err
		}
		for _, t := range themes {
			_, err := tx.Exec(ctx, `
				INSERT INTO sub_themes (cluster_id, kpi, sub_id, snippet_ids, polarity, recency, noise)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, t.ClusterID, string(t.KPI), t.SubID, t.SnippetIDs, t.Polarity, t.Recency, t.Noise)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceRankings swaps the whole ranking feed atomically. Readers see
// either the previous committed feed or the new one, never a mix.
func (s *GraphDBStorage) ReplaceRankings(ctx context.Context, rankings []common.RankingRecord) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM rankings`); err != nil {
			return err
		}
		for _, r := range rankings {
			_, err := tx.Exec(ctx, `
				INSERT INTO rankings (entity_key, score, rank, cluster_id, computed_at)
				VALUES ($1, $2, $3, $4, $5)
			`, r.EntityKey, r.Score, r.Rank, r.ClusterID, r.ComputedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GraphDBStorage) GetSubThemes(ctx context.Context) ([]common.SubTheme, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT cluster_id, kpi, sub_id, snippet_ids, polarity, recency, noise
		FROM sub_themes ORDER BY cluster_id, kpi, sub_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.SubTheme, 0)
	for rows.Next() {
		var t common.SubTheme
		var kpi string
		if err := rows.Scan(&t.ClusterID, &kpi, &t.SubID, &t.SnippetIDs, &t.Polarity, &t.Recency, &t.Noise); err != nil {
			return nil, err
		}
		t.KPI = common.KPIType(kpi)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetRankings(ctx context.Context) ([]common.RankingRecord, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT entity_key, score, rank, cluster_id, computed_at
		FROM rankings ORDER BY cluster_id, rank
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.RankingRecord, 0)
	for rows.Next() {
		var r common.RankingRecord
		if err := rows.Scan(&r.EntityKey, &r.Score, &r.Rank, &r.ClusterID, &r.ComputedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) ClusterMembers(ctx context.Context, clusterID int) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT link FROM articles WHERE cluster_id = $1 ORDER BY link
	`, clusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}
