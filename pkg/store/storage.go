package store

import (
	"context"
	"errors"

	"momentum/pkg/common"
)

// ErrKindMismatch marks a merge key collision with an incompatible type:
// the record is rejected and logged, the rest of its batch proceeds.
var ErrKindMismatch = errors.New("node key resolves to a different node type")

// GraphStorage is the merge-engine contract. Node identity keys (article
// link, snippet id, entity kind+name, KPI type) are natural keys: a write
// with an existing key updates mutable fields and never creates a duplicate
// node. Edge identity is the canonically ordered endpoint pair plus edge
// type; a repeated edge write overwrites weight and attributes rather than
// accumulating, so a full recompute from the same snapshot is idempotent.
//
// Implementations serialize concurrent writers per node key. Readers may
// observe a graph mid-merge but must see each key consistently.
type GraphStorage interface {
	// Upserts. Each call applies a batch; per-record kind-mismatch
	// rejections are logged and counted in the returned rejected total,
	// they do not abort the batch.
	UpsertEntities(ctx context.Context, entities []common.Entity) (rejected int, err error)
	UpsertArticles(ctx context.Context, articles []common.Article) (rejected int, err error)
	UpsertSnippets(ctx context.Context, snippets []common.Snippet) (rejected int, err error)
	UpsertMentions(ctx context.Context, mentions []common.Mention) error
	UpsertCoLinks(ctx context.Context, edges []common.CoLink) error
	UpsertRelations(ctx context.Context, relations []common.Relation) error

	// Per-run recomputed fields and wholesale-replaced feeds. SIM edges
	// are valid only while both endpoints sit in the same article
	// cluster, so they are replaced per cluster rather than upserted:
	// edges currently attributed to clusterID are dropped first, which
	// prunes edges stranded by a partition change.
	ReplaceSimEdges(ctx context.Context, clusterID int, edges []common.SimEdge) error
	UpdateArticleMetrics(ctx context.Context, metrics []common.ArticleMetric) error
	ReplaceSubThemes(ctx context.Context, clusterID int, themes []common.SubTheme) error
	ReplaceRankings(ctx context.Context, rankings []common.RankingRecord) error

	// Snapshot reads.
	GetEntities(ctx context.Context) ([]common.Entity, error)
	GetArticles(ctx context.Context) ([]common.Article, error)
	GetMentions(ctx context.Context) ([]common.Mention, error)
	GetSnippets(ctx context.Context) ([]common.Snippet, error)
	GetSnippetsByCluster(ctx context.Context, clusterID int) ([]common.Snippet, error)
	GetCoLinks(ctx context.Context) ([]common.CoLink, error)
	GetSimEdgesByCluster(ctx context.Context, clusterID int) ([]common.SimEdge, error)
	GetRelations(ctx context.Context) ([]common.Relation, error)
	GetSubThemes(ctx context.Context) ([]common.SubTheme, error)
	GetRankings(ctx context.Context) ([]common.RankingRecord, error)

	// ClusterMembers returns the article links of one article cluster,
	// sorted, for the cluster membership feed.
	ClusterMembers(ctx context.Context, clusterID int) ([]string, error)
}
