// Package memory provides an in-memory GraphStorage implementation. It is
// the reference implementation of the merge-engine contract: natural-key
// upserts, per-key write serialization, wholesale feed replacement. It backs
// tests and the one-shot CLI, where running a postgres instance is overkill.
package memory

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"momentum/pkg/common"
	"momentum/pkg/logger"
	"momentum/pkg/store"
)

var _ store.GraphStorage = (*Storage)(nil)

const stripeCount = 64

type nodeType string

const (
	nodeEntity  nodeType = "entity"
	nodeArticle nodeType = "article"
	nodeSnippet nodeType = "snippet"
)

// Storage implements store.GraphStorage over process memory.
type Storage struct {
	mu      sync.RWMutex
	stripes [stripeCount]sync.Mutex

	// nodeTypes maps every node key to its type so that a key collision
	// across types is detected and rejected per record.
	nodeTypes map[string]nodeType

	entities  map[string]common.Entity
	articles  map[string]common.Article
	snippets  map[string]common.Snippet
	mentions  map[string]common.Mention
	colinks   map[string]common.CoLink
	simEdges  map[string]common.SimEdge
	relations map[string]common.Relation
	subThemes map[int][]common.SubTheme
	rankings  []common.RankingRecord
}

// New returns an empty in-memory store.
func New() *Storage {
	return &Storage{
		nodeTypes: make(map[string]nodeType),
		entities:  make(map[string]common.Entity),
		articles:  make(map[string]common.Article),
		snippets:  make(map[string]common.Snippet),
		mentions:  make(map[string]common.Mention),
		colinks:   make(map[string]common.CoLink),
		simEdges:  make(map[string]common.SimEdge),
		relations: make(map[string]common.Relation),
		subThemes: make(map[int][]common.SubTheme),
	}
}

func (s *Storage) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.stripes[h.Sum32()%stripeCount]
}

// claimNode registers key under typ, rejecting the record if the key is
// already held by a different node type. Callers hold the key's stripe.
func (s *Storage) claimNode(key string, typ nodeType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.nodeTypes[key]
	if ok && existing != typ {
		logger.Error("[Store] Rejecting record: key collides with another node type",
			"key", key, "want", string(typ), "have", string(existing))
		return false
	}
	s.nodeTypes[key] = typ
	return true
}

func (s *Storage) UpsertEntities(ctx context.Context, entities []common.Entity) (int, error) {
	rejected := 0
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return rejected, err
		}
		if !e.Kind.Valid() || e.Name == "" {
			logger.Error("[Store] Rejecting entity with invalid kind or empty name", "kind", string(e.Kind))
			rejected++
			continue
		}
		key := e.Key()
		lock := s.stripe(key)
		lock.Lock()
		if !s.claimNode(key, nodeEntity) {
			lock.Unlock()
			rejected++
			continue
		}
		s.mu.Lock()
		if existing, ok := s.entities[key]; ok {
			existing.Aliases = mergeAliases(existing.Aliases, e.Aliases)
			existing.AI = existing.AI || e.AI
			existing.NeedsReview = existing.NeedsReview || e.NeedsReview
			s.entities[key] = existing
		} else {
			e.Aliases = mergeAliases(nil, e.Aliases)
			s.entities[key] = e
		}
		s.mu.Unlock()
		lock.Unlock()
	}
	return rejected, nil
}

func (s *Storage) UpsertArticles(ctx context.Context, articles []common.Article) (int, error) {
	rejected := 0
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return rejected, err
		}
		if a.Link == "" {
			rejected++
			logger.Error("[Store] Rejecting article with empty link")
			continue
		}
		lock := s.stripe(a.Link)
		lock.Lock()
		if !s.claimNode(a.Link, nodeArticle) {
			lock.Unlock()
			rejected++
			continue
		}
		s.mu.Lock()
		if existing, ok := s.articles[a.Link]; ok {
			// centrality and cluster id are owned by UpdateArticleMetrics
			existing.Title = a.Title
			existing.Published = a.Published
			existing.Source = a.Source
			s.articles[a.Link] = existing
		} else {
			s.articles[a.Link] = a
		}
		s.mu.Unlock()
		lock.Unlock()
	}
	return rejected, nil
}

func (s *Storage) UpsertSnippets(ctx context.Context, snippets []common.Snippet) (int, error) {
	rejected := 0
	for _, sn := range snippets {
		if err := ctx.Err(); err != nil {
			return rejected, err
		}
		if sn.ID == "" || sn.ArticleLink == "" {
			rejected++
			logger.Error("[Store] Rejecting snippet with empty id or article link")
			continue
		}
		lock := s.stripe(sn.ID)
		lock.Lock()
		if !s.claimNode(sn.ID, nodeSnippet) {
			lock.Unlock()
			rejected++
			continue
		}
		s.mu.Lock()
		if existing, ok := s.snippets[sn.ID]; ok {
			existing.Text = sn.Text
			existing.Labels = sn.Labels
			// an incoming nil vector never erases a stored one
			if sn.Embedding != nil {
				existing.Embedding = sn.Embedding
			}
			s.snippets[sn.ID] = existing
		} else {
			s.snippets[sn.ID] = sn
		}
		s.mu.Unlock()
		lock.Unlock()
	}
	return rejected, nil
}

func (s *Storage) UpsertMentions(ctx context.Context, mentions []common.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mentions {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mentions[m.ArticleLink+"|"+m.EntityKey] = m
	}
	return nil
}

func (s *Storage) UpsertCoLinks(ctx context.Context, edges []common.CoLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, b := common.OrderPair(e.A, e.B)
		if a == b || e.Weight <= 0 {
			continue
		}
		s.colinks[a+"|"+b] = common.CoLink{A: a, B: b, Weight: e.Weight}
	}
	return nil
}

// ReplaceSimEdges swaps the similarity edges of one article cluster. Edges
// whose endpoints the partition moved into this cluster are pruned along
// with the cluster's own previous set.
func (s *Storage) ReplaceSimEdges(ctx context.Context, clusterID int, edges []common.SimEdge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.simEdges {
		if c, ok := s.edgeCluster(e); ok && c == clusterID {
			delete(s.simEdges, key)
		}
	}
	for _, e := range edges {
		a, b := common.OrderPair(e.A, e.B)
		if a == b {
			continue
		}
		s.simEdges[a+"|"+b] = common.SimEdge{A: a, B: b, Weight: e.Weight, SharedKPIs: e.SharedKPIs}
	}
	return nil
}

// edgeCluster attributes a SIM edge to the article cluster of its first
// endpoint. Callers hold s.mu.
func (s *Storage) edgeCluster(e common.SimEdge) (int, bool) {
	sn, ok := s.snippets[e.A]
	if !ok {
		return 0, false
	}
	a, ok := s.articles[sn.ArticleLink]
	if !ok {
		return 0, false
	}
	return a.ClusterID, true
}

func (s *Storage) UpsertRelations(ctx context.Context, relations []common.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range relations {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.relations[r.SourceKey+"|"+r.TargetKey+"|"+string(r.Kind)] = r
	}
	return nil
}

func (s *Storage) UpdateArticleMetrics(ctx context.Context, metrics []common.ArticleMetric) error {
	for _, m := range metrics {
		if err := ctx.Err(); err != nil {
			return err
		}
		lock := s.stripe(m.Link)
		lock.Lock()
		s.mu.Lock()
		if existing, ok := s.articles[m.Link]; ok {
			existing.Centrality = m.Centrality
			existing.ClusterID = m.ClusterID
			s.articles[m.Link] = existing
		}
		s.mu.Unlock()
		lock.Unlock()
	}
	return nil
}

func (s *Storage) ReplaceSubThemes(ctx context.Context, clusterID int, themes []common.SubTheme) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subThemes[clusterID] = append([]common.SubTheme(nil), themes...)
	return nil
}

func (s *Storage) ReplaceRankings(ctx context.Context, rankings []common.RankingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rankings = append([]common.RankingRecord(nil), rankings...)
	return nil
}

func (s *Storage) GetEntities(ctx context.Context) ([]common.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *Storage) GetArticles(ctx context.Context) ([]common.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Link < out[j].Link })
	return out, nil
}

func (s *Storage) GetMentions(ctx context.Context) ([]common.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Mention, 0, len(s.mentions))
	for _, m := range s.mentions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArticleLink != out[j].ArticleLink {
			return out[i].ArticleLink < out[j].ArticleLink
		}
		return out[i].EntityKey < out[j].EntityKey
	})
	return out, nil
}

func (s *Storage) GetSnippets(ctx context.Context) ([]common.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Snippet, 0, len(s.snippets))
	for _, sn := range s.snippets {
		out = append(out, sn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Storage) GetSnippetsByCluster(ctx context.Context, clusterID int) ([]common.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Snippet, 0)
	for _, sn := range s.snippets {
		a, ok := s.articles[sn.ArticleLink]
		if !ok || a.ClusterID != clusterID {
			continue
		}
		out = append(out, sn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Storage) GetCoLinks(ctx context.Context) ([]common.CoLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.CoLink, 0, len(s.colinks))
	for _, e := range s.colinks {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out, nil
}

func (s *Storage) GetSimEdgesByCluster(ctx context.Context, clusterID int) ([]common.SimEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.SimEdge, 0)
	for _, e := range s.simEdges {
		if c, ok := s.edgeCluster(e); ok && c == clusterID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out, nil
}

func (s *Storage) GetRelations(ctx context.Context) ([]common.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceKey != out[j].SourceKey {
			return out[i].SourceKey < out[j].SourceKey
		}
		if out[i].TargetKey != out[j].TargetKey {
			return out[i].TargetKey < out[j].TargetKey
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (s *Storage) GetSubThemes(ctx context.Context) ([]common.SubTheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.SubTheme, 0)
	for _, themes := range s.subThemes {
		out = append(out, themes...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClusterID != out[j].ClusterID {
			return out[i].ClusterID < out[j].ClusterID
		}
		if out[i].KPI != out[j].KPI {
			return out[i].KPI < out[j].KPI
		}
		return out[i].SubID < out[j].SubID
	})
	return out, nil
}

func (s *Storage) GetRankings(ctx context.Context) ([]common.RankingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]common.RankingRecord(nil), s.rankings...), nil
}

func (s *Storage) ClusterMembers(ctx context.Context, clusterID int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for link, a := range s.articles {
		if a.ClusterID == clusterID {
			out = append(out, link)
		}
	}
	sort.Strings(out)
	return out, nil
}

func mergeAliases(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, a := range existing {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	for _, a := range incoming {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
