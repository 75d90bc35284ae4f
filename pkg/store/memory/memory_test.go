package memory

import (
	"context"
	"reflect"
	"testing"
	"time"

	"momentum/pkg/common"
)

func seed(t *testing.T, s *Storage) {
	t.Helper()
	ctx := context.Background()
	published := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	rejected, err := s.UpsertEntities(ctx, []common.Entity{
		{Kind: common.KindStartup, Name: "Acme", Aliases: []string{"Acme Inc."}},
		{Kind: common.KindInvestor, Name: "Sequoia"},
	})
	if err != nil || rejected != 0 {
		t.Fatalf("UpsertEntities: rejected=%d err=%v", rejected, err)
	}
	rejected, err = s.UpsertArticles(ctx, []common.Article{
		{Link: "https://news.example/a1", Title: "Acme raises", Published: published, Source: "example"},
	})
	if err != nil || rejected != 0 {
		t.Fatalf("UpsertArticles: rejected=%d err=%v", rejected, err)
	}
	rejected, err = s.UpsertSnippets(ctx, []common.Snippet{
		{
			ID:          "https://news.example/a1#0",
			ArticleLink: "https://news.example/a1",
			Text:        "Acme raised a series A",
			Embedding:   []float32{0.1, 0.2},
			Labels:      []common.KPILabel{{Type: common.KPIFunding, Stance: common.StancePositive, Confidence: 1.0}},
		},
	})
	if err != nil || rejected != 0 {
		t.Fatalf("UpsertSnippets: rejected=%d err=%v", rejected, err)
	}
	if err := s.UpsertMentions(ctx, []common.Mention{
		{ArticleLink: "https://news.example/a1", EntityKey: common.EntityKey(common.KindStartup, "Acme")},
		{ArticleLink: "https://news.example/a1", EntityKey: common.EntityKey(common.KindInvestor, "Sequoia")},
	}); err != nil {
		t.Fatalf("UpsertMentions: %v", err)
	}
	if err := s.UpsertCoLinks(ctx, []common.CoLink{
		{A: common.EntityKey(common.KindInvestor, "Sequoia"), B: common.EntityKey(common.KindStartup, "Acme"), Weight: 1.5},
	}); err != nil {
		t.Fatalf("UpsertCoLinks: %v", err)
	}
	if err := s.UpsertRelations(ctx, []common.Relation{
		{
			SourceKey:  common.EntityKey(common.KindInvestor, "Sequoia"),
			TargetKey:  common.EntityKey(common.KindStartup, "Acme"),
			Kind:       common.RelationInvestment,
			Confidence: 1.0,
		},
	}); err != nil {
		t.Fatalf("UpsertRelations: %v", err)
	}
}

func snapshot(t *testing.T, s *Storage) []interface{} {
	t.Helper()
	ctx := context.Background()
	entities, err := s.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities: %v", err)
	}
	articles, err := s.GetArticles(ctx)
	if err != nil {
		t.Fatalf("GetArticles: %v", err)
	}
	snippets, err := s.GetSnippets(ctx)
	if err != nil {
		t.Fatalf("GetSnippets: %v", err)
	}
	mentions, err := s.GetMentions(ctx)
	if err != nil {
		t.Fatalf("GetMentions: %v", err)
	}
	colinks, err := s.GetCoLinks(ctx)
	if err != nil {
		t.Fatalf("GetCoLinks: %v", err)
	}
	relations, err := s.GetRelations(ctx)
	if err != nil {
		t.Fatalf("GetRelations: %v", err)
	}
	return []interface{}{entities, articles, snippets, mentions, colinks, relations}
}

func TestUpsertIdempotent(t *testing.T) {
	s := New()
	seed(t, s)
	first := snapshot(t, s)

	// applying the same batch again must not change anything
	for i := 0; i < 3; i++ {
		seed(t, s)
	}
	second := snapshot(t, s)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated upserts changed the graph:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestEntityAliasMerge(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.UpsertEntities(ctx, []common.Entity{
		{Kind: common.KindStartup, Name: "Acme", Aliases: []string{"Acme Inc."}},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := s.UpsertEntities(ctx, []common.Entity{
		{Kind: common.KindStartup, Name: "Acme", Aliases: []string{"ACME, Inc"}, AI: true},
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	entities, err := s.GetEntities(ctx)
	if err != nil {
		t.Fatalf("GetEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected one merged entity, got %d", len(entities))
	}
	e := entities[0]
	if len(e.Aliases) != 2 {
		t.Fatalf("expected merged aliases, got %v", e.Aliases)
	}
	if !e.AI {
		t.Fatalf("AI flag should be sticky across upserts")
	}
}

func TestNodeTypeCollisionRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	link := "https://news.example/shared"
	if _, err := s.UpsertArticles(ctx, []common.Article{{Link: link, Title: "t"}}); err != nil {
		t.Fatalf("UpsertArticles: %v", err)
	}
	rejected, err := s.UpsertSnippets(ctx, []common.Snippet{{ID: link, ArticleLink: link, Text: "x"}})
	if err != nil {
		t.Fatalf("UpsertSnippets: %v", err)
	}
	if rejected != 1 {
		t.Fatalf("expected colliding snippet to be rejected, rejected=%d", rejected)
	}
	articles, err := s.GetArticles(ctx)
	if err != nil {
		t.Fatalf("GetArticles: %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "t" {
		t.Fatalf("article should survive unchanged, got %+v", articles)
	}
}

func TestMetricsOwnedByUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	link := "https://news.example/a1"
	if _, err := s.UpsertArticles(ctx, []common.Article{{Link: link, Title: "t"}}); err != nil {
		t.Fatalf("UpsertArticles: %v", err)
	}
	if err := s.UpdateArticleMetrics(ctx, []common.ArticleMetric{{Link: link, Centrality: 0.42, ClusterID: 7}}); err != nil {
		t.Fatalf("UpdateArticleMetrics: %v", err)
	}
	// a re-ingest of the same article must not reset centrality or cluster
	if _, err := s.UpsertArticles(ctx, []common.Article{{Link: link, Title: "t2"}}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	articles, err := s.GetArticles(ctx)
	if err != nil {
		t.Fatalf("GetArticles: %v", err)
	}
	a := articles[0]
	if a.Title != "t2" {
		t.Fatalf("title should follow the latest upsert, got %q", a.Title)
	}
	if a.Centrality != 0.42 || a.ClusterID != 7 {
		t.Fatalf("metrics were clobbered: %+v", a)
	}
}

func TestReplaceSimEdgesPrunesReassignedEndpoints(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.UpsertArticles(ctx, []common.Article{{Link: "a1", Title: "t"}}); err != nil {
		t.Fatalf("UpsertArticles: %v", err)
	}
	if _, err := s.UpsertSnippets(ctx, []common.Snippet{
		{ID: "s1", ArticleLink: "a1", Text: "x"},
		{ID: "s2", ArticleLink: "a1", Text: "y"},
	}); err != nil {
		t.Fatalf("UpsertSnippets: %v", err)
	}
	if err := s.UpdateArticleMetrics(ctx, []common.ArticleMetric{{Link: "a1", ClusterID: 0}}); err != nil {
		t.Fatalf("UpdateArticleMetrics: %v", err)
	}
	edge := common.SimEdge{A: "s1", B: "s2", Weight: 0.5, SharedKPIs: []common.KPIType{common.KPIFunding}}
	if err := s.ReplaceSimEdges(ctx, 0, []common.SimEdge{edge}); err != nil {
		t.Fatalf("ReplaceSimEdges: %v", err)
	}

	// the next partition moves the article to cluster 1, where the pair no
	// longer clears the similarity bar and produces no edges
	if err := s.UpdateArticleMetrics(ctx, []common.ArticleMetric{{Link: "a1", ClusterID: 1}}); err != nil {
		t.Fatalf("UpdateArticleMetrics: %v", err)
	}
	if err := s.ReplaceSimEdges(ctx, 1, nil); err != nil {
		t.Fatalf("ReplaceSimEdges after reassignment: %v", err)
	}

	for _, cluster := range []int{0, 1} {
		edges, err := s.GetSimEdgesByCluster(ctx, cluster)
		if err != nil {
			t.Fatalf("GetSimEdgesByCluster(%d): %v", cluster, err)
		}
		if len(edges) != 0 {
			t.Fatalf("stale edge survived in cluster %d: %+v", cluster, edges)
		}
	}
}

func TestNilEmbeddingPreservesStored(t *testing.T) {
	s := New()
	ctx := context.Background()
	sn := common.Snippet{ID: "s1", ArticleLink: "a1", Text: "x", Embedding: []float32{1, 2, 3}}
	if _, err := s.UpsertSnippets(ctx, []common.Snippet{sn}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	sn.Embedding = nil
	sn.Text = "y"
	if _, err := s.UpsertSnippets(ctx, []common.Snippet{sn}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	snippets, err := s.GetSnippets(ctx)
	if err != nil {
		t.Fatalf("GetSnippets: %v", err)
	}
	got := snippets[0]
	if got.Text != "y" {
		t.Fatalf("text should update, got %q", got.Text)
	}
	if len(got.Embedding) != 3 {
		t.Fatalf("stored embedding was erased: %v", got.Embedding)
	}
}
