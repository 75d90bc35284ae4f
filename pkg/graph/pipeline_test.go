package graph

import (
	"context"
	"reflect"
	"testing"
	"time"

	"momentum/internal/config"
	"momentum/pkg/common"
	"momentum/pkg/store/memory"
)

func testConfig() *config.Pipeline {
	return &config.Pipeline{
		TauDays:             7,
		SimThreshold:        0.30,
		FuzzyThreshold:      0.90,
		MinSubClusterSize:   2,
		WeightFloor:         1e-6,
		ModularityWarn:      0.05,
		Alpha:               0.35,
		Beta:                0.30,
		Gamma:               0.15,
		Delta:               0.20,
		MaxParallelClusters: 2,
		StoreMaxRetries:     1,
		StoreRetryBase:      time.Millisecond,
	}
}

func testBatch(asOf time.Time) Batch {
	funding := func(stance common.Stance, conf float64) []common.KPILabel {
		return []common.KPILabel{{Type: common.KPIFunding, Stance: stance, Confidence: conf}}
	}
	startup := func(name string) MentionRecord {
		return MentionRecord{Raw: name, Kind: common.KindStartup}
	}
	return Batch{
		Articles: []ArticleRecord{
			{
				Link: "https://news.example/a1", Title: "Acme raises series A",
				Published: asOf.Add(-1 * day), Source: "example",
				Mentions: []MentionRecord{startup("Acme Inc."), {Raw: "Sequoia", Kind: common.KindInvestor}},
			},
			{
				Link: "https://news.example/a2", Title: "Acme expands",
				Published: asOf.Add(-2 * day), Source: "example",
				Mentions: []MentionRecord{startup("ACME, Inc"), startup("Globex")},
			},
			{
				Link: "https://news.example/a3", Title: "Initech layoffs",
				Published: asOf.Add(-10 * day), Source: "example",
				Mentions: []MentionRecord{startup("Initech")},
			},
		},
		Snippets: []SnippetRecord{
			{ID: "https://news.example/a1#0", ArticleLink: "https://news.example/a1",
				Text: "Acme raised a series A", Embedding: []float32{1, 0},
				Labels: funding(common.StancePositive, 1.0)},
			{ID: "https://news.example/a2#0", ArticleLink: "https://news.example/a2",
				Text: "Acme is growing", Embedding: vecAt(0.9),
				Labels: funding(common.StancePositive, 0.5)},
			{ID: "https://news.example/a3#0", ArticleLink: "https://news.example/a3",
				Text: "Initech cuts staff", Embedding: []float32{0, 1},
				Labels: []common.KPILabel{{Type: common.KPIRisk, Stance: common.StanceNegative, Confidence: 1.0}}},
		},
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	st := memory.New()
	cfg := testConfig()

	ingestor := NewIngestor(st, cfg, nil)
	report, err := ingestor.Ingest(ctx, testBatch(asOf))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Articles != 3 || report.Rejected != 0 {
		t.Fatalf("unexpected ingest report: %+v", report)
	}
	// "Acme Inc." and "ACME, Inc" must land on one canonical record
	if report.NewEntities != 4 {
		t.Fatalf("expected 4 canonical entities, got %d", report.NewEntities)
	}

	run, err := NewPipeline(st, cfg, nil).Run(ctx, asOf)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.CoLinks != 1 {
		t.Fatalf("a1 and a2 share Acme, expected one co-link, got %d", run.CoLinks)
	}

	articles, err := st.GetArticles(ctx)
	if err != nil {
		t.Fatalf("GetArticles: %v", err)
	}
	byLink := map[string]common.Article{}
	for _, a := range articles {
		byLink[a.Link] = a
	}
	if byLink["https://news.example/a1"].ClusterID != byLink["https://news.example/a2"].ClusterID {
		t.Fatalf("linked articles should share a cluster: %+v", byLink)
	}
	if byLink["https://news.example/a1"].ClusterID == byLink["https://news.example/a3"].ClusterID {
		t.Fatalf("isolated article should be a singleton cluster: %+v", byLink)
	}
	if byLink["https://news.example/a3"].Centrality != 0 {
		t.Fatalf("singleton centrality should be 0, got %f", byLink["https://news.example/a3"].Centrality)
	}

	rankings, err := st.GetRankings(ctx)
	if err != nil {
		t.Fatalf("GetRankings: %v", err)
	}
	if len(rankings) == 0 {
		t.Fatalf("expected ranking records")
	}
	for _, r := range rankings {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score outside [0,1]: %+v", r)
		}
		if r.Rank < 1 {
			t.Fatalf("ranks start at 1: %+v", r)
		}
	}

	relations, err := st.GetRelations(ctx)
	if err != nil {
		t.Fatalf("GetRelations: %v", err)
	}
	foundInvestment := false
	for _, r := range relations {
		if r.Kind == common.RelationInvestment &&
			r.SourceKey == common.EntityKey(common.KindInvestor, "Sequoia") &&
			r.TargetKey == common.EntityKey(common.KindStartup, "Acme Inc") {
			foundInvestment = true
		}
	}
	if !foundInvestment {
		t.Fatalf("funding article with investor and startup should yield an investment relation: %+v", relations)
	}
}

func TestPipelineRerunStability(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	st := memory.New()
	cfg := testConfig()

	ingestor := NewIngestor(st, cfg, nil)
	if _, err := ingestor.Ingest(ctx, testBatch(asOf)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	pipeline := NewPipeline(st, cfg, nil)
	if _, err := pipeline.Run(ctx, asOf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstRankings, _ := st.GetRankings(ctx)
	firstArticles, _ := st.GetArticles(ctx)
	firstThemes, _ := st.GetSubThemes(ctx)
	firstColinks, _ := st.GetCoLinks(ctx)

	// re-ingest the same batch and run again over the unchanged snapshot
	if _, err := ingestor.Ingest(ctx, testBatch(asOf)); err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if _, err := pipeline.Run(ctx, asOf); err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondRankings, _ := st.GetRankings(ctx)
	secondArticles, _ := st.GetArticles(ctx)
	secondThemes, _ := st.GetSubThemes(ctx)
	secondColinks, _ := st.GetCoLinks(ctx)

	if !reflect.DeepEqual(firstRankings, secondRankings) {
		t.Fatalf("rankings drifted across reruns:\nfirst:  %+v\nsecond: %+v", firstRankings, secondRankings)
	}
	if !reflect.DeepEqual(firstArticles, secondArticles) {
		t.Fatalf("article metrics drifted across reruns")
	}
	if !reflect.DeepEqual(firstThemes, secondThemes) {
		t.Fatalf("sub-themes drifted across reruns")
	}
	if !reflect.DeepEqual(firstColinks, secondColinks) {
		t.Fatalf("co-links drifted across reruns")
	}
}
