package graph

import (
	"math"
	"testing"
	"time"

	"momentum/pkg/common"
)

var day = 24 * time.Hour

func TestBuildCoLinksSharedEntityDecay(t *testing.T) {
	tau := 7 * day
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	articles := []common.Article{
		{Link: "a", Published: t0},
		{Link: "b", Published: t0.Add(2 * day)},
	}
	acme := common.EntityKey(common.KindStartup, "Acme")
	globex := common.EntityKey(common.KindStartup, "Globex")
	initech := common.EntityKey(common.KindStartup, "Initech")
	mentions := []common.Mention{
		{ArticleLink: "a", EntityKey: acme},
		{ArticleLink: "a", EntityKey: globex},
		{ArticleLink: "b", EntityKey: globex},
		{ArticleLink: "b", EntityKey: initech},
	}

	edges := BuildCoLinks(articles, mentions, tau, 1e-6)
	if len(edges) != 1 {
		t.Fatalf("expected one edge, got %d: %+v", len(edges), edges)
	}
	e := edges[0]
	if e.A != "a" || e.B != "b" {
		t.Fatalf("unexpected endpoints: %+v", e)
	}
	want := math.Exp(-2.0 / 7.0)
	if math.Abs(e.Weight-want) > 1e-12 {
		t.Fatalf("weight = %f, want %f", e.Weight, want)
	}
}

func TestBuildCoLinksWeightMonotonicity(t *testing.T) {
	tau := 7 * day
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	articles := []common.Article{
		{Link: "a", Published: t0},
		{Link: "b", Published: t0.Add(1 * day)},
		{Link: "c", Published: t0},
		{Link: "d", Published: t0.Add(5 * day)},
	}
	e1 := common.EntityKey(common.KindStartup, "One")
	e2 := common.EntityKey(common.KindStartup, "Two")
	mentions := []common.Mention{
		{ArticleLink: "a", EntityKey: e1},
		{ArticleLink: "b", EntityKey: e1},
		{ArticleLink: "c", EntityKey: e2},
		{ArticleLink: "d", EntityKey: e2},
	}

	edges := BuildCoLinks(articles, mentions, tau, 1e-6)
	if len(edges) != 2 {
		t.Fatalf("expected two edges, got %d", len(edges))
	}
	var close, far float64
	for _, e := range edges {
		if e.A == "a" {
			close = e.Weight
		} else {
			far = e.Weight
		}
	}
	// same overlap count, smaller gap must weigh at least as much
	if close < far {
		t.Fatalf("1-day pair (%f) should outweigh 5-day pair (%f)", close, far)
	}
}

func TestBuildCoLinksCountsSharedEntities(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	articles := []common.Article{
		{Link: "a", Published: t0},
		{Link: "b", Published: t0},
	}
	e1 := common.EntityKey(common.KindStartup, "One")
	e2 := common.EntityKey(common.KindStartup, "Two")
	mentions := []common.Mention{
		{ArticleLink: "a", EntityKey: e1},
		{ArticleLink: "a", EntityKey: e2},
		{ArticleLink: "b", EntityKey: e1},
		{ArticleLink: "b", EntityKey: e2},
		// duplicate mention must not double-count
		{ArticleLink: "b", EntityKey: e2},
	}

	edges := BuildCoLinks(articles, mentions, 7*day, 1e-6)
	if len(edges) != 1 {
		t.Fatalf("expected one edge, got %d", len(edges))
	}
	if math.Abs(edges[0].Weight-2) > 1e-12 {
		t.Fatalf("two shared entities at zero gap should weigh 2, got %f", edges[0].Weight)
	}
}

func TestBuildCoLinksFloor(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	articles := []common.Article{
		{Link: "a", Published: t0},
		{Link: "b", Published: t0.Add(365 * day)},
	}
	e1 := common.EntityKey(common.KindStartup, "One")
	mentions := []common.Mention{
		{ArticleLink: "a", EntityKey: e1},
		{ArticleLink: "b", EntityKey: e1},
	}
	edges := BuildCoLinks(articles, mentions, 7*day, 1e-6)
	if len(edges) != 0 {
		t.Fatalf("year-apart pair should decay below the floor, got %+v", edges)
	}
}

func TestDecayWeight(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tau := 7 * day
	if w := common.DecayWeight(asOf, asOf, tau); w != 1 {
		t.Fatalf("zero age should weigh 1, got %f", w)
	}
	if w := common.DecayWeight(asOf.Add(day), asOf, tau); w != 1 {
		t.Fatalf("future timestamps should clamp to 1, got %f", w)
	}
	if w := common.DecayWeight(time.Time{}, asOf, tau); w != 0 {
		t.Fatalf("missing timestamps should weigh 0, got %f", w)
	}
	w7 := common.DecayWeight(asOf.Add(-7*day), asOf, tau)
	if math.Abs(w7-math.Exp(-1)) > 1e-12 {
		t.Fatalf("one tau of age should weigh e^-1, got %f", w7)
	}
}
