package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum/internal/config"
	"momentum/internal/util"
	"momentum/pkg/common"
	"momentum/pkg/logger"
	"momentum/pkg/score"
	"momentum/pkg/store"
)

// Graph regions that require exclusive access while being recomputed.
const (
	RegionArticleGraph = "article_graph"
	RegionRankings     = "rankings"
)

// RegionLocker serializes writers over a named graph region. Community
// detection and the bulk metric/ranking updates run under a region lock;
// the per-cluster stages do not, they already partition the graph.
type RegionLocker interface {
	AcquireRegion(ctx context.Context, region string) (release func(), err error)
}

// NoopLocker is the single-process locker. The in-memory store serializes
// per key on its own, so holding a region is free.
type NoopLocker struct{}

func (NoopLocker) AcquireRegion(ctx context.Context, region string) (func(), error) {
	return func() {}, nil
}

// RunReport summarizes one full pipeline pass.
type RunReport struct {
	RunID      string
	AsOf       time.Time
	Articles   int
	CoLinks    int
	Clusters   int
	Modularity float64
	SimEdges   int
	SubThemes  int
	Rankings   int
	Duration   time.Duration
}

// Pipeline is the batch recomputation over the persistent graph: co-mention
// edges, communities and centrality, per-cluster similarity and sub-themes,
// relations, and the composite ranking. Every write goes through the store's
// idempotent upsert contract, so a pass can be aborted between stages and
// rerun without corrupting state.
type Pipeline struct {
	store  store.GraphStorage
	cfg    *config.Pipeline
	locker RegionLocker
}

// NewPipeline wires a pipeline. locker may be nil, which means no
// cross-process exclusion.
func NewPipeline(st store.GraphStorage, cfg *config.Pipeline, locker RegionLocker) *Pipeline {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Pipeline{store: st, cfg: cfg, locker: locker}
}

// Run executes one full pass over the graph snapshot as of asOf. Repeated
// runs over an unchanged snapshot produce identical clusters, sub-themes and
// rankings.
func (p *Pipeline) Run(ctx context.Context, asOf time.Time) (RunReport, error) {
	started := time.Now()
	report := RunReport{RunID: util.NewRunID(), AsOf: asOf}
	logger.Info("[Pipeline] Starting run", "run", report.RunID, "asOf", asOf)

	articles, err := p.store.GetArticles(ctx)
	if err != nil {
		return report, fmt.Errorf("loading articles: %w", err)
	}
	mentions, err := p.store.GetMentions(ctx)
	if err != nil {
		return report, fmt.Errorf("loading mentions: %w", err)
	}
	report.Articles = len(articles)

	clusters, err := p.rebuildArticleGraph(ctx, articles, mentions, &report)
	if err != nil {
		return report, err
	}

	if err := p.rebuildRelations(ctx, articles, mentions); err != nil {
		return report, err
	}

	published := make(map[string]time.Time, len(articles))
	for _, a := range articles {
		published[a.Link] = a.Published
	}
	if err := p.rebuildClusters(ctx, clusters, published, asOf, &report); err != nil {
		return report, err
	}

	if err := p.rebuildRankings(ctx, asOf, &report); err != nil {
		return report, err
	}

	report.Duration = time.Since(started)
	logger.Info("[Pipeline] Run complete",
		"run", report.RunID,
		"articles", report.Articles,
		"clusters", report.Clusters,
		"modularity", report.Modularity,
		"simEdges", report.SimEdges,
		"subThemes", report.SubThemes,
		"rankings", report.Rankings,
		"duration", report.Duration)
	return report, nil
}

// rebuildArticleGraph recomputes co-mention edges, the community partition
// and per-article centrality under the article graph region lock. It returns
// the distinct cluster ids.
func (p *Pipeline) rebuildArticleGraph(ctx context.Context, articles []common.Article, mentions []common.Mention, report *RunReport) ([]int, error) {
	release, err := p.locker.AcquireRegion(ctx, RegionArticleGraph)
	if err != nil {
		return nil, fmt.Errorf("acquiring %s region: %w", RegionArticleGraph, err)
	}
	defer release()

	colinks := BuildCoLinks(articles, mentions, p.cfg.Tau(), p.cfg.WeightFloor)
	report.CoLinks = len(colinks)
	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.UpsertCoLinks(ctx, colinks)
	}); err != nil {
		return nil, fmt.Errorf("persisting co-links: %w", err)
	}

	nodes := make([]string, 0, len(articles))
	for _, a := range articles {
		nodes = append(nodes, a.Link)
	}
	edges := make([]WeightedEdge, 0, len(colinks))
	for _, e := range colinks {
		edges = append(edges, WeightedEdge{A: e.A, B: e.B, Weight: e.Weight})
	}

	assignment, q := Communities(nodes, edges)
	report.Modularity = q
	if len(nodes) > 1 && q < p.cfg.ModularityWarn {
		logger.Warn("[Pipeline] Low-quality partition", "modularity", q, "threshold", p.cfg.ModularityWarn)
	}
	centrality := Centrality(nodes, edges)

	metrics := make([]common.ArticleMetric, 0, len(nodes))
	clusterSet := make(map[int]bool)
	for i := range articles {
		link := articles[i].Link
		m := common.ArticleMetric{
			Link:       link,
			Centrality: centrality[link],
			ClusterID:  assignment[link],
		}
		// keep the in-memory snapshot aligned with what is persisted
		articles[i].Centrality = m.Centrality
		articles[i].ClusterID = m.ClusterID
		metrics = append(metrics, m)
		clusterSet[m.ClusterID] = true
	}
	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.UpdateArticleMetrics(ctx, metrics)
	}); err != nil {
		return nil, fmt.Errorf("persisting article metrics: %w", err)
	}

	clusters := make([]int, 0, len(clusterSet))
	for id := range clusterSet {
		clusters = append(clusters, id)
	}
	sort.Ints(clusters)
	report.Clusters = len(clusters)
	return clusters, nil
}

func (p *Pipeline) rebuildRelations(ctx context.Context, articles []common.Article, mentions []common.Mention) error {
	entities, err := p.store.GetEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	snippets, err := p.store.GetSnippets(ctx)
	if err != nil {
		return fmt.Errorf("loading snippets: %w", err)
	}
	relations := DeriveRelations(articles, mentions, snippets, entities)
	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.UpsertRelations(ctx, relations)
	}); err != nil {
		return fmt.Errorf("persisting relations: %w", err)
	}
	return nil
}

// rebuildClusters runs the similarity and sub-theme stages, one independent
// cluster at a time, in parallel up to the configured limit.
func (p *Pipeline) rebuildClusters(ctx context.Context, clusters []int, published map[string]time.Time, asOf time.Time, report *RunReport) error {
	counts := make([]struct{ sim, themes int }, len(clusters))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.MaxParallelClusters)
	for i, clusterID := range clusters {
		idx, id := i, clusterID
		eg.Go(func() error {
			snippets, err := p.store.GetSnippetsByCluster(ectx, id)
			if err != nil {
				return fmt.Errorf("loading snippets of cluster %d: %w", id, err)
			}
			simEdges := BuildSimEdges(snippets, p.cfg.SimThreshold)
			if err := p.retry(ectx, func(ctx context.Context) error {
				return p.store.ReplaceSimEdges(ctx, id, simEdges)
			}); err != nil {
				return fmt.Errorf("persisting sim edges of cluster %d: %w", id, err)
			}
			themes := BuildSubThemes(id, snippets, simEdges, published, asOf, p.cfg.Tau(), p.cfg.MinSubClusterSize)
			if err := p.retry(ectx, func(ctx context.Context) error {
				return p.store.ReplaceSubThemes(ctx, id, themes)
			}); err != nil {
				return fmt.Errorf("persisting sub-themes of cluster %d: %w", id, err)
			}
			counts[idx].sim = len(simEdges)
			counts[idx].themes = len(themes)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, c := range counts {
		report.SimEdges += c.sim
		report.SubThemes += c.themes
	}
	return nil
}

func (p *Pipeline) rebuildRankings(ctx context.Context, asOf time.Time, report *RunReport) error {
	entities, err := p.store.GetEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	articles, err := p.store.GetArticles(ctx)
	if err != nil {
		return fmt.Errorf("loading articles: %w", err)
	}
	mentions, err := p.store.GetMentions(ctx)
	if err != nil {
		return fmt.Errorf("loading mentions: %w", err)
	}
	snippets, err := p.store.GetSnippets(ctx)
	if err != nil {
		return fmt.Errorf("loading snippets: %w", err)
	}
	relations, err := p.store.GetRelations(ctx)
	if err != nil {
		return fmt.Errorf("loading relations: %w", err)
	}
	themes, err := p.store.GetSubThemes(ctx)
	if err != nil {
		return fmt.Errorf("loading sub-themes: %w", err)
	}

	rankings := score.Rank(score.Input{
		Entities:  entities,
		Articles:  articles,
		Mentions:  mentions,
		Snippets:  snippets,
		Relations: relations,
		SubThemes: themes,
	}, score.Weights{
		Alpha: p.cfg.Alpha,
		Beta:  p.cfg.Beta,
		Gamma: p.cfg.Gamma,
		Delta: p.cfg.Delta,
	}, asOf, p.cfg.Tau())

	release, err := p.locker.AcquireRegion(ctx, RegionRankings)
	if err != nil {
		return fmt.Errorf("acquiring %s region: %w", RegionRankings, err)
	}
	defer release()
	if err := p.retry(ctx, func(ctx context.Context) error {
		return p.store.ReplaceRankings(ctx, rankings)
	}); err != nil {
		return fmt.Errorf("persisting rankings: %w", err)
	}
	report.Rankings = len(rankings)
	return nil
}

func (p *Pipeline) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return util.RetryErrBackoff(ctx, p.cfg.StoreMaxRetries, p.cfg.StoreRetryBase, fn)
}
