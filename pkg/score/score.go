// Package score ranks startups within each article cluster by blending
// centrality, KPI stance, relation edge quality, and recency into a single
// composite score.
package score

import (
	"sort"
	"time"

	"momentum/pkg/common"
)

// Weights are the component weights of the composite score. They are
// expected to sum to 1 so the final score stays in [0,1].
type Weights struct {
	Alpha float64 // centrality
	Beta  float64 // KPI stance
	Gamma float64 // edge quality
	Delta float64 // recency
}

// Input is the graph snapshot a scoring pass works from. Articles must
// already carry their centrality and cluster id.
type Input struct {
	Entities  []common.Entity
	Articles  []common.Article
	Mentions  []common.Mention
	Snippets  []common.Snippet
	Relations []common.Relation
	SubThemes []common.SubTheme
}

type candidate struct {
	key        string
	clusterID  int
	centrality float64
	stance     float64
	quality    float64
	recency    float64
	score      float64
}

// Rank produces the per-startup ranking records, one per (startup, cluster)
// pair, ranked within each cluster. Raw components are min-max normalized
// inside their cluster before weighting, so no cluster's scale dominates.
// Ties on the composite score fall back to raw centrality, then to the
// entity key, keeping the order stable across reruns. The returned records
// replace the previous ranking feed wholesale.
func Rank(in Input, w Weights, asOf time.Time, tau time.Duration) []common.RankingRecord {
	startups := make(map[string]bool)
	for _, e := range in.Entities {
		if e.Kind == common.KindStartup {
			startups[e.Key()] = true
		}
	}
	articleByLink := make(map[string]common.Article, len(in.Articles))
	for _, a := range in.Articles {
		articleByLink[a.Link] = a
	}
	snippetsByArticle := make(map[string][]common.Snippet)
	for _, s := range in.Snippets {
		snippetsByArticle[s.ArticleLink] = append(snippetsByArticle[s.ArticleLink], s)
	}
	noise := noiseSnippets(in.SubThemes)

	relConf := make(map[string][]float64)
	for _, r := range in.Relations {
		relConf[r.SourceKey] = append(relConf[r.SourceKey], r.Confidence)
		relConf[r.TargetKey] = append(relConf[r.TargetKey], r.Confidence)
	}

	// group mentioning articles per (startup, cluster)
	type skey struct {
		entity  string
		cluster int
	}
	mentionedIn := make(map[skey][]common.Article)
	seen := make(map[skey]map[string]bool)
	for _, m := range in.Mentions {
		if !startups[m.EntityKey] {
			continue
		}
		a, ok := articleByLink[m.ArticleLink]
		if !ok {
			continue
		}
		k := skey{entity: m.EntityKey, cluster: a.ClusterID}
		links := seen[k]
		if links == nil {
			links = make(map[string]bool)
			seen[k] = links
		}
		if links[a.Link] {
			continue
		}
		links[a.Link] = true
		mentionedIn[k] = append(mentionedIn[k], a)
	}

	byCluster := make(map[int][]*candidate)
	for k, articles := range mentionedIn {
		c := &candidate{key: k.entity, clusterID: k.cluster}
		var stance float64
		for _, a := range articles {
			decay := common.DecayWeight(a.Published, asOf, tau)
			c.centrality += a.Centrality
			c.recency += decay
			for _, s := range snippetsByArticle[a.Link] {
				if noise[s.ID] {
					continue
				}
				for _, l := range s.Labels {
					stance += l.Confidence * float64(l.Stance.Sign()) * decay
				}
			}
		}
		n := float64(len(articles))
		c.centrality /= n
		c.recency /= n
		c.stance = stance
		if confs := relConf[k.entity]; len(confs) > 0 {
			var sum float64
			for _, v := range confs {
				sum += v
			}
			c.quality = sum / float64(len(confs))
		}
		byCluster[k.cluster] = append(byCluster[k.cluster], c)
	}

	clusterIDs := make([]int, 0, len(byCluster))
	for id := range byCluster {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	out := make([]common.RankingRecord, 0)
	for _, id := range clusterIDs {
		cands := byCluster[id]
		normalize(cands, func(c *candidate) float64 { return c.centrality }, func(c *candidate, v float64) { c.score += w.Alpha * v })
		normalize(cands, func(c *candidate) float64 { return c.stance }, func(c *candidate, v float64) { c.score += w.Beta * v })
		normalize(cands, func(c *candidate) float64 { return c.quality }, func(c *candidate, v float64) { c.score += w.Gamma * v })
		normalize(cands, func(c *candidate) float64 { return c.recency }, func(c *candidate, v float64) { c.score += w.Delta * v })

		sort.Slice(cands, func(i, j int) bool {
			if cands[i].score != cands[j].score {
				return cands[i].score > cands[j].score
			}
			if cands[i].centrality != cands[j].centrality {
				return cands[i].centrality > cands[j].centrality
			}
			return cands[i].key < cands[j].key
		})
		for rank, c := range cands {
			out = append(out, common.RankingRecord{
				EntityKey:  c.key,
				Score:      c.score,
				Rank:       rank + 1,
				ClusterID:  c.clusterID,
				ComputedAt: asOf,
			})
		}
	}
	return out
}

// normalize rescales one raw component to [0,1] within a cluster. When every
// candidate has the same raw value the component is uninformative: positive
// values all map to 1, the rest to 0.
func normalize(cands []*candidate, get func(*candidate) float64, apply func(*candidate, float64)) {
	if len(cands) == 0 {
		return
	}
	min, max := get(cands[0]), get(cands[0])
	for _, c := range cands[1:] {
		v := get(c)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	for _, c := range cands {
		v := get(c)
		var norm float64
		if max > min {
			norm = (v - min) / (max - min)
		} else if v > 0 {
			norm = 1
		}
		apply(c, norm)
	}
}

// noiseSnippets returns the snippet ids that appear only in noise
// sub-themes. Those carry no weight in stance aggregation.
func noiseSnippets(themes []common.SubTheme) map[string]bool {
	noise := make(map[string]bool)
	kept := make(map[string]bool)
	for _, t := range themes {
		for _, id := range t.SnippetIDs {
			if t.Noise {
				noise[id] = true
			} else {
				kept[id] = true
			}
		}
	}
	for id := range kept {
		delete(noise, id)
	}
	return noise
}
