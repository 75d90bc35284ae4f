// Package graph builds and analyzes the startup news graph: co-mention
// edges between articles, article communities, per-article centrality,
// KPI-gated snippet similarity, and sub-themes within a community.
package graph

import (
	"math"
	"sort"
	"time"

	"momentum/pkg/common"
)

// BuildCoLinks recomputes the article co-mention edge set. Two articles
// sharing canonical entities get an edge weighted by
//
//	|shared entities| * exp(-gap/tau)
//
// where gap is the absolute difference of the two publication timestamps.
// Temporally close articles about the same entities bind strongly, stale
// linkage decays smoothly instead of being cut off. Edges below floor are
// dropped. The result is a full recomputation; persisting it overwrites
// previous weights rather than accumulating into them.
func BuildCoLinks(articles []common.Article, mentions []common.Mention, tau time.Duration, floor float64) []common.CoLink {
	published := make(map[string]time.Time, len(articles))
	for _, a := range articles {
		published[a.Link] = a.Published
	}

	// invert mentions to entity -> articles, then count shared entities per pair
	byEntity := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, m := range mentions {
		if _, ok := published[m.ArticleLink]; !ok {
			continue
		}
		links := seen[m.EntityKey]
		if links == nil {
			links = make(map[string]struct{})
			seen[m.EntityKey] = links
		}
		if _, ok := links[m.ArticleLink]; ok {
			continue
		}
		links[m.ArticleLink] = struct{}{}
		byEntity[m.EntityKey] = append(byEntity[m.EntityKey], m.ArticleLink)
	}

	shared := make(map[[2]string]int)
	for _, links := range byEntity {
		sort.Strings(links)
		for i := 0; i < len(links); i++ {
			for j := i + 1; j < len(links); j++ {
				shared[[2]string{links[i], links[j]}]++
			}
		}
	}

	out := make([]common.CoLink, 0, len(shared))
	for pair, n := range shared {
		gap := published[pair[0]].Sub(published[pair[1]])
		if gap < 0 {
			gap = -gap
		}
		w := float64(n) * math.Exp(-gap.Seconds()/tau.Seconds())
		if w < floor {
			continue
		}
		out = append(out, common.CoLink{A: pair[0], B: pair[1], Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

