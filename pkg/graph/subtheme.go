package graph

import (
	"sort"
	"time"

	"momentum/pkg/common"
)

// BuildSubThemes partitions one article cluster's snippet graph into
// sub-themes, one KPI type at a time: the SIM subgraph of snippets carrying
// that KPI is clustered, and each resulting group is annotated with its
// confidence-weighted polarity balance and mean recency. Groups smaller than
// minSize are flagged as noise; they are stored for traceability but carry
// no weight downstream. published maps article links to publication times,
// which stand in for snippet times.
func BuildSubThemes(clusterID int, snippets []common.Snippet, simEdges []common.SimEdge, published map[string]time.Time, asOf time.Time, tau time.Duration, minSize int) []common.SubTheme {
	byID := make(map[string]common.Snippet, len(snippets))
	for _, s := range snippets {
		byID[s.ID] = s
	}

	out := make([]common.SubTheme, 0)
	for _, kpi := range common.KPITypes {
		nodes := make([]string, 0)
		for _, s := range snippets {
			if s.HasKPI(kpi) {
				nodes = append(nodes, s.ID)
			}
		}
		if len(nodes) == 0 {
			continue
		}
		inKPI := make(map[string]bool, len(nodes))
		for _, id := range nodes {
			inKPI[id] = true
		}
		edges := make([]WeightedEdge, 0)
		for _, e := range simEdges {
			if !inKPI[e.A] || !inKPI[e.B] {
				continue
			}
			if !containsKPI(e.SharedKPIs, kpi) {
				continue
			}
			edges = append(edges, WeightedEdge{A: e.A, B: e.B, Weight: e.Weight})
		}

		assignment, _ := Communities(nodes, edges)
		groups := make(map[int][]string)
		for id, sub := range assignment {
			groups[sub] = append(groups[sub], id)
		}
		subIDs := make([]int, 0, len(groups))
		for sub := range groups {
			subIDs = append(subIDs, sub)
		}
		sort.Ints(subIDs)

		for _, sub := range subIDs {
			ids := groups[sub]
			sort.Strings(ids)
			theme := common.SubTheme{
				ClusterID:  clusterID,
				KPI:        kpi,
				SubID:      sub,
				SnippetIDs: ids,
				Noise:      len(ids) < minSize,
			}
			theme.Polarity = polarityBalance(ids, byID, kpi)
			theme.Recency = meanRecency(ids, byID, published, asOf, tau)
			out = append(out, theme)
		}
	}
	return out
}

// polarityBalance is the confidence-weighted positive minus negative mass,
// normalized by the total polarized mass. Neutral labels carry no polarity.
// A group with no polarized labels balances to 0.
func polarityBalance(ids []string, byID map[string]common.Snippet, kpi common.KPIType) float64 {
	var signed, total float64
	for _, id := range ids {
		for _, l := range byID[id].Labels {
			if l.Type != kpi || l.Stance == common.StanceNeutral {
				continue
			}
			signed += l.Confidence * float64(l.Stance.Sign())
			total += l.Confidence
		}
	}
	if total == 0 {
		return 0
	}
	return signed / total
}

func meanRecency(ids []string, byID map[string]common.Snippet, published map[string]time.Time, asOf time.Time, tau time.Duration) float64 {
	if len(ids) == 0 {
		return 0
	}
	var sum float64
	for _, id := range ids {
		sum += common.DecayWeight(published[byID[id].ArticleLink], asOf, tau)
	}
	return sum / float64(len(ids))
}

func containsKPI(list []common.KPIType, kpi common.KPIType) bool {
	for _, k := range list {
		if k == kpi {
			return true
		}
	}
	return false
}
