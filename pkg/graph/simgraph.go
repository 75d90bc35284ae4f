package graph

import (
	"math"
	"sort"

	"momentum/pkg/common"
	"momentum/pkg/logger"
)

// BuildSimEdges constructs the snippet similarity edges for one article
// cluster. Callers pass only that cluster's snippets; the cluster scoping is
// what keeps the edge count from growing quadratically over the corpus. An
// edge is created only when the two snippets share at least one KPI tag and
// their embeddings' cosine similarity reaches the threshold, so lexically
// close snippets about unrelated KPI types never connect. Snippets without
// an embedding are skipped and logged; they stay stored and keep their KPI
// labels, they just cannot take part in similarity.
func BuildSimEdges(snippets []common.Snippet, threshold float64) []common.SimEdge {
	usable := make([]common.Snippet, 0, len(snippets))
	for _, s := range snippets {
		if len(s.Embedding) == 0 {
			logger.Warn("[Graph] Snippet has no embedding, excluded from similarity", "snippet", s.ID)
			continue
		}
		if len(s.Labels) == 0 {
			continue
		}
		usable = append(usable, s)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	out := make([]common.SimEdge, 0)
	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			shared := sharedKPIs(usable[i].Labels, usable[j].Labels)
			if len(shared) == 0 {
				continue
			}
			sim := CosineSimilarity(usable[i].Embedding, usable[j].Embedding)
			if sim < threshold {
				continue
			}
			a, b := common.OrderPair(usable[i].ID, usable[j].ID)
			out = append(out, common.SimEdge{A: a, B: b, Weight: sim, SharedKPIs: shared})
		}
	}
	return out
}

func sharedKPIs(a, b []common.KPILabel) []common.KPIType {
	in := make(map[common.KPIType]bool, len(a))
	for _, l := range a {
		in[l.Type] = true
	}
	seen := make(map[common.KPIType]bool)
	out := make([]common.KPIType, 0)
	for _, l := range b {
		if in[l.Type] && !seen[l.Type] {
			seen[l.Type] = true
			out = append(out, l.Type)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when the dimensions differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
