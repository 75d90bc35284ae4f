package graph

import (
	"math"
	"sort"
)

const (
	pagerankDamping = 0.85
	pagerankMaxIter = 100
	pagerankTol     = 1e-9
)

// Centrality assigns a PageRank-style score to every node, computed per
// connected component of the weighted undirected graph. Scores are only
// comparable within a component; no global normalization is applied.
// Isolated nodes score 0.
func Centrality(nodes []string, edges []WeightedEdge) map[string]float64 {
	keys := append([]string(nil), nodes...)
	sort.Strings(keys)
	idx := make(map[string]int, len(keys))
	for i, k := range keys {
		idx[k] = i
	}
	adj := buildAdj(keys, idx, edges)

	out := make(map[string]float64, len(keys))
	visited := make([]bool, len(keys))
	for start := range keys {
		if visited[start] {
			continue
		}
		component := []int{start}
		visited[start] = true
		for head := 0; head < len(component); head++ {
			nb := make([]int, 0, len(adj[component[head]]))
			for j := range adj[component[head]] {
				nb = append(nb, j)
			}
			sort.Ints(nb)
			for _, j := range nb {
				if !visited[j] {
					visited[j] = true
					component = append(component, j)
				}
			}
		}
		if len(component) == 1 {
			out[keys[start]] = 0
			continue
		}
		for node, score := range pagerank(adj, component) {
			out[keys[node]] = score
		}
	}
	return out
}

// pagerank runs weighted power iteration restricted to one component.
func pagerank(adj []map[int]float64, component []int) map[int]float64 {
	n := len(component)
	local := make(map[int]int, n)
	for i, node := range component {
		local[node] = i
	}
	degree := make([]float64, n)
	for i, node := range component {
		for _, w := range adj[node] {
			degree[i] += w
		}
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	for iter := 0; iter < pagerankMaxIter; iter++ {
		for i := range next {
			next[i] = (1 - pagerankDamping) / float64(n)
		}
		for i, node := range component {
			if degree[i] == 0 {
				continue
			}
			share := pagerankDamping * rank[i] / degree[i]
			for j, w := range adj[node] {
				next[local[j]] += share * w
			}
		}
		var delta float64
		for i := range rank {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < pagerankTol {
			break
		}
	}

	out := make(map[int]float64, n)
	for i, node := range component {
		out[node] = rank[i]
	}
	return out
}
