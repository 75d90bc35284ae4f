package graph

import (
	"sort"
)

// WeightedEdge is an undirected weighted edge between two string node keys.
type WeightedEdge struct {
	A, B   string
	Weight float64
}

// Communities partitions a weighted undirected graph by modularity
// maximization (Louvain). The run is deterministic for a fixed input: nodes
// are visited in sorted key order, and a move is taken only on a strictly
// positive gain, with equal gains resolved to the lowest community id.
// Returned cluster ids are dense, starting at 0, numbered by the
// lexicographically smallest member key. Nodes without edges end up in
// singleton clusters. The second return is the modularity of the partition.
func Communities(nodes []string, edges []WeightedEdge) (map[string]int, float64) {
	idx := make(map[string]int, len(nodes))
	keys := append([]string(nil), nodes...)
	sort.Strings(keys)
	for i, k := range keys {
		idx[k] = i
	}

	n := len(keys)
	base := buildAdj(keys, idx, edges)
	adj := base

	// community of each current super-node, and the original nodes each
	// super-node stands for
	comm := make([]int, n)
	members := make([][]int, n)
	for i := range comm {
		comm[i] = i
		members[i] = []int{i}
	}
	finalComm := make([]int, n)
	for i := range finalComm {
		finalComm[i] = i
	}

	for {
		improved := louvainPass(adj, comm)

		// record the partition on the original nodes
		for super, list := range members {
			for _, orig := range list {
				finalComm[orig] = comm[super]
			}
		}
		if !improved {
			break
		}

		// aggregate: communities become the nodes of the next level
		adj, members = aggregate(adj, comm, members)
		comm = make([]int, len(members))
		for i := range comm {
			comm[i] = i
		}
	}

	q := modularity(base, finalComm)

	// renumber by lowest member key
	lowest := make(map[int]string)
	for i, k := range keys {
		c := finalComm[i]
		if cur, ok := lowest[c]; !ok || k < cur {
			lowest[c] = k
		}
	}
	ids := make([]int, 0, len(lowest))
	for c := range lowest {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool { return lowest[ids[i]] < lowest[ids[j]] })
	renum := make(map[int]int, len(ids))
	for newID, c := range ids {
		renum[c] = newID
	}

	out := make(map[string]int, n)
	for i, k := range keys {
		out[k] = renum[finalComm[i]]
	}
	return out, q
}

// louvainPass runs the local move phase to convergence on one level and
// reports whether any node changed community.
func louvainPass(adj []map[int]float64, comm []int) bool {
	n := len(adj)
	degree := make([]float64, n)
	var m2 float64 // twice the total edge weight
	for i, nb := range adj {
		for _, w := range nb {
			degree[i] += w
			m2 += w
		}
	}
	if m2 == 0 {
		return false
	}
	commDegree := make([]float64, n)
	for i, c := range comm {
		commDegree[c] += degree[i]
	}

	improvedAny := false
	for moved := true; moved; {
		moved = false
		for i := 0; i < n; i++ {
			current := comm[i]
			commDegree[current] -= degree[i]

			// weight from i into each neighboring community; the
			// self-loop is internal wherever i lands, so it never
			// counts toward a candidate
			into := make(map[int]float64)
			for j, w := range adj[i] {
				if j == i {
					continue
				}
				into[comm[j]] += w
			}

			best := current
			bestGain := into[current] - commDegree[current]*degree[i]/m2
			targets := make([]int, 0, len(into))
			for c := range into {
				targets = append(targets, c)
			}
			sort.Ints(targets)
			for _, c := range targets {
				if c == current {
					continue
				}
				gain := into[c] - commDegree[c]*degree[i]/m2
				if gain > bestGain || (gain == bestGain && c < best) {
					best = c
					bestGain = gain
				}
			}
			comm[i] = best
			commDegree[best] += degree[i]
			if best != current {
				moved = true
				improvedAny = true
			}
		}
	}
	return improvedAny
}

// aggregate collapses each community into a single node of the next level.
func aggregate(adj []map[int]float64, comm []int, members [][]int) ([]map[int]float64, [][]int) {
	// dense ids for surviving communities, ordered by old community id
	used := make([]int, 0)
	seen := make(map[int]bool)
	for _, c := range comm {
		if !seen[c] {
			seen[c] = true
			used = append(used, c)
		}
	}
	sort.Ints(used)
	dense := make(map[int]int, len(used))
	for i, c := range used {
		dense[c] = i
	}

	next := make([]map[int]float64, len(used))
	for i := range next {
		next[i] = make(map[int]float64)
	}
	nextMembers := make([][]int, len(used))
	for super, list := range members {
		d := dense[comm[super]]
		nextMembers[d] = append(nextMembers[d], list...)
	}
	for i, nb := range adj {
		di := dense[comm[i]]
		for j, w := range nb {
			// intra-community weight survives as a self-loop so the
			// super-node keeps the full degree of its members
			next[di][dense[comm[j]]] += w
		}
	}
	return next, nextMembers
}

func buildAdj(keys []string, idx map[string]int, edges []WeightedEdge) []map[int]float64 {
	adj := make([]map[int]float64, len(keys))
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	for _, e := range edges {
		a, okA := idx[e.A]
		b, okB := idx[e.B]
		if !okA || !okB || a == b || e.Weight <= 0 {
			continue
		}
		adj[a][b] += e.Weight
		adj[b][a] += e.Weight
	}
	return adj
}

// modularity computes Newman modularity Q for a partition of a weighted
// undirected graph. Graphs with no edges score 0.
func modularity(adj []map[int]float64, comm []int) float64 {
	var m2 float64
	degree := make([]float64, len(adj))
	for i, nb := range adj {
		for _, w := range nb {
			degree[i] += w
			m2 += w
		}
	}
	if m2 == 0 {
		return 0
	}
	inside := make(map[int]float64)
	total := make(map[int]float64)
	for i, nb := range adj {
		total[comm[i]] += degree[i]
		for j, w := range nb {
			if comm[i] == comm[j] {
				inside[comm[i]] += w
			}
		}
	}
	var q float64
	for c, in := range inside {
		q += in/m2 - (total[c]/m2)*(total[c]/m2)
	}
	for c, tot := range total {
		if _, ok := inside[c]; !ok {
			q -= (tot / m2) * (tot / m2)
		}
	}
	return q
}
