// Package canon resolves raw entity surface forms to canonical graph
// identities. Matching is kind-isolated: a startup never merges with an
// investor or sector, however similar the spellings are.
package canon

import (
	"sort"

	"momentum/pkg/common"
	"momentum/pkg/logger"
)

// Resolver maps raw names onto canonical entities. It is loaded once from the
// stored entity set and then consulted per mention; it is not safe for
// concurrent use.
//
// Entities are indexed under their suffix-stripped match key, while the
// canonical display name keeps the first-seen cleaned form, so "Acme Inc."
// stays "Acme Inc" and "ACME, Inc" merges into it.
type Resolver struct {
	threshold float64
	byKind    map[common.EntityKind]map[string]*common.Entity
	allKinds  map[string][]common.EntityKind
}

// NewResolver builds a resolver over the already-canonical entity set.
// threshold is the minimum similarity for a fuzzy merge.
func NewResolver(threshold float64, existing []common.Entity) *Resolver {
	r := &Resolver{
		threshold: threshold,
		byKind:    make(map[common.EntityKind]map[string]*common.Entity),
		allKinds:  make(map[string][]common.EntityKind),
	}
	for i := range existing {
		e := existing[i]
		r.register(Normalize(e.Name), &e)
	}
	return r
}

func (r *Resolver) register(key string, e *common.Entity) {
	names := r.byKind[e.Kind]
	if names == nil {
		names = make(map[string]*common.Entity)
		r.byKind[e.Kind] = names
	}
	names[key] = e
	r.allKinds[key] = append(r.allKinds[key], e.Kind)
}

// Resolve maps a raw surface form of the given kind to its canonical entity.
// The second return reports whether the entity is new to the resolver. Raw
// forms that normalize to nothing resolve to a zero Entity and false.
//
// Resolution order: exact match on the suffix-stripped key within the kind,
// then the single best fuzzy match at or above the threshold. Candidate keys
// are scanned in sorted order and a later candidate must beat the running
// best strictly, so ties resolve to the lexicographically first key and
// repeated runs over the same input produce the same graph.
func (r *Resolver) Resolve(raw string, kind common.EntityKind, ai bool) (common.Entity, bool) {
	key := Normalize(raw)
	if key == "" {
		return common.Entity{}, false
	}
	names := r.byKind[kind]
	if e, ok := names[key]; ok {
		r.addAlias(e, raw)
		e.AI = e.AI || ai
		return *e, false
	}

	candidates := make([]string, 0, len(names))
	for n := range names {
		candidates = append(candidates, n)
	}
	sort.Strings(candidates)
	var best *common.Entity
	bestScore := 0.0
	for _, n := range candidates {
		score := Similarity(key, n)
		if score >= r.threshold && score > bestScore {
			best = names[n]
			bestScore = score
		}
	}
	if best != nil {
		r.addAlias(best, raw)
		if d := DisplayName(raw); d != best.Name {
			r.addAlias(best, d)
		}
		best.AI = best.AI || ai
		return *best, false
	}

	e := &common.Entity{Kind: kind, Name: DisplayName(raw), AI: ai, Aliases: []string{raw}}
	if kinds, ok := r.allKinds[key]; ok && len(kinds) > 0 {
		e.NeedsReview = true
		logger.Warn("[Canon] Name already exists under another kind, keeping records separate",
			"name", e.Name, "kind", string(kind), "other", string(kinds[0]))
	}
	r.register(key, e)
	return *e, true
}

func (r *Resolver) addAlias(e *common.Entity, alias string) {
	if alias == "" || alias == e.Name {
		return
	}
	for _, a := range e.Aliases {
		if a == alias {
			return
		}
	}
	e.Aliases = append(e.Aliases, alias)
}

// Entities returns the resolver's current entity set, sorted by key, for
// persisting back to storage.
func (r *Resolver) Entities() []common.Entity {
	out := make([]common.Entity, 0)
	for _, names := range r.byKind {
		for _, e := range names {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
