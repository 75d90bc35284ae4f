package common

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// EntityKind classifies a canonical entity. The set is closed: a new kind is
// a schema change, not data.
type EntityKind string

const (
	KindStartup  EntityKind = "startup"
	KindInvestor EntityKind = "investor"
	KindSector   EntityKind = "sector"
	KindOther    EntityKind = "other"
)

// Valid reports whether k is a member of the closed kind set.
func (k EntityKind) Valid() bool {
	switch k {
	case KindStartup, KindInvestor, KindSector, KindOther:
		return true
	}
	return false
}

// KPIType is the fixed KPI vocabulary. Adding a type here is a deliberate
// schema change with exhaustive-match enforcement, not a new string value.
type KPIType string

const (
	KPIFunding     KPIType = "Funding"
	KPIProduct     KPIType = "Product"
	KPIPartnership KPIType = "Partnership"
	KPIHiring      KPIType = "Hiring"
	KPIRisk        KPIType = "Risk"
	KPIAcquisition KPIType = "Acquisition"
)

// KPITypes lists the vocabulary in its canonical order.
var KPITypes = []KPIType{KPIFunding, KPIProduct, KPIPartnership, KPIHiring, KPIRisk, KPIAcquisition}

// Valid reports whether t is a member of the fixed vocabulary.
func (t KPIType) Valid() bool {
	switch t {
	case KPIFunding, KPIProduct, KPIPartnership, KPIHiring, KPIRisk, KPIAcquisition:
		return true
	}
	return false
}

// Stance is the polarity of a snippet's relation to a KPI type.
type Stance string

const (
	StancePositive Stance = "positive"
	StanceNegative Stance = "negative"
	StanceNeutral  Stance = "neutral"
)

// ParseStance accepts both the upstream extractor's short form ("+", "-",
// "0") and the word form. Unknown values map to neutral.
func ParseStance(s string) Stance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "+", "positive":
		return StancePositive
	case "-", "negative":
		return StanceNegative
	default:
		return StanceNeutral
	}
}

// Sign returns +1, -1 or 0 for use in stance aggregation.
func (s Stance) Sign() float64 {
	switch s {
	case StancePositive:
		return 1
	case StanceNegative:
		return -1
	}
	return 0
}

// Entity is the single deduplicated identity representing a startup,
// investor or sector across all its raw name variants. There is exactly one
// canonical record per real-world entity within a kind; merges across kinds
// are forbidden.
type Entity struct {
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"` // canonical name, never overwritten by aliases
	AI          bool       `json:"is_ai"`
	Aliases     []string   `json:"aliases,omitempty"`
	NeedsReview bool       `json:"needs_review,omitempty"`
}

// Key returns the natural key used by the merge engine: kind plus canonical
// name. Two entities with the same name but different kinds are distinct.
func (e Entity) Key() string {
	return EntityKey(e.Kind, e.Name)
}

// EntityKey builds the natural key for a kind/name pair.
func EntityKey(kind EntityKind, name string) string {
	return string(kind) + "/" + name
}

// Article is a source document. The link is its identity key. Centrality and
// ClusterID are write-once-per-run fields recomputed on each pipeline pass.
type Article struct {
	Link       string    `json:"link"`
	Title      string    `json:"title"`
	Published  time.Time `json:"published"`
	Source     string    `json:"source"`
	Centrality float64   `json:"centrality"`
	ClusterID  int       `json:"cluster_id"`
}

// Mention connects an article to a canonical entity it names.
type Mention struct {
	ArticleLink string `json:"article_link"`
	EntityKey   string `json:"entity_key"`
}

// KPILabel is an ABOUT edge: a snippet's relation to one KPI type. Labels
// are produced by the external extraction step and pass through unchanged.
type KPILabel struct {
	Type       KPIType `json:"type"`
	Stance     Stance  `json:"stance"`
	Confidence float64 `json:"confidence"`
}

// Snippet is a paragraph-level excerpt owned by exactly one article. The
// snippet id is stable within its article. A nil embedding is legal: the
// snippet is stored and keeps its KPI labels but is excluded from similarity
// edges until a vector is backfilled.
type Snippet struct {
	ID          string     `json:"snippet_id"`
	ArticleLink string     `json:"article_link"`
	Text        string     `json:"text"`
	Embedding   []float32  `json:"embedding,omitempty"`
	Labels      []KPILabel `json:"labels,omitempty"`
}

// HasKPI reports whether the snippet carries a label for the given type.
func (s Snippet) HasKPI(t KPIType) bool {
	for _, l := range s.Labels {
		if l.Type == t {
			return true
		}
	}
	return false
}

// CoLink is an undirected article-to-article edge weighted by shared
// canonical entities with time decay. Endpoints are stored in canonical
// order (A < B); zero-weight edges are omitted, not stored.
type CoLink struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Weight float64 `json:"weight"`
}

// SimEdge is an undirected snippet-to-snippet similarity edge. It exists
// only between snippets whose parent articles share an article cluster,
// that share at least one KPI type, and whose cosine similarity clears the
// configured threshold. Endpoints are stored in canonical order (A < B).
type SimEdge struct {
	A          string    `json:"a"`
	B          string    `json:"b"`
	Weight     float64   `json:"weight"`
	SharedKPIs []KPIType `json:"shared_kpis"`
}

// RelationKind classifies an inferred entity-to-entity relation edge.
type RelationKind string

const (
	RelationInvestment  RelationKind = "investment"
	RelationPartnership RelationKind = "partnership"
	RelationAcquisition RelationKind = "acquisition"
)

// Relation is an inferred edge between two canonical entities, derived from
// co-mentions inside KPI-labeled articles. Confidence carries the extraction
// confidence of the supporting snippet labels.
type Relation struct {
	SourceKey  string       `json:"source_key"`
	TargetKey  string       `json:"target_key"`
	Kind       RelationKind `json:"kind"`
	Confidence float64      `json:"confidence"`
}

// ArticleMetric carries the per-run recomputed fields written back onto an
// article node.
type ArticleMetric struct {
	Link       string  `json:"link"`
	Centrality float64 `json:"centrality"`
	ClusterID  int     `json:"cluster_id"`
}

// SubTheme is a community-detection partition over a KPI-scoped snippet
// similarity graph, nested inside an article cluster. Sub-themes smaller
// than the configured minimum are marked Noise: retained in storage for
// traceability but excluded from scoring.
type SubTheme struct {
	ClusterID  int      `json:"cluster_id"`
	KPI        KPIType  `json:"kpi"`
	SubID      int      `json:"sub_id"`
	SnippetIDs []string `json:"snippet_ids"`
	Polarity   float64  `json:"polarity"` // confidence-weighted positive/negative balance in [-1,1]
	Recency    float64  `json:"recency"`  // mean decay weight of member snippets in [0,1]
	Noise      bool     `json:"noise"`
}

// RankingRecord is one row of the ranking feed: a startup's composite score
// and rank within its contributing article cluster. The feed is replaced
// wholesale each scoring pass, never patched.
type RankingRecord struct {
	EntityKey  string    `json:"entity_key"`
	Score      float64   `json:"score"`
	Rank       int       `json:"rank"`
	ClusterID  int       `json:"cluster_id"`
	ComputedAt time.Time `json:"computed_at"`
}

// DecayWeight is the shared recency kernel exp(-age/tau). Timestamps in the
// future of asOf count as age zero, and records with no timestamp get the
// maximum age penalty.
func DecayWeight(published, asOf time.Time, tau time.Duration) float64 {
	if published.IsZero() {
		return 0
	}
	age := asOf.Sub(published)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Seconds() / tau.Seconds())
}

// OrderPair returns the two keys in canonical (lexicographic) order so that
// undirected edge identity is independent of argument order.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ValidateLabel checks a KPI label against the closed vocabulary and the
// confidence range.
func ValidateLabel(l KPILabel) error {
	if !l.Type.Valid() {
		return fmt.Errorf("unknown KPI type %q", l.Type)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", l.Confidence)
	}
	return nil
}
