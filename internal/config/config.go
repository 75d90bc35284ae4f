package config

import (
	"fmt"
	"math"
	"time"

	"momentum/internal/util"

	"github.com/go-playground/validator"
)

// Pipeline holds every tunable the graph engine recognizes. All values come
// from the environment so canonicalization sensitivity, edge thresholds and
// scoring weights can be changed without code changes.
type Pipeline struct {
	// TauDays is the decay constant for co-link weights, stance decay and
	// recency, in days.
	TauDays float64 `validate:"gt=0"`

	// SimThreshold is the minimum cosine similarity for a SIM edge.
	SimThreshold float64 `validate:"gte=0,lte=1"`

	// FuzzyThreshold is the minimum string-similarity ratio for merging a
	// raw mention into an existing canonical entity.
	FuzzyThreshold float64 `validate:"gte=0,lte=1"`

	// MinSubClusterSize is the member count below which a sub-theme is
	// treated as noise.
	MinSubClusterSize int `validate:"gte=1"`

	// WeightFloor drops co-link edges below this weight.
	WeightFloor float64 `validate:"gte=0"`

	// ModularityWarn flags a run as degenerate when the article partition's
	// modularity falls below it.
	ModularityWarn float64

	// Scoring weights. Alpha: centrality, Beta: KPI stance, Gamma: relation
	// edge quality, Delta: recency. Must sum to 1.
	Alpha float64 `validate:"gte=0,lte=1"`
	Beta  float64 `validate:"gte=0,lte=1"`
	Gamma float64 `validate:"gte=0,lte=1"`
	Delta float64 `validate:"gte=0,lte=1"`

	// MaxParallelClusters bounds per-cluster snippet-graph work.
	MaxParallelClusters int `validate:"gte=1"`

	// StoreMaxRetries and StoreRetryBase control the backoff loop around
	// store writes.
	StoreMaxRetries int           `validate:"gte=1"`
	StoreRetryBase  time.Duration `validate:"gt=0"`
}

// Tau returns the decay constant as a duration.
func (p Pipeline) Tau() time.Duration {
	return time.Duration(p.TauDays * float64(24*time.Hour))
}

// Load builds a Pipeline config from the environment, falling back to the
// documented defaults.
func Load() Pipeline {
	return Pipeline{
		TauDays:             util.GetEnvNumeric("DECAY_TAU_DAYS", 7),
		SimThreshold:        util.GetEnvNumeric("SIM_THRESHOLD", 0.30),
		FuzzyThreshold:      util.GetEnvNumeric("FUZZY_THRESHOLD", 0.90),
		MinSubClusterSize:   util.GetEnvInt("MIN_SUBCLUSTER_SIZE", 3),
		WeightFloor:         util.GetEnvNumeric("WEIGHT_FLOOR", 1e-6),
		ModularityWarn:      util.GetEnvNumeric("MODULARITY_WARN", 0.05),
		Alpha:               util.GetEnvNumeric("SCORE_ALPHA", 0.35),
		Beta:                util.GetEnvNumeric("SCORE_BETA", 0.30),
		Gamma:               util.GetEnvNumeric("SCORE_GAMMA", 0.15),
		Delta:               util.GetEnvNumeric("SCORE_DELTA", 0.20),
		MaxParallelClusters: util.GetEnvInt("MAX_PARALLEL_CLUSTERS", 4),
		StoreMaxRetries:     util.GetEnvInt("STORE_MAX_RETRIES", 5),
		StoreRetryBase:      time.Duration(util.GetEnvNumeric("STORE_RETRY_BASE_MS", 250)) * time.Millisecond,
	}
}

// Validate checks field ranges and that the scoring weights sum to 1.
func (p Pipeline) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	sum := p.Alpha + p.Beta + p.Gamma + p.Delta
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1, got %v", sum)
	}
	return nil
}
