package enrich

import (
	"math"
	"strings"
	"sync"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

// weightsMaxAge bounds how old an optimized-weights row may be before the
// scorer reverts to defaults.
const weightsMaxAge = 7 * 24 * time.Hour

// weightsRefreshInterval is how often the scorer re-reads the weights table.
const weightsRefreshInterval = time.Hour

// sourceTiers is the fixed credibility table. Values feed the source score as
// (tier - 0.7) / 0.6 * 100.
var sourceTiers = map[string]float64{
	"reuters":         1.3,
	"bloomberg":       1.3,
	"financial times": 1.3,
	"techcrunch":      1.1,
	"the verge":       1.1,
	"cnbc":            1.1,
}

// knownSources get the neutral tier; anything else is discounted.
var knownSources = map[string]bool{
	"wall street journal": true, "the wall street journal": true,
	"new york times": true, "the new york times": true,
	"associated press": true, "bbc news": true, "bbc": true,
	"the guardian": true, "al jazeera": true, "ars technica": true,
	"wired": true, "forbes": true, "business insider": true,
	"venturebeat": true, "the hacker news": true, "bleepingcomputer": true,
	"tom's hardware": true, "finextra": true, "semiconductor engineering": true,
}

// sourceTier resolves a publisher name to its credibility multiplier.
func sourceTier(source string) float64 {
	lower := strings.ToLower(strings.TrimSpace(source))
	if tier, ok := sourceTiers[lower]; ok {
		return tier
	}
	for name, tier := range sourceTiers {
		if strings.Contains(lower, name) {
			return tier
		}
	}
	if knownSources[lower] {
		return 1.0
	}
	return 0.8
}

// WeightSource supplies the latest grid-search winner, if any.
type WeightSource interface {
	GetCurrentWeights() (*core.OptimizedWeights, error)
}

// ImpactScorer computes the composite impact score. It consults the optimizer
// table at most once per hour and adopts optimized weights only when they are
// fresh and beat the default baseline.
type ImpactScorer struct {
	source WeightSource

	mu        sync.Mutex
	weights   core.ImpactWeights
	fetchedAt time.Time
}

// NewImpactScorer creates a scorer. source may be nil; defaults are then used
// unconditionally.
func NewImpactScorer(source WeightSource) *ImpactScorer {
	return &ImpactScorer{source: source, weights: core.DefaultImpactWeights()}
}

// Weights returns the active coefficient set, refreshing from the optimizer
// table when the hourly interval has elapsed.
func (s *ImpactScorer) Weights() core.ImpactWeights {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil || time.Since(s.fetchedAt) < weightsRefreshInterval {
		return s.weights
	}
	s.fetchedAt = time.Now()

	optimized, err := s.source.GetCurrentWeights()
	if err != nil {
		logger.Warn("failed to load optimized weights, keeping current", "error", err.Error())
		return s.weights
	}
	if optimized == nil ||
		time.Since(optimized.CreatedAt) > weightsMaxAge ||
		math.Abs(optimized.Pearson) <= math.Abs(optimized.BaselineR) {
		s.weights = core.DefaultImpactWeights()
		return s.weights
	}

	s.weights = optimized.Weights
	return s.weights
}

// Score computes impact for one article given its cluster size and the scoring
// reference time.
func (s *ImpactScorer) Score(a core.EnrichedArticle, clusterSize int, now time.Time) int {
	return ComputeImpact(a, clusterSize, now, s.Weights())
}

// ComputeImpact is the weighted sum behind the impact score:
// w_s*|sentiment| + w_c*cluster_size + w_src*source_tier + w_r*recency.
func ComputeImpact(a core.EnrichedArticle, clusterSize int, now time.Time, w core.ImpactWeights) int {
	sentimentScore := math.Abs(float64(a.Sentiment.NormalizedScore))

	clusterScore := float64(clusterSize) / 20 * 100
	if clusterScore > 100 {
		clusterScore = 100
	}

	sourceScore := (sourceTier(a.Source) - 0.7) / 0.6 * 100

	hoursOld := now.Sub(a.PublishedAt).Hours()
	if hoursOld < 0 {
		hoursOld = 0
	}
	recencyScore := math.Round(math.Exp(-0.05*hoursOld) * 100)

	sum := w.Sentiment*sentimentScore + w.Cluster*clusterScore +
		w.Source*sourceScore + w.Recency*recencyScore

	impact := math.Round(sum)
	if impact < 0 {
		impact = 0
	} else if impact > 100 {
		impact = 100
	}
	return int(impact)
}
