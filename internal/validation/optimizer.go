package validation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/enrich"
	"marketintel/internal/logger"
)

// Grid values for each impact coefficient. Combinations must sum to 1.00.
var (
	gridSentiment = []float64{0.2, 0.3, 0.4, 0.5}
	gridCluster   = []float64{0.15, 0.2, 0.3, 0.4}
	gridSource    = []float64{0.1, 0.15, 0.2, 0.25}
	gridRecency   = []float64{0.05, 0.1, 0.15, 0.2}
)

const weightSumTolerance = 0.005

// OptimizerStore is the persistence surface the grid search needs.
type OptimizerStore interface {
	GetEnrichedArticlesSince(days int) ([]core.EnrichedArticle, error)
	GetMarketData(days int) ([]core.MarketDataPoint, error)
	SaveOptimizedWeights(w core.OptimizedWeights) error
}

// Optimizer grid-searches the impact coefficients against market correlation.
type Optimizer struct {
	store OptimizerStore
}

// NewOptimizer creates an optimizer.
func NewOptimizer(store OptimizerStore) *Optimizer {
	return &Optimizer{store: store}
}

// Optimize evaluates every valid weight combination over the last N days and
// persists the winner alongside the default-weight baseline. The per-article
// cluster term uses the stored impact score as a proxy for cluster size,
// since the true size at scoring time is not retained.
func (o *Optimizer) Optimize(days int) (*core.OptimizedWeights, error) {
	articles, err := o.store.GetEnrichedArticlesSince(days)
	if err != nil {
		return nil, fmt.Errorf("failed to load enriched articles: %w", err)
	}
	market, err := o.store.GetMarketData(days)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("no enriched articles in window")
	}

	byDay := groupByDay(articles)

	baseline := scoreWeights(byDay, market, core.DefaultImpactWeights())

	var best *core.OptimizedWeights
	combos := 0
	for _, ws := range gridSentiment {
		for _, wc := range gridCluster {
			for _, wsrc := range gridSource {
				for _, wr := range gridRecency {
					if math.Abs(ws+wc+wsrc+wr-1.0) > weightSumTolerance {
						continue
					}
					combos++
					candidate := core.ImpactWeights{
						Sentiment: ws, Cluster: wc, Source: wsrc, Recency: wr,
					}
					r, aligned := scoreWeightsAligned(byDay, market, candidate)
					if aligned < minAlignedDays {
						continue
					}
					if best == nil || math.Abs(r) > math.Abs(best.Pearson) {
						best = &core.OptimizedWeights{
							Weights:     candidate,
							Pearson:     r,
							BaselineR:   baseline,
							AlignedDays: aligned,
							CreatedAt:   time.Now().UTC(),
						}
					}
				}
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no weight combination produced %d aligned days", minAlignedDays)
	}
	if err := o.store.SaveOptimizedWeights(*best); err != nil {
		return nil, fmt.Errorf("failed to persist optimized weights: %w", err)
	}

	logger.Info("weight optimization complete",
		"combinations", combos,
		"best_r", fmt.Sprintf("%.3f", best.Pearson),
		"baseline_r", fmt.Sprintf("%.3f", best.BaselineR),
	)
	return best, nil
}

func groupByDay(articles []core.EnrichedArticle) map[string][]core.EnrichedArticle {
	byDay := make(map[string][]core.EnrichedArticle)
	for _, a := range articles {
		day := a.PublishedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], a)
	}
	return byDay
}

func scoreWeights(byDay map[string][]core.EnrichedArticle, market []core.MarketDataPoint, w core.ImpactWeights) float64 {
	r, _ := scoreWeightsAligned(byDay, market, w)
	return r
}

// scoreWeightsAligned recomputes each day's impact-weighted sentiment under
// the candidate weights and correlates it with next-day returns.
func scoreWeightsAligned(byDay map[string][]core.EnrichedArticle, market []core.MarketDataPoint, w core.ImpactWeights) (float64, int) {
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	sentiment := make([]core.DailySentimentPoint, 0, len(days))
	for _, day := range days {
		var weightedSum, weightTotal float64
		for _, a := range byDay[day] {
			proxySize := a.ImpactScore / 5
			if proxySize < 1 {
				proxySize = 1
			}
			weight := float64(enrich.ComputeImpact(a, proxySize, a.EnrichedAt, w))
			weightedSum += float64(a.Sentiment.NormalizedScore) * weight
			weightTotal += weight
		}
		point := core.DailySentimentPoint{Date: day, ArticleCount: len(byDay[day])}
		if weightTotal > 0 {
			point.WeightedSentiment = weightedSum / weightTotal
		}
		sentiment = append(sentiment, point)
	}

	pairs := Align(sentiment, market)
	return Pearson(pairs), len(pairs)
}
