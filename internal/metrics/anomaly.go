package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

const (
	// anomalyZThreshold is the z-score above which coverage volume alerts.
	anomalyZThreshold = 2.0
	// anomalyMinHistory is the minimum days of history required to alert.
	anomalyMinHistory = 3
	// anomalyWindowDays is the lookback for the baseline.
	anomalyWindowDays = 7
)

// VolumeStore persists daily volume and serves per-category history.
type VolumeStore interface {
	SaveDailyVolume(date string, category core.Category, count int) error
	GetVolumeHistory(category core.Category, days int) ([]core.VolumeRecord, error)
}

// DetectVolumeAnomalies persists today's per-category counts and flags any
// category whose volume z-scores above threshold against its prior week.
func DetectVolumeAnomalies(articles []core.EnrichedArticle, date string, store VolumeStore) ([]core.VolumeAnomaly, error) {
	counts := make(map[core.Category]int)
	for _, a := range articles {
		counts[a.Category]++
	}

	var anomalies []core.VolumeAnomaly
	for _, category := range core.Categories {
		count := counts[category]

		history, err := store.GetVolumeHistory(category, anomalyWindowDays)
		if err != nil {
			return nil, fmt.Errorf("failed to load volume history for %s: %w", category, err)
		}

		// Today's row must not contaminate its own baseline.
		var prior []core.VolumeRecord
		for _, r := range history {
			if r.Date != date {
				prior = append(prior, r)
			}
		}

		if err := store.SaveDailyVolume(date, category, count); err != nil {
			return nil, fmt.Errorf("failed to persist volume for %s: %w", category, err)
		}

		if len(prior) < anomalyMinHistory {
			continue
		}

		mean, sd := meanStddev(prior)
		if sd == 0 {
			continue
		}
		z := (float64(count) - mean) / sd
		if z <= anomalyZThreshold {
			continue
		}

		multiplier := math.Round(float64(count)/mean*10) / 10
		anomalies = append(anomalies, core.VolumeAnomaly{
			Date:       date,
			Category:   category,
			Count:      count,
			Mean:       mean,
			ZScore:     z,
			Multiplier: multiplier,
			Message:    fmt.Sprintf("%.1fx normal coverage on %s", multiplier, category.DisplayName()),
		})
	}

	if len(anomalies) > 0 {
		for _, a := range anomalies {
			logger.Warn("volume anomaly detected", "category", string(a.Category), "message", a.Message)
		}
	}
	return anomalies, nil
}

// meanStddev uses the population standard deviation: the prior week is the
// whole baseline, not a sample of one.
func meanStddev(records []core.VolumeRecord) (float64, float64) {
	counts := make([]float64, len(records))
	for i, r := range records {
		counts[i] = float64(r.ArticleCount)
	}
	return stat.Mean(counts, nil), stat.PopStdDev(counts, nil)
}
