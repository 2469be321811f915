// Package metrics computes the daily analytic indicators: the geopolitical
// risk index, per-entity sentiment tracking, and volume anomaly detection.
package metrics

import (
	"math"
	"sort"
	"strings"

	"marketintel/internal/core"
)

// gprKeywords is the fixed weighted dictionary behind the GPR index. Selected
// high-signal terms carry weights above the 1.0 default.
var gprKeywords = map[string]float64{
	// Sanctions and economic coercion
	"sanctions": 2.5, "embargo": 2.5, "blacklist": 1.5, "tariff": 1.5,
	"tariffs": 1.5, "export controls": 2.0, "trade war": 2.0,
	// Armed conflict
	"war": 3.0, "invasion": 3.0, "missile": 2.5, "airstrike": 2.5,
	"military": 1.5, "troops": 1.5, "conflict": 2.0, "ceasefire": 1.5,
	"escalation": 2.0, "nuclear": 3.0,
	// Instability
	"coup": 2.5, "unrest": 1.5, "protest": 1.0, "crisis": 1.5,
	"instability": 1.5, "regime": 1.0,
	// Hotspots
	"taiwan": 2.0, "ukraine": 1.5, "gaza": 1.5, "strait": 1.5,
	// Security
	"cyberattack": 2.0, "espionage": 2.0, "terrorism": 2.5,
	"geopolitical": 1.5, "blockade": 2.0, "hostilities": 2.0,
	"retaliation": 1.5, "deterrence": 1.0, "standoff": 1.5,
}

const (
	gprScale        = 2.5
	gprTopKeywords  = 5
	trendWindowDays = 14
	trendDeadbandPct = 10
)

// ComputeGPR derives the day's geopolitical risk point from the enriched
// article set.
func ComputeGPR(articles []core.EnrichedArticle, date string) core.GPRPoint {
	counts := make(map[string]int)
	var weightedSum float64

	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.Description)
		for keyword, weight := range gprKeywords {
			matches := strings.Count(text, keyword)
			if matches == 0 {
				continue
			}
			counts[keyword] += matches
			weightedSum += float64(matches) * weight
		}
	}

	score := 0
	if len(articles) > 0 {
		raw := weightedSum / float64(len(articles)) * 100
		score = int(math.Round(math.Min(100, raw*gprScale)))
	}

	return core.GPRPoint{
		Date:          date,
		Score:         score,
		KeywordCounts: counts,
		TopKeywords:   topKeywords(counts, gprTopKeywords),
		ArticleCount:  len(articles),
	}
}

func topKeywords(counts map[string]int, n int) []string {
	keywords := make([]string, 0, len(counts))
	for kw := range counts {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

// GPRTrend compares the last seven days of index history to the prior seven.
func GPRTrend(history []core.GPRPoint) core.GPRTrend {
	if len(history) < trendWindowDays {
		return core.TrendStable
	}

	sorted := make([]core.GPRPoint, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })
	sorted = sorted[len(sorted)-trendWindowDays:]

	prior := mean(sorted[:trendWindowDays/2])
	recent := mean(sorted[trendWindowDays/2:])
	if prior == 0 {
		return core.TrendStable
	}

	deltaPct := (recent - prior) / prior * 100
	switch {
	case deltaPct > trendDeadbandPct:
		return core.TrendRising
	case deltaPct < -trendDeadbandPct:
		return core.TrendFalling
	default:
		return core.TrendStable
	}
}

func mean(points []core.GPRPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += float64(p.Score)
	}
	return sum / float64(len(points))
}

// TrendLabel renders a trend for briefing prose.
func TrendLabel(t core.GPRTrend) string {
	switch t {
	case core.TrendRising:
		return "rising"
	case core.TrendFalling:
		return "falling"
	default:
		return "stable"
	}
}

// RiskLabel buckets the index level for briefing prose.
func RiskLabel(score int) string {
	if score >= 50 {
		return "Elevated"
	}
	return "Stable"
}
