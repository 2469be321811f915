package validation

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"marketintel/internal/core"
)

// AlignedPair couples one day's sentiment with the return of the next
// available trading day.
type AlignedPair struct {
	SentimentDate string
	MarketDate    string
	Sentiment     float64
	Return        float64
}

// Align pairs each sentiment day with the first market day strictly after it.
// Each market day is consumed at most once.
func Align(sentiment []core.DailySentimentPoint, market []core.MarketDataPoint) []AlignedPair {
	sorted := make([]core.MarketDataPoint, len(market))
	copy(sorted, market)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	points := make([]core.DailySentimentPoint, len(sentiment))
	copy(points, sentiment)
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	var pairs []AlignedPair
	cursor := 0
	for _, s := range points {
		for cursor < len(sorted) && sorted[cursor].Date <= s.Date {
			cursor++
		}
		if cursor >= len(sorted) {
			break
		}
		pairs = append(pairs, AlignedPair{
			SentimentDate: s.Date,
			MarketDate:    sorted[cursor].Date,
			Sentiment:     s.WeightedSentiment,
			Return:        sorted[cursor].ChangePct,
		})
		cursor++
	}
	return pairs
}

// Pearson is the linear correlation of the paired series.
func Pearson(pairs []AlignedPair) float64 {
	if len(pairs) < 2 {
		return 0
	}
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.Sentiment
		y[i] = p.Return
	}
	r := stat.Correlation(x, y, nil)
	if r != r { // NaN when a series is constant
		return 0
	}
	return r
}

// Spearman ranks both series (average ranks on ties) and correlates the ranks.
func Spearman(pairs []AlignedPair) float64 {
	if len(pairs) < 2 {
		return 0
	}
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.Sentiment
		y[i] = p.Return
	}
	rx, ry := ranks(x), ranks(y)
	r := stat.Correlation(rx, ry, nil)
	if r != r {
		return 0
	}
	return r
}

// ranks assigns average ranks, handling ties.
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avgRank
		}
		i = j + 1
	}
	return out
}

// DirectionAccuracy is the fraction of pairs whose signs agree. Zero values
// on either side count as agreement only with zero.
func DirectionAccuracy(pairs []AlignedPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	agree := 0
	for _, p := range pairs {
		if sign(p.Sentiment) == sign(p.Return) {
			agree++
		}
	}
	return float64(agree) / float64(len(pairs))
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
