package metrics

import "marketintel/internal/core"

// DailySentiment aggregates the day's articles into the market-sentiment
// point: a plain mean and an impact-weighted mean of normalized sentiment.
func DailySentiment(articles []core.EnrichedArticle, date string) core.DailySentimentPoint {
	point := core.DailySentimentPoint{Date: date, ArticleCount: len(articles)}
	if len(articles) == 0 {
		return point
	}

	var sum, weightedSum, weightTotal float64
	for _, a := range articles {
		s := float64(a.Sentiment.NormalizedScore)
		w := float64(a.ImpactScore)
		sum += s
		weightedSum += s * w
		weightTotal += w
	}

	point.AvgSentiment = sum / float64(len(articles))
	if weightTotal > 0 {
		point.WeightedSentiment = weightedSum / weightTotal
	} else {
		point.WeightedSentiment = point.AvgSentiment
	}
	return point
}
