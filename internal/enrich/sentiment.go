// Package enrich turns raw articles into enriched ones: sentiment, geopolitical
// tags, named entities, topics, and a composite impact score.
package enrich

import (
	"math"
	"sync"

	"marketintel/internal/cache"
	"marketintel/internal/core"
	"marketintel/internal/logger"
)

// Classifier is the transformer-model contract. Classify returns a discrete
// label and a confidence in [0, 1].
type Classifier interface {
	Classify(text string) (label core.SentimentLabel, confidence float64, err error)
}

// Analyzer scores article sentiment: transformer first, lexicon fallback. The
// classifier loads lazily on first use; after one failed load the fallback is
// sticky for the process lifetime.
type Analyzer struct {
	loader func() (Classifier, error)
	cache  *cache.Cache

	once       sync.Once
	classifier Classifier
	loadFailed bool
}

// NewAnalyzer creates an analyzer. loader may be nil, which means the
// transformer path is disabled outright.
func NewAnalyzer(loader func() (Classifier, error), c *cache.Cache) *Analyzer {
	return &Analyzer{loader: loader, cache: c}
}

// model resolves the classifier once. A failed load is never retried.
func (a *Analyzer) model() Classifier {
	a.once.Do(func() {
		if a.loader == nil {
			a.loadFailed = true
			return
		}
		classifier, err := a.loader()
		if err != nil {
			logger.Warn("sentiment model unavailable, using lexicon", "error", err.Error())
			a.loadFailed = true
			return
		}
		a.classifier = classifier
	})
	if a.loadFailed {
		return nil
	}
	return a.classifier
}

// Score returns the sentiment for a text, consulting the cache first.
func (a *Analyzer) Score(text string) core.Sentiment {
	if a.cache != nil {
		if s, ok := a.cache.GetSentiment(text); ok {
			return s
		}
	}

	s := a.score(text)
	if a.cache != nil {
		a.cache.PutSentiment(text, s)
	}
	return s
}

func (a *Analyzer) score(text string) core.Sentiment {
	classifier := a.model()
	if classifier == nil {
		return LexiconScore(text)
	}

	label, confidence, err := classifier.Classify(text)
	if err != nil {
		// A per-call failure degrades this article only, not the process.
		logger.Warn("transformer classify failed, using lexicon", "error", err.Error())
		return LexiconScore(text)
	}
	return mapTransformerResult(label, confidence)
}

// mapTransformerResult converts a discrete model output into the normalized
// sentiment scale.
func mapTransformerResult(label core.SentimentLabel, confidence float64) core.Sentiment {
	var normalized int
	switch label {
	case core.LabelPositive:
		normalized = int(math.Round(confidence * 50))
	case core.LabelNegative:
		normalized = int(math.Round(-confidence * 50))
	default:
		label = core.LabelNeutral
		normalized = 0
	}
	return core.Sentiment{
		Score:           float64(normalized) / 100,
		NormalizedScore: normalized,
		Confidence:      confidence,
		Label:           label,
		Method:          core.MethodTransformer,
	}
}
