package enrich

import (
	"context"
	"fmt"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

// Saver is the persistence half the enricher needs from the store.
type Saver interface {
	GetUnenrichedArticles(limit int) ([]core.RawArticle, error)
	SaveEnrichedArticles(articles []core.EnrichedArticle) error
}

// Enricher runs the per-article analysis chain: sentiment, geo tags, entities,
// topics, impact.
type Enricher struct {
	analyzer *Analyzer
	scorer   *ImpactScorer
	saver    Saver
}

// New creates an enricher.
func New(analyzer *Analyzer, scorer *ImpactScorer, saver Saver) *Enricher {
	return &Enricher{analyzer: analyzer, scorer: scorer, saver: saver}
}

// EnrichArticle runs the full chain on one article. Cluster size is unknown at
// this stage, so the impact cluster term uses size 1.
func (e *Enricher) EnrichArticle(a core.RawArticle, now time.Time) core.EnrichedArticle {
	text := a.Title + " " + a.Description

	enriched := core.EnrichedArticle{
		RawArticle: a,
		Sentiment:  e.analyzer.Score(text),
		GeoTags:    GeoTags(text),
		Entities:   ExtractEntities(text),
		EnrichedAt: now,
	}
	enriched.Topics = enriched.Entities.Topics
	enriched.ImpactScore = e.scorer.Score(enriched, 1, now)
	return enriched
}

// EnrichPending drains the unenriched backlog up to limit, persisting the
// batch in one transaction.
func (e *Enricher) EnrichPending(ctx context.Context, limit int) ([]core.EnrichedArticle, error) {
	raw, err := e.saver.GetUnenrichedArticles(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load unenriched articles: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	enriched := make([]core.EnrichedArticle, 0, len(raw))
	for _, a := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		enriched = append(enriched, e.EnrichArticle(a, now))
	}

	if err := e.saver.SaveEnrichedArticles(enriched); err != nil {
		return nil, fmt.Errorf("failed to persist enriched articles: %w", err)
	}

	logger.Info("enrichment complete", "articles", len(enriched))
	return enriched, nil
}
