// Package collector fans the daily fetch out over the configured providers in
// order, deduplicates by URL within the run, and persists the surviving raw
// articles.
package collector

import (
	"context"
	"fmt"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/logger"
	"marketintel/internal/providers"
)

// Saver is the persistence half the collector needs from the store.
type Saver interface {
	SaveRawArticles(articles []core.RawArticle) error
}

// Result summarizes one collection run.
type Result struct {
	Fetched    int            `json:"fetched"`     // Articles returned by providers
	Deduped    int            `json:"deduped"`     // Dropped as in-run URL duplicates
	Persisted  int            `json:"persisted"`   // New rows written
	PerSource  map[string]int `json:"per_source"`  // Provider name -> articles contributed
	DurationMS int64          `json:"duration_ms"`
}

// Collector runs the providers in configured order.
type Collector struct {
	providers []providers.Provider
	saver     Saver
}

// New creates a collector over an ordered provider list.
func New(ps []providers.Provider, saver Saver) *Collector {
	return &Collector{providers: ps, saver: saver}
}

// Collect fetches from every available provider. A provider error is logged
// and skipped; the run fails only when no provider contributed anything.
func (c *Collector) Collect(ctx context.Context, opts providers.FetchOptions) (*Result, error) {
	start := time.Now()
	result := &Result{PerSource: make(map[string]int)}

	seen := make(map[string]bool)
	var kept []core.RawArticle

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.IsAvailable() {
			logger.Warn("provider unavailable, skipping", "provider", p.Name())
			continue
		}

		articles, err := p.FetchArticles(opts)
		if err != nil {
			logger.Error("provider fetch failed", "provider", p.Name(), "error", err.Error())
			continue
		}

		for _, a := range articles {
			result.Fetched++
			if seen[a.URL] {
				result.Deduped++
				continue
			}
			seen[a.URL] = true
			kept = append(kept, a)
			result.PerSource[p.Name()]++
		}
		logger.Info("provider fetch complete",
			"provider", p.Name(), "articles", result.PerSource[p.Name()])
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("no articles collected from any provider")
	}

	if err := c.saver.SaveRawArticles(kept); err != nil {
		return nil, fmt.Errorf("failed to persist collected articles: %w", err)
	}
	result.Persisted = len(kept)
	result.DurationMS = time.Since(start).Milliseconds()

	logger.Info("collection run complete",
		"fetched", result.Fetched,
		"deduped", result.Deduped,
		"persisted", result.Persisted,
	)
	return result, nil
}
