// Package pipeline orchestrates the daily run: ingestion through synthesis,
// with per-stage health records and partial-failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"marketintel/internal/cache"
	"marketintel/internal/clustering"
	"marketintel/internal/collector"
	"marketintel/internal/core"
	"marketintel/internal/enrich"
	"marketintel/internal/feedfile"
	"marketintel/internal/logger"
	"marketintel/internal/metrics"
	"marketintel/internal/narrative"
	"marketintel/internal/providers"
	"marketintel/internal/store"
	"marketintel/internal/synthesis"
)

// enrichBatchLimit caps how many backlogged articles one run enriches.
const enrichBatchLimit = 500

// Pipeline wires the stages together around the shared store and caches.
type Pipeline struct {
	store       *store.Store
	cache       *cache.Cache
	collector   *collector.Collector
	enricher    *enrich.Enricher
	clusterer   *clustering.Engine
	narrative   *narrative.Engine
	synthesizer *synthesis.Engine
	dataDir     string
	maxArticles int
}

// Config assembles a pipeline.
type Config struct {
	Store       *store.Store
	Cache       *cache.Cache
	Collector   *collector.Collector
	Enricher    *enrich.Enricher
	Clusterer   *clustering.Engine
	Narrative   *narrative.Engine
	Synthesizer *synthesis.Engine
	DataDir     string
	MaxArticles int
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	maxArticles := cfg.MaxArticles
	if maxArticles == 0 {
		maxArticles = 20
	}
	return &Pipeline{
		store:       cfg.Store,
		cache:       cfg.Cache,
		collector:   cfg.Collector,
		enricher:    cfg.Enricher,
		clusterer:   cfg.Clusterer,
		narrative:   cfg.Narrative,
		synthesizer: cfg.Synthesizer,
		dataDir:     cfg.DataDir,
		maxArticles: maxArticles,
	}
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Date     string              `json:"date"`
	Steps    []core.HealthRecord `json:"steps"`
	Errors   []string            `json:"errors"`
	Briefing *core.Briefing      `json:"briefing,omitempty"`
	Clusters int                 `json:"clusters"`
	Articles int                 `json:"articles"`
}

// Run executes the full stage sequence for one date (empty means today).
// Ingestion, enrichment, clustering, and synthesis failures abort the run;
// every other stage failure is recorded and skipped over.
func (p *Pipeline) Run(ctx context.Context, date string) (*RunResult, error) {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	result := &RunResult{Date: date}
	logger.Info("pipeline run starting", "date", date)

	// Ingestion (fatal).
	var collected *collector.Result
	err := p.step(result, "ingestion", func() (int, error) {
		var err error
		collected, err = p.collector.Collect(ctx, providers.FetchOptions{
			MaxArticles: p.maxArticles,
		})
		if err != nil {
			return 0, err
		}
		return collected.Persisted, nil
	})
	if err != nil {
		return result, fmt.Errorf("ingestion failed: %w", err)
	}

	// Enrichment (fatal).
	var enriched []core.EnrichedArticle
	err = p.step(result, "enrichment", func() (int, error) {
		var err error
		enriched, err = p.enricher.EnrichPending(ctx, enrichBatchLimit)
		if err != nil {
			return 0, err
		}
		if len(enriched) == 0 {
			// Backlog already drained; work with what the day has.
			enriched, err = p.store.GetEnrichedArticlesByDate(date)
		}
		return len(enriched), err
	})
	if err != nil {
		return result, fmt.Errorf("enrichment failed: %w", err)
	}
	result.Articles = len(enriched)
	if len(enriched) == 0 {
		return result, fmt.Errorf("no articles available for %s", date)
	}

	// Clustering (fatal).
	var clusters []core.Cluster
	err = p.step(result, "clustering", func() (int, error) {
		var err error
		clusters, err = p.clusterer.Cluster(ctx, enriched)
		return len(clusters), err
	})
	if err != nil {
		return result, fmt.Errorf("clustering failed: %w", err)
	}
	result.Clusters = len(clusters)

	// GPR (non-fatal).
	var gpr core.GPRPoint
	gprTrend := core.TrendStable
	p.stepNonFatal(result, "gpr", func() (int, error) {
		gpr = metrics.ComputeGPR(enriched, date)
		if err := p.store.SaveGPRPoint(gpr); err != nil {
			return 0, err
		}
		history, err := p.store.GetGPRHistory(14)
		if err != nil {
			return 1, err
		}
		gprTrend = metrics.GPRTrend(history)
		return 1, nil
	})

	// Entity tracking (non-fatal).
	p.stepNonFatal(result, "entity_tracking", func() (int, error) {
		points, err := metrics.TrackEntities(enriched, date, p.store)
		return len(points), err
	})

	// Volume anomaly (non-fatal).
	p.stepNonFatal(result, "anomaly", func() (int, error) {
		anomalies, err := metrics.DetectVolumeAnomalies(enriched, date, p.store)
		return len(anomalies), err
	})

	// Narrative threading (non-fatal).
	p.stepNonFatal(result, "narrative", func() (int, error) {
		threads, err := p.narrative.Process(clusters, date)
		return len(threads), err
	})

	// Market-sentiment aggregate (non-fatal).
	marketSentiment := 0.0
	p.stepNonFatal(result, "market_sentiment", func() (int, error) {
		point := metrics.DailySentiment(enriched, date)
		marketSentiment = point.WeightedSentiment
		return point.ArticleCount, p.store.SaveDailySentiment(point)
	})

	// Synthesis (fatal).
	err = p.step(result, "synthesis", func() (int, error) {
		briefing, err := p.synthesizer.Synthesize(ctx, synthesis.Input{
			Date:            date,
			Clusters:        clusters,
			GPR:             gpr,
			GPRTrend:        gprTrend,
			MarketSentiment: marketSentiment,
		})
		if err != nil {
			return 0, err
		}
		result.Briefing = briefing
		return 1, nil
	})
	if err != nil {
		return result, fmt.Errorf("synthesis failed: %w", err)
	}

	// Feed mirror (non-fatal).
	p.stepNonFatal(result, "feed_mirror", func() (int, error) {
		return len(enriched), feedfile.Mirror(p.dataDir, date, result.Briefing, enriched)
	})

	logger.Info("pipeline run complete",
		"date", date,
		"articles", result.Articles,
		"clusters", result.Clusters,
		"errors", len(result.Errors),
	)
	return result, nil
}

// step runs a fatal stage, recording its health either way.
func (p *Pipeline) step(result *RunResult, name string, fn func() (int, error)) error {
	record := p.execute(result.Date, name, fn)
	result.Steps = append(result.Steps, record)
	if record.Status == core.StepFailure {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", name, record.Error))
		return fmt.Errorf("%s", record.Error)
	}
	return nil
}

// stepNonFatal runs an isolated stage: failure is recorded and the run
// continues.
func (p *Pipeline) stepNonFatal(result *RunResult, name string, fn func() (int, error)) {
	record := p.execute(result.Date, name, fn)
	result.Steps = append(result.Steps, record)
	if record.Status == core.StepFailure {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", name, record.Error))
		logger.Warn("stage failed, continuing", "step", name, "error", record.Error)
	}
}

func (p *Pipeline) execute(date, name string, fn func() (int, error)) core.HealthRecord {
	start := time.Now()
	items, err := fn()

	record := core.HealthRecord{
		Date:       date,
		Step:       name,
		Status:     core.StepSuccess,
		DurationMS: time.Since(start).Milliseconds(),
		ItemCount:  items,
		RecordedAt: time.Now().UTC(),
	}
	if err != nil {
		record.Status = core.StepFailure
		record.Error = err.Error()
	}

	if saveErr := p.store.SaveHealthRecord(record); saveErr != nil {
		logger.Error("failed to persist health record", "step", name, "error", saveErr.Error())
	}
	return record
}
