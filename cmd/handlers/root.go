// Package handlers wires the CLI commands to the pipeline, server, and
// validation subsystems.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"marketintel/internal/cache"
	"marketintel/internal/clustering"
	"marketintel/internal/collector"
	"marketintel/internal/config"
	"marketintel/internal/enrich"
	"marketintel/internal/llm"
	"marketintel/internal/logger"
	"marketintel/internal/narrative"
	"marketintel/internal/pipeline"
	"marketintel/internal/providers"
	"marketintel/internal/store"
	"marketintel/internal/synthesis"
	"marketintel/internal/validation"
)

var rootCmd = &cobra.Command{
	Use:   "marketintel",
	Short: "Market intelligence pipeline: ingest, enrich, cluster, and brief",
	Long: `marketintel runs a daily market intelligence pipeline over financial and
geopolitical news: multi-provider ingestion, sentiment and impact enrichment,
story clustering, narrative threading, a geopolitical risk index, and a
synthesized executive briefing, all persisted to a local SQLite database.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	logger.Init()
}

// App bundles the long-lived components a command needs.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Cache    *cache.Cache
	LLM      *llm.Client
	Pipeline *pipeline.Pipeline
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// buildApp loads configuration and assembles the full pipeline. The LLM
// client is optional: without Gemini keys every stage falls back to its
// local path (lexicon sentiment, TF-IDF clustering, deterministic briefing).
func buildApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	c := cache.New(st)

	var client *llm.Client
	if len(cfg.Gemini.APIKeys) > 0 {
		client, err = llm.NewClient(ctx, cfg.Gemini.APIKeys, cfg.Gemini.Model)
		if err != nil {
			logger.Warn("LLM client unavailable, using local fallbacks", "error", err.Error())
			client = nil
		}
	} else {
		logger.Info("no Gemini keys configured, using local fallbacks")
	}

	var embedder clustering.Embedder
	var generator synthesis.TextGenerator
	var loader func() (enrich.Classifier, error)
	if client != nil {
		embedder = client
		generator = client
		loader = func() (enrich.Classifier, error) { return client, nil }
	}

	p := pipeline.New(pipeline.Config{
		Store:       st,
		Cache:       c,
		Collector:   collector.New(buildProviders(cfg), st),
		Enricher:    enrich.New(enrich.NewAnalyzer(loader, c), enrich.NewImpactScorer(st), st),
		Clusterer:   clustering.New(embedder, c, st),
		Narrative:   narrative.New(st),
		Synthesizer: synthesis.New(generator, c, st),
		DataDir:     cfg.App.DataDir,
		MaxArticles: cfg.Providers.MaxArticles,
	})

	return &App{Config: cfg, Store: st, Cache: c, LLM: client, Pipeline: p}, nil
}

// buildProviders instantiates the configured providers in execution order.
// Unknown names are skipped with a warning.
func buildProviders(cfg *config.Config) []providers.Provider {
	var list []providers.Provider
	for _, name := range cfg.Providers.Order {
		switch name {
		case "newsapi":
			list = append(list, providers.NewNewsAPIProvider(cfg.Providers.NewsAPIKeys, cfg.Providers.Timeout))
		case "rss":
			list = append(list, providers.NewRSSProvider())
		case "gdelt":
			list = append(list, providers.NewGDELTProvider(cfg.Providers.Timeout))
		default:
			logger.Warn("unknown provider in config, skipping", "provider", name)
		}
	}
	if len(list) == 0 {
		list = append(list, providers.NewRSSProvider())
	}
	return list
}

// buildBacktester assembles the market-validation subsystem.
func buildBacktester(app *App) *validation.Backtester {
	client := validation.NewFinnhubClient(app.Config.Validation.FinnhubAPIKey, 0)
	return validation.NewBacktester(app.Store, client, app.Config.Validation.Symbol)
}
