// Package synthesis produces the daily executive briefing: an LLM pass over
// the day's top clusters, guarded by the content-hash idempotence gate, with
// a deterministic local fallback when the model is unreachable.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketintel/internal/cache"
	"marketintel/internal/core"
	"marketintel/internal/logger"
	"marketintel/internal/metrics"
)

const (
	topClusterCount      = 5
	headlinesPerCluster  = 3
)

// TextGenerator is the LLM surface synthesis needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Saver persists briefings.
type Saver interface {
	SaveBriefing(b core.Briefing) error
}

// Engine synthesizes briefings.
type Engine struct {
	generator TextGenerator
	cache     *cache.Cache
	saver     Saver
}

// New creates a synthesis engine. generator may be nil, which forces the
// fallback path.
func New(generator TextGenerator, c *cache.Cache, saver Saver) *Engine {
	return &Engine{generator: generator, cache: c, saver: saver}
}

// Input carries everything the briefing draws on.
type Input struct {
	Date            string
	Clusters        []core.Cluster // Ordered by aggregate impact descending
	GPR             core.GPRPoint
	GPRTrend        core.GPRTrend
	MarketSentiment float64
}

// Synthesize returns the day's briefing. An identical cluster projection
// within the cache TTL short-circuits to the cached briefing without an LLM
// call; otherwise the model is asked once, and any failure produces the
// deterministic local fallback. Both outcomes are cached and persisted.
func (e *Engine) Synthesize(ctx context.Context, in Input) (*core.Briefing, error) {
	if len(in.Clusters) == 0 {
		return nil, fmt.Errorf("no clusters to synthesize from")
	}

	gate, err := e.cache.CheckBeforeLLMCall(in.Clusters)
	if err != nil {
		return nil, fmt.Errorf("briefing cache check failed: %w", err)
	}
	if !gate.ShouldCall {
		logger.Info("briefing cache hit", "date", in.Date, "hash", gate.InputHash)
		cached := *gate.Cached
		cached.Date = in.Date
		if err := e.saver.SaveBriefing(cached); err != nil {
			return nil, fmt.Errorf("failed to persist cached briefing: %w", err)
		}
		return &cached, nil
	}

	briefing := e.generate(ctx, in, gate.InputHash)

	if err := e.saver.SaveBriefing(*briefing); err != nil {
		return nil, fmt.Errorf("failed to persist briefing: %w", err)
	}
	if err := e.cache.PutBriefing(gate.InputHash, *briefing); err != nil {
		logger.Warn("failed to cache briefing", "error", err.Error())
	}
	return briefing, nil
}

func (e *Engine) generate(ctx context.Context, in Input, inputHash string) *core.Briefing {
	top := in.Clusters
	if len(top) > topClusterCount {
		top = top[:topClusterCount]
	}
	topIDs := make([]string, len(top))
	for i, c := range top {
		topIDs[i] = c.ID
	}

	briefing := &core.Briefing{
		Date:            in.Date,
		CacheHash:       inputHash,
		GPRIndex:        in.GPR.Score,
		MarketSentiment: in.MarketSentiment,
		GeneratedAt:     time.Now().UTC(),
		TopClusters:     topIDs,
	}

	if e.generator != nil {
		summary, err := e.generator.GenerateText(ctx, buildPrompt(in, top))
		if err == nil && wordCount(summary) >= 50 {
			briefing.ExecutiveSummary = strings.TrimSpace(summary)
			briefing.Source = core.SourceLLM
			return briefing
		}
		if err != nil {
			logger.Warn("LLM synthesis failed, using local fallback", "error", err.Error())
		} else {
			logger.Warn("LLM returned implausibly short briefing, using local fallback")
		}
	}

	briefing.ExecutiveSummary = fallbackSummary(in, top)
	briefing.Source = core.SourceLocalFallback
	return briefing
}

// buildPrompt assembles the synthesis prompt: date, GPR state, and the top
// clusters with up to three headlines each.
func buildPrompt(in Input, top []core.Cluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a market intelligence analyst. Write an executive briefing for %s.\n\n", in.Date)
	fmt.Fprintf(&b, "Geopolitical risk index: %d/100, trend %s.\n\n", in.GPR.Score, metrics.TrendLabel(in.GPRTrend))
	b.WriteString("Today's top stories:\n")

	for i, c := range top {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, c.Topic)
		fmt.Fprintf(&b, "   Keywords: %s\n", strings.Join(c.Keywords, ", "))
		fmt.Fprintf(&b, "   Articles: %d, sentiment %.0f, impact %.0f\n",
			c.ArticleCount, c.AggregateSentiment, c.AggregateImpact)
		headlines := c.Headlines
		if len(headlines) > headlinesPerCluster {
			headlines = headlines[:headlinesPerCluster]
		}
		for _, h := range headlines {
			fmt.Fprintf(&b, "   - %s\n", h)
		}
	}

	b.WriteString("\nWrite 250-350 words of analytical prose connecting these stories. ")
	b.WriteString("No headers, no bullet points, no meta-commentary.")
	return b.String()
}

// fallbackSummary is the deterministic briefing used when the LLM is
// unavailable. Same inputs produce the same prose.
func fallbackSummary(in Input, top []core.Cluster) string {
	var b strings.Builder
	b.WriteString("Daily Market Intelligence Report. ")
	fmt.Fprintf(&b, "Top trending topic today is '%s'. ", top[0].Topic)
	fmt.Fprintf(&b, "Geopolitical risk remains %s at index level %d. ",
		metrics.RiskLabel(in.GPR.Score), in.GPR.Score)

	fmt.Fprintf(&b, "Coverage today spans %d story clusters across %d articles. ",
		len(in.Clusters), totalArticles(in.Clusters))

	for i, c := range top {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "%s drew %d articles with %s sentiment (%.0f) and impact %.0f. ",
			c.Topic, c.ArticleCount, sentimentWord(c.AggregateSentiment),
			c.AggregateSentiment, c.AggregateImpact)
	}

	fmt.Fprintf(&b, "Overall market sentiment stands at %.1f.", in.MarketSentiment)
	return b.String()
}

func sentimentWord(s float64) string {
	switch {
	case s > 10:
		return "positive"
	case s < -10:
		return "negative"
	default:
		return "neutral"
	}
}

func totalArticles(clusters []core.Cluster) int {
	total := 0
	for _, c := range clusters {
		total += c.ArticleCount
	}
	return total
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
