package feedfile

import (
	"fmt"
	"testing"
	"time"

	"marketintel/internal/core"
)

func dayArticles(category core.Category, n int) []core.EnrichedArticle {
	var articles []core.EnrichedArticle
	for i := 0; i < n; i++ {
		articles = append(articles, core.EnrichedArticle{
			RawArticle: core.RawArticle{
				Title:       fmt.Sprintf("Headline number %d long enough to matter", i),
				URL:         fmt.Sprintf("https://example.com/%d", i),
				Source:      "Reuters",
				PublishedAt: time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC),
				Category:    category,
			},
			Sentiment:   core.Sentiment{NormalizedScore: -10},
			ImpactScore: 40,
		})
	}
	return articles
}

func TestMirrorUpsertAndOrder(t *testing.T) {
	dir := t.TempDir()
	briefing := &core.Briefing{ExecutiveSummary: "Quiet day overall."}

	if err := Mirror(dir, "2026-01-11", briefing, dayArticles(core.CategoryFintech, 2)); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	if err := Mirror(dir, "2026-01-12", briefing, dayArticles(core.CategoryAICompute, 3)); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}

	feed, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(feed.News) != 2 {
		t.Fatalf("expected 2 days, got %d", len(feed.News))
	}
	if feed.News[0].Date != "2026-01-12" {
		t.Errorf("feed not sorted descending: %s first", feed.News[0].Date)
	}
	if !feed.Visible {
		t.Error("feed should be visible")
	}
	if got := len(feed.News[0].Content.Categories[string(core.CategoryAICompute)]); got != 3 {
		t.Errorf("expected 3 ai articles, got %d", got)
	}

	// Re-mirroring the same date replaces, not appends.
	if err := Mirror(dir, "2026-01-12", briefing, dayArticles(core.CategoryAICompute, 1)); err != nil {
		t.Fatalf("Mirror failed: %v", err)
	}
	feed, _ = Load(dir)
	if len(feed.News) != 2 {
		t.Errorf("upsert duplicated the day: %d entries", len(feed.News))
	}
	if got := len(feed.News[0].Content.Categories[string(core.CategoryAICompute)]); got != 1 {
		t.Errorf("day not replaced, has %d articles", got)
	}
}

func TestLoadMissingFileIsEmptyFeed(t *testing.T) {
	feed, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(feed.News) != 0 || feed.Visible {
		t.Errorf("expected empty feed, got %+v", feed)
	}
}
