package store

import (
	"testing"
	"time"

	"marketintel/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func rawArticle(id, url string, published time.Time) core.RawArticle {
	return core.RawArticle{
		ID:          id,
		Title:       "Chipmaker posts record quarterly results",
		Description: "Data center demand keeps climbing.",
		URL:         url,
		Source:      "Reuters",
		PublishedAt: published,
		Category:    core.CategoryAICompute,
		Provider:    "newsapi",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := first.SaveRawArticles([]core.RawArticle{
		rawArticle("a1", "https://example.com/1", time.Now().UTC()),
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopening migrates again over the existing schema without data loss.
	second, err := NewStore(dir)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer second.Close()

	articles, err := second.GetUnenrichedArticles(10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(articles) != 1 || articles[0].ID != "a1" {
		t.Errorf("expected the saved article to survive reopen, got %v", articles)
	}
}

func TestRawArticleUpsertByURL(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()

	a := rawArticle("a1", "https://example.com/story", now)
	if err := st.SaveRawArticles([]core.RawArticle{a}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Same URL again with an updated title: refreshed, not duplicated.
	a.Title = "Chipmaker posts record quarterly results, shares jump"
	if err := st.SaveRawArticles([]core.RawArticle{a}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	articles, err := st.GetUnenrichedArticles(10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 row after upsert, got %d", len(articles))
	}
	if articles[0].Title != a.Title {
		t.Errorf("title not refreshed: %q", articles[0].Title)
	}
}

func TestEnrichedRoundTripAndDateQuery(t *testing.T) {
	st := newTestStore(t)
	published := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)

	raw := rawArticle("a1", "https://example.com/story", published)
	if err := st.SaveRawArticles([]core.RawArticle{raw}); err != nil {
		t.Fatalf("save raw failed: %v", err)
	}

	enriched := core.EnrichedArticle{
		RawArticle: raw,
		Sentiment: core.Sentiment{
			Score:           0.45,
			NormalizedScore: 9,
			Confidence:      0.62,
			Label:           core.LabelPositive,
			Method:          core.MethodLexicon,
		},
		ImpactScore: 54,
		GeoTags:     []string{"asia_pacific"},
		Topics:      []string{"earnings"},
		Entities: core.Entities{
			Organizations: []string{"NVIDIA"},
			Places:        []string{"Taiwan"},
		},
		EnrichedAt: published.Add(time.Hour),
	}
	if err := st.SaveEnrichedArticles([]core.EnrichedArticle{enriched}); err != nil {
		t.Fatalf("save enriched failed: %v", err)
	}

	got, err := st.GetEnrichedArticlesByDate("2026-08-20")
	if err != nil {
		t.Fatalf("date query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 enriched article, got %d", len(got))
	}
	a := got[0]
	if a.Sentiment.NormalizedScore != 9 || a.Sentiment.Label != core.LabelPositive {
		t.Errorf("sentiment did not round-trip: %+v", a.Sentiment)
	}
	if a.ImpactScore != 54 {
		t.Errorf("impact = %d, want 54", a.ImpactScore)
	}
	if len(a.Entities.Organizations) != 1 || a.Entities.Organizations[0] != "NVIDIA" {
		t.Errorf("entities did not round-trip: %+v", a.Entities)
	}

	// Enriched articles no longer count as unenriched backlog.
	backlog, err := st.GetUnenrichedArticles(10)
	if err != nil {
		t.Fatalf("backlog query failed: %v", err)
	}
	if len(backlog) != 0 {
		t.Errorf("expected empty backlog, got %d", len(backlog))
	}

	if got, err := st.GetEnrichedArticlesByDate("2026-08-21"); err != nil || len(got) != 0 {
		t.Errorf("wrong-date query should be empty, got %d (%v)", len(got), err)
	}
}

func TestAssignClusterIDs(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()

	raw := rawArticle("a1", "https://example.com/story", now)
	if err := st.SaveRawArticles([]core.RawArticle{raw}); err != nil {
		t.Fatalf("save raw failed: %v", err)
	}
	if err := st.SaveEnrichedArticles([]core.EnrichedArticle{{RawArticle: raw, EnrichedAt: now}}); err != nil {
		t.Fatalf("save enriched failed: %v", err)
	}

	if err := st.AssignClusterIDs(map[string]string{"a1": "cluster-7"}); err != nil {
		t.Fatalf("assignment failed: %v", err)
	}

	members, err := st.GetClusterMembers("cluster-7")
	if err != nil {
		t.Fatalf("member query failed: %v", err)
	}
	if len(members) != 1 || members[0].ID != "a1" {
		t.Errorf("expected a1 in cluster-7, got %v", members)
	}
}

func TestBriefingUpsertByDate(t *testing.T) {
	st := newTestStore(t)

	b := core.Briefing{
		Date:             "2026-08-20",
		ExecutiveSummary: "First draft.",
		Source:           core.SourceLocalFallback,
		GPRIndex:         22,
		GeneratedAt:      time.Now().UTC(),
	}
	if err := st.SaveBriefing(b); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	b.ExecutiveSummary = "Second draft, from the model this time."
	b.Source = core.SourceLLM
	if err := st.SaveBriefing(b); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := st.GetBriefing("2026-08-20")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.Source != core.SourceLLM {
		t.Errorf("briefing not replaced: %+v", got)
	}

	dates, err := st.GetBriefingDates(10)
	if err != nil {
		t.Fatalf("dates query failed: %v", err)
	}
	if len(dates) != 1 {
		t.Errorf("expected 1 briefing date after upsert, got %d", len(dates))
	}
}

func TestCacheEntryExpiry(t *testing.T) {
	st := newTestStore(t)

	if err := st.PutCacheEntry("briefing", "abc123", `{"x":1}`, time.Hour); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	payload, ok, err := st.GetCacheEntry("briefing", "abc123")
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if payload != `{"x":1}` {
		t.Errorf("payload = %q", payload)
	}

	// An already-expired entry reads as a miss and is pruned.
	if err := st.PutCacheEntry("briefing", "stale", "old", -time.Minute); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, ok, err := st.GetCacheEntry("briefing", "stale"); err != nil || ok {
		t.Errorf("expired entry should miss, got ok=%v err=%v", ok, err)
	}

	if _, ok, _ := st.GetCacheEntry("briefing", "missing"); ok {
		t.Error("unknown hash should miss")
	}

	if err := st.ClearCacheEntries(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok, _ := st.GetCacheEntry("briefing", "abc123"); ok {
		t.Error("cleared entry should miss")
	}
}

func TestPruneRawArticles(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()

	old := rawArticle("old1", "https://example.com/old", now.AddDate(0, 0, -120))
	fresh := rawArticle("new1", "https://example.com/new", now)
	if err := st.SaveRawArticles([]core.RawArticle{old, fresh}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := st.SaveEnrichedArticles([]core.EnrichedArticle{{RawArticle: old, EnrichedAt: now}}); err != nil {
		t.Fatalf("save enriched failed: %v", err)
	}

	pruned, err := st.PruneRawArticles(90 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2 (raw + enriched)", pruned)
	}

	remaining, err := st.GetUnenrichedArticles(10)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "new1" {
		t.Errorf("expected only the fresh article, got %v", remaining)
	}
}

func TestOptimizedWeightsLatestWins(t *testing.T) {
	st := newTestStore(t)

	if w, err := st.GetCurrentWeights(); err != nil || w != nil {
		t.Fatalf("empty table should yield nil, got %v (%v)", w, err)
	}

	older := core.OptimizedWeights{
		Weights:   core.ImpactWeights{Sentiment: 0.5, Cluster: 0.2, Source: 0.2, Recency: 0.1},
		Pearson:   0.31,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	newer := core.OptimizedWeights{
		Weights:   core.ImpactWeights{Sentiment: 0.3, Cluster: 0.4, Source: 0.2, Recency: 0.1},
		Pearson:   0.44,
		BaselineR: 0.20,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.SaveOptimizedWeights(older); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := st.SaveOptimizedWeights(newer); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := st.GetCurrentWeights()
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.Weights.Cluster != 0.4 {
		t.Errorf("expected the newest row, got %+v", got)
	}
}

func TestHealthRecordsByDate(t *testing.T) {
	st := newTestStore(t)

	records := []core.HealthRecord{
		{Date: "2026-08-20", Step: "ingestion", Status: core.StepSuccess, ItemCount: 40, RecordedAt: time.Now().UTC()},
		{Date: "2026-08-20", Step: "anomaly", Status: core.StepFailure, Error: "thin history", RecordedAt: time.Now().UTC()},
		{Date: "2026-08-21", Step: "ingestion", Status: core.StepSuccess, ItemCount: 35, RecordedAt: time.Now().UTC()},
	}
	for _, r := range records {
		if err := st.SaveHealthRecord(r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	got, err := st.GetHealthRecords("2026-08-20")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for the day, got %d", len(got))
	}
	var failures int
	for _, r := range got {
		if r.Status == core.StepFailure {
			failures++
			if r.Error != "thin history" {
				t.Errorf("error not round-tripped: %q", r.Error)
			}
		}
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}
