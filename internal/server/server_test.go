package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/feedfile"
	"marketintel/internal/pipeline"
	"marketintel/internal/store"
)

type fakeRunner struct {
	result *pipeline.RunResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, date string) (*pipeline.RunResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewStore(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(st, &fakeRunner{}, dir, 0), st, dir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestNewsEmptyState(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s.Router(), "/news")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var feed feedfile.Feed
	decode(t, rec, &feed)
	if len(feed.News) != 0 {
		t.Errorf("expected empty feed, got %d entries", len(feed.News))
	}
}

func TestNewsByDate(t *testing.T) {
	s, _, dir := newTestServer(t)

	briefing := &core.Briefing{
		Date:             "2026-08-20",
		ExecutiveSummary: "A quiet day across all tracked categories.",
		Source:           core.SourceLocalFallback,
		GeneratedAt:      time.Now().UTC(),
	}
	if err := feedfile.Mirror(dir, "2026-08-20", briefing, nil); err != nil {
		t.Fatalf("failed to seed feed: %v", err)
	}

	rec := get(t, s.Router(), "/news/2026-08-20")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var entry feedfile.Entry
	decode(t, rec, &entry)
	if entry.Date != "2026-08-20" {
		t.Errorf("entry date = %q", entry.Date)
	}

	if rec := get(t, s.Router(), "/news/2026-01-01"); rec.Code != http.StatusNotFound {
		t.Errorf("missing date should 404, got %d", rec.Code)
	}
}

func TestRefreshSuccessAndFailure(t *testing.T) {
	st, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	runner := &fakeRunner{result: &pipeline.RunResult{Date: "2026-08-24", Articles: 12, Clusters: 3}}
	s := New(st, runner, t.TempDir(), 0)

	req := httptest.NewRequest(http.MethodPost, "/news/refresh", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp refreshResponse
	decode(t, rec, &resp)
	if !resp.Success {
		t.Errorf("expected success, got %+v", resp)
	}
	if len(resp.FetchedDates) != 1 || resp.FetchedDates[0] != "2026-08-24" {
		t.Errorf("fetchedDates = %v", resp.FetchedDates)
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}

	runner.result, runner.err = nil, errors.New("ingestion failed: no providers")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/news/refresh", nil))
	resp = refreshResponse{}
	decode(t, rec, &resp)
	if resp.Success {
		t.Error("failed run should report success=false")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("refresh failure should still return 200, got %d", rec.Code)
	}
}

func TestTerminalServesStoredDays(t *testing.T) {
	s, st, _ := newTestServer(t)

	date := "2026-08-22"
	if err := st.SaveBriefing(core.Briefing{
		Date:             date,
		ExecutiveSummary: "Chip supply tightened while risk held steady.",
		Source:           core.SourceLLM,
		GPRIndex:         34,
		GeneratedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to save briefing: %v", err)
	}
	if err := st.SaveClusters([]core.Cluster{{
		ID:           "c1",
		Date:         date,
		Topic:        "Trends in Chips, Supply, Export",
		ArticleCount: 4,
		Categories:   []core.Category{core.CategoryAICompute},
		Confidence:   core.ConfidenceMedium,
	}}); err != nil {
		t.Fatalf("failed to save clusters: %v", err)
	}
	if err := st.SaveDailySentiment(core.DailySentimentPoint{
		Date: date, AvgSentiment: -12, WeightedSentiment: -15, ArticleCount: 4,
	}); err != nil {
		t.Fatalf("failed to save sentiment: %v", err)
	}

	rec := get(t, s.Router(), "/market-terminal/?days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp terminalResponse
	decode(t, rec, &resp)
	if len(resp.Analyses) != 1 {
		t.Fatalf("analyses = %d, want 1", len(resp.Analyses))
	}
	if resp.Analyses[0].Briefing == nil || resp.Analyses[0].Briefing.GPRIndex != 34 {
		t.Error("briefing missing from analysis")
	}
	if len(resp.Analyses[0].Clusters) != 1 {
		t.Errorf("clusters = %d, want 1", len(resp.Analyses[0].Clusters))
	}
	if len(resp.SentimentHistory) != 1 {
		t.Errorf("sentiment history = %d, want 1", len(resp.SentimentHistory))
	}
	if resp.CategoryNames[string(core.CategoryCybersecurity)] == "" {
		t.Error("category names missing")
	}
}

func TestTerminalEmptyStateNeverFails(t *testing.T) {
	s, _, _ := newTestServer(t)
	for _, path := range []string{
		"/market-terminal/",
		"/market-terminal/latest",
		"/market-terminal/sentiment",
		"/market-terminal/history",
		"/health",
		"/api/status",
	} {
		if rec := get(t, s.Router(), path); rec.Code != http.StatusOK {
			t.Errorf("%s returned %d on empty store", path, rec.Code)
		}
	}
}

func TestClampDays(t *testing.T) {
	cases := []struct {
		query string
		max   int
		want  int
	}{
		{"", 30, 7},
		{"?days=10", 30, 10},
		{"?days=500", 30, 30},
		{"?days=120", 90, 90},
		{"?days=-3", 30, 7},
		{"?days=abc", 30, 7},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x"+tc.query, nil)
		if got := clampDays(req, tc.max); got != tc.want {
			t.Errorf("clampDays(%q, %d) = %d, want %d", tc.query, tc.max, got, tc.want)
		}
	}
}
