package synthesis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"marketintel/internal/cache"
	"marketintel/internal/core"
)

// memBackend is an in-memory cache backend for tests.
type memBackend struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemBackend() *memBackend {
	return &memBackend{entries: make(map[string]string)}
}

func (m *memBackend) GetCacheEntry(family, hash string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.entries[family+"/"+hash]
	return payload, ok, nil
}

func (m *memBackend) PutCacheEntry(family, hash, payload string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[family+"/"+hash] = payload
	return nil
}

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) GenerateText(context.Context, string) (string, error) {
	s.calls++
	return s.response, s.err
}

type briefingRecorder struct {
	saved []core.Briefing
}

func (r *briefingRecorder) SaveBriefing(b core.Briefing) error {
	r.saved = append(r.saved, b)
	return nil
}

func sampleInput() Input {
	return Input{
		Date: "2026-01-12",
		Clusters: []core.Cluster{
			{
				ID: "c1", Topic: "Trends in Chip, Export, Controls",
				Keywords:           []string{"chip", "export", "controls"},
				ArticleCount:       6,
				AggregateSentiment: -35,
				AggregateImpact:    72,
				Headlines:          []string{"One", "Two", "Three", "Four"},
			},
			{
				ID: "c2", Topic: "Trends in Payments, Funding",
				Keywords:           []string{"payments", "funding"},
				ArticleCount:       3,
				AggregateSentiment: 20,
				AggregateImpact:    40,
			},
		},
		GPR:             core.GPRPoint{Date: "2026-01-12", Score: 62},
		GPRTrend:        core.TrendRising,
		MarketSentiment: -12.5,
	}
}

func longSummary() string {
	return strings.Repeat("The semiconductor export situation continues to develop across markets. ", 30)
}

func TestSynthesizeLLMSuccess(t *testing.T) {
	gen := &stubGenerator{response: longSummary()}
	saver := &briefingRecorder{}
	engine := New(gen, cache.New(newMemBackend()), saver)

	b, err := engine.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if b.Source != core.SourceLLM {
		t.Errorf("source = %s, want llm", b.Source)
	}
	if b.GPRIndex != 62 || b.Date != "2026-01-12" {
		t.Errorf("unexpected briefing metadata: %+v", b)
	}
	if len(b.TopClusters) != 2 || b.TopClusters[0] != "c1" {
		t.Errorf("unexpected top clusters: %v", b.TopClusters)
	}
	if len(saver.saved) != 1 {
		t.Errorf("expected 1 persisted briefing, got %d", len(saver.saved))
	}
	if b.CacheHash == "" {
		t.Error("cache hash not recorded")
	}
}

func TestSynthesizeIdempotence(t *testing.T) {
	gen := &stubGenerator{response: longSummary()}
	saver := &briefingRecorder{}
	engine := New(gen, cache.New(newMemBackend()), saver)

	first, err := engine.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("first Synthesize failed: %v", err)
	}
	second, err := engine.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("second Synthesize failed: %v", err)
	}

	if gen.calls != 1 {
		t.Errorf("identical input should trigger exactly one LLM call, got %d", gen.calls)
	}
	if first.ExecutiveSummary != second.ExecutiveSummary {
		t.Error("cached briefing text differs from the original")
	}
}

func TestSynthesizeFallbackOnError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("deadline exceeded")}
	saver := &briefingRecorder{}
	engine := New(gen, cache.New(newMemBackend()), saver)

	b, err := engine.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if b.Source != core.SourceLocalFallback {
		t.Errorf("source = %s, want local_fallback", b.Source)
	}
	if !strings.HasPrefix(b.ExecutiveSummary, "Daily Market Intelligence Report. Top trending topic today is 'Trends in Chip, Export, Controls'. Geopolitical risk remains Elevated at index level 62.") {
		t.Errorf("unexpected fallback prose: %q", b.ExecutiveSummary)
	}
}

func TestFallbackIsCachedToo(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota")}
	engine := New(gen, cache.New(newMemBackend()), &briefingRecorder{})

	if _, err := engine.Synthesize(context.Background(), sampleInput()); err != nil {
		t.Fatalf("first Synthesize failed: %v", err)
	}
	if _, err := engine.Synthesize(context.Background(), sampleInput()); err != nil {
		t.Fatalf("second Synthesize failed: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("fallback should be cached; LLM retried %d times", gen.calls)
	}
}

func TestFallbackDeterministic(t *testing.T) {
	in := sampleInput()
	top := in.Clusters
	if fallbackSummary(in, top) != fallbackSummary(in, top) {
		t.Error("fallback prose is not deterministic")
	}
}

func TestPromptIncludesTopClusterDetail(t *testing.T) {
	in := sampleInput()
	prompt := buildPrompt(in, in.Clusters)

	for _, want := range []string{
		"2026-01-12", "62/100", "rising",
		"Trends in Chip, Export, Controls", "chip, export, controls",
		"250-350 words",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Headlines are capped at three per cluster.
	if strings.Contains(prompt, "Four") {
		t.Error("prompt should cap headlines at three")
	}
}

func TestSynthesizeRequiresClusters(t *testing.T) {
	engine := New(nil, cache.New(newMemBackend()), &briefingRecorder{})
	if _, err := engine.Synthesize(context.Background(), Input{Date: "2026-01-12"}); err == nil {
		t.Fatal("expected error with no clusters")
	}
}
