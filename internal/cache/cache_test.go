package cache

import (
	"fmt"
	"testing"
	"time"

	"marketintel/internal/core"
)

// memBackend is an in-memory stand-in for the store's cache tables.
type memBackend struct {
	entries map[string]string
	expiry  map[string]time.Time
}

func newMemBackend() *memBackend {
	return &memBackend{
		entries: make(map[string]string),
		expiry:  make(map[string]time.Time),
	}
}

func (m *memBackend) key(family, hash string) string { return family + "/" + hash }

func (m *memBackend) GetCacheEntry(family, hash string) (string, bool, error) {
	k := m.key(family, hash)
	payload, ok := m.entries[k]
	if !ok || time.Now().After(m.expiry[k]) {
		return "", false, nil
	}
	return payload, true, nil
}

func (m *memBackend) PutCacheEntry(family, hash, payload string, ttl time.Duration) error {
	k := m.key(family, hash)
	m.entries[k] = payload
	m.expiry[k] = time.Now().Add(ttl)
	return nil
}

func TestSentimentCacheNormalizesText(t *testing.T) {
	c := New(newMemBackend())

	s := core.Sentiment{NormalizedScore: 40, Label: core.LabelPositive, Method: core.MethodLexicon}
	c.PutSentiment("Record Earnings Beat Expectations", s)

	// Case and surrounding whitespace do not matter.
	got, ok := c.GetSentiment("  record earnings beat expectations ")
	if !ok {
		t.Fatal("expected a cache hit after normalization")
	}
	if got.NormalizedScore != 40 {
		t.Errorf("score = %d, want 40", got.NormalizedScore)
	}

	if _, ok := c.GetSentiment("a different headline entirely"); ok {
		t.Error("unexpected hit for unseen text")
	}
}

func TestSentimentCacheEvictsLRU(t *testing.T) {
	c := New(newMemBackend())

	for i := 0; i < sentimentCapacity; i++ {
		c.PutSentiment(fmt.Sprintf("headline number %d", i), core.Sentiment{NormalizedScore: i % 100})
	}
	if c.SentimentLen() != sentimentCapacity {
		t.Fatalf("len = %d, want %d", c.SentimentLen(), sentimentCapacity)
	}

	// Touch entry 0 so entry 1 becomes the eviction candidate.
	if _, ok := c.GetSentiment("headline number 0"); !ok {
		t.Fatal("expected hit for entry 0")
	}
	c.PutSentiment("one more headline", core.Sentiment{NormalizedScore: 7})

	if c.SentimentLen() != sentimentCapacity {
		t.Errorf("len = %d after eviction, want %d", c.SentimentLen(), sentimentCapacity)
	}
	if _, ok := c.GetSentiment("headline number 0"); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok := c.GetSentiment("headline number 1"); ok {
		t.Error("least recently used entry survived eviction")
	}
}

func TestClusterCacheKeyedBySortedIDs(t *testing.T) {
	c := New(newMemBackend())

	clusters := []core.Cluster{{ID: "c1", Topic: "Trends in Chips, Supply, Export", ArticleCount: 3}}
	if err := c.PutClusters([]string{"b", "a", "c"}, clusters); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// Same set in a different order hits.
	got, ok, err := c.GetClusters([]string{"c", "a", "b"})
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].Topic != clusters[0].Topic {
		t.Errorf("clusters did not round-trip: %+v", got)
	}

	// A different set misses.
	if _, ok, _ := c.GetClusters([]string{"a", "b"}); ok {
		t.Error("subset should miss")
	}
}

func TestBriefingGate(t *testing.T) {
	c := New(newMemBackend())
	clusters := []core.Cluster{{
		Topic:              "Trends in Chips, Supply, Export",
		ArticleCount:       4,
		AggregateSentiment: -22,
		Keywords:           []string{"chips", "supply", "export", "ban", "fab", "yield"},
	}}

	gate, err := c.CheckBeforeLLMCall(clusters)
	if err != nil {
		t.Fatalf("gate failed: %v", err)
	}
	if !gate.ShouldCall {
		t.Fatal("first check should request a call")
	}
	if gate.InputHash == "" {
		t.Fatal("gate must return the hash for storing the result")
	}

	briefing := core.Briefing{
		Date:             "2026-08-20",
		ExecutiveSummary: "Export controls dominated semiconductor coverage.",
		CacheHash:        gate.InputHash,
		Source:           core.SourceLLM,
	}
	if err := c.PutBriefing(gate.InputHash, briefing); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	second, err := c.CheckBeforeLLMCall(clusters)
	if err != nil {
		t.Fatalf("second gate failed: %v", err)
	}
	if second.ShouldCall {
		t.Error("identical clusters should hit the gate")
	}
	if second.Cached == nil || second.Cached.ExecutiveSummary != briefing.ExecutiveSummary {
		t.Errorf("cached briefing mismatch: %+v", second.Cached)
	}

	// Only the first five keywords participate in the key.
	truncated := []core.Cluster{{
		Topic:              clusters[0].Topic,
		ArticleCount:       clusters[0].ArticleCount,
		AggregateSentiment: clusters[0].AggregateSentiment,
		Keywords:           []string{"chips", "supply", "export", "ban", "fab", "different-sixth"},
	}}
	third, err := c.CheckBeforeLLMCall(truncated)
	if err != nil {
		t.Fatalf("third gate failed: %v", err)
	}
	if third.ShouldCall {
		t.Error("sixth keyword must not change the gate key")
	}

	// A materially different projection misses.
	changed := []core.Cluster{{Topic: "Something else", ArticleCount: 2}}
	fourth, err := c.CheckBeforeLLMCall(changed)
	if err != nil {
		t.Fatalf("fourth gate failed: %v", err)
	}
	if !fourth.ShouldCall {
		t.Error("different clusters should miss the gate")
	}
}

func TestHash16Stable(t *testing.T) {
	a := Hash16("hello")
	if len(a) != 16 {
		t.Fatalf("hash length = %d, want 16", len(a))
	}
	if a != Hash16("hello") {
		t.Error("hash must be deterministic")
	}
	if a == Hash16("hello2") {
		t.Error("distinct inputs should not collide here")
	}
}
