package enrich

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"marketintel/internal/core"
)

func TestLexiconScoreDirections(t *testing.T) {
	pos := LexiconScore("NVIDIA beats earnings estimates with record growth")
	if pos.NormalizedScore <= 0 || pos.Label != core.LabelPositive {
		t.Errorf("expected positive, got score=%d label=%s", pos.NormalizedScore, pos.Label)
	}

	neg := LexiconScore("AMD warns of GPU shortage amid supply crisis")
	if neg.NormalizedScore >= 0 || neg.Label != core.LabelNegative {
		t.Errorf("expected negative, got score=%d label=%s", neg.NormalizedScore, neg.Label)
	}

	neutral := LexiconScore("The committee will meet next quarter")
	if neutral.Label != core.LabelNeutral {
		t.Errorf("expected neutral, got %s", neutral.Label)
	}
}

func TestLexiconScoreBounds(t *testing.T) {
	s := LexiconScore("crash collapse plunge crisis bankruptcy fraud recession")
	if s.NormalizedScore < -100 || s.NormalizedScore > 100 {
		t.Errorf("normalized score out of range: %d", s.NormalizedScore)
	}
	if s.Confidence < 0 || s.Confidence > 0.95 {
		t.Errorf("confidence out of range: %f", s.Confidence)
	}
	if s.Method != core.MethodLexicon {
		t.Errorf("wrong method: %s", s.Method)
	}
}

func TestLexiconConfidenceCountsMatchedTerms(t *testing.T) {
	// surge(3) + record(2.5) + profit(2): sum 7.5, 3 matched terms.
	s := LexiconScore("markets surge on record profit")
	if math.Abs(s.Confidence-0.81) > 1e-9 {
		t.Errorf("confidence = %f, want 0.81", s.Confidence)
	}

	// Neutral filler dilutes the comparative score but not the confidence.
	diluted := LexiconScore("markets surge on record profit while the committee discussed various administrative matters yesterday")
	if diluted.Confidence != s.Confidence {
		t.Errorf("filler changed confidence: %f vs %f", diluted.Confidence, s.Confidence)
	}
}

func TestMapTransformerResult(t *testing.T) {
	pos := mapTransformerResult(core.LabelPositive, 0.9)
	if pos.NormalizedScore != 45 {
		t.Errorf("positive 0.9 should map to 45, got %d", pos.NormalizedScore)
	}
	neg := mapTransformerResult(core.LabelNegative, 0.8)
	if neg.NormalizedScore != -40 {
		t.Errorf("negative 0.8 should map to -40, got %d", neg.NormalizedScore)
	}
	neutral := mapTransformerResult(core.LabelNeutral, 0.99)
	if neutral.NormalizedScore != 0 {
		t.Errorf("neutral should map to 0, got %d", neutral.NormalizedScore)
	}
	if pos.Method != core.MethodTransformer {
		t.Errorf("wrong method: %s", pos.Method)
	}
}

type stubClassifier struct {
	label core.SentimentLabel
	conf  float64
	err   error
	calls int
}

func (s *stubClassifier) Classify(string) (core.SentimentLabel, float64, error) {
	s.calls++
	return s.label, s.conf, s.err
}

func TestAnalyzerUsesTransformerWhenLoaded(t *testing.T) {
	stub := &stubClassifier{label: core.LabelPositive, conf: 0.8}
	a := NewAnalyzer(func() (Classifier, error) { return stub, nil }, nil)

	s := a.Score("Company posts strong results")
	if s.Method != core.MethodTransformer || s.NormalizedScore != 40 {
		t.Errorf("expected transformer path, got method=%s score=%d", s.Method, s.NormalizedScore)
	}
}

func TestAnalyzerStickyFallbackOnLoadFailure(t *testing.T) {
	loads := 0
	a := NewAnalyzer(func() (Classifier, error) {
		loads++
		return nil, errors.New("ENOENT")
	}, nil)

	for i := 0; i < 3; i++ {
		if s := a.Score("profits surge on record demand"); s.Method != core.MethodLexicon {
			t.Fatalf("expected lexicon fallback, got %s", s.Method)
		}
	}
	if loads != 1 {
		t.Errorf("loader should run exactly once, ran %d times", loads)
	}
}

func TestAnalyzerPerCallFailureDegradesToLexicon(t *testing.T) {
	stub := &stubClassifier{err: errors.New("timeout")}
	a := NewAnalyzer(func() (Classifier, error) { return stub, nil }, nil)

	if s := a.Score("markets rally on upbeat outlook"); s.Method != core.MethodLexicon {
		t.Errorf("expected lexicon on classify error, got %s", s.Method)
	}
	// The model stays loaded; the next call tries it again.
	a.Score("another headline about the rally")
	if stub.calls != 2 {
		t.Errorf("expected classifier retried per call, got %d calls", stub.calls)
	}
}

func TestGeoTags(t *testing.T) {
	tags := GeoTags("US imposes new sanctions as Taiwan Strait tensions escalate after cyberattack")
	want := map[string]bool{"sanctions": true, "regional_hotspot": true, "security": true}
	if len(tags) != len(want) {
		t.Fatalf("expected %d tags, got %v", len(want), tags)
	}
	for _, tag := range tags {
		if !want[tag] {
			t.Errorf("unexpected tag %s", tag)
		}
	}

	if tags := GeoTags("Quarterly results at a software company"); len(tags) != 0 {
		t.Errorf("expected no tags, got %v", tags)
	}
}

func TestExtractEntities(t *testing.T) {
	e := ExtractEntities("NVIDIA and Acme Corp expand in Taiwan as John Smith takes over")

	if !contains(e.Organizations, "NVIDIA") || !contains(e.Organizations, "Acme Corp") {
		t.Errorf("missing organizations: %v", e.Organizations)
	}
	if !contains(e.Places, "Taiwan") {
		t.Errorf("missing place: %v", e.Places)
	}
	if !contains(e.People, "John Smith") {
		t.Errorf("missing person: %v", e.People)
	}
}

func TestExtractEntitiesDeduplicatesCaseInsensitively(t *testing.T) {
	e := ExtractEntities("NVIDIA surges. NVIDIA leads. nvidia again")
	if len(e.Organizations) != 1 {
		t.Errorf("expected one NVIDIA, got %v", e.Organizations)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestSourceTier(t *testing.T) {
	cases := map[string]float64{
		"Reuters":         1.3,
		"Bloomberg":       1.3,
		"TechCrunch":      1.1,
		"BBC News":        1.0,
		"random-blog.net": 0.8,
	}
	for source, want := range cases {
		if got := sourceTier(source); got != want {
			t.Errorf("sourceTier(%q) = %v, want %v", source, got, want)
		}
	}
}

func TestComputeImpactBoundsAndWeighting(t *testing.T) {
	now := time.Now().UTC()
	article := core.EnrichedArticle{
		RawArticle: core.RawArticle{Source: "Reuters", PublishedAt: now.Add(-2 * time.Hour)},
		Sentiment:  core.Sentiment{NormalizedScore: -60},
	}

	impact := ComputeImpact(article, 10, now, core.DefaultImpactWeights())
	if impact < 0 || impact > 100 {
		t.Fatalf("impact out of range: %d", impact)
	}

	// Higher sentiment magnitude raises impact, all else equal.
	stronger := article
	stronger.Sentiment.NormalizedScore = -95
	if ComputeImpact(stronger, 10, now, core.DefaultImpactWeights()) <= impact {
		t.Error("stronger sentiment should raise impact")
	}

	// Stale articles score lower on recency.
	stale := article
	stale.PublishedAt = now.Add(-72 * time.Hour)
	if ComputeImpact(stale, 10, now, core.DefaultImpactWeights()) >= impact {
		t.Error("older article should score lower")
	}
}

type stubWeightSource struct {
	weights *core.OptimizedWeights
	err     error
}

func (s *stubWeightSource) GetCurrentWeights() (*core.OptimizedWeights, error) {
	return s.weights, s.err
}

func TestImpactScorerAdoptsFreshWinningWeights(t *testing.T) {
	optimized := &core.OptimizedWeights{
		Weights:   core.ImpactWeights{Sentiment: 0.5, Cluster: 0.2, Source: 0.2, Recency: 0.1},
		Pearson:   0.4,
		BaselineR: 0.2,
		CreatedAt: time.Now().UTC().Add(-24 * time.Hour),
	}
	scorer := NewImpactScorer(&stubWeightSource{weights: optimized})
	if w := scorer.Weights(); w.Sentiment != 0.5 {
		t.Errorf("expected optimized weights adopted, got %+v", w)
	}
}

func TestImpactScorerRejectsStaleOrLosingWeights(t *testing.T) {
	stale := &core.OptimizedWeights{
		Weights:   core.ImpactWeights{Sentiment: 0.5, Cluster: 0.2, Source: 0.2, Recency: 0.1},
		Pearson:   0.4,
		BaselineR: 0.2,
		CreatedAt: time.Now().UTC().Add(-10 * 24 * time.Hour),
	}
	if w := NewImpactScorer(&stubWeightSource{weights: stale}).Weights(); w != core.DefaultImpactWeights() {
		t.Errorf("stale weights should be rejected, got %+v", w)
	}

	losing := &core.OptimizedWeights{
		Weights:   core.ImpactWeights{Sentiment: 0.5, Cluster: 0.2, Source: 0.2, Recency: 0.1},
		Pearson:   0.1,
		BaselineR: 0.3,
		CreatedAt: time.Now().UTC(),
	}
	if w := NewImpactScorer(&stubWeightSource{weights: losing}).Weights(); w != core.DefaultImpactWeights() {
		t.Errorf("losing weights should be rejected, got %+v", w)
	}
}

type stubSaver struct {
	raw   []core.RawArticle
	saved []core.EnrichedArticle
}

func (s *stubSaver) GetUnenrichedArticles(limit int) ([]core.RawArticle, error) {
	if limit < len(s.raw) {
		return s.raw[:limit], nil
	}
	return s.raw, nil
}

func (s *stubSaver) SaveEnrichedArticles(articles []core.EnrichedArticle) error {
	s.saved = append(s.saved, articles...)
	return nil
}

func TestEnrichPending(t *testing.T) {
	saver := &stubSaver{raw: []core.RawArticle{
		{
			ID:          "a1",
			Title:       "NVIDIA beats earnings estimates with record data center growth",
			Source:      "Reuters",
			PublishedAt: time.Now().UTC().Add(-time.Hour),
			Category:    core.CategoryAICompute,
		},
	}}

	e := New(NewAnalyzer(nil, nil), NewImpactScorer(nil), saver)
	enriched, err := e.EnrichPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("EnrichPending failed: %v", err)
	}
	if len(enriched) != 1 || len(saver.saved) != 1 {
		t.Fatalf("expected 1 enriched article, got %d (saved %d)", len(enriched), len(saver.saved))
	}

	a := enriched[0]
	if a.Sentiment.Method != core.MethodLexicon {
		t.Errorf("nil loader should force lexicon, got %s", a.Sentiment.Method)
	}
	if a.Sentiment.NormalizedScore <= 0 {
		t.Errorf("expected positive sentiment, got %d", a.Sentiment.NormalizedScore)
	}
	if a.ImpactScore < 0 || a.ImpactScore > 100 {
		t.Errorf("impact out of range: %d", a.ImpactScore)
	}
	if a.EnrichedAt.IsZero() {
		t.Error("enriched_at not set")
	}
}
