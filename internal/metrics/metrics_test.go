package metrics

import (
	"fmt"
	"math"
	"testing"

	"marketintel/internal/core"
)

func geoArticle(title string, sentiment int, category core.Category) core.EnrichedArticle {
	return core.EnrichedArticle{
		RawArticle: core.RawArticle{Title: title, Category: category},
		Sentiment:  core.Sentiment{NormalizedScore: sentiment},
	}
}

func TestComputeGPRScoresKeywordDensity(t *testing.T) {
	calm := []core.EnrichedArticle{
		geoArticle("Software company posts quarterly results", 10, core.CategoryAICompute),
		geoArticle("New payments product launches in Europe", 5, core.CategoryFintech),
	}
	calmPoint := ComputeGPR(calm, "2026-01-12")
	if calmPoint.Score != 0 {
		t.Errorf("calm day should score 0, got %d", calmPoint.Score)
	}

	tense := []core.EnrichedArticle{
		geoArticle("New sanctions target chip exports amid trade war", -40, core.CategoryGeopolitics),
		geoArticle("Missile strikes escalate regional conflict", -60, core.CategoryGeopolitics),
		geoArticle("Quiet day for enterprise software", 0, core.CategoryRPAEnterprise),
	}
	tensePoint := ComputeGPR(tense, "2026-01-12")
	if tensePoint.Score <= calmPoint.Score {
		t.Errorf("tense day should outscore calm day, got %d", tensePoint.Score)
	}
	if tensePoint.Score > 100 {
		t.Errorf("score above cap: %d", tensePoint.Score)
	}
	if tensePoint.KeywordCounts["sanctions"] != 1 {
		t.Errorf("expected sanctions counted once, got %d", tensePoint.KeywordCounts["sanctions"])
	}
	if len(tensePoint.TopKeywords) == 0 || len(tensePoint.TopKeywords) > 5 {
		t.Errorf("top keywords out of bounds: %v", tensePoint.TopKeywords)
	}
	if tensePoint.ArticleCount != 3 {
		t.Errorf("article count = %d, want 3", tensePoint.ArticleCount)
	}
}

func gprHistory(scores []int) []core.GPRPoint {
	points := make([]core.GPRPoint, len(scores))
	for i, s := range scores {
		points[i] = core.GPRPoint{
			Date:  fmt.Sprintf("2026-01-%02d", i+1),
			Score: s,
		}
	}
	return points
}

func TestGPRTrend(t *testing.T) {
	rising := gprHistory([]int{20, 20, 20, 20, 20, 20, 20, 40, 40, 40, 40, 40, 40, 40})
	if got := GPRTrend(rising); got != core.TrendRising {
		t.Errorf("expected rising, got %s", got)
	}

	falling := gprHistory([]int{40, 40, 40, 40, 40, 40, 40, 20, 20, 20, 20, 20, 20, 20})
	if got := GPRTrend(falling); got != core.TrendFalling {
		t.Errorf("expected falling, got %s", got)
	}

	flat := gprHistory([]int{30, 30, 30, 30, 30, 30, 30, 31, 31, 31, 31, 31, 31, 31})
	if got := GPRTrend(flat); got != core.TrendStable {
		t.Errorf("expected stable, got %s", got)
	}

	short := gprHistory([]int{10, 20, 30})
	if got := GPRTrend(short); got != core.TrendStable {
		t.Errorf("short history should read stable, got %s", got)
	}
}

type entityRecorder struct {
	saved []core.EntitySentimentPoint
}

func (r *entityRecorder) SaveEntitySentiment(points []core.EntitySentimentPoint) error {
	r.saved = points
	return nil
}

func TestTrackEntitiesMentionFloor(t *testing.T) {
	articles := []core.EnrichedArticle{
		{
			RawArticle: core.RawArticle{},
			Sentiment:  core.Sentiment{NormalizedScore: -40},
			Entities:   core.Entities{Organizations: []string{"NVIDIA"}, Places: []string{"Taiwan"}},
		},
		{
			RawArticle: core.RawArticle{},
			Sentiment:  core.Sentiment{NormalizedScore: -20},
			Entities:   core.Entities{Organizations: []string{"nvidia"}},
		},
	}

	recorder := &entityRecorder{}
	points, err := TrackEntities(articles, "2026-01-12", recorder)
	if err != nil {
		t.Fatalf("TrackEntities failed: %v", err)
	}

	// NVIDIA has 2 mentions (case-insensitive); Taiwan has only 1.
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %+v", points)
	}
	p := points[0]
	if p.Entity != "NVIDIA" {
		t.Errorf("entity = %q, want NVIDIA", p.Entity)
	}
	if p.AvgSentiment != -30 {
		t.Errorf("avg sentiment = %v, want -30", p.AvgSentiment)
	}
	if p.ArticleCount != 2 || p.EntityType != core.EntityOrganization {
		t.Errorf("unexpected point %+v", p)
	}
	if len(recorder.saved) != 1 {
		t.Errorf("expected persisted batch of 1, got %d", len(recorder.saved))
	}
}

func TestNormalizeEntity(t *testing.T) {
	if _, ok := normalizeEntity("company"); ok {
		t.Error("stop-listed entity should be rejected")
	}
	if _, ok := normalizeEntity("NVIDIA's"); ok {
		t.Error("possessive should be rejected")
	}
	if got, ok := normalizeEntity("jensen huang"); !ok || got != "Jensen Huang" {
		t.Errorf("expected title case, got %q (%v)", got, ok)
	}
	if got, ok := normalizeEntity("TSMC"); !ok || got != "TSMC" {
		t.Errorf("acronym should be preserved, got %q (%v)", got, ok)
	}
}

type volumeStub struct {
	history map[core.Category][]core.VolumeRecord
	saved   []core.VolumeRecord
}

func (v *volumeStub) SaveDailyVolume(date string, category core.Category, count int) error {
	v.saved = append(v.saved, core.VolumeRecord{Date: date, Category: category, ArticleCount: count})
	return nil
}

func (v *volumeStub) GetVolumeHistory(category core.Category, days int) ([]core.VolumeRecord, error) {
	return v.history[category], nil
}

func TestDetectVolumeAnomalies(t *testing.T) {
	history := make([]core.VolumeRecord, 0, 7)
	for i, count := range []int{3, 2, 4, 3, 2, 3, 3} {
		history = append(history, core.VolumeRecord{
			Date:         fmt.Sprintf("2026-01-%02d", 5+i),
			Category:     core.CategoryCybersecurity,
			ArticleCount: count,
		})
	}
	stub := &volumeStub{history: map[core.Category][]core.VolumeRecord{
		core.CategoryCybersecurity: history,
	}}

	articles := make([]core.EnrichedArticle, 12)
	for i := range articles {
		articles[i] = geoArticle("Breach report number whatever", -10, core.CategoryCybersecurity)
	}

	anomalies, err := DetectVolumeAnomalies(articles, "2026-01-12", stub)
	if err != nil {
		t.Fatalf("DetectVolumeAnomalies failed: %v", err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %+v", anomalies)
	}

	a := anomalies[0]
	if a.Message != "4.2x normal coverage on Cybersecurity" {
		t.Errorf("message = %q", a.Message)
	}
	if a.ZScore <= anomalyZThreshold {
		t.Errorf("z-score %v should exceed threshold", a.ZScore)
	}
	// Pins the population stddev baseline (~0.64 for this history).
	if math.Abs(a.ZScore-14.31) > 0.05 {
		t.Errorf("z-score = %.2f, want ~14.31", a.ZScore)
	}
	if a.Count != 12 {
		t.Errorf("count = %d, want 12", a.Count)
	}

	// All six categories get a volume row for the day.
	if len(stub.saved) != len(core.Categories) {
		t.Errorf("expected %d volume rows, got %d", len(core.Categories), len(stub.saved))
	}
}

func TestNoAnomalyWithThinHistory(t *testing.T) {
	stub := &volumeStub{history: map[core.Category][]core.VolumeRecord{
		core.CategoryCybersecurity: {
			{Date: "2026-01-10", Category: core.CategoryCybersecurity, ArticleCount: 2},
			{Date: "2026-01-11", Category: core.CategoryCybersecurity, ArticleCount: 3},
		},
	}}
	articles := make([]core.EnrichedArticle, 20)
	for i := range articles {
		articles[i] = geoArticle("Another breach headline entirely", 0, core.CategoryCybersecurity)
	}

	anomalies, err := DetectVolumeAnomalies(articles, "2026-01-12", stub)
	if err != nil {
		t.Fatalf("DetectVolumeAnomalies failed: %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("two days of history should not alert, got %+v", anomalies)
	}
}
