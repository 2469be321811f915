// Package core defines the shared data model for the market intelligence
// pipeline. All persisted entities live here; components exchange these types
// and relate them through foreign-key fields only.
package core

import "time"

// Category is the closed set of coverage categories the pipeline tracks.
type Category string

const (
	CategoryAICompute     Category = "ai_compute_infra"
	CategoryFintech       Category = "fintech_regtech"
	CategoryRPAEnterprise Category = "rpa_enterprise_ai"
	CategorySemiconductor Category = "semiconductor"
	CategoryCybersecurity Category = "cybersecurity"
	CategoryGeopolitics   Category = "geopolitics"
)

// Categories lists every tracked category in stable order.
var Categories = []Category{
	CategoryAICompute,
	CategoryFintech,
	CategoryRPAEnterprise,
	CategorySemiconductor,
	CategoryCybersecurity,
	CategoryGeopolitics,
}

// DisplayName returns a human-readable label for the category.
func (c Category) DisplayName() string {
	switch c {
	case CategoryAICompute:
		return "AI Compute & Infrastructure"
	case CategoryFintech:
		return "Fintech & RegTech"
	case CategoryRPAEnterprise:
		return "RPA & Enterprise AI"
	case CategorySemiconductor:
		return "Semiconductor"
	case CategoryCybersecurity:
		return "Cybersecurity"
	case CategoryGeopolitics:
		return "Geopolitics"
	default:
		return string(c)
	}
}

// RawArticle is an article as delivered by a provider. Rows are immutable once
// written except for title/description/content healing on URL conflict.
type RawArticle struct {
	ID          string    `json:"id"`           // First 16 hex chars of sha256(url)
	Title       string    `json:"title"`        // Headline
	Description string    `json:"description"`  // Short summary from the provider
	Content     string    `json:"content"`      // Body text when available
	URL         string    `json:"url"`          // Canonical article URL (unique)
	Source      string    `json:"source"`       // Publisher display name
	SourceID    string    `json:"source_id"`    // Provider-side source identifier
	PublishedAt time.Time `json:"published_at"` // Publication timestamp (UTC)
	Category    Category  `json:"category"`     // Coverage category
	Ticker      string    `json:"ticker"`       // Associated equity ticker, if any
	Provider    string    `json:"provider"`     // Adapter that fetched it (newsapi, rss, gdelt)
	ImageURL    string    `json:"image_url"`    // Lead image URL, if any
}

// SentimentMethod identifies which scorer produced a sentiment.
type SentimentMethod string

const (
	MethodTransformer SentimentMethod = "transformer"
	MethodLexicon     SentimentMethod = "lexicon"
	MethodHybrid      SentimentMethod = "hybrid"
)

// SentimentLabel is the discrete sentiment class.
type SentimentLabel string

const (
	LabelPositive SentimentLabel = "positive"
	LabelNegative SentimentLabel = "negative"
	LabelNeutral  SentimentLabel = "neutral"
)

// Sentiment is the per-article sentiment result.
type Sentiment struct {
	Score           float64         `json:"score"`            // Raw score in [-1, 1]
	NormalizedScore int             `json:"normalized_score"` // Scaled score in [-100, 100]
	Confidence      float64         `json:"confidence"`       // Scorer confidence in [0, 1]
	Label           SentimentLabel  `json:"label"`            // positive / negative / neutral
	Method          SentimentMethod `json:"method"`           // Which scorer produced this
}

// Entities holds named entities extracted from an article.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Places        []string `json:"places"`
	Topics        []string `json:"topics"`
}

// EnrichedArticle is the 1:1 analytic projection of a RawArticle.
type EnrichedArticle struct {
	RawArticle
	Sentiment   Sentiment `json:"sentiment"`
	ImpactScore int       `json:"impact_score"` // Composite impact in [0, 100]
	GeoTags     []string  `json:"geo_tags"`     // Matched geopolitical buckets
	Topics      []string  `json:"topics"`       // Extracted topic phrases
	Entities    Entities  `json:"entities"`
	ClusterID   string    `json:"cluster_id"` // Filled by clustering; empty until then
	EnrichedAt  time.Time `json:"enriched_at"`
}

// DateRange bounds the publication dates of a cluster's members.
type DateRange struct {
	Earliest string `json:"earliest"` // YYYY-MM-DD
	Latest   string `json:"latest"`   // YYYY-MM-DD
}

// ConfidenceTier grades how many distinct sources corroborate a cluster.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"   // >= 4 unique sources
	ConfidenceMedium ConfidenceTier = "medium" // 2-3 unique sources
	ConfidenceLow    ConfidenceTier = "low"    // single source
)

// Cluster is a group of articles judged to be about the same story on one day.
type Cluster struct {
	ID                 string         `json:"id"`
	Date               string         `json:"date"` // Latest member's calendar date, YYYY-MM-DD
	Topic              string         `json:"topic"`
	Keywords           []string       `json:"keywords"`
	ArticleCount       int            `json:"article_count"`
	AggregateSentiment float64        `json:"aggregate_sentiment"` // Mean normalized sentiment, [-100, 100]
	AggregateImpact    float64        `json:"aggregate_impact"`    // Mean impact, [0, 100]
	Categories         []Category     `json:"categories"`
	DateRange          DateRange      `json:"date_range"`
	UniqueSources      int            `json:"unique_sources"`
	Confidence         ConfidenceTier `json:"confidence"`
	ConfidenceScore    int            `json:"confidence_score"` // 20 + 15*(unique_sources-1), capped at 100
	Headlines          []string       `json:"headlines"`        // Member headlines, impact order
	Entities           []string       `json:"entities"`         // Union of member entities
}

// Escalation is the direction of sentiment drift along a narrative thread.
// Negative drift means tension is rising.
type Escalation string

const (
	EscalationRising    Escalation = "rising"
	EscalationStable    Escalation = "stable"
	EscalationDeclining Escalation = "declining"
)

// ThreadStatus marks whether a narrative thread is still receiving updates.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadResolved ThreadStatus = "resolved"
)

// NarrativeThread chains clusters across days into one evolving story.
type NarrativeThread struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	FirstSeen    string       `json:"first_seen"` // YYYY-MM-DD
	LastSeen     string       `json:"last_seen"`  // YYYY-MM-DD
	DurationDays int          `json:"duration_days"`
	ClusterIDs   []string     `json:"cluster_ids"`   // Strictly ordered by date
	SentimentArc []float64    `json:"sentiment_arc"` // One point per cluster
	Entities     []string     `json:"entities"`
	Escalation   Escalation   `json:"escalation"`
	Status       ThreadStatus `json:"status"`
}

// GPRPoint is one day of the geopolitical risk index.
type GPRPoint struct {
	Date          string         `json:"date"`  // YYYY-MM-DD
	Score         int            `json:"score"` // Normalized index in [0, 100]
	KeywordCounts map[string]int `json:"keyword_counts"`
	TopKeywords   []string       `json:"top_keywords"`
	ArticleCount  int            `json:"article_count"`
}

// GPRTrend is the 14-day direction of the index.
type GPRTrend string

const (
	TrendRising  GPRTrend = "rising"
	TrendFalling GPRTrend = "falling"
	TrendStable  GPRTrend = "stable"
)

// BriefingSource records whether a briefing came from the LLM or the local
// deterministic fallback.
type BriefingSource string

const (
	SourceLLM           BriefingSource = "llm"
	SourceLocalFallback BriefingSource = "local_fallback"
)

// Briefing is the synthesized executive summary for one day.
type Briefing struct {
	Date             string         `json:"date"` // YYYY-MM-DD, upsert key
	ExecutiveSummary string         `json:"executive_summary"`
	CacheHash        string         `json:"cache_hash"` // Idempotence-gate input hash
	Source           BriefingSource `json:"source"`
	GPRIndex         int            `json:"gpr_index"`
	MarketSentiment  float64        `json:"market_sentiment"`
	GeneratedAt      time.Time      `json:"generated_at"`
	TopClusters      []string       `json:"top_clusters"` // Cluster IDs, impact order
}

// EntityType classifies a tracked entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityPlace        EntityType = "place"
	EntityTopic        EntityType = "topic"
)

// EntitySentimentPoint is the average sentiment for one entity on one day.
// Uniqueness is (entity, date).
type EntitySentimentPoint struct {
	Entity       string     `json:"entity"`
	EntityType   EntityType `json:"entity_type"`
	Date         string     `json:"date"` // YYYY-MM-DD
	AvgSentiment float64    `json:"avg_sentiment"`
	ArticleCount int        `json:"article_count"`
}

// VolumeRecord is the per-category article count for one day.
// Uniqueness is (date, category).
type VolumeRecord struct {
	Date         string   `json:"date"` // YYYY-MM-DD
	Category     Category `json:"category"`
	ArticleCount int      `json:"article_count"`
}

// VolumeAnomaly is an unusual-coverage alert for one category.
type VolumeAnomaly struct {
	Date       string   `json:"date"`
	Category   Category `json:"category"`
	Count      int      `json:"count"`
	Mean       float64  `json:"mean"`
	ZScore     float64  `json:"z_score"`
	Multiplier float64  `json:"multiplier"` // current/mean, one decimal
	Message    string   `json:"message"`
}

// MarketDataPoint is one daily candle for the validation subsystem.
type MarketDataPoint struct {
	Date      string  `json:"date"` // YYYY-MM-DD
	Symbol    string  `json:"symbol"`
	Close     float64 `json:"close"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
}

// DailySentimentPoint aggregates sentiment across all articles of one day.
type DailySentimentPoint struct {
	Date              string  `json:"date"`
	AvgSentiment      float64 `json:"avg_sentiment"`      // Mean normalized sentiment
	WeightedSentiment float64 `json:"weighted_sentiment"` // Impact-weighted mean
	ArticleCount      int     `json:"article_count"`
}

// BacktestResult records one sentiment-vs-market correlation run.
type BacktestResult struct {
	RunAt             time.Time `json:"run_at"`
	Symbol            string    `json:"symbol"`
	AlignedDays       int       `json:"aligned_days"`
	Pearson           float64   `json:"pearson"`
	Spearman          float64   `json:"spearman"`
	DirectionAccuracy float64   `json:"direction_accuracy"` // Fraction in [0, 1]
}

// WeeklyScorecard grades one calendar week of predictions.
type WeeklyScorecard struct {
	WeekStart         string    `json:"week_start"` // Monday, YYYY-MM-DD
	AlignedDays       int       `json:"aligned_days"`
	Pearson           float64   `json:"pearson"`
	DirectionAccuracy float64   `json:"direction_accuracy"`
	Grade             string    `json:"grade"` // A-F
	GeneratedAt       time.Time `json:"generated_at"`
}

// ImpactWeights are the coefficients of the impact score.
type ImpactWeights struct {
	Sentiment float64 `json:"sentiment"` // w_s
	Cluster   float64 `json:"cluster"`   // w_c
	Source    float64 `json:"source"`    // w_src
	Recency   float64 `json:"recency"`   // w_r
}

// DefaultImpactWeights returns the hand-tuned defaults used until the
// optimizer finds something better.
func DefaultImpactWeights() ImpactWeights {
	return ImpactWeights{Sentiment: 0.4, Cluster: 0.3, Source: 0.2, Recency: 0.1}
}

// OptimizedWeights is a persisted grid-search winner.
type OptimizedWeights struct {
	Weights     ImpactWeights `json:"weights"`
	Pearson     float64       `json:"pearson"`      // |r| achieved by these weights
	BaselineR   float64       `json:"baseline_r"`   // |r| of the defaults on the same data
	AlignedDays int           `json:"aligned_days"` // Sample size behind the search
	CreatedAt   time.Time     `json:"created_at"`
}

// StepStatus is the outcome of one pipeline stage.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped"
)

// HealthRecord captures one stage execution for the observability sidecar.
type HealthRecord struct {
	Date       string     `json:"date"` // Run date, YYYY-MM-DD
	Step       string     `json:"step"`
	Status     StepStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	ItemCount  int        `json:"item_count"`
	Error      string     `json:"error"`
	RecordedAt time.Time  `json:"recorded_at"`
}
