// Package clustering groups the day's enriched articles into topic clusters:
// sentence embeddings with greedy cosine admission as the primary path, TF-IDF
// plus k-means as the deterministic fallback.
package clustering

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"marketintel/internal/cache"
	"marketintel/internal/core"
	"marketintel/internal/logger"
)

const (
	// cosineThreshold admits an article into an open cluster.
	cosineThreshold = 0.55
	// cosineThresholdLarge loosens admission on large inputs.
	cosineThresholdLarge = 0.50
	largeInputSize       = 50

	// singletonCoalesceMin is how many leftover singletons form an "other"
	// cluster instead of being dropped.
	singletonCoalesceMin = 3

	maxKeywords  = 10
	topicLimit   = 47
	topicEllipse = "…"
)

// Embedder produces one vector per input text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Saver is the persistence half the engine needs from the store.
type Saver interface {
	SaveClusters(clusters []core.Cluster) error
	AssignClusterIDs(assignments map[string]string) error
}

// Engine clusters one day's articles.
type Engine struct {
	embedder Embedder
	cache    *cache.Cache
	saver    Saver
}

// New creates a clustering engine. embedder may be nil, which forces the
// TF-IDF fallback.
func New(embedder Embedder, c *cache.Cache, saver Saver) *Engine {
	return &Engine{embedder: embedder, cache: c, saver: saver}
}

// Cluster groups articles, persists the result, and returns clusters ordered
// by aggregate impact descending. An identical article set within the cache
// TTL returns the previous result verbatim.
func (e *Engine) Cluster(ctx context.Context, articles []core.EnrichedArticle) ([]core.Cluster, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	if e.cache != nil {
		if cached, ok, err := e.cache.GetClusters(ids); err != nil {
			logger.Warn("cluster cache lookup failed", "error", err.Error())
		} else if ok {
			logger.Info("cluster cache hit", "clusters", len(cached))
			return cached, nil
		}
	}

	groups := e.groupArticles(ctx, articles)

	clusters := make([]core.Cluster, 0, len(groups))
	assignments := make(map[string]string)
	for _, members := range groups {
		cluster := buildCluster(members)
		clusters = append(clusters, cluster)
		for _, m := range members {
			assignments[m.ID] = cluster.ID
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AggregateImpact > clusters[j].AggregateImpact
	})

	if e.saver != nil {
		if err := e.saver.SaveClusters(clusters); err != nil {
			return nil, fmt.Errorf("failed to persist clusters: %w", err)
		}
		if err := e.saver.AssignClusterIDs(assignments); err != nil {
			return nil, fmt.Errorf("failed to assign cluster ids: %w", err)
		}
	}

	if e.cache != nil {
		if err := e.cache.PutClusters(ids, clusters); err != nil {
			logger.Warn("cluster cache store failed", "error", err.Error())
		}
	}

	logger.Info("clustering complete", "articles", len(articles), "clusters", len(clusters))
	return clusters, nil
}

// groupArticles runs the semantic path, degrading to TF-IDF when embeddings
// are unavailable.
func (e *Engine) groupArticles(ctx context.Context, articles []core.EnrichedArticle) [][]core.EnrichedArticle {
	if e.embedder != nil {
		texts := make([]string, len(articles))
		for i, a := range articles {
			texts[i] = a.Title + " " + a.Description
		}
		vectors, err := e.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(vectors) == len(articles) {
			for i := range vectors {
				l2Normalize(vectors[i])
			}
			return greedyCosine(articles, vectors)
		}
		if err != nil {
			logger.Warn("embedding failed, falling back to tf-idf", "error", err.Error())
		}
	}
	return tfidfKMeans(articles)
}

// greedyCosine opens a cluster per unassigned article in input order and
// sweeps the rest for members above the similarity threshold.
func greedyCosine(articles []core.EnrichedArticle, vectors [][]float64) [][]core.EnrichedArticle {
	threshold := cosineThreshold
	if len(articles) > largeInputSize {
		threshold = cosineThresholdLarge
	}

	assigned := make([]bool, len(articles))
	var groups [][]core.EnrichedArticle
	var singletons []core.EnrichedArticle

	for i := range articles {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		group := []core.EnrichedArticle{articles[i]}

		for j := i + 1; j < len(articles); j++ {
			if assigned[j] {
				continue
			}
			if dot(vectors[i], vectors[j]) >= threshold {
				assigned[j] = true
				group = append(group, articles[j])
			}
		}

		if len(group) == 1 {
			singletons = append(singletons, group[0])
			continue
		}
		groups = append(groups, group)
	}

	if len(singletons) >= singletonCoalesceMin {
		groups = append(groups, singletons)
	}
	return groups
}

// dot assumes both vectors are L2-normalized, making this cosine similarity.
func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func l2Normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// buildCluster derives the persisted cluster from its members.
func buildCluster(members []core.EnrichedArticle) core.Cluster {
	keywords := extractKeywords(members)

	var sentimentSum, impactSum float64
	categorySet := make(map[core.Category]bool)
	sourceSet := make(map[string]bool)
	entitySet := make(map[string]string)
	earliest, latest := "", ""

	for _, m := range members {
		sentimentSum += float64(m.Sentiment.NormalizedScore)
		impactSum += float64(m.ImpactScore)
		categorySet[m.Category] = true
		if src := strings.ToLower(strings.TrimSpace(m.Source)); src != "" {
			sourceSet[src] = true
		}
		for _, entity := range allEntities(m.Entities) {
			entitySet[strings.ToLower(entity)] = entity
		}
		day := m.PublishedAt.UTC().Format("2006-01-02")
		if earliest == "" || day < earliest {
			earliest = day
		}
		if day > latest {
			latest = day
		}
	}

	var categories []core.Category
	for _, c := range core.Categories {
		if categorySet[c] {
			categories = append(categories, c)
		}
	}

	entities := make([]string, 0, len(entitySet))
	for _, v := range entitySet {
		entities = append(entities, v)
	}
	sort.Strings(entities)

	// Headlines in member impact order.
	ordered := make([]core.EnrichedArticle, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ImpactScore > ordered[j].ImpactScore
	})
	headlines := make([]string, 0, len(ordered))
	memberIDs := make([]string, 0, len(members))
	for _, m := range ordered {
		headlines = append(headlines, m.Title)
	}
	for _, m := range members {
		memberIDs = append(memberIDs, m.ID)
	}
	sort.Strings(memberIDs)

	uniqueSources := len(sourceSet)
	if uniqueSources == 0 {
		uniqueSources = 1
	}
	confidenceScore := 20 + 15*(uniqueSources-1)
	if confidenceScore > 100 {
		confidenceScore = 100
	}
	tier := core.ConfidenceLow
	switch {
	case uniqueSources >= 4:
		tier = core.ConfidenceHigh
	case uniqueSources >= 2:
		tier = core.ConfidenceMedium
	}

	return core.Cluster{
		ID:                 clusterID(memberIDs),
		Date:               latest,
		Topic:              clusterTopic(keywords, members),
		Keywords:           keywords,
		ArticleCount:       len(members),
		AggregateSentiment: sentimentSum / float64(len(members)),
		AggregateImpact:    impactSum / float64(len(members)),
		Categories:         categories,
		DateRange:          core.DateRange{Earliest: earliest, Latest: latest},
		UniqueSources:      uniqueSources,
		Confidence:         tier,
		ConfidenceScore:    confidenceScore,
		Headlines:          headlines,
		Entities:           entities,
	}
}

// clusterID is deterministic in the member set.
func clusterID(sortedMemberIDs []string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(sortedMemberIDs, ","))).String()
}

// clusterTopic names a cluster from its top keywords, degrading to a truncated
// first headline.
func clusterTopic(keywords []string, members []core.EnrichedArticle) string {
	if len(keywords) >= 1 {
		top := keywords
		if len(top) > 3 {
			top = top[:3]
		}
		titled := make([]string, len(top))
		for i, kw := range top {
			titled[i] = titleCase(kw)
		}
		return "Trends in " + strings.Join(titled, ", ")
	}

	headline := members[0].Title
	if runes := []rune(headline); len(runes) > topicLimit {
		headline = string(runes[:topicLimit]) + topicEllipse
	}
	return headline
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func allEntities(e core.Entities) []string {
	var out []string
	out = append(out, e.People...)
	out = append(out, e.Organizations...)
	out = append(out, e.Places...)
	out = append(out, e.Topics...)
	return out
}
