package metrics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

// minEntityMentions is the daily mention floor below which an entity is not
// persisted.
const minEntityMentions = 2

// trackerStopList drops generic terms that survive NER.
var trackerStopList = map[string]bool{
	"company": true, "market": true, "stock": true, "stocks": true,
	"shares": true, "group": true, "report": true, "government": true,
	"industry": true, "sector": true, "week": true, "year": true,
	"quarter": true, "earnings": true, "billion": true, "million": true,
	"percent": true, "update": true, "investors": true,
}

// invalidEntityPattern rejects contractions and punctuation-bearing strings.
var invalidEntityPattern = regexp.MustCompile(`['"]|n't\b|'s\b|[!?;:,]`)

// EntitySaver persists daily entity sentiment.
type EntitySaver interface {
	SaveEntitySentiment(points []core.EntitySentimentPoint) error
}

// entityAccumulator sums sentiment per entity within one day.
type entityAccumulator struct {
	entityType   core.EntityType
	sentimentSum float64
	mentions     int
}

// TrackEntities aggregates per-entity sentiment for one day and persists the
// averages for entities with at least two mentions.
func TrackEntities(articles []core.EnrichedArticle, date string, saver EntitySaver) ([]core.EntitySentimentPoint, error) {
	acc := make(map[string]*entityAccumulator)

	for _, a := range articles {
		sentiment := float64(a.Sentiment.NormalizedScore)
		addAll := func(names []string, entityType core.EntityType) {
			for _, name := range names {
				normalized, ok := normalizeEntity(name)
				if !ok {
					continue
				}
				entry, exists := acc[normalized]
				if !exists {
					entry = &entityAccumulator{entityType: entityType}
					acc[normalized] = entry
				}
				entry.sentimentSum += sentiment
				entry.mentions++
			}
		}
		addAll(a.Entities.People, core.EntityPerson)
		addAll(a.Entities.Organizations, core.EntityOrganization)
		addAll(a.Entities.Places, core.EntityPlace)
		addAll(a.Entities.Topics, core.EntityTopic)
	}

	var points []core.EntitySentimentPoint
	for entity, entry := range acc {
		if entry.mentions < minEntityMentions {
			continue
		}
		points = append(points, core.EntitySentimentPoint{
			Entity:       entity,
			EntityType:   entry.entityType,
			Date:         date,
			AvgSentiment: entry.sentimentSum / float64(entry.mentions),
			ArticleCount: entry.mentions,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Entity < points[j].Entity })

	if len(points) > 0 && saver != nil {
		if err := saver.SaveEntitySentiment(points); err != nil {
			return nil, fmt.Errorf("failed to persist entity sentiment: %w", err)
		}
	}

	logger.Info("entity tracking complete", "date", date, "entities", len(points))
	return points, nil
}

// normalizeEntity title-cases an entity name and filters it through the stop
// list and the punctuation pattern.
func normalizeEntity(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || invalidEntityPattern.MatchString(name) {
		return "", false
	}
	if trackerStopList[strings.ToLower(name)] {
		return "", false
	}

	words := strings.Fields(name)
	for i, w := range words {
		// Preserve acronyms; title-case everything else.
		if w == strings.ToUpper(w) && len(w) <= 6 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " "), true
}
