package clustering

import (
	"sort"
	"strings"

	"marketintel/internal/core"
)

// keywordStopList excludes function words and generic newsroom vocabulary
// from keyword ranking.
var keywordStopList = map[string]bool{
	"about": true, "after": true, "against": true, "amid": true, "among": true,
	"been": true, "being": true, "between": true, "billion": true, "could": true,
	"down": true, "during": true, "every": true, "first": true, "from": true,
	"have": true, "here": true, "into": true, "just": true, "last": true,
	"latest": true, "like": true, "made": true, "makes": true, "many": true,
	"million": true, "more": true, "most": true, "much": true, "near": true,
	"news": true, "next": true, "only": true, "other": true, "over": true,
	"report": true, "reports": true, "said": true, "says": true, "some": true,
	"than": true, "that": true, "their": true, "them": true, "there": true,
	"these": true, "they": true, "this": true, "those": true, "through": true,
	"time": true, "today": true, "under": true, "until": true, "week": true,
	"were": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "will": true, "with": true, "would": true, "year": true,
	"years": true, "your": true,
}

// extractKeywords ranks up to maxKeywords terms across a member set:
// noun-phrase topics from enrichment plus title/description words longer than
// three characters, deduplicated, frequency-ordered with ties broken
// alphabetically.
func extractKeywords(members []core.EnrichedArticle) []string {
	counts := make(map[string]int)

	for _, m := range members {
		// Enrichment topics count double; they are already noun phrases.
		for _, topic := range m.Topics {
			topic = strings.ToLower(strings.TrimSpace(topic))
			if len(topic) > 3 && !keywordStopList[topic] {
				counts[topic] += 2
			}
		}
		for _, word := range tokenizeWords(m.Title + " " + m.Description) {
			if len(word) > 3 && !keywordStopList[word] {
				counts[word]++
			}
		}
	}

	keywords := make([]string, 0, len(counts))
	for kw := range counts {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// tokenizeWords lower-cases and splits on non-alphanumeric boundaries.
func tokenizeWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
