package enrich

import (
	"math"
	"strings"

	"marketintel/internal/core"
)

// financeLexicon is the hand-curated weighted dictionary for the fallback
// scorer. Weights are per-occurrence contributions in roughly [-3, 3].
var financeLexicon = map[string]float64{
	// Strongly positive
	"surge": 3, "soar": 3, "breakthrough": 3, "record": 2.5, "beats": 2.5,
	"rally": 2.5, "outperform": 2.5, "upgrade": 2.5, "bullish": 2.5,
	// Positive
	"growth": 2, "profit": 2, "gain": 2, "gains": 2, "wins": 2, "expands": 2,
	"expansion": 2, "strong": 2, "success": 2, "partnership": 1.5,
	"investment": 1.5, "innovation": 1.5, "launch": 1.5, "approval": 1.5,
	"acquisition": 1.5, "rebound": 1.5, "recovery": 1.5, "milestone": 1.5,
	"optimistic": 1.5, "momentum": 1.5, "exceeds": 2, "boost": 1.5,
	"upbeat": 1.5, "raises": 1, "improves": 1.5, "hiring": 1, "demand": 1,
	"funded": 1, "funding": 1, "secures": 1.5, "award": 1,
	// Negative
	"decline": -2, "drop": -2, "drops": -2, "falls": -2, "loss": -2,
	"losses": -2, "weak": -2, "misses": -2.5, "downgrade": -2.5,
	"bearish": -2.5, "layoffs": -2.5, "cuts": -1.5, "warns": -2,
	"warning": -2, "concern": -1.5, "concerns": -1.5, "shortage": -2,
	"delay": -1.5, "delays": -1.5, "probe": -1.5, "investigation": -1.5,
	"lawsuit": -2, "fine": -1.5, "penalty": -1.5, "recall": -2,
	"slowdown": -2, "slump": -2.5, "uncertainty": -1.5, "volatile": -1.5,
	"debt": -1, "inflation": -1.5, "deficit": -1.5, "risk": -1, "risks": -1,
	"bankruptcy": -3, "fraud": -3, "scandal": -2.5, "halts": -2,
	// Strongly negative
	"crash": -3, "collapse": -3, "plunge": -3, "plunges": -3, "crisis": -3,
	"breach": -2.5, "ransomware": -2.5, "hack": -2, "hacked": -2.5,
	"sanctions": -2, "war": -2.5, "conflict": -2, "attack": -2,
	"escalation": -2, "embargo": -2, "recession": -3, "default": -2.5,
	"selloff": -2.5, "tariffs": -1.5, "ban": -1.5, "restrictions": -1.5,
}

// tokenize lower-cases and splits text on non-letter boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})
}

// LexiconScore scores text against the finance dictionary. It is the
// deterministic fallback when the transformer classifier is unavailable.
func LexiconScore(text string) core.Sentiment {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return core.Sentiment{Label: core.LabelNeutral, Method: core.MethodLexicon}
	}

	var sum float64
	matched := 0
	for _, tok := range tokens {
		if w, ok := financeLexicon[tok]; ok {
			sum += w
			matched++
		}
	}

	comparative := sum / float64(len(tokens))
	normalized := int(math.Round(comparative * 20))
	if normalized > 100 {
		normalized = 100
	} else if normalized < -100 {
		normalized = -100
	}

	label := core.LabelNeutral
	switch {
	case normalized > 10:
		label = core.LabelPositive
	case normalized < -10:
		label = core.LabelNegative
	}

	// The count term is matched lexicon terms, not total tokens.
	confidence := math.Min(0.95, 0.1*math.Abs(sum)+0.02*float64(matched))

	return core.Sentiment{
		Score:           comparative,
		NormalizedScore: normalized,
		Confidence:      confidence,
		Label:           label,
		Method:          core.MethodLexicon,
	}
}
