package enrich

import (
	"regexp"
	"strings"

	"marketintel/internal/core"
)

// entityStopList filters words that capitalize for grammatical reasons only.
var entityStopList = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"these": true, "those": true, "it": true, "its": true, "new": true,
	"how": true, "why": true, "what": true, "when": true, "where": true,
	"who": true, "which": true, "after": true, "before": true, "amid": true,
	"despite": true, "report": true, "reports": true, "breaking": true,
	"exclusive": true, "update": true, "analysis": true, "opinion": true,
	"here": true, "there": true, "now": true, "today": true, "monday": true,
	"tuesday": true, "wednesday": true, "thursday": true, "friday": true,
	"saturday": true, "sunday": true, "january": true, "february": true,
	"march": true, "april": true, "may": true, "june": true, "july": true,
	"august": true, "september": true, "october": true, "november": true,
	"december": true,
}

// orgSuffixes identify organization noun phrases.
var orgSuffixes = []string{
	"Inc", "Inc.", "Corp", "Corp.", "Corporation", "Ltd", "Ltd.", "LLC",
	"Group", "Holdings", "Bank", "Capital", "Partners", "Technologies",
	"Systems", "Labs", "Ventures", "Semiconductor", "Industries",
}

// knownOrgs covers frequent single-token organizations that carry no suffix.
var knownOrgs = map[string]bool{
	"nvidia": true, "tsmc": true, "intel": true, "amd": true, "google": true,
	"microsoft": true, "amazon": true, "apple": true, "meta": true,
	"openai": true, "anthropic": true, "tesla": true, "samsung": true,
	"qualcomm": true, "broadcom": true, "asml": true, "arm": true,
	"ibm": true, "oracle": true, "salesforce": true, "palantir": true,
	"crowdstrike": true, "cloudflare": true, "stripe": true, "visa": true,
	"mastercard": true, "paypal": true, "goldman": true, "blackrock": true,
	"uipath": true, "sec": true, "fed": true, "ecb": true, "imf": true,
	"nato": true, "opec": true, "pentagon": true, "congress": true,
	"senate": true, "commerce": true, "treasury": true,
}

// knownPlaces covers countries, regions, and hubs seen in coverage.
var knownPlaces = map[string]bool{
	"china": true, "taiwan": true, "japan": true, "korea": true,
	"india": true, "russia": true, "ukraine": true, "israel": true,
	"iran": true, "europe": true, "germany": true, "france": true,
	"britain": true, "uk": true, "america": true, "washington": true,
	"beijing": true, "shanghai": true, "taipei": true, "seoul": true,
	"tokyo": true, "brussels": true, "london": true, "moscow": true,
	"texas": true, "arizona": true, "california": true, "singapore": true,
	"netherlands": true, "mexico": true, "canada": true, "brazil": true,
	"gaza": true, "silicon": true,
}

// contractionPattern strips possessives and trailing punctuation from a
// candidate entity token.
var contractionPattern = regexp.MustCompile(`('s|'re|'ll|'ve|n't)$|[^a-zA-Z0-9.&\- ]`)

// capitalizedWord matches a title-case or all-caps token.
var capitalizedWord = regexp.MustCompile(`^[A-Z][a-zA-Z0-9.&\-]*$`)

// ExtractEntities runs the lightweight noun-phrase NER over a text, returning
// entities deduplicated case-insensitively.
func ExtractEntities(text string) core.Entities {
	phrases := capitalizedPhrases(text)

	var e core.Entities
	seen := make(map[string]bool)
	add := func(list *[]string, value string) {
		key := strings.ToLower(value)
		if seen[key] {
			return
		}
		seen[key] = true
		*list = append(*list, value)
	}

	for _, phrase := range phrases {
		lower := strings.ToLower(phrase)
		words := strings.Fields(phrase)
		switch {
		case isOrganization(phrase, lower):
			add(&e.Organizations, phrase)
		case knownPlaces[lower]:
			add(&e.Places, phrase)
		case len(words) >= 2 && len(words) <= 3 && allAlphaTitleCase(words):
			add(&e.People, phrase)
		default:
			// Unclassified capitalized phrases become topic candidates.
			if len(lower) > 3 && !isNumeric(lower) {
				add(&e.Topics, lower)
			}
		}
	}
	return e
}

// capitalizedPhrases groups consecutive capitalized tokens into phrases,
// skipping sentence-initial stop words.
func capitalizedPhrases(text string) []string {
	tokens := strings.Fields(text)
	var phrases []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, strings.Join(current, " "))
			current = nil
		}
	}

	for _, tok := range tokens {
		cleaned := contractionPattern.ReplaceAllString(tok, "")
		if cleaned == "" || !capitalizedWord.MatchString(cleaned) || entityStopList[strings.ToLower(cleaned)] {
			flush()
			continue
		}
		current = append(current, cleaned)
	}
	flush()
	return phrases
}

func isOrganization(phrase, lower string) bool {
	if knownOrgs[lower] {
		return true
	}
	words := strings.Fields(phrase)
	last := words[len(words)-1]
	for _, suffix := range orgSuffixes {
		if last == suffix {
			return true
		}
	}
	// All-caps acronyms of 2+ letters read as organizations.
	if len(words) == 1 && len(phrase) >= 2 && phrase == strings.ToUpper(phrase) &&
		strings.IndexFunc(phrase, func(r rune) bool { return r < 'A' || r > 'Z' }) < 0 {
		return true
	}
	return false
}

func allAlphaTitleCase(words []string) bool {
	for _, w := range words {
		if len(w) < 2 {
			return false
		}
		for i, r := range w {
			if i == 0 && !(r >= 'A' && r <= 'Z') {
				return false
			}
			if i > 0 && !(r >= 'a' && r <= 'z') {
				return false
			}
		}
	}
	return true
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
