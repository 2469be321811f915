package enrich

import "strings"

// geoBuckets maps each geopolitical tag to its trigger keywords. One match in
// a bucket is enough to attach the tag.
var geoBuckets = map[string][]string{
	"sanctions": {
		"sanctions", "sanctioned", "embargo", "export controls", "export ban",
		"blacklist", "entity list", "asset freeze",
	},
	"conflict": {
		"war", "invasion", "military", "missile", "airstrike", "troops",
		"ceasefire", "combat", "offensive",
	},
	"trade_war": {
		"trade war", "tariff", "tariffs", "trade dispute", "import duties",
		"retaliation", "protectionism", "trade barriers",
	},
	"political_instability": {
		"coup", "protest", "protests", "unrest", "impeachment", "uprising",
		"martial law", "regime change", "election dispute",
	},
	"diplomatic_tension": {
		"diplomatic", "ambassador", "summit", "bilateral", "expelled",
		"negotiations", "talks collapse", "treaty",
	},
	"regional_hotspot": {
		"taiwan", "taiwan strait", "south china sea", "ukraine", "middle east",
		"gaza", "north korea", "red sea", "strait of hormuz",
	},
	"security": {
		"cyberattack", "espionage", "national security", "intelligence agency",
		"surveillance", "ransomware", "data breach", "zero day", "terrorism",
	},
}

// geoBucketOrder keeps tag output deterministic.
var geoBucketOrder = []string{
	"sanctions", "conflict", "trade_war", "political_instability",
	"diplomatic_tension", "regional_hotspot", "security",
}

// GeoTags returns the matched geopolitical buckets for a text.
func GeoTags(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, bucket := range geoBucketOrder {
		for _, keyword := range geoBuckets[bucket] {
			if strings.Contains(lower, keyword) {
				tags = append(tags, bucket)
				break
			}
		}
	}
	return tags
}
