// Package providers implements the news provider adapters. Every adapter
// satisfies the Provider interface so the collector can fan out over them
// without knowing which backend it is talking to.
package providers

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"marketintel/internal/core"
)

// UserAgent identifies the system on every outbound request.
const UserAgent = "MarketIntel Pipeline/1.0"

// FetchOptions narrows a provider fetch.
type FetchOptions struct {
	Categories  []core.Category // Empty means all tracked categories
	DateFrom    time.Time
	DateTo      time.Time
	MaxArticles int // Per-category cap; 0 means provider default
}

// RateLimitStatus reports a provider's current throttling state.
type RateLimitStatus struct {
	Remaining int       `json:"remaining"` // Usable keys (or -1 when unmetered)
	ResetAt   time.Time `json:"reset_at"`  // When limited keys flush
	Limited   bool      `json:"limited"`   // True when no key is usable
}

// Provider is the uniform fetch contract all adapters implement.
type Provider interface {
	Name() string
	IsAvailable() bool
	FetchArticles(opts FetchOptions) ([]core.RawArticle, error)
	RateLimitStatus() RateLimitStatus
}

// ArticleID derives the stable article identifier from its URL: the first 16
// hex characters of sha256(url).
func ArticleID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16]
}

// bareDomainPattern matches titles that are nothing but a domain name,
// e.g. "example.com".
var bareDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+\.(com|net|org|io|co|ai)$`)

// ValidTitle applies the shared post-filter: reject empty, short, source-echo,
// bare-domain, and removed-content titles.
func ValidTitle(title, source string) bool {
	title = strings.TrimSpace(title)
	if len(title) < 20 {
		return false
	}
	if strings.Contains(title, "[Removed]") {
		return false
	}
	if bareDomainPattern.MatchString(title) {
		return false
	}
	if source != "" {
		lowerTitle := strings.ToLower(title)
		lowerSource := strings.ToLower(strings.TrimSpace(source))
		if lowerTitle == lowerSource || strings.Contains(lowerTitle, lowerSource) && len(lowerSource) >= len(lowerTitle)/2 {
			return false
		}
	}
	return true
}

// categoryQueries maps each category to its canned search query.
var categoryQueries = map[core.Category]string{
	core.CategoryAICompute:     `"AI infrastructure" OR "data center" OR GPU OR "cloud computing" OR NVIDIA`,
	core.CategoryFintech:       `fintech OR "digital payments" OR regtech OR "banking technology"`,
	core.CategoryRPAEnterprise: `"robotic process automation" OR "enterprise AI" OR "AI agents" OR automation`,
	core.CategorySemiconductor: `semiconductor OR chipmaker OR TSMC OR foundry OR lithography`,
	core.CategoryCybersecurity: `cybersecurity OR ransomware OR "data breach" OR "zero day"`,
	core.CategoryGeopolitics:   `sanctions OR "trade war" OR "export controls" OR geopolitical`,
}

// categoryTickers maps each category to its representative ticker.
var categoryTickers = map[core.Category]string{
	core.CategoryAICompute:     "NVDA",
	core.CategoryFintech:       "SQ",
	core.CategoryRPAEnterprise: "PATH",
	core.CategorySemiconductor: "TSM",
	core.CategoryCybersecurity: "CRWD",
	core.CategoryGeopolitics:   "",
}

// resolveCategories returns the requested categories or all tracked ones.
func resolveCategories(opts FetchOptions) []core.Category {
	if len(opts.Categories) > 0 {
		return opts.Categories
	}
	return core.Categories
}
