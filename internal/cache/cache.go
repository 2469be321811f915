// Package cache provides the three content-addressed cache families: an
// in-memory sentiment LRU, a persisted cluster cache, and a persisted briefing
// cache whose lookup doubles as the LLM idempotence gate.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"marketintel/internal/core"
)

const (
	SentimentTTL = 7 * 24 * time.Hour
	ClusterTTL   = 6 * time.Hour
	BriefingTTL  = 24 * time.Hour

	sentimentCapacity = 4096

	familyCluster  = "cluster"
	familyBriefing = "briefing"
)

// Hash16 returns the first 16 hex characters of sha256(input). Collision risk
// is acceptable at this cardinality.
func Hash16(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:16]
}

// hashJSON hashes the sorted-key JSON serialization of v. encoding/json sorts
// map keys, which keeps the digest deterministic.
func hashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache key input: %w", err)
	}
	return Hash16(string(data)), nil
}

// Backend is the persisted half of the cache, implemented by the store.
type Backend interface {
	GetCacheEntry(family, hash string) (string, bool, error)
	PutCacheEntry(family, hash, payload string, ttl time.Duration) error
}

// Cache bundles the three families behind one process-wide instance.
type Cache struct {
	backend Backend

	mu        sync.Mutex
	sentiment map[string]*list.Element
	lru       *list.List // Front = most recently used
}

type sentimentEntry struct {
	key       string
	value     core.Sentiment
	expiresAt time.Time
}

// New creates a cache backed by the given persisted backend.
func New(backend Backend) *Cache {
	return &Cache{
		backend:   backend,
		sentiment: make(map[string]*list.Element),
		lru:       list.New(),
	}
}

// NormalizeText lower-cases and trims text for sentiment cache keying.
func NormalizeText(text string) string {
	return strings.TrimSpace(strings.ToLower(text))
}

// GetSentiment returns the cached sentiment for a text, if present and fresh.
func (c *Cache) GetSentiment(text string) (core.Sentiment, bool) {
	key := Hash16(NormalizeText(text))

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.sentiment[key]
	if !ok {
		return core.Sentiment{}, false
	}
	entry := elem.Value.(*sentimentEntry)
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(elem)
		delete(c.sentiment, key)
		return core.Sentiment{}, false
	}
	c.lru.MoveToFront(elem)
	return entry.value, true
}

// PutSentiment stores a sentiment keyed by normalized text, evicting the least
// recently used entry when full.
func (c *Cache) PutSentiment(text string, s core.Sentiment) {
	key := Hash16(NormalizeText(text))

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.sentiment[key]; ok {
		entry := elem.Value.(*sentimentEntry)
		entry.value = s
		entry.expiresAt = time.Now().Add(SentimentTTL)
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= sentimentCapacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.sentiment, oldest.Value.(*sentimentEntry).key)
	}

	elem := c.lru.PushFront(&sentimentEntry{
		key:       key,
		value:     s,
		expiresAt: time.Now().Add(SentimentTTL),
	})
	c.sentiment[key] = elem
}

// SentimentLen reports the number of live sentiment entries.
func (c *Cache) SentimentLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// ClusterKey derives the cluster cache key from a sorted article-id list.
func ClusterKey(articleIDs []string) string {
	ids := make([]string, len(articleIDs))
	copy(ids, articleIDs)
	sort.Strings(ids)
	return Hash16(strings.Join(ids, ","))
}

// GetClusters returns previously persisted clusters for an identical article
// set, verbatim.
func (c *Cache) GetClusters(articleIDs []string) ([]core.Cluster, bool, error) {
	payload, ok, err := c.backend.GetCacheEntry(familyCluster, ClusterKey(articleIDs))
	if err != nil || !ok {
		return nil, false, err
	}
	var clusters []core.Cluster
	if err := json.Unmarshal([]byte(payload), &clusters); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached clusters: %w", err)
	}
	return clusters, true, nil
}

// PutClusters stores a clustering result keyed by its input article set.
func (c *Cache) PutClusters(articleIDs []string, clusters []core.Cluster) error {
	payload, err := json.Marshal(clusters)
	if err != nil {
		return fmt.Errorf("failed to encode clusters for cache: %w", err)
	}
	return c.backend.PutCacheEntry(familyCluster, ClusterKey(articleIDs), string(payload), ClusterTTL)
}

// briefingKeyInput is the reduced cluster projection hashed for the briefing
// cache. Field order is fixed by the struct; keywords are capped at five.
type briefingKeyInput struct {
	Topic        string   `json:"topic"`
	ArticleCount int      `json:"article_count"`
	Sentiment    float64  `json:"aggregate_sentiment"`
	Keywords     []string `json:"keywords"`
}

// BriefingKey derives the briefing cache key from today's clusters.
func BriefingKey(clusters []core.Cluster) (string, error) {
	inputs := make([]briefingKeyInput, 0, len(clusters))
	for _, cl := range clusters {
		keywords := cl.Keywords
		if len(keywords) > 5 {
			keywords = keywords[:5]
		}
		inputs = append(inputs, briefingKeyInput{
			Topic:        cl.Topic,
			ArticleCount: cl.ArticleCount,
			Sentiment:    cl.AggregateSentiment,
			Keywords:     keywords,
		})
	}
	return hashJSON(inputs)
}

// GateResult is the outcome of the LLM idempotence check.
type GateResult struct {
	ShouldCall bool           // True when no fresh briefing exists for this input
	Cached     *core.Briefing // The cached briefing on a hit
	InputHash  string         // Key for storing the eventual result
}

// CheckBeforeLLMCall is the idempotence gate: it returns the cached briefing
// for an identical cluster projection, or the hash under which a new result
// must be stored.
func (c *Cache) CheckBeforeLLMCall(clusters []core.Cluster) (*GateResult, error) {
	hash, err := BriefingKey(clusters)
	if err != nil {
		return nil, err
	}

	payload, ok, err := c.backend.GetCacheEntry(familyBriefing, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &GateResult{ShouldCall: true, InputHash: hash}, nil
	}

	var briefing core.Briefing
	if err := json.Unmarshal([]byte(payload), &briefing); err != nil {
		return nil, fmt.Errorf("failed to decode cached briefing: %w", err)
	}
	return &GateResult{ShouldCall: false, Cached: &briefing, InputHash: hash}, nil
}

// PutBriefing stores a briefing under its input hash. Fallback briefings are
// cached too, so repeated runs on the same inputs do not retry the LLM.
func (c *Cache) PutBriefing(inputHash string, b core.Briefing) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode briefing for cache: %w", err)
	}
	return c.backend.PutCacheEntry(familyBriefing, inputHash, string(payload), BriefingTTL)
}
