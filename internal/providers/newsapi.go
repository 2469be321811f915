package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

const (
	newsAPIEndpoint = "https://newsapi.org/v2/everything"
	newsAPIPageSize = 20

	// requestPacing spaces consecutive NewsAPI calls.
	requestPacing = 500 * time.Millisecond

	// limitFlushInterval is how long rate-limited keys stay benched.
	limitFlushInterval = 12 * time.Hour
)

// NewsAPIProvider fetches articles from newsapi.org using an ordered pool of
// API keys with round-robin rotation. Keys that hit a rate limit are skipped
// until the pool flushes.
type NewsAPIProvider struct {
	client *http.Client

	mu          sync.Mutex
	keys        []string
	nextKey     int
	limitedKeys map[int]bool
	lastFlush   time.Time
	lastRequest time.Time
}

// NewNewsAPIProvider creates the adapter. An empty key pool makes it
// unavailable rather than an error.
func NewNewsAPIProvider(keys []string, timeout time.Duration) *NewsAPIProvider {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &NewsAPIProvider{
		client:      &http.Client{Timeout: timeout},
		keys:        keys,
		limitedKeys: make(map[int]bool),
		lastFlush:   time.Now(),
	}
}

// Name returns the provider identifier.
func (p *NewsAPIProvider) Name() string { return "newsapi" }

// IsAvailable reports whether at least one usable key exists.
func (p *NewsAPIProvider) IsAvailable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushIfDue()
	return len(p.keys) > len(p.limitedKeys)
}

// RateLimitStatus reports the usable-key count and the next flush time.
func (p *NewsAPIProvider) RateLimitStatus() RateLimitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushIfDue()
	remaining := len(p.keys) - len(p.limitedKeys)
	return RateLimitStatus{
		Remaining: remaining,
		ResetAt:   p.lastFlush.Add(limitFlushInterval),
		Limited:   remaining == 0,
	}
}

// flushIfDue clears the rate-limited set once per flush interval.
// Callers must hold p.mu.
func (p *NewsAPIProvider) flushIfDue() {
	if time.Since(p.lastFlush) >= limitFlushInterval {
		p.limitedKeys = make(map[int]bool)
		p.lastFlush = time.Now()
	}
}

// pickKey selects the next usable key round-robin. Returns the key index, or
// -1 when every key is limited.
func (p *NewsAPIProvider) pickKey() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushIfDue()

	for i := 0; i < len(p.keys); i++ {
		idx := (p.nextKey + i) % len(p.keys)
		if !p.limitedKeys[idx] {
			p.nextKey = (idx + 1) % len(p.keys)
			return idx
		}
	}
	return -1
}

// markLimited benches a key after a rate-limit response.
func (p *NewsAPIProvider) markLimited(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limitedKeys[idx] = true
}

// pace enforces the inter-request spacing.
func (p *NewsAPIProvider) pace() {
	p.mu.Lock()
	wait := requestPacing - time.Since(p.lastRequest)
	p.lastRequest = time.Now().Add(wait)
	p.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// FetchArticles queries each requested category, rotating keys on rate limits
// and filtering malformed payloads at the boundary.
func (p *NewsAPIProvider) FetchArticles(opts FetchOptions) ([]core.RawArticle, error) {
	if len(p.keys) == 0 {
		return nil, fmt.Errorf("newsapi: no API keys configured")
	}

	maxArticles := opts.MaxArticles
	if maxArticles == 0 || maxArticles > newsAPIPageSize {
		maxArticles = newsAPIPageSize
	}

	var articles []core.RawArticle
	for _, category := range resolveCategories(opts) {
		p.pace()

		batch, err := p.fetchCategory(category, opts, maxArticles)
		if err != nil {
			logger.Warn("newsapi category fetch failed",
				"category", string(category), "error", err.Error())
			continue
		}
		articles = append(articles, batch...)
	}
	return articles, nil
}

// fetchCategory runs one query, retrying against the next key when the current
// one is rate limited.
func (p *NewsAPIProvider) fetchCategory(category core.Category, opts FetchOptions, max int) ([]core.RawArticle, error) {
	for {
		keyIdx := p.pickKey()
		if keyIdx < 0 {
			return nil, fmt.Errorf("newsapi: all keys rate limited")
		}

		body, status, err := p.doRequest(category, opts, max, p.keys[keyIdx])
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests || isRateLimitBody(body) {
			p.markLimited(keyIdx)
			continue
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("newsapi: status %d", status)
		}

		return p.parseResponse(body, category)
	}
}

func (p *NewsAPIProvider) doRequest(category core.Category, opts FetchOptions, max int, key string) ([]byte, int, error) {
	params := url.Values{}
	params.Set("q", categoryQueries[category])
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", fmt.Sprintf("%d", max))
	if !opts.DateFrom.IsZero() {
		params.Set("from", opts.DateFrom.UTC().Format("2006-01-02"))
	}
	if !opts.DateTo.IsZero() {
		params.Set("to", opts.DateTo.UTC().Format("2006-01-02"))
	}

	req, err := http.NewRequest("GET", newsAPIEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("newsapi: failed to build request: %w", err)
	}
	req.Header.Set("X-Api-Key", key)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("newsapi: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("newsapi: failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// isRateLimitBody detects rate limiting signaled in the response body rather
// than the status code.
func isRateLimitBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}

func (p *NewsAPIProvider) parseResponse(body []byte, category core.Category) ([]core.RawArticle, error) {
	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("newsapi: failed to decode response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %s", parsed.Message)
	}

	var articles []core.RawArticle
	for _, item := range parsed.Articles {
		if item.URL == "" || !ValidTitle(item.Title, item.Source.Name) {
			continue
		}
		published, err := time.Parse(time.RFC3339, item.PublishedAt)
		if err != nil {
			continue
		}
		articles = append(articles, core.RawArticle{
			ID:          ArticleID(item.URL),
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			Content:     strings.TrimSpace(item.Content),
			URL:         item.URL,
			Source:      item.Source.Name,
			SourceID:    item.Source.ID,
			PublishedAt: published.UTC(),
			Category:    category,
			Ticker:      categoryTickers[category],
			Provider:    p.Name(),
			ImageURL:    item.URLToImage,
		})
	}
	return articles, nil
}
