package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

const (
	gdeltEndpoint = "https://api.gdeltproject.org/api/v2/doc/doc"

	// gdeltTimeLayout is the compact timestamp GDELT emits, e.g. 20250115093000.
	gdeltTimeLayout = "20060102150405"
)

// GDELTProvider fetches from the public GDELT document API. No credentials,
// no rate limiting.
type GDELTProvider struct {
	client *http.Client
}

// NewGDELTProvider creates the adapter.
func NewGDELTProvider(timeout time.Duration) *GDELTProvider {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &GDELTProvider{client: &http.Client{Timeout: timeout}}
}

// Name returns the provider identifier.
func (p *GDELTProvider) Name() string { return "gdelt" }

// IsAvailable always reports true; the endpoint is public.
func (p *GDELTProvider) IsAvailable() bool { return true }

// RateLimitStatus reports the unmetered state.
func (p *GDELTProvider) RateLimitStatus() RateLimitStatus {
	return RateLimitStatus{Remaining: -1}
}

type gdeltResponse struct {
	Articles []struct {
		URL      string `json:"url"`
		Title    string `json:"title"`
		SeenDate string `json:"seendate"`
		Domain   string `json:"domain"`
		Language string `json:"language"`
		SocImage string `json:"socimage"`
	} `json:"articles"`
}

// FetchArticles queries GDELT once per requested category.
func (p *GDELTProvider) FetchArticles(opts FetchOptions) ([]core.RawArticle, error) {
	maxArticles := opts.MaxArticles
	if maxArticles == 0 {
		maxArticles = 20
	}

	var articles []core.RawArticle
	for _, category := range resolveCategories(opts) {
		batch, err := p.fetchCategory(category, opts, maxArticles)
		if err != nil {
			logger.Warn("gdelt category fetch failed",
				"category", string(category), "error", err.Error())
			continue
		}
		articles = append(articles, batch...)
	}
	return articles, nil
}

func (p *GDELTProvider) fetchCategory(category core.Category, opts FetchOptions, max int) ([]core.RawArticle, error) {
	params := url.Values{}
	params.Set("query", categoryQueries[category]+" sourcelang:english")
	params.Set("mode", "artlist")
	params.Set("format", "json")
	params.Set("maxrecords", fmt.Sprintf("%d", max))
	params.Set("sort", "datedesc")
	if !opts.DateFrom.IsZero() {
		params.Set("startdatetime", opts.DateFrom.UTC().Format(gdeltTimeLayout))
	}
	if !opts.DateTo.IsZero() {
		params.Set("enddatetime", opts.DateTo.UTC().Format(gdeltTimeLayout))
	}

	req, err := http.NewRequest("GET", gdeltEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gdelt: failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gdelt: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gdelt: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gdelt: failed to read response: %w", err)
	}

	var parsed gdeltResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("gdelt: failed to decode response: %w", err)
	}

	var articles []core.RawArticle
	for _, item := range parsed.Articles {
		if item.URL == "" || !ValidTitle(item.Title, item.Domain) {
			continue
		}
		seen, err := time.Parse(gdeltTimeLayout, strings.TrimSpace(item.SeenDate))
		if err != nil {
			continue
		}
		articles = append(articles, core.RawArticle{
			ID:          ArticleID(item.URL),
			Title:       strings.TrimSpace(item.Title),
			URL:         item.URL,
			Source:      item.Domain,
			PublishedAt: seen.UTC(),
			Category:    category,
			Ticker:      categoryTickers[category],
			Provider:    p.Name(),
			ImageURL:    item.SocImage,
		})
	}
	return articles, nil
}
