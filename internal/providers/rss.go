package providers

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"marketintel/internal/core"
	"marketintel/internal/logger"
)

// rssPerFeedCap is how many of the newest items each feed contributes.
const rssPerFeedCap = 10

// categoryFeeds maps each category to its curated feed URLs.
var categoryFeeds = map[core.Category][]string{
	core.CategoryAICompute: {
		"https://techcrunch.com/category/artificial-intelligence/feed/",
		"https://www.theverge.com/rss/ai-artificial-intelligence/index.xml",
	},
	core.CategoryFintech: {
		"https://techcrunch.com/category/fintech/feed/",
		"https://www.finextra.com/rss/headlines.aspx",
	},
	core.CategoryRPAEnterprise: {
		"https://techcrunch.com/category/enterprise/feed/",
		"https://venturebeat.com/category/ai/feed/",
	},
	core.CategorySemiconductor: {
		"https://www.tomshardware.com/feeds/all",
		"https://semiengineering.com/feed/",
	},
	core.CategoryCybersecurity: {
		"https://feeds.feedburner.com/TheHackersNews",
		"https://www.bleepingcomputer.com/feed/",
	},
	core.CategoryGeopolitics: {
		"https://feeds.bbci.co.uk/news/world/rss.xml",
		"https://www.aljazeera.com/xml/rss/all.xml",
	},
}

// rssFeed covers RSS 2.0 payloads.
type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// atomFeed covers Atom payloads.
type atomFeed struct {
	Title   string `xml:"title"`
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary   string `xml:"summary"`
		Content   string `xml:"content"`
		Updated   string `xml:"updated"`
		Published string `xml:"published"`
	} `xml:"entry"`
}

// RSSProvider fetches articles from curated per-category feeds. It needs no
// credentials and is never rate limited.
type RSSProvider struct {
	client *http.Client
	feeds  map[core.Category][]string
}

// NewRSSProvider creates the adapter with the curated feed list.
func NewRSSProvider() *RSSProvider {
	return &RSSProvider{
		client: &http.Client{Timeout: 10 * time.Second},
		feeds:  categoryFeeds,
	}
}

// Name returns the provider identifier.
func (p *RSSProvider) Name() string { return "rss" }

// IsAvailable always reports true; the feeds are public.
func (p *RSSProvider) IsAvailable() bool { return true }

// RateLimitStatus reports the unmetered state.
func (p *RSSProvider) RateLimitStatus() RateLimitStatus {
	return RateLimitStatus{Remaining: -1}
}

// FetchArticles pulls every feed for the requested categories. A failing feed
// is logged and skipped; the fetch still succeeds with what the rest produced.
func (p *RSSProvider) FetchArticles(opts FetchOptions) ([]core.RawArticle, error) {
	var articles []core.RawArticle
	for _, category := range resolveCategories(opts) {
		for _, feedURL := range p.feeds[category] {
			batch, err := p.fetchFeed(feedURL, category, opts)
			if err != nil {
				logger.Warn("rss feed fetch failed", "feed", feedURL, "error", err.Error())
				continue
			}
			articles = append(articles, batch...)
		}
	}
	return articles, nil
}

func (p *RSSProvider) fetchFeed(feedURL string, category core.Category, opts FetchOptions) ([]core.RawArticle, error) {
	req, err := http.NewRequest("GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}

	articles, err := parseFeed(body, category, sourceFromURL(feedURL))
	if err != nil {
		return nil, err
	}

	// Newest first, then keep the top of the feed.
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > rssPerFeedCap {
		articles = articles[:rssPerFeedCap]
	}

	if !opts.DateFrom.IsZero() {
		filtered := articles[:0]
		for _, a := range articles {
			if !a.PublishedAt.Before(opts.DateFrom) {
				filtered = append(filtered, a)
			}
		}
		articles = filtered
	}
	return articles, nil
}

// parseFeed decodes an RSS 2.0 payload, falling back to Atom.
func parseFeed(body []byte, category core.Category, source string) ([]core.RawArticle, error) {
	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		if rss.Channel.Title != "" {
			source = rss.Channel.Title
		}
		var articles []core.RawArticle
		for _, item := range rss.Channel.Items {
			a, ok := articleFromItem(item.Title, item.Link, item.Description, item.PubDate, category, source)
			if ok {
				articles = append(articles, a)
			}
		}
		return articles, nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	if atom.Title != "" {
		source = atom.Title
	}
	var articles []core.RawArticle
	for _, entry := range atom.Entries {
		link := ""
		for _, l := range entry.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		summary := entry.Summary
		if summary == "" {
			summary = entry.Content
		}
		a, ok := articleFromItem(entry.Title, link, summary, published, category, source)
		if ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

func articleFromItem(title, link, description, published string, category core.Category, source string) (core.RawArticle, bool) {
	title = strings.TrimSpace(title)
	if link == "" || !ValidTitle(title, source) {
		return core.RawArticle{}, false
	}
	ts, err := parseFeedTime(published)
	if err != nil {
		ts = time.Now().UTC()
	}
	return core.RawArticle{
		ID:          ArticleID(link),
		Title:       title,
		Description: stripHTML(description),
		URL:         link,
		Source:      source,
		PublishedAt: ts,
		Category:    category,
		Ticker:      categoryTickers[category],
		Provider:    "rss",
	}, true
}

// feedTimeLayouts covers the date formats seen across RSS and Atom feeds.
var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

func parseFeedTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range feedTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized feed timestamp %q", value)
}

// stripHTML reduces a feed description to plain text.
func stripHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "<") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	return strings.TrimSpace(doc.Text())
}

// sourceFromURL derives a fallback source name from the feed host.
func sourceFromURL(feedURL string) string {
	host := feedURL
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}
	return strings.TrimPrefix(host, "www.")
}
