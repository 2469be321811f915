// Package feedfile maintains the legacy news_feed.json mirror. The database is
// authoritative; this file is a write-only projection kept for older readers.
package feedfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"marketintel/internal/core"
)

const (
	// FileName is the mirror file, kept alongside the database.
	FileName = "news_feed.json"
	// maxDays caps retained history.
	maxDays = 365
)

// Article is the reduced article shape the legacy feed carries.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Sentiment   int    `json:"sentiment"`
	Impact      int    `json:"impact"`
}

// DayContent is one day's payload: the briefing plus per-category articles.
type DayContent struct {
	Briefing   string               `json:"briefing"`
	Categories map[string][]Article `json:"categories"`
}

// Entry is one day in the feed.
type Entry struct {
	Date    string     `json:"date"`
	Content DayContent `json:"content"`
}

// Feed is the whole mirror file.
type Feed struct {
	News    []Entry `json:"news"`
	Visible bool    `json:"visible"`
}

// Mirror rewrites the feed with one day upserted. Entries stay sorted by date
// descending and the file never exceeds the day cap.
func Mirror(dir, date string, briefing *core.Briefing, articles []core.EnrichedArticle) error {
	path := filepath.Join(dir, FileName)

	feed, err := load(path)
	if err != nil {
		return err
	}

	entry := Entry{Date: date, Content: DayContent{Categories: make(map[string][]Article)}}
	if briefing != nil {
		entry.Content.Briefing = briefing.ExecutiveSummary
	}
	for _, a := range articles {
		entry.Content.Categories[string(a.Category)] = append(
			entry.Content.Categories[string(a.Category)], Article{
				Title:       a.Title,
				Description: a.Description,
				URL:         a.URL,
				Source:      a.Source,
				PublishedAt: a.PublishedAt.UTC().Format("2006-01-02T15:04:05Z"),
				Sentiment:   a.Sentiment.NormalizedScore,
				Impact:      a.ImpactScore,
			})
	}

	replaced := false
	for i := range feed.News {
		if feed.News[i].Date == date {
			feed.News[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		feed.News = append(feed.News, entry)
	}

	sort.Slice(feed.News, func(i, j int) bool { return feed.News[i].Date > feed.News[j].Date })
	if len(feed.News) > maxDays {
		feed.News = feed.News[:maxDays]
	}
	feed.Visible = true

	return write(path, feed)
}

// Load reads the mirror, returning an empty feed when the file is absent.
func Load(dir string) (*Feed, error) {
	return load(filepath.Join(dir, FileName))
}

func load(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Feed{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file: %w", err)
	}
	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed file: %w", err)
	}
	return &feed, nil
}

func write(path string, feed *Feed) error {
	data, err := json.MarshalIndent(feed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feed: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write feed file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace feed file: %w", err)
	}
	return nil
}
