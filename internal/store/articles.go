package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"marketintel/internal/core"
)

// SaveRawArticles upserts a batch of raw articles in one transaction. On URL
// conflict the title, description, and content are refreshed; all other fields
// keep the first writer's values.
func (s *Store) SaveRawArticles(articles []core.RawArticle) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT INTO raw_articles
	(id, title, description, content, url, source, source_id, published_at, category, ticker, provider, image_url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		content = excluded.content`)
	if err != nil {
		return fmt.Errorf("failed to prepare raw article upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range articles {
		_, err := stmt.Exec(
			a.ID, a.Title, a.Description, a.Content, a.URL,
			a.Source, a.SourceID, a.PublishedAt.UTC(), string(a.Category),
			a.Ticker, a.Provider, a.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert raw article %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit raw articles: %w", err)
	}
	return nil
}

// GetUnenrichedArticles returns raw articles with no enriched counterpart,
// newest first.
func (s *Store) GetUnenrichedArticles(limit int) ([]core.RawArticle, error) {
	rows, err := s.db.Query(`
	SELECT r.id, r.title, r.description, r.content, r.url, r.source, r.source_id,
	       r.published_at, r.category, r.ticker, r.provider, r.image_url
	FROM raw_articles r
	LEFT JOIN enriched_articles e ON e.id = r.id
	WHERE e.id IS NULL
	ORDER BY r.published_at DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unenriched articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRawArticles(rows)
}

// GetRawArticlesByDate returns raw articles published on the given calendar
// date (YYYY-MM-DD).
func (s *Store) GetRawArticlesByDate(date string) ([]core.RawArticle, error) {
	rows, err := s.db.Query(`
	SELECT id, title, description, content, url, source, source_id,
	       published_at, category, ticker, provider, image_url
	FROM raw_articles
	WHERE date(published_at) = ?
	ORDER BY published_at DESC`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw articles for %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRawArticles(rows)
}

func scanRawArticles(rows *sql.Rows) ([]core.RawArticle, error) {
	var articles []core.RawArticle
	for rows.Next() {
		var a core.RawArticle
		var category string
		var published time.Time
		err := rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.Content, &a.URL,
			&a.Source, &a.SourceID, &published, &category,
			&a.Ticker, &a.Provider, &a.ImageURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw article: %w", err)
		}
		a.PublishedAt = published.UTC()
		a.Category = core.Category(category)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// SaveEnrichedArticles upserts a batch of enriched articles by id in one
// transaction.
func (s *Store) SaveEnrichedArticles(articles []core.EnrichedArticle) error {
	if len(articles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO enriched_articles
	(id, sentiment_score, sentiment_normalized, sentiment_confidence, sentiment_label,
	 sentiment_method, impact_score, geo_tags, topics, entities, cluster_id, enriched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare enriched article upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, a := range articles {
		geoTags, _ := json.Marshal(a.GeoTags)
		topics, _ := json.Marshal(a.Topics)
		entities, _ := json.Marshal(a.Entities)

		enrichedAt := a.EnrichedAt
		if enrichedAt.IsZero() {
			enrichedAt = time.Now().UTC()
		}

		_, err := stmt.Exec(
			a.ID, a.Sentiment.Score, a.Sentiment.NormalizedScore, a.Sentiment.Confidence,
			string(a.Sentiment.Label), string(a.Sentiment.Method), a.ImpactScore,
			string(geoTags), string(topics), string(entities), a.ClusterID, enrichedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert enriched article %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enriched articles: %w", err)
	}
	return nil
}

// GetEnrichedArticlesByDate returns enriched articles whose raw counterpart was
// published on the given calendar date.
func (s *Store) GetEnrichedArticlesByDate(date string) ([]core.EnrichedArticle, error) {
	return s.queryEnriched(`WHERE date(r.published_at) = ?`, date)
}

// GetEnrichedArticlesSince returns enriched articles published within the last
// N days, newest first.
func (s *Store) GetEnrichedArticlesSince(days int) ([]core.EnrichedArticle, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	return s.queryEnriched(`WHERE date(r.published_at) >= ?`, cutoff)
}

// GetClusterMembers materializes the member list of a cluster.
func (s *Store) GetClusterMembers(clusterID string) ([]core.EnrichedArticle, error) {
	return s.queryEnriched(`WHERE e.cluster_id = ?`, clusterID)
}

func (s *Store) queryEnriched(where string, arg any) ([]core.EnrichedArticle, error) {
	rows, err := s.db.Query(`
	SELECT r.id, r.title, r.description, r.content, r.url, r.source, r.source_id,
	       r.published_at, r.category, r.ticker, r.provider, r.image_url,
	       e.sentiment_score, e.sentiment_normalized, e.sentiment_confidence,
	       e.sentiment_label, e.sentiment_method, e.impact_score,
	       e.geo_tags, e.topics, e.entities, e.cluster_id, e.enriched_at
	FROM enriched_articles e
	JOIN raw_articles r ON r.id = e.id
	`+where+`
	ORDER BY r.published_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query enriched articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []core.EnrichedArticle
	for rows.Next() {
		var a core.EnrichedArticle
		var category, label, method string
		var published, enrichedAt time.Time
		var geoTags, topics, entities string

		err := rows.Scan(
			&a.ID, &a.Title, &a.Description, &a.Content, &a.URL,
			&a.Source, &a.SourceID, &published, &category,
			&a.Ticker, &a.Provider, &a.ImageURL,
			&a.Sentiment.Score, &a.Sentiment.NormalizedScore, &a.Sentiment.Confidence,
			&label, &method, &a.ImpactScore,
			&geoTags, &topics, &entities, &a.ClusterID, &enrichedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enriched article: %w", err)
		}

		a.PublishedAt = published.UTC()
		a.EnrichedAt = enrichedAt.UTC()
		a.Category = core.Category(category)
		a.Sentiment.Label = core.SentimentLabel(label)
		a.Sentiment.Method = core.SentimentMethod(method)
		_ = json.Unmarshal([]byte(geoTags), &a.GeoTags)
		_ = json.Unmarshal([]byte(topics), &a.Topics)
		_ = json.Unmarshal([]byte(entities), &a.Entities)

		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// AssignClusterIDs stamps cluster membership onto enriched articles in one
// transaction.
func (s *Store) AssignClusterIDs(assignments map[string]string) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`UPDATE enriched_articles SET cluster_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster assignment: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for articleID, clusterID := range assignments {
		if _, err := stmt.Exec(clusterID, articleID); err != nil {
			return fmt.Errorf("failed to assign cluster for %s: %w", articleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster assignments: %w", err)
	}
	return nil
}

// PruneRawArticles deletes raw and enriched rows older than the retention
// window. Never called automatically; exposed for the cache CLI.
func (s *Store) PruneRawArticles(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res, err := s.db.Exec(`
	DELETE FROM enriched_articles WHERE id IN
		(SELECT id FROM raw_articles WHERE published_at < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune enriched articles: %w", err)
	}
	enriched, _ := res.RowsAffected()

	res, err = s.db.Exec(`DELETE FROM raw_articles WHERE published_at < ?`, cutoff)
	if err != nil {
		return enriched, fmt.Errorf("failed to prune raw articles: %w", err)
	}
	raw, _ := res.RowsAffected()

	return enriched + raw, nil
}
