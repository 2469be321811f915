package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"marketintel/internal/core"
)

// SaveClusters upserts a batch of clusters in one transaction.
func (s *Store) SaveClusters(clusters []core.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO clusters
	(id, date, topic, keywords, article_count, aggregate_sentiment, aggregate_impact,
	 categories, date_earliest, date_latest, unique_sources, confidence, confidence_score,
	 headlines, entities)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range clusters {
		keywords, _ := json.Marshal(c.Keywords)
		categories, _ := json.Marshal(c.Categories)
		headlines, _ := json.Marshal(c.Headlines)
		entities, _ := json.Marshal(c.Entities)

		_, err := stmt.Exec(
			c.ID, c.Date, c.Topic, string(keywords), c.ArticleCount,
			c.AggregateSentiment, c.AggregateImpact, string(categories),
			c.DateRange.Earliest, c.DateRange.Latest, c.UniqueSources,
			string(c.Confidence), c.ConfidenceScore, string(headlines), string(entities),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert cluster %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clusters: %w", err)
	}
	return nil
}

// GetClustersByDate returns clusters dated on the given day, highest aggregate
// impact first.
func (s *Store) GetClustersByDate(date string) ([]core.Cluster, error) {
	return s.queryClusters(`WHERE date = ? ORDER BY aggregate_impact DESC`, date)
}

// GetClustersSince returns clusters dated within the last N days, newest first.
func (s *Store) GetClustersSince(days int) ([]core.Cluster, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	return s.queryClusters(`WHERE date >= ? ORDER BY date DESC, aggregate_impact DESC`, cutoff)
}

func (s *Store) queryClusters(where string, arg any) ([]core.Cluster, error) {
	rows, err := s.db.Query(`
	SELECT id, date, topic, keywords, article_count, aggregate_sentiment, aggregate_impact,
	       categories, date_earliest, date_latest, unique_sources, confidence,
	       confidence_score, headlines, entities
	FROM clusters `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clusters []core.Cluster
	for rows.Next() {
		var c core.Cluster
		var keywords, categories, headlines, entities, confidence string

		err := rows.Scan(
			&c.ID, &c.Date, &c.Topic, &keywords, &c.ArticleCount,
			&c.AggregateSentiment, &c.AggregateImpact, &categories,
			&c.DateRange.Earliest, &c.DateRange.Latest, &c.UniqueSources,
			&confidence, &c.ConfidenceScore, &headlines, &entities,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}

		c.Confidence = core.ConfidenceTier(confidence)
		_ = json.Unmarshal([]byte(keywords), &c.Keywords)
		_ = json.Unmarshal([]byte(categories), &c.Categories)
		_ = json.Unmarshal([]byte(headlines), &c.Headlines)
		_ = json.Unmarshal([]byte(entities), &c.Entities)

		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// SaveBriefing upserts the briefing for its date.
func (s *Store) SaveBriefing(b core.Briefing) error {
	topClusters, _ := json.Marshal(b.TopClusters)

	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO briefings
	(date, executive_summary, cache_hash, source, gpr_index, market_sentiment, generated_at, top_clusters)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Date, b.ExecutiveSummary, b.CacheHash, string(b.Source),
		b.GPRIndex, b.MarketSentiment, b.GeneratedAt.UTC(), string(topClusters),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert briefing for %s: %w", b.Date, err)
	}
	return nil
}

// GetBriefing returns the briefing for a date, or nil when none exists.
func (s *Store) GetBriefing(date string) (*core.Briefing, error) {
	row := s.db.QueryRow(`
	SELECT date, executive_summary, cache_hash, source, gpr_index, market_sentiment,
	       generated_at, top_clusters
	FROM briefings WHERE date = ?`, date)

	var b core.Briefing
	var source, topClusters string
	var generatedAt time.Time

	err := row.Scan(&b.Date, &b.ExecutiveSummary, &b.CacheHash, &source,
		&b.GPRIndex, &b.MarketSentiment, &generatedAt, &topClusters)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan briefing: %w", err)
	}

	b.Source = core.BriefingSource(source)
	b.GeneratedAt = generatedAt.UTC()
	_ = json.Unmarshal([]byte(topClusters), &b.TopClusters)
	return &b, nil
}

// GetBriefingDates returns all dates that have a briefing, newest first.
func (s *Store) GetBriefingDates(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT date FROM briefings ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query briefing dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan briefing date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// SaveGPRPoint upserts one day of the GPR index.
func (s *Store) SaveGPRPoint(p core.GPRPoint) error {
	counts, _ := json.Marshal(p.KeywordCounts)
	keywords, _ := json.Marshal(p.TopKeywords)

	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO gpr_history
	(date, score, keyword_counts, top_keywords, article_count)
	VALUES (?, ?, ?, ?, ?)`,
		p.Date, p.Score, string(counts), string(keywords), p.ArticleCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert GPR point for %s: %w", p.Date, err)
	}
	return nil
}

// GetGPRHistory returns the most recent GPR points, newest first.
func (s *Store) GetGPRHistory(limit int) ([]core.GPRPoint, error) {
	rows, err := s.db.Query(`
	SELECT date, score, keyword_counts, top_keywords, article_count
	FROM gpr_history ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query GPR history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []core.GPRPoint
	for rows.Next() {
		var p core.GPRPoint
		var counts, keywords string
		if err := rows.Scan(&p.Date, &p.Score, &counts, &keywords, &p.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan GPR point: %w", err)
		}
		_ = json.Unmarshal([]byte(counts), &p.KeywordCounts)
		_ = json.Unmarshal([]byte(keywords), &p.TopKeywords)
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveEntitySentiment upserts a batch of entity sentiment points, unique per
// (entity, date).
func (s *Store) SaveEntitySentiment(points []core.EntitySentimentPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT INTO entity_sentiment (entity, entity_type, date, avg_sentiment, article_count)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(entity, date) DO UPDATE SET
		entity_type = excluded.entity_type,
		avg_sentiment = excluded.avg_sentiment,
		article_count = excluded.article_count`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity sentiment upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range points {
		_, err := stmt.Exec(p.Entity, string(p.EntityType), p.Date, p.AvgSentiment, p.ArticleCount)
		if err != nil {
			return fmt.Errorf("failed to upsert entity sentiment for %s: %w", p.Entity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entity sentiment: %w", err)
	}
	return nil
}

// GetEntitySentimentHistory returns sentiment points for one entity over the
// last N days, oldest first.
func (s *Store) GetEntitySentimentHistory(entity string, days int) ([]core.EntitySentimentPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
	SELECT entity, entity_type, date, avg_sentiment, article_count
	FROM entity_sentiment WHERE entity = ? AND date >= ? ORDER BY date ASC`, entity, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity sentiment: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntityPoints(rows)
}

// GetTopEntities returns the most-mentioned entities over the last N days.
func (s *Store) GetTopEntities(days, limit int) ([]core.EntitySentimentPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
	SELECT entity, entity_type, MAX(date), AVG(avg_sentiment), SUM(article_count) AS mentions
	FROM entity_sentiment WHERE date >= ?
	GROUP BY entity ORDER BY mentions DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntityPoints(rows)
}

func scanEntityPoints(rows *sql.Rows) ([]core.EntitySentimentPoint, error) {
	var points []core.EntitySentimentPoint
	for rows.Next() {
		var p core.EntitySentimentPoint
		var typ string
		if err := rows.Scan(&p.Entity, &typ, &p.Date, &p.AvgSentiment, &p.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan entity sentiment point: %w", err)
		}
		p.EntityType = core.EntityType(typ)
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveDailyVolume upserts the article count for (date, category).
func (s *Store) SaveDailyVolume(date string, category core.Category, count int) error {
	_, err := s.db.Exec(`
	INSERT INTO daily_volume (date, category, article_count)
	VALUES (?, ?, ?)
	ON CONFLICT(date, category) DO UPDATE SET article_count = excluded.article_count`,
		date, string(category), count,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily volume for %s/%s: %w", date, category, err)
	}
	return nil
}

// GetVolumeHistory returns per-day counts for a category over the last N days,
// oldest first.
func (s *Store) GetVolumeHistory(category core.Category, days int) ([]core.VolumeRecord, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
	SELECT date, category, article_count
	FROM daily_volume WHERE category = ? AND date >= ? ORDER BY date ASC`,
		string(category), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []core.VolumeRecord
	for rows.Next() {
		var r core.VolumeRecord
		var cat string
		if err := rows.Scan(&r.Date, &cat, &r.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan volume record: %w", err)
		}
		r.Category = core.Category(cat)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveNarrativeThreads insert-or-replaces a batch of threads.
func (s *Store) SaveNarrativeThreads(threads []core.NarrativeThread) error {
	if len(threads) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO narrative_threads
	(id, title, first_seen, last_seen, duration_days, cluster_ids, sentiment_arc,
	 entities, escalation, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare thread upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range threads {
		clusterIDs, _ := json.Marshal(t.ClusterIDs)
		arc, _ := json.Marshal(t.SentimentArc)
		entities, _ := json.Marshal(t.Entities)

		_, err := stmt.Exec(
			t.ID, t.Title, t.FirstSeen, t.LastSeen, t.DurationDays,
			string(clusterIDs), string(arc), string(entities),
			string(t.Escalation), string(t.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert thread %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit narrative threads: %w", err)
	}
	return nil
}

// GetNarrativeThreads returns threads last seen within N days, optionally
// filtered by status. Pass an empty status for all.
func (s *Store) GetNarrativeThreads(days int, status core.ThreadStatus) ([]core.NarrativeThread, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	query := `
	SELECT id, title, first_seen, last_seen, duration_days, cluster_ids, sentiment_arc,
	       entities, escalation, status
	FROM narrative_threads WHERE last_seen >= ?`
	args := []any{cutoff}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY last_seen DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query narrative threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var threads []core.NarrativeThread
	for rows.Next() {
		var t core.NarrativeThread
		var clusterIDs, arc, entities, escalation, threadStatus string

		err := rows.Scan(&t.ID, &t.Title, &t.FirstSeen, &t.LastSeen, &t.DurationDays,
			&clusterIDs, &arc, &entities, &escalation, &threadStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan narrative thread: %w", err)
		}

		t.Escalation = core.Escalation(escalation)
		t.Status = core.ThreadStatus(threadStatus)
		_ = json.Unmarshal([]byte(clusterIDs), &t.ClusterIDs)
		_ = json.Unmarshal([]byte(arc), &t.SentimentArc)
		_ = json.Unmarshal([]byte(entities), &t.Entities)

		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// SaveDailySentiment upserts the day-level sentiment aggregate.
func (s *Store) SaveDailySentiment(p core.DailySentimentPoint) error {
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO daily_sentiment (date, avg_sentiment, weighted_sentiment, article_count)
	VALUES (?, ?, ?, ?)`,
		p.Date, p.AvgSentiment, p.WeightedSentiment, p.ArticleCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily sentiment for %s: %w", p.Date, err)
	}
	return nil
}

// GetDailySentimentHistory returns day aggregates for the last N days, oldest
// first.
func (s *Store) GetDailySentimentHistory(days int) ([]core.DailySentimentPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
	SELECT date, avg_sentiment, weighted_sentiment, article_count
	FROM daily_sentiment WHERE date >= ? ORDER BY date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily sentiment: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []core.DailySentimentPoint
	for rows.Next() {
		var p core.DailySentimentPoint
		if err := rows.Scan(&p.Date, &p.AvgSentiment, &p.WeightedSentiment, &p.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily sentiment: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveHealthRecord appends one stage execution record.
func (s *Store) SaveHealthRecord(r core.HealthRecord) error {
	recordedAt := r.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT INTO health_records (date, step, status, duration_ms, item_count, error, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Date, r.Step, string(r.Status), r.DurationMS, r.ItemCount, r.Error, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert health record: %w", err)
	}
	return nil
}

// GetHealthRecords returns records for one run date, execution order.
func (s *Store) GetHealthRecords(date string) ([]core.HealthRecord, error) {
	rows, err := s.db.Query(`
	SELECT date, step, status, duration_ms, item_count, error, recorded_at
	FROM health_records WHERE date = ? ORDER BY recorded_at ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query health records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []core.HealthRecord
	for rows.Next() {
		var r core.HealthRecord
		var status string
		var recordedAt time.Time
		if err := rows.Scan(&r.Date, &r.Step, &status, &r.DurationMS, &r.ItemCount, &r.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health record: %w", err)
		}
		r.Status = core.StepStatus(status)
		r.RecordedAt = recordedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// HealthRollup summarizes pipeline health for the sidecar endpoint.
type HealthRollup struct {
	LastRunDate     string                     `json:"last_run_date"`
	LastRunSteps    map[string]core.StepStatus `json:"last_run_steps"`
	FailureRate7d   float64                    `json:"failure_rate_7d"`
	AvgDurationMS7d float64                    `json:"avg_duration_ms_7d"`
}

// GetHealthRollup computes the last run's step map, the 7-day failure rate, and
// the 7-day average total run duration.
func (s *Store) GetHealthRollup() (*HealthRollup, error) {
	rollup := &HealthRollup{LastRunSteps: map[string]core.StepStatus{}}

	err := s.db.QueryRow(`SELECT COALESCE(MAX(date), '') FROM health_records`).Scan(&rollup.LastRunDate)
	if err != nil {
		return nil, fmt.Errorf("failed to find last run date: %w", err)
	}
	if rollup.LastRunDate == "" {
		return rollup, nil
	}

	records, err := s.GetHealthRecords(rollup.LastRunDate)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		rollup.LastRunSteps[r.Step] = r.Status
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02")
	err = s.db.QueryRow(`
	SELECT COALESCE(AVG(CASE WHEN status = 'failure' THEN 1.0 ELSE 0.0 END), 0)
	FROM health_records WHERE date >= ?`, cutoff).Scan(&rollup.FailureRate7d)
	if err != nil {
		return nil, fmt.Errorf("failed to compute failure rate: %w", err)
	}

	err = s.db.QueryRow(`
	SELECT COALESCE(AVG(total), 0) FROM
		(SELECT SUM(duration_ms) AS total FROM health_records WHERE date >= ? GROUP BY date)`,
		cutoff).Scan(&rollup.AvgDurationMS7d)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average duration: %w", err)
	}

	return rollup, nil
}
