package store

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"marketintel/internal/core"
)

// SaveMarketData inserts candles, skipping (date, symbol) pairs already
// present.
func (s *Store) SaveMarketData(points []core.MarketDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
	INSERT OR IGNORE INTO market_data (date, symbol, close, change_pct, volume)
	VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare market data insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range points {
		if _, err := stmt.Exec(p.Date, p.Symbol, p.Close, p.ChangePct, p.Volume); err != nil {
			return fmt.Errorf("failed to insert market data for %s: %w", p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit market data: %w", err)
	}
	return nil
}

// GetMarketData returns candles for the last N days, oldest first.
func (s *Store) GetMarketData(days int) ([]core.MarketDataPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
	SELECT date, symbol, close, change_pct, volume
	FROM market_data WHERE date >= ? ORDER BY date ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query market data: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []core.MarketDataPoint
	for rows.Next() {
		var p core.MarketDataPoint
		if err := rows.Scan(&p.Date, &p.Symbol, &p.Close, &p.ChangePct, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan market data point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveBacktest appends one backtest result.
func (s *Store) SaveBacktest(b core.BacktestResult) error {
	runAt := b.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT INTO backtests (run_at, symbol, aligned_days, pearson, spearman, direction_accuracy)
	VALUES (?, ?, ?, ?, ?, ?)`,
		runAt, b.Symbol, b.AlignedDays, b.Pearson, b.Spearman, b.DirectionAccuracy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest: %w", err)
	}
	return nil
}

// GetLatestBacktest returns the most recent backtest result, or nil.
func (s *Store) GetLatestBacktest() (*core.BacktestResult, error) {
	row := s.db.QueryRow(`
	SELECT run_at, symbol, aligned_days, pearson, spearman, direction_accuracy
	FROM backtests ORDER BY run_at DESC LIMIT 1`)

	var b core.BacktestResult
	var runAt time.Time
	err := row.Scan(&runAt, &b.Symbol, &b.AlignedDays, &b.Pearson, &b.Spearman, &b.DirectionAccuracy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backtest: %w", err)
	}
	b.RunAt = runAt.UTC()
	return &b, nil
}

// SaveWeeklyScorecard upserts the scorecard for its week.
func (s *Store) SaveWeeklyScorecard(c core.WeeklyScorecard) error {
	generatedAt := c.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO weekly_scorecards
	(week_start, aligned_days, pearson, direction_accuracy, grade, generated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		c.WeekStart, c.AlignedDays, c.Pearson, c.DirectionAccuracy, c.Grade, generatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert scorecard for %s: %w", c.WeekStart, err)
	}
	return nil
}

// GetWeeklyScorecards returns recent scorecards, newest week first.
func (s *Store) GetWeeklyScorecards(limit int) ([]core.WeeklyScorecard, error) {
	rows, err := s.db.Query(`
	SELECT week_start, aligned_days, pearson, direction_accuracy, grade, generated_at
	FROM weekly_scorecards ORDER BY week_start DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scorecards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cards []core.WeeklyScorecard
	for rows.Next() {
		var c core.WeeklyScorecard
		var generatedAt time.Time
		if err := rows.Scan(&c.WeekStart, &c.AlignedDays, &c.Pearson, &c.DirectionAccuracy, &c.Grade, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scorecard: %w", err)
		}
		c.GeneratedAt = generatedAt.UTC()
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// SaveOptimizedWeights appends a grid-search winner.
func (s *Store) SaveOptimizedWeights(w core.OptimizedWeights) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
	INSERT INTO optimized_weights
	(created_at, w_sentiment, w_cluster, w_source, w_recency, pearson, baseline_r, aligned_days)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt, w.Weights.Sentiment, w.Weights.Cluster, w.Weights.Source,
		w.Weights.Recency, w.Pearson, w.BaselineR, w.AlignedDays,
	)
	if err != nil {
		return fmt.Errorf("failed to insert optimized weights: %w", err)
	}
	return nil
}

// GetCurrentWeights returns the latest optimized weights row, or nil when the
// optimizer has never run.
func (s *Store) GetCurrentWeights() (*core.OptimizedWeights, error) {
	row := s.db.QueryRow(`
	SELECT created_at, w_sentiment, w_cluster, w_source, w_recency, pearson, baseline_r, aligned_days
	FROM optimized_weights ORDER BY created_at DESC LIMIT 1`)

	var w core.OptimizedWeights
	var createdAt time.Time
	err := row.Scan(&createdAt, &w.Weights.Sentiment, &w.Weights.Cluster,
		&w.Weights.Source, &w.Weights.Recency, &w.Pearson, &w.BaselineR, &w.AlignedDays)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan optimized weights: %w", err)
	}
	w.CreatedAt = createdAt.UTC()
	return &w, nil
}

// GetCacheEntry returns a persisted cache payload when present and unexpired.
func (s *Store) GetCacheEntry(family, hash string) (string, bool, error) {
	row := s.db.QueryRow(`
	SELECT payload, expires_at FROM cache_entries WHERE family = ? AND hash = ?`,
		family, hash)

	var payload string
	var expiresAt time.Time
	err := row.Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to scan cache entry: %w", err)
	}
	if time.Now().UTC().After(expiresAt) {
		// Prune on access.
		_, _ = s.db.Exec(`DELETE FROM cache_entries WHERE family = ? AND hash = ?`, family, hash)
		return "", false, nil
	}
	return payload, true, nil
}

// PutCacheEntry upserts a persisted cache payload with its expiry.
func (s *Store) PutCacheEntry(family, hash, payload string, ttl time.Duration) error {
	_, err := s.db.Exec(`
	INSERT INTO cache_entries (family, hash, payload, expires_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(family, hash) DO UPDATE SET
		payload = excluded.payload,
		expires_at = excluded.expires_at`,
		family, hash, payload, time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry %s/%s: %w", family, hash, err)
	}
	return nil
}

// ClearCacheEntries removes all persisted cache rows.
func (s *Store) ClearCacheEntries() error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// Stats summarizes table sizes for the cache CLI.
type Stats struct {
	RawArticles      int   `json:"raw_articles"`
	EnrichedArticles int   `json:"enriched_articles"`
	Clusters         int   `json:"clusters"`
	Briefings        int   `json:"briefings"`
	Threads          int   `json:"threads"`
	CacheEntries     int   `json:"cache_entries"`
	FileSizeBytes    int64 `json:"file_size_bytes"`
}

// GetStats counts the main tables and reports the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := map[string]*int{
		"raw_articles":      &stats.RawArticles,
		"enriched_articles": &stats.EnrichedArticles,
		"clusters":          &stats.Clusters,
		"briefings":         &stats.Briefings,
		"narrative_threads": &stats.Threads,
		"cache_entries":     &stats.CacheEntries,
	}
	for table, target := range counts {
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}
	if info, err := statFile(s.path); err == nil {
		stats.FileSizeBytes = info
	}
	return stats, nil
}

func statFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
