// Package store provides the embedded SQLite persistence layer. It exclusively
// owns all persisted rows; other components hold transient copies only.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed persistence layer for the pipeline.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database under dataDir and migrates the
// schema to the current version.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "marketintel.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes serialize through a single connection; SQLite has no row-level
	// concurrency and the pipeline is single-logical-thread anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: dbPath}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB exposes the underlying handle for subsystems that need ad-hoc
// aggregate queries. Mutation must still go through typed accessors.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// tableSchemas maps each table to its full current column set. Migration is
// additive: missing tables are created, missing columns are added with
// defaults, nothing is ever dropped. Idempotent across restarts.
var tableSchemas = map[string][]columnDef{
	"raw_articles": {
		{"id", "TEXT PRIMARY KEY"},
		{"title", "TEXT NOT NULL DEFAULT ''"},
		{"description", "TEXT NOT NULL DEFAULT ''"},
		{"content", "TEXT NOT NULL DEFAULT ''"},
		{"url", "TEXT NOT NULL DEFAULT ''"},
		{"source", "TEXT NOT NULL DEFAULT ''"},
		{"source_id", "TEXT NOT NULL DEFAULT ''"},
		{"published_at", "DATETIME"},
		{"category", "TEXT NOT NULL DEFAULT ''"},
		{"ticker", "TEXT NOT NULL DEFAULT ''"},
		{"provider", "TEXT NOT NULL DEFAULT ''"},
		{"image_url", "TEXT NOT NULL DEFAULT ''"},
	},
	"enriched_articles": {
		{"id", "TEXT PRIMARY KEY"},
		{"sentiment_score", "REAL NOT NULL DEFAULT 0"},
		{"sentiment_normalized", "INTEGER NOT NULL DEFAULT 0"},
		{"sentiment_confidence", "REAL NOT NULL DEFAULT 0"},
		{"sentiment_label", "TEXT NOT NULL DEFAULT 'neutral'"},
		{"sentiment_method", "TEXT NOT NULL DEFAULT 'lexicon'"},
		{"impact_score", "INTEGER NOT NULL DEFAULT 0"},
		{"geo_tags", "TEXT NOT NULL DEFAULT '[]'"},
		{"topics", "TEXT NOT NULL DEFAULT '[]'"},
		{"entities", "TEXT NOT NULL DEFAULT '{}'"},
		{"cluster_id", "TEXT NOT NULL DEFAULT ''"},
		{"enriched_at", "DATETIME"},
	},
	"clusters": {
		{"id", "TEXT PRIMARY KEY"},
		{"date", "TEXT NOT NULL DEFAULT ''"},
		{"topic", "TEXT NOT NULL DEFAULT ''"},
		{"keywords", "TEXT NOT NULL DEFAULT '[]'"},
		{"article_count", "INTEGER NOT NULL DEFAULT 0"},
		{"aggregate_sentiment", "REAL NOT NULL DEFAULT 0"},
		{"aggregate_impact", "REAL NOT NULL DEFAULT 0"},
		{"categories", "TEXT NOT NULL DEFAULT '[]'"},
		{"date_earliest", "TEXT NOT NULL DEFAULT ''"},
		{"date_latest", "TEXT NOT NULL DEFAULT ''"},
		{"unique_sources", "INTEGER NOT NULL DEFAULT 0"},
		{"confidence", "TEXT NOT NULL DEFAULT 'low'"},
		{"confidence_score", "INTEGER NOT NULL DEFAULT 0"},
		{"headlines", "TEXT NOT NULL DEFAULT '[]'"},
		{"entities", "TEXT NOT NULL DEFAULT '[]'"},
	},
	"briefings": {
		{"date", "TEXT PRIMARY KEY"},
		{"executive_summary", "TEXT NOT NULL DEFAULT ''"},
		{"cache_hash", "TEXT NOT NULL DEFAULT ''"},
		{"source", "TEXT NOT NULL DEFAULT 'local_fallback'"},
		{"gpr_index", "INTEGER NOT NULL DEFAULT 0"},
		{"market_sentiment", "REAL NOT NULL DEFAULT 0"},
		{"generated_at", "DATETIME"},
		{"top_clusters", "TEXT NOT NULL DEFAULT '[]'"},
	},
	"gpr_history": {
		{"date", "TEXT PRIMARY KEY"},
		{"score", "INTEGER NOT NULL DEFAULT 0"},
		{"keyword_counts", "TEXT NOT NULL DEFAULT '{}'"},
		{"top_keywords", "TEXT NOT NULL DEFAULT '[]'"},
		{"article_count", "INTEGER NOT NULL DEFAULT 0"},
	},
	"entity_sentiment": {
		{"entity", "TEXT NOT NULL DEFAULT ''"},
		{"entity_type", "TEXT NOT NULL DEFAULT 'topic'"},
		{"date", "TEXT NOT NULL DEFAULT ''"},
		{"avg_sentiment", "REAL NOT NULL DEFAULT 0"},
		{"article_count", "INTEGER NOT NULL DEFAULT 0"},
	},
	"daily_volume": {
		{"date", "TEXT NOT NULL DEFAULT ''"},
		{"category", "TEXT NOT NULL DEFAULT ''"},
		{"article_count", "INTEGER NOT NULL DEFAULT 0"},
	},
	"narrative_threads": {
		{"id", "TEXT PRIMARY KEY"},
		{"title", "TEXT NOT NULL DEFAULT ''"},
		{"first_seen", "TEXT NOT NULL DEFAULT ''"},
		{"last_seen", "TEXT NOT NULL DEFAULT ''"},
		{"duration_days", "INTEGER NOT NULL DEFAULT 0"},
		{"cluster_ids", "TEXT NOT NULL DEFAULT '[]'"},
		{"sentiment_arc", "TEXT NOT NULL DEFAULT '[]'"},
		{"entities", "TEXT NOT NULL DEFAULT '[]'"},
		{"escalation", "TEXT NOT NULL DEFAULT 'stable'"},
		{"status", "TEXT NOT NULL DEFAULT 'active'"},
	},
	"daily_sentiment": {
		{"date", "TEXT PRIMARY KEY"},
		{"avg_sentiment", "REAL NOT NULL DEFAULT 0"},
		{"weighted_sentiment", "REAL NOT NULL DEFAULT 0"},
		{"article_count", "INTEGER NOT NULL DEFAULT 0"},
	},
	"market_data": {
		{"date", "TEXT NOT NULL DEFAULT ''"},
		{"symbol", "TEXT NOT NULL DEFAULT ''"},
		{"close", "REAL NOT NULL DEFAULT 0"},
		{"change_pct", "REAL NOT NULL DEFAULT 0"},
		{"volume", "INTEGER NOT NULL DEFAULT 0"},
	},
	"backtests": {
		{"run_at", "DATETIME"},
		{"symbol", "TEXT NOT NULL DEFAULT ''"},
		{"aligned_days", "INTEGER NOT NULL DEFAULT 0"},
		{"pearson", "REAL NOT NULL DEFAULT 0"},
		{"spearman", "REAL NOT NULL DEFAULT 0"},
		{"direction_accuracy", "REAL NOT NULL DEFAULT 0"},
	},
	"weekly_scorecards": {
		{"week_start", "TEXT PRIMARY KEY"},
		{"aligned_days", "INTEGER NOT NULL DEFAULT 0"},
		{"pearson", "REAL NOT NULL DEFAULT 0"},
		{"direction_accuracy", "REAL NOT NULL DEFAULT 0"},
		{"grade", "TEXT NOT NULL DEFAULT ''"},
		{"generated_at", "DATETIME"},
	},
	"optimized_weights": {
		{"created_at", "DATETIME"},
		{"w_sentiment", "REAL NOT NULL DEFAULT 0.4"},
		{"w_cluster", "REAL NOT NULL DEFAULT 0.3"},
		{"w_source", "REAL NOT NULL DEFAULT 0.2"},
		{"w_recency", "REAL NOT NULL DEFAULT 0.1"},
		{"pearson", "REAL NOT NULL DEFAULT 0"},
		{"baseline_r", "REAL NOT NULL DEFAULT 0"},
		{"aligned_days", "INTEGER NOT NULL DEFAULT 0"},
	},
	"health_records": {
		{"date", "TEXT NOT NULL DEFAULT ''"},
		{"step", "TEXT NOT NULL DEFAULT ''"},
		{"status", "TEXT NOT NULL DEFAULT ''"},
		{"duration_ms", "INTEGER NOT NULL DEFAULT 0"},
		{"item_count", "INTEGER NOT NULL DEFAULT 0"},
		{"error", "TEXT NOT NULL DEFAULT ''"},
		{"recorded_at", "DATETIME"},
	},
	"cache_entries": {
		{"family", "TEXT NOT NULL DEFAULT ''"},
		{"hash", "TEXT NOT NULL DEFAULT ''"},
		{"payload", "TEXT NOT NULL DEFAULT ''"},
		{"expires_at", "DATETIME"},
	},
}

type columnDef struct {
	name string
	typ  string
}

var indexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_url ON raw_articles(url)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_published ON raw_articles(published_at)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_category ON raw_articles(category)`,
	`CREATE INDEX IF NOT EXISTS idx_enriched_impact ON enriched_articles(impact_score)`,
	`CREATE INDEX IF NOT EXISTS idx_enriched_cluster ON enriched_articles(cluster_id)`,
	`CREATE INDEX IF NOT EXISTS idx_clusters_date ON clusters(date)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_entity_date ON entity_sentiment(entity, date)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_volume_date_category ON daily_volume(date, category)`,
	`CREATE INDEX IF NOT EXISTS idx_threads_last_seen ON narrative_threads(last_seen)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_market_date_symbol ON market_data(date, symbol)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cache_family_hash ON cache_entries(family, hash)`,
	`CREATE INDEX IF NOT EXISTS idx_health_date ON health_records(date)`,
}

// migrate creates missing tables, adds missing columns with defaults, and
// ensures all indexes exist.
func (s *Store) migrate() error {
	for table, cols := range tableSchemas {
		exists, err := s.tableExists(table)
		if err != nil {
			return err
		}

		if !exists {
			defs := make([]string, 0, len(cols))
			for _, col := range cols {
				defs = append(defs, fmt.Sprintf("%s %s", col.name, col.typ))
			}
			stmt := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to create table %s: %w", table, err)
			}
			continue
		}

		existing, err := s.tableColumns(table)
		if err != nil {
			return err
		}
		for _, col := range cols {
			if existing[col.name] {
				continue
			}
			// PRIMARY KEY cannot be added after the fact; a pre-existing table
			// missing its key column predates this schema entirely and additive
			// widening adds it as a plain column.
			typ := strings.Replace(col.typ, " PRIMARY KEY", "", 1)
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, typ)
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to add column %s.%s: %w", table, col.name, err)
			}
		}
	}

	for _, stmt := range indexStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func (s *Store) tableExists(name string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", name, err)
	}
	return count > 0, nil
}

func (s *Store) tableColumns(name string) (map[string]bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[colName] = true
	}
	return cols, rows.Err()
}
