// Package cache maintains a derived SQLite view of the metric series.
//
// The JSON series files remain the source of truth; this database is
// rebuilt from them after each sync and exists only to answer dashboard
// and status queries without re-parsing every file. It is safe to delete
// at any time.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/vitals-app/vitals/internal/metric"
	"github.com/vitals-app/vitals/internal/store"
)

// Filename is the cache database file inside the data directory.
const Filename = "cache.db"

// DB wraps the SQLite connection holding the derived record view.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the cache database at path. WAL mode keeps the
// dashboard's reads from blocking the daemon's refresh writes. The
// caller must Close when done.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}
	db.conn = nil
	return nil
}

// initSchema creates the record view. Idempotent.
func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		revision TEXT,
		payload TEXT NOT NULL,  -- JSON
		PRIMARY KEY (kind, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
	CREATE INDEX IF NOT EXISTS idx_records_kind_ts ON records(kind, timestamp DESC);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// RefreshFromStore rebuilds the cache from the series files. Each kind is
// replaced wholesale inside one transaction, so readers see either the
// old view or the new one.
func (db *DB) RefreshFromStore(ctx context.Context, st *store.Store) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache refresh: %w", err)
	}
	defer tx.Rollback()

	for _, kind := range metric.Kinds() {
		records, err := st.ReadAll(kind)
		if err != nil {
			return fmt.Errorf("failed to read %s for cache refresh: %w", kind, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE kind = ?", string(kind)); err != nil {
			return fmt.Errorf("failed to clear %s cache rows: %w", kind, err)
		}

		for _, rec := range records {
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records (kind, timestamp, revision, payload) VALUES (?, ?, ?, ?)`,
				string(kind),
				rec.Timestamp.UTC().Format(time.RFC3339Nano),
				rec.Revision,
				string(payload),
			); err != nil {
				return fmt.Errorf("failed to insert %s cache row: %w", kind, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache refresh: %w", err)
	}
	return nil
}

// Count returns the number of cached records for a kind.
func (db *DB) Count(ctx context.Context, kind metric.Kind) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE kind = ?", string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", kind, err)
	}
	return count, nil
}

// Latest returns the newest cached timestamp for a kind. ok is false when
// the kind has no rows.
func (db *DB) Latest(ctx context.Context, kind metric.Kind) (time.Time, bool, error) {
	var ts sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM records WHERE kind = ?", string(kind)).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest %s timestamp: %w", kind, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}

	t, err := time.Parse(time.RFC3339Nano, ts.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cached timestamp %q: %w", ts.String, err)
	}
	return t, true, nil
}

// KindSummary is one row of the dashboard's overview query.
type KindSummary struct {
	Kind   metric.Kind `json:"kind"`
	Count  int         `json:"count"`
	Latest time.Time   `json:"latest,omitzero"`
}

// Summary returns counts and latest timestamps for every kind, in stable
// kind order. Kinds with no rows appear with a zero count.
func (db *DB) Summary(ctx context.Context) ([]KindSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT kind, COUNT(*), MAX(timestamp) FROM records GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to query cache summary: %w", err)
	}
	defer rows.Close()

	byKind := map[metric.Kind]KindSummary{}
	for rows.Next() {
		var kind string
		var count int
		var latest sql.NullString
		if err := rows.Scan(&kind, &count, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}

		summary := KindSummary{Kind: metric.Kind(kind), Count: count}
		if latest.Valid {
			if t, err := time.Parse(time.RFC3339Nano, latest.String); err == nil {
				summary.Latest = t
			}
		}
		byKind[summary.Kind] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary rows: %w", err)
	}

	out := make([]KindSummary, 0, len(metric.Kinds()))
	for _, kind := range metric.Kinds() {
		summary, ok := byKind[kind]
		if !ok {
			summary = KindSummary{Kind: kind}
		}
		out = append(out, summary)
	}
	return out, nil
}
