package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/prerender/dbopen"
	"github.com/hazyhaar/prerender/prerender/snapshot"
)

// Schema of the result manifest. Written for audit; never read back.
const Schema = `
CREATE TABLE IF NOT EXISTS prerender_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	site        TEXT NOT NULL,
	url         TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	screenshot  TEXT NOT NULL DEFAULT '',
	html_hash   TEXT NOT NULL DEFAULT '',
	html_size   INTEGER NOT NULL DEFAULT 0,
	resources   TEXT NOT NULL DEFAULT '{}',
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prerender_results_run ON prerender_results(run_id);

CREATE TABLE IF NOT EXISTS prerender_runs (
	run_id      TEXT PRIMARY KEY,
	sites       INTEGER NOT NULL,
	completed   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);`

// SQLite records one row per result and per run.
type SQLite struct {
	db   *sql.DB
	owns bool
}

// OpenSQLite opens (creating if needed) the manifest database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: %w", err)
	}
	return &SQLite{db: db, owns: true}, nil
}

// NewSQLite wraps an already-open database. The schema is applied; the
// caller keeps ownership of db.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("sqlite sink: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Send(ctx context.Context, res snapshot.Result) error {
	resources, err := json.Marshal(res.Resources)
	if err != nil {
		return fmt.Errorf("sqlite sink: marshal resources: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT INTO prerender_results
			(id, run_id, site, url, output, screenshot, html_hash, html_size, resources, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.RunID, res.Site, res.URL, res.Output, res.Screenshot,
		res.HTMLHash, len(res.HTML), string(resources), res.Error, res.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert result: %w", err)
	}
	return nil
}

func (s *SQLite) SendSummary(ctx context.Context, sum snapshot.Summary) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO prerender_runs (run_id, sites, completed, failed, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Sites, sum.Completed, sum.Failed, sum.DurationMs, sum.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite sink: insert run: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.owns {
		return s.db.Close()
	}
	return nil
}
