package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/Limetric/mysql-simulator/internal/charset"
)

var errRunNotFound = errors.New("run not found")

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  mysql_version TEXT NOT NULL,
  tool_version TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS schemas (
  digest TEXT PRIMARY KEY,
  body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshots (
  run_id TEXT NOT NULL REFERENCES runs (id),
  seq INTEGER NOT NULL,
  file TEXT NOT NULL,
  digest TEXT NOT NULL REFERENCES schemas (digest),
  PRIMARY KEY (run_id, seq)
);
`

// snapshotStore records the schema produced by every migration file of a run.
// Identical schemas are stored once, keyed by their BLAKE3 digest.
type snapshotStore struct {
	db  *sql.DB
	now func() time.Time
}

type runSummary struct {
	ID           string
	StartedAt    time.Time
	MySQLVersion string
	ToolVersion  string
	Files        int
}

type snapshotEntry struct {
	Seq    int
	File   string
	Digest string
}

func openSnapshotStore(ctx context.Context, path string) (*snapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot db: %w", err)
	}
	return &snapshotStore{db: db, now: time.Now}, nil
}

func (s *snapshotStore) Close() error {
	return s.db.Close()
}

func schemaDigest(body string) string {
	sum := blake3.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func (s *snapshotStore) beginRun(ctx context.Context, version charset.Version) (string, error) {
	id := uuid.New().String()
	started := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, mysql_version, tool_version) VALUES (?, ?, ?, ?)",
		id, started, string(version), versionString()); err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

func (s *snapshotStore) record(ctx context.Context, runID string, seq int, file, body string) error {
	digest := schemaDigest(body)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO schemas (digest, body) VALUES (?, ?)", digest, body); err != nil {
		return fmt.Errorf("store schema %s: %w", digest, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (run_id, seq, file, digest) VALUES (?, ?, ?, ?)",
		runID, seq, file, digest); err != nil {
		return fmt.Errorf("store snapshot %d of run %s: %w", seq, runID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// history lists runs, most recent first.
func (s *snapshotStore) history(ctx context.Context) ([]runSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.started_at, r.mysql_version, r.tool_version, COUNT(s.seq)
FROM runs r LEFT JOIN snapshots s ON s.run_id = r.id
GROUP BY r.id, r.started_at, r.mysql_version, r.tool_version
ORDER BY r.started_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []runSummary
	for rows.Next() {
		var r runSummary
		var started string
		if err := rows.Scan(&r.ID, &started, &r.MySQLVersion, &r.ToolVersion, &r.Files); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *snapshotStore) snapshots(ctx context.Context, runID string) ([]snapshotEntry, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", errRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, file, digest FROM snapshots WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots of run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []snapshotEntry
	for rows.Next() {
		var e snapshotEntry
		if err := rows.Scan(&e.Seq, &e.File, &e.Digest); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// schema returns the stored dump for one step of a run.
func (s *snapshotStore) schema(ctx context.Context, runID string, seq int) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
SELECT sc.body FROM snapshots sn JOIN schemas sc ON sc.digest = sn.digest
WHERE sn.run_id = ? AND sn.seq = ?`, runID, seq).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s step %d", errRunNotFound, runID, seq)
	}
	if err != nil {
		return "", fmt.Errorf("query schema: %w", err)
	}
	return body, nil
}
