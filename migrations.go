package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/charset"
	"github.com/Limetric/mysql-simulator/internal/engine"
	"github.com/Limetric/mysql-simulator/internal/schema"
	"github.com/Limetric/mysql-simulator/internal/sqlparse"
)

// expandPaths turns the given files and directories into the ordered list of
// SQL files to apply. Directories contribute their *.sql entries in natural
// order (2_x.sql before 10_x.sql); explicit files keep their given order.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
				names = append(names, e.Name())
			}
		}
		slices.SortFunc(names, naturalCompare)
		for _, n := range names {
			files = append(files, filepath.Join(p, n))
		}
	}
	return files, nil
}

// naturalCompare orders strings with embedded numbers by numeric value.
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) - len(tb)
			}
			if c := strings.Compare(ta, tb); c != 0 {
				return c
			}
			if len(na) != len(nb) {
				return len(na) - len(nb)
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			return int(ca) - int(cb)
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// simulator applies migration files one after another.
type simulator struct {
	version          charset.Version
	legacyTimestamps bool
	parser           *sqlparse.Parser
	store            *snapshotStore
	runID            string
}

func newSimulator(cfg *SimulatorConfig, store *snapshotStore) *simulator {
	return &simulator{
		version:          cfg.version(),
		legacyTimestamps: !cfg.ExplicitTimestamps,
		parser:           sqlparse.New(cfg.IgnoreDML),
		store:            store,
	}
}

// run applies files in order and returns the final schema. When a snapshot
// store is attached, the schema after every file is recorded under a new run.
func (s *simulator) run(ctx context.Context, files []string) (*schema.Database, error) {
	if s.store != nil {
		runID, err := s.store.beginRun(ctx, s.version)
		if err != nil {
			return nil, err
		}
		s.runID = runID
		log.Printf("  recording snapshots as run %s", runID)
	}

	eng := engine.Engine{
		Version:          s.version,
		LegacyTimestamps: s.legacyTimestamps,
		Warn:             func(msg string) { log.Printf("  WARN: %s", msg) },
	}
	db := schema.New(s.version)

	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		script, err := s.parser.Parse(string(data))
		if err != nil {
			var parseErr *sqlparse.Error
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("%s:%d: %w", f, parseErr.Line, parseErr.Err)
			}
			return nil, fmt.Errorf("%s: %w", f, err)
		}

		next, err := eng.Apply(db, script.Statements())
		if err != nil {
			var stmtErr *engine.StatementError
			if errors.As(err, &stmtErr) {
				return nil, fmt.Errorf("%s:%d: %w", f, script[stmtErr.Index].Line, err)
			}
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		db = next
		log.Printf("  %s: %d statements", filepath.Base(f), len(script))

		if s.store != nil {
			dump, err := db.Dump()
			if err != nil {
				return nil, fmt.Errorf("dump after %s: %w", f, err)
			}
			if err := s.store.record(ctx, s.runID, i+1, f, dump); err != nil {
				return nil, err
			}
		}
	}
	return db, nil
}
