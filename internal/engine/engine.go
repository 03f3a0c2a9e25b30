// Package engine folds parsed DDL statements over a schema.Database, one
// immutable snapshot per statement.
package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/charset"
	"github.com/Limetric/mysql-simulator/internal/datatype"
	"github.com/Limetric/mysql-simulator/internal/schema"
)

var (
	// ErrUnknownStatement is returned for a Statement the engine does not model.
	ErrUnknownStatement = errors.New("unknown statement")
	// ErrUnknownAlterChange is returned for an ALTER TABLE clause the engine
	// does not model.
	ErrUnknownAlterChange = errors.New("unknown ALTER TABLE change")
)

// StatementError locates a failure within the statement list.
type StatementError struct {
	Index  int
	Kind   string
	Table  string
	Change string
	Err    error
}

func (e *StatementError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "statement %d (%s", e.Index+1, e.Kind)
	if e.Table != "" {
		fmt.Fprintf(&b, " `%s`", e.Table)
	}
	if e.Change != "" {
		b.WriteString(", ")
		b.WriteString(e.Change)
	}
	b.WriteString("): ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StatementError) Unwrap() error { return e.Err }

// Engine applies statements. Warn receives non-fatal advisories and may be
// nil.
//
// LegacyTimestamps models explicit_defaults_for_timestamp=OFF: a TIMESTAMP
// column is NOT NULL unless declared NULL, the first TIMESTAMP column of a
// table left without a default gets DEFAULT CURRENT_TIMESTAMP ON UPDATE
// CURRENT_TIMESTAMP, and later ones get the zero timestamp.
type Engine struct {
	Version          charset.Version
	LegacyTimestamps bool
	Warn             func(string)
}

// Apply folds stmts over db with no warning sink. A nil db starts from an
// empty MySQL 5.7 database.
func Apply(db *schema.Database, stmts []Statement) (*schema.Database, error) {
	e := Engine{Version: charset.MySQL57}
	if db != nil {
		e.Version = db.Version()
	}
	return e.Apply(db, stmts)
}

// Apply folds stmts over db in order and returns the final snapshot. A nil db
// starts from an empty database of e.Version. The first failing statement
// aborts the fold with a *StatementError.
func (e Engine) Apply(db *schema.Database, stmts []Statement) (*schema.Database, error) {
	if db == nil {
		db = schema.New(e.Version)
	}
	for i, stmt := range stmts {
		next, change, err := e.apply(db, stmt)
		if err == nil {
			err = next.Validate()
		}
		if err != nil {
			return nil, &StatementError{
				Index:  i,
				Kind:   kindOf(stmt),
				Table:  tableOf(stmt),
				Change: change,
				Err:    err,
			}
		}
		db = next
	}
	return db, nil
}

func kindOf(stmt Statement) string {
	if stmt == nil {
		return "<nil>"
	}
	return stmt.statementKind()
}

func tableOf(stmt Statement) string {
	switch s := stmt.(type) {
	case CreateTableStmt:
		return s.Table
	case CreateTableLikeStmt:
		return s.Table
	case DropTableStmt:
		return strings.Join(s.Tables, "`, `")
	case CreateIndexStmt:
		return s.Table
	case DropIndexStmt:
		return s.Table
	case AlterTableStmt:
		return s.Table
	}
	return ""
}

func (e Engine) warn(format string, args ...any) {
	if e.Warn != nil {
		e.Warn(fmt.Sprintf(format, args...))
	}
}

func (e Engine) apply(db *schema.Database, stmt Statement) (*schema.Database, string, error) {
	switch s := stmt.(type) {
	case CreateTableStmt:
		next, err := e.createTable(db, s)
		return next, "", err

	case CreateTableLikeStmt:
		if s.IfNotExists && db.HasTable(s.Table) {
			e.warn("table %s already exists, CREATE TABLE IF NOT EXISTS skipped", s.Table)
			return db, "", nil
		}
		next, err := db.CloneTable(s.Like, s.Table)
		return next, "", err

	case DropTableStmt:
		next, err := db.RemoveTables(s.Tables, s.IfExists)
		return next, "", err

	case RenameTableStmt:
		var err error
		for _, p := range s.Pairs {
			if db, err = db.RenameTable(p.From, p.To); err != nil {
				return nil, "", fmt.Errorf("rename %s to %s: %w", p.From, p.To, err)
			}
		}
		return db, "", nil

	case CreateIndexStmt:
		next, err := db.SwapTable(s.Table, func(t *schema.Table) (*schema.Table, error) {
			return t.AddIndex(s.Index.Name, indexKind(s.Index.Kind), s.Index.Columns, true)
		})
		return next, "", err

	case DropIndexStmt:
		next, err := db.SwapTable(s.Table, func(t *schema.Table) (*schema.Table, error) {
			return dropIndex(t, s.Index, nil)
		})
		return next, "", err

	case AlterTableStmt:
		return e.alterTable(db, s)

	case CreateFunctionStmt, CreateTriggerStmt:
		return db, "", nil
	}
	return nil, "", fmt.Errorf("%w: %T", ErrUnknownStatement, stmt)
}

func (e Engine) createTable(db *schema.Database, s CreateTableStmt) (*schema.Database, error) {
	if s.IfNotExists && db.HasTable(s.Table) {
		e.warn("table %s already exists, CREATE TABLE IF NOT EXISTS skipped", s.Table)
		return db, nil
	}

	enc, err := db.Version().Resolve(s.Options.Charset, s.Options.Collate, db.DefaultEncoding())
	if err != nil {
		return nil, err
	}
	t := db.NewTable(s.Table, enc)

	names := make([]string, 0, len(s.Columns))
	for _, def := range s.Columns {
		if t, err = t.AddColumn(e.newColumn(def), schema.Position{}); err != nil {
			return nil, err
		}
		names = append(names, def.Name)
	}
	if t, err = e.timestampDefaults(t, names); err != nil {
		return nil, err
	}

	for _, def := range s.Columns {
		if def.PrimaryKey {
			if t, err = t.AddPrimaryKey([]string{def.Name}); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range s.Constraints {
		if pk, ok := c.(PrimaryKeyDefinition); ok {
			if t, err = t.AddPrimaryKey(pk.Columns); err != nil {
				return nil, err
			}
		}
	}
	for _, def := range s.Columns {
		if def.Unique {
			if t, err = t.AddIndex("", schema.IndexUnique, []string{def.Name}, true); err != nil {
				return nil, err
			}
		}
	}

	if db, err = db.CreateTable(t); err != nil {
		return nil, err
	}

	for _, c := range s.Constraints {
		switch c := c.(type) {
		case PrimaryKeyDefinition:
		case IndexDefinition:
			db, err = db.SwapTable(s.Table, func(t *schema.Table) (*schema.Table, error) {
				return t.AddIndex(c.Name, indexKind(c.Kind), c.Columns, true)
			})
		case ForeignKeyDefinition:
			db, err = db.AddForeignKey(s.Table, foreignKey(c), c.IndexName)
		default:
			err = fmt.Errorf("%w: table constraint %T", ErrUnknownStatement, c)
		}
		if err != nil {
			return nil, err
		}
	}
	return db, nil
}

// reorder moves DROP FOREIGN KEY and then DROP COLUMN clauses behind all
// others, keeping relative order within each group.
func reorder(changes []AlterChange) []AlterChange {
	rank := func(c AlterChange) int {
		switch c.(type) {
		case DropForeignKey:
			return 1
		case DropColumn:
			return 2
		}
		return 0
	}
	out := slices.Clone(changes)
	slices.SortStableFunc(out, func(a, b AlterChange) int { return rank(a) - rank(b) })
	return out
}

func (e Engine) alterTable(db *schema.Database, s AlterTableStmt) (*schema.Database, string, error) {
	if !db.HasTable(s.Table) {
		return nil, "", fmt.Errorf("%w: %s", schema.ErrTableNotFound, s.Table)
	}

	changes := reorder(s.Changes)
	var droppingFKs []string
	for _, c := range changes {
		if d, ok := c.(DropForeignKey); ok {
			droppingFKs = append(droppingFKs, d.Name)
		}
	}

	table := s.Table
	for _, c := range changes {
		var err error
		if db, err = e.alterChange(db, &table, c, droppingFKs); err != nil {
			kind := fmt.Sprintf("%T", c)
			if c != nil {
				kind = c.changeKind()
			}
			return nil, kind, err
		}
	}
	return db, "", nil
}

func (e Engine) alterChange(db *schema.Database, table *string, change AlterChange, droppingFKs []string) (*schema.Database, error) {
	name := *table
	swap := func(fn func(*schema.Table) (*schema.Table, error)) (*schema.Database, error) {
		return db.SwapTable(name, fn)
	}

	switch c := change.(type) {
	case RenameTable:
		next, err := db.RenameTable(name, c.NewName)
		if err == nil {
			*table = c.NewName
		}
		return next, err

	case AddColumn:
		next, err := swap(func(t *schema.Table) (*schema.Table, error) {
			t, err := t.AddColumn(e.newColumn(c.Column), c.Position)
			if err != nil {
				return nil, err
			}
			return e.timestampDefaults(t, []string{c.Column.Name})
		})
		if err != nil {
			return nil, err
		}
		return inlineKeys(next, name, c.Column)

	case ChangeColumn:
		col := e.newColumn(c.Column)
		for _, msg := range db.ForeignKeyTypeChangeAdvisories(name, c.OldName, col) {
			e.warn("%s", msg)
		}
		next, err := db.ReplaceColumn(name, c.OldName, col, c.Position)
		if err != nil {
			return nil, err
		}
		next, err = next.SwapTable(name, func(t *schema.Table) (*schema.Table, error) {
			return e.timestampDefaults(t, []string{col.Name})
		})
		if err != nil {
			return nil, err
		}
		return inlineKeys(next, name, c.Column)

	case RenameColumn:
		return db.RenameColumn(name, c.OldName, c.NewName)

	case DropColumn:
		return db.RemoveColumn(name, c.Name)

	case AddPrimaryKey:
		return swap(func(t *schema.Table) (*schema.Table, error) { return t.AddPrimaryKey(c.Columns) })

	case DropPrimaryKey:
		return swap(func(t *schema.Table) (*schema.Table, error) { return t.DropPrimaryKey() })

	case AddForeignKey:
		return db.AddForeignKey(name, foreignKey(c.ForeignKey), c.ForeignKey.IndexName)

	case DropForeignKey:
		return swap(func(t *schema.Table) (*schema.Table, error) { return t.DropForeignKey(c.Name) })

	case AddIndex:
		return swap(func(t *schema.Table) (*schema.Table, error) {
			return t.AddIndex(c.Index.Name, indexKind(c.Index.Kind), c.Index.Columns, true)
		})

	case DropIndex:
		return swap(func(t *schema.Table) (*schema.Table, error) { return dropIndex(t, c.Name, droppingFKs) })

	case RenameIndex:
		return swap(func(t *schema.Table) (*schema.Table, error) { return t.RenameIndex(c.OldName, c.NewName) })

	case SetDefault:
		def := c.Default
		return swap(func(t *schema.Table) (*schema.Table, error) { return t.AlterColumnDefault(c.Column, &def) })

	case DropDefault:
		return swap(func(t *schema.Table) (*schema.Table, error) { return t.AlterColumnDefault(c.Column, nil) })

	case ChangeTableOptions:
		return swap(func(t *schema.Table) (*schema.Table, error) {
			enc, err := t.Version().Resolve(c.Charset, c.Collate, t.DefaultEncoding())
			if err != nil {
				return nil, err
			}
			if c.Convert {
				return t.ConvertToEncoding(enc)
			}
			return t.SetDefaultEncoding(enc)
		})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownAlterChange, change)
}

// inlineKeys applies the PRIMARY KEY and UNIQUE attributes of a column
// definition added by ALTER TABLE.
func inlineKeys(db *schema.Database, table string, def ColumnDefinition) (*schema.Database, error) {
	if !def.PrimaryKey && !def.Unique {
		return db, nil
	}
	return db.SwapTable(table, func(t *schema.Table) (*schema.Table, error) {
		var err error
		if def.PrimaryKey {
			if t, err = t.AddPrimaryKey([]string{def.Name}); err != nil {
				return nil, err
			}
		}
		if def.Unique {
			return t.AddIndex("", schema.IndexUnique, []string{def.Name}, true)
		}
		return t, nil
	})
}

// dropIndex also accepts the PRIMARY pseudo index name.
func dropIndex(t *schema.Table, name string, droppingFKs []string) (*schema.Table, error) {
	if strings.EqualFold(name, "PRIMARY") {
		return t.DropPrimaryKey()
	}
	return t.DropIndex(name, droppingFKs...)
}

func (e Engine) newColumn(def ColumnDefinition) schema.Column {
	col := newColumn(def)
	if e.LegacyTimestamps && def.Nullable == nil && def.Generated == nil && !defaultsToNull(def) && isTimestamp(def.Type) {
		col = col.WithNullable(false)
	}
	return col
}

func defaultsToNull(def ColumnDefinition) bool {
	return def.Default != nil && strings.EqualFold(strings.TrimSpace(*def.Default), "NULL")
}

func isTimestamp(typ string) bool {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(typ)), "(")
	return strings.TrimSpace(base) == "timestamp"
}

// timestampDefaults gives the named NOT NULL timestamp columns of t the
// implicit defaults of legacy timestamp handling. Only the first timestamp
// column of the table is promoted to CURRENT_TIMESTAMP.
func (e Engine) timestampDefaults(t *schema.Table, names []string) (*schema.Table, error) {
	if !e.LegacyTimestamps {
		return t, nil
	}
	first := true
	for _, col := range t.Columns() {
		ti, err := col.TypeInfo(t.Codec(), t.DefaultEncoding())
		if err != nil {
			return nil, err
		}
		tt, ok := ti.(datatype.TemporalType)
		if !ok || tt.Base != "timestamp" {
			continue
		}
		promote := first
		first = false
		if !slices.Contains(names, col.Name) || col.Nullable || col.Generated != nil || col.Default != nil || col.OnUpdate != nil {
			continue
		}

		fsp := 0
		if tt.FSP != nil {
			fsp = *tt.FSP
		}
		if promote {
			now := "CURRENT_TIMESTAMP"
			if fsp > 0 {
				now = fmt.Sprintf("CURRENT_TIMESTAMP(%d)", fsp)
			}
			onUpdate := now
			col.Default, col.OnUpdate = &now, &onUpdate
		} else {
			zero := "'0000-00-00 00:00:00"
			if fsp > 0 {
				zero += "." + strings.Repeat("0", fsp)
			}
			zero += "'"
			col.Default = &zero
		}
		if t, err = t.ReplaceColumn(col.Name, col, schema.Position{}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func newColumn(def ColumnDefinition) schema.Column {
	col := schema.Column{
		Name:          def.Name,
		Type:          def.Type,
		Nullable:      true,
		Default:       def.Default,
		OnUpdate:      def.OnUpdate,
		AutoIncrement: def.AutoIncrement,
		Comment:       def.Comment,
		Generated:     def.Generated,
	}
	if def.Nullable != nil {
		col = col.WithNullable(*def.Nullable)
	}
	if def.PrimaryKey {
		col = col.WithNullable(false)
	}
	return col
}

func foreignKey(def ForeignKeyDefinition) schema.ForeignKey {
	return schema.ForeignKey{
		Name:     def.Name,
		Columns:  slices.Clone(def.Columns),
		OnDelete: def.OnDelete,
		OnUpdate: def.OnUpdate,
		Reference: schema.Reference{
			Table:   def.RefTable,
			Columns: slices.Clone(def.RefColumns),
		},
	}
}

func indexKind(k schema.IndexKind) schema.IndexKind {
	if k == "" {
		return schema.IndexNormal
	}
	return k
}
