// Package schema holds the immutable model of a MySQL schema: a Database of
// Tables made of Columns, Indexes and ForeignKeys. Every operation returns a
// new value and leaves its receiver unchanged, so each applied statement
// yields an independent snapshot.
package schema

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/charset"
	"github.com/Limetric/mysql-simulator/internal/datatype"
)

// Database is an immutable set of tables keyed by name. Foreign keys refer to
// other tables by name only.
type Database struct {
	version charset.Version
	tables  map[string]*Table
}

// New returns an empty database for the given server version.
func New(version charset.Version) *Database {
	return &Database{version: version, tables: map[string]*Table{}}
}

func (db *Database) Version() charset.Version { return db.version }

// DefaultEncoding is the encoding new tables get when none is given.
func (db *Database) DefaultEncoding() charset.Encoding { return db.version.DefaultEncoding() }

// NewTable returns an empty table bound to this database's version. It is not
// added until passed to CreateTable.
func (db *Database) NewTable(name string, enc charset.Encoding) *Table {
	return NewTable(name, enc, db.version)
}

// Table looks up a table by name.
func (db *Database) Table(name string) (*Table, bool) {
	t, ok := db.tables[name]
	return t, ok
}

// HasTable reports whether the named table exists.
func (db *Database) HasTable(name string) bool {
	_, ok := db.tables[name]
	return ok
}

// TableNames returns all table names in case-insensitive order.
func (db *Database) TableNames() []string {
	names := slices.Collect(maps.Keys(db.tables))
	slices.SortFunc(names, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return names
}

func (db *Database) table(name string) (*Table, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

func (db *Database) with(fn func(tables map[string]*Table)) *Database {
	n := &Database{version: db.version, tables: maps.Clone(db.tables)}
	fn(n.tables)
	return n
}

// CreateTable adds t.
func (db *Database) CreateTable(t *Table) (*Database, error) {
	if db.HasTable(t.Name()) {
		return nil, fmt.Errorf("%w: %s", ErrTableAlreadyExists, t.Name())
	}
	return db.with(func(tables map[string]*Table) { tables[t.Name()] = t }), nil
}

// CloneTable creates dst with the columns, primary key and indexes of src.
// Foreign keys are not copied.
func (db *Database) CloneTable(src, dst string) (*Database, error) {
	t, err := db.table(src)
	if err != nil {
		return nil, err
	}
	if db.HasTable(dst) {
		return nil, fmt.Errorf("%w: %s", ErrTableAlreadyExists, dst)
	}
	clone := t.clone()
	clone.name = dst
	clone.foreignKeys = nil
	return db.with(func(tables map[string]*Table) { tables[dst] = clone }), nil
}

// RemoveTable drops one table. See RemoveTables.
func (db *Database) RemoveTable(name string, ifExists bool) (*Database, error) {
	return db.RemoveTables([]string{name}, ifExists)
}

// RemoveTables drops the named tables as a unit: foreign keys between tables
// of the set, and self references, do not block the drop. Missing tables are
// an error unless ifExists is set.
func (db *Database) RemoveTables(names []string, ifExists bool) (*Database, error) {
	dropping := make(map[string]bool, len(names))
	for _, name := range names {
		if !db.HasTable(name) {
			if ifExists {
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		dropping[name] = true
	}

	for _, name := range db.TableNames() {
		if dropping[name] {
			continue
		}
		for _, fk := range db.tables[name].foreignKeys {
			if dropping[fk.Reference.Table] {
				return nil, fmt.Errorf("%w: %s is referenced by %s.%s",
					ErrForeignKeyReferenceExists, fk.Reference.Table, name, fk.Name)
			}
		}
	}

	return db.with(func(tables map[string]*Table) {
		for name := range dropping {
			delete(tables, name)
		}
	}), nil
}

// RenameTable renames a table, rewriting every foreign key that references it
// and the table's own auto-numbered foreign key names.
func (db *Database) RenameTable(oldName, newName string) (*Database, error) {
	t, err := db.table(oldName)
	if err != nil {
		return nil, err
	}
	if oldName == newName {
		return db, nil
	}
	if db.HasTable(newName) {
		return nil, fmt.Errorf("%w: %s", ErrTableAlreadyExists, newName)
	}

	return db.with(func(tables map[string]*Table) {
		delete(tables, oldName)
		tables[newName] = t.withName(newName)
		for name, other := range tables {
			if !other.referencesTable(oldName) {
				continue
			}
			tables[name] = other.mapReferences(func(ref Reference) Reference {
				if ref.Table == oldName {
					ref.Table = newName
				}
				return ref
			})
		}
	}), nil
}

func (t *Table) referencesTable(name string) bool {
	return slices.ContainsFunc(t.foreignKeys, func(fk ForeignKey) bool { return fk.Reference.Table == name })
}

// RemoveColumn drops a column. Besides the table's own checks, the column
// must not be the target of another table's foreign key.
func (db *Database) RemoveColumn(table, column string) (*Database, error) {
	for _, name := range db.TableNames() {
		if name == table {
			continue
		}
		for _, fk := range db.tables[name].foreignKeys {
			if fk.Reference.Table == table && slices.Contains(fk.Reference.Columns, column) {
				return nil, fmt.Errorf("%w: %s.%s is referenced by %s.%s",
					ErrColumnInUseByForeignKey, table, column, name, fk.Name)
			}
		}
	}
	return db.SwapTable(table, func(t *Table) (*Table, error) { return t.RemoveColumn(column) })
}

// RenameColumn renames a column and every foreign key reference to it.
func (db *Database) RenameColumn(table, oldName, newName string) (*Database, error) {
	n, err := db.SwapTable(table, func(t *Table) (*Table, error) { return t.RenameColumn(oldName, newName) })
	if err != nil || oldName == newName {
		return n, err
	}
	return n.rewriteReferenceColumn(table, oldName, newName), nil
}

func (db *Database) rewriteReferenceColumn(table, oldName, newName string) *Database {
	return db.with(func(tables map[string]*Table) {
		for name, t := range tables {
			if !t.referencesTable(table) {
				continue
			}
			tables[name] = t.mapReferences(func(ref Reference) Reference {
				if ref.Table == table {
					for i, c := range ref.Columns {
						if c == oldName {
							ref.Columns[i] = newName
						}
					}
				}
				return ref
			})
		}
	})
}

// ReplaceColumn swaps a column definition, keeping foreign key references to
// a renamed column in step.
func (db *Database) ReplaceColumn(table, oldName string, col Column, pos Position) (*Database, error) {
	n, err := db.SwapTable(table, func(t *Table) (*Table, error) { return t.ReplaceColumn(oldName, col, pos) })
	if err != nil || oldName == col.Name {
		return n, err
	}
	return n.rewriteReferenceColumn(table, oldName, col.Name), nil
}

// AddForeignKey validates fk against its target table and adds it to table.
func (db *Database) AddForeignKey(table string, fk ForeignKey, indexName string) (*Database, error) {
	local, err := db.table(table)
	if err != nil {
		return nil, err
	}
	target := local
	if fk.Reference.Table != table {
		if target, err = db.table(fk.Reference.Table); err != nil {
			return nil, err
		}
	}
	if len(fk.Columns) != len(fk.Reference.Columns) {
		return nil, fmt.Errorf("%w: %s has %d local and %d referenced columns",
			ErrForeignKeyColumnCountMismatch, table, len(fk.Columns), len(fk.Reference.Columns))
	}

	for i, lc := range fk.Columns {
		rc := fk.Reference.Columns[i]
		localType, err := normalizedType(local, lc)
		if err != nil {
			return nil, err
		}
		targetType, err := normalizedType(target, rc)
		if err != nil {
			return nil, err
		}
		if localType != targetType {
			return nil, &ForeignKeyTypeMismatchError{
				Local:      table + "." + lc,
				LocalType:  localType,
				Target:     target.Name() + "." + rc,
				TargetType: targetType,
			}
		}
	}

	return db.SwapTable(table, func(t *Table) (*Table, error) { return t.AddForeignKey(fk, indexName) })
}

// normalizedType renders a column type the way foreign key compatibility is
// judged: display widths of integers and lengths of character columns do not
// matter, signedness and encoding do.
func normalizedType(t *Table, column string) (string, error) {
	col, ok := t.Column(column)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.Name(), column)
	}
	ti, err := col.TypeInfo(t.Codec(), t.DefaultEncoding())
	if err != nil {
		return "", fmt.Errorf("column %s.%s: %w", t.Name(), column, err)
	}
	switch typ := ti.(type) {
	case datatype.IntType:
		if typ.Base != "bit" {
			typ.Length, typ.ZeroFill = 0, false
			s := typ.Base
			if typ.Unsigned {
				s += " unsigned"
			}
			return s, nil
		}
	case datatype.TextType:
		typ.Length = nil
		return strings.ToLower(datatype.FormatExplicit(typ)), nil
	}
	return strings.ToLower(datatype.FormatExplicit(ti)), nil
}

// ForeignKeyTypeChangeAdvisories describes the foreign keys that involve
// table.oldName when its definition becomes col and its type changes. MySQL
// may refuse such a change with ER_FK_COLUMN_CANNOT_CHANGE.
func (db *Database) ForeignKeyTypeChangeAdvisories(table, oldName string, col Column) []string {
	t, ok := db.tables[table]
	if !ok {
		return nil
	}
	old, ok := t.Column(oldName)
	if !ok {
		return nil
	}
	codec := t.Codec()
	before, err := old.TypeInfo(codec, t.encoding)
	if err != nil {
		return nil
	}
	after, err := col.TypeInfo(codec, t.encoding)
	if err != nil {
		return nil
	}
	from, to := codec.Format(before, t.encoding), codec.Format(after, t.encoding)
	if from == to {
		return nil
	}

	var out []string
	for _, fk := range t.foreignKeys {
		if slices.Contains(fk.Columns, oldName) {
			out = append(out, fmt.Sprintf("%s.%s changes type from %s to %s but is used by foreign key %s; MySQL may reject this with ER_FK_COLUMN_CANNOT_CHANGE",
				table, oldName, from, to, fk.Name))
		}
	}
	for _, name := range db.TableNames() {
		for _, fk := range db.tables[name].foreignKeys {
			if fk.Reference.Table == table && slices.Contains(fk.Reference.Columns, oldName) {
				out = append(out, fmt.Sprintf("%s.%s changes type from %s to %s but is referenced by foreign key %s.%s; MySQL may reject this with ER_FK_COLUMN_CANNOT_CHANGE",
					table, oldName, from, to, name, fk.Name))
			}
		}
	}
	return out
}

// SwapTable replaces the named table with fn's result. fn must not rename the
// table.
func (db *Database) SwapTable(name string, fn func(*Table) (*Table, error)) (*Database, error) {
	t, err := db.table(name)
	if err != nil {
		return nil, err
	}
	n, err := fn(t)
	if err != nil {
		return nil, err
	}
	if n.Name() != name {
		return nil, fmt.Errorf("%w: table %s was renamed to %s outside RenameTable", ErrInvariantViolation, name, n.Name())
	}
	return db.with(func(tables map[string]*Table) { tables[name] = n }), nil
}

// MapTables applies fn to every table. fn must not rename tables.
func (db *Database) MapTables(fn func(*Table) (*Table, error)) (*Database, error) {
	out := db
	for _, name := range db.TableNames() {
		var err error
		if out, err = out.SwapTable(name, fn); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Validate checks every table's invariants and that no foreign key dangles.
func (db *Database) Validate() error {
	for _, name := range db.TableNames() {
		t := db.tables[name]
		if err := t.Validate(); err != nil {
			return err
		}
		for _, fk := range t.foreignKeys {
			target, ok := db.tables[fk.Reference.Table]
			if !ok {
				return fmt.Errorf("%w: foreign key %s.%s references missing table %s",
					ErrInvariantViolation, name, fk.Name, fk.Reference.Table)
			}
			if err := target.requireColumns(fk.Reference.Columns); err != nil {
				return fmt.Errorf("%w: foreign key %s.%s: %w", ErrInvariantViolation, name, fk.Name, err)
			}
		}
	}
	return nil
}

// Dump renders the named tables, or all tables in case-insensitive name order
// when none are given, as SHOW CREATE TABLE output separated by blank lines.
func (db *Database) Dump(names ...string) (string, error) {
	return db.dump(true, names)
}

// DumpBare is Dump without the ENGINE and CHARSET table options.
func (db *Database) DumpBare(names ...string) (string, error) {
	return db.dump(false, names)
}

func (db *Database) dump(withOptions bool, names []string) (string, error) {
	if len(names) == 0 {
		names = db.TableNames()
	}
	blocks := make([]string, 0, len(names))
	for _, name := range names {
		t, err := db.table(name)
		if err != nil {
			return "", err
		}
		stmt, err := t.CreateStatement(withOptions)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, stmt)
	}
	if len(blocks) == 0 {
		return "\n", nil
	}
	return "\n" + strings.Join(blocks, "\n\n") + "\n", nil
}

func (db *Database) String() string {
	s, err := db.Dump()
	if err != nil {
		return fmt.Sprintf("<database: %v>", err)
	}
	return s
}
