package schema

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/charset"
	"github.com/Limetric/mysql-simulator/internal/datatype"
)

// Position places a column within a table. The zero value appends.
type Position struct {
	First bool
	After string
}

// IsZero reports whether p leaves the column where it is.
func (p Position) IsZero() bool {
	return !p.First && p.After == ""
}

// Table is an immutable table definition. Every mutating method returns a new
// Table and leaves the receiver untouched.
type Table struct {
	name        string
	version     charset.Version
	encoding    charset.Encoding
	columns     []Column
	primaryKey  []string
	indexes     []Index
	foreignKeys []ForeignKey
}

// NewTable returns an empty table.
func NewTable(name string, enc charset.Encoding, version charset.Version) *Table {
	return &Table{name: name, version: version, encoding: enc}
}

func (t *Table) Name() string                      { return t.name }
func (t *Table) Version() charset.Version          { return t.version }
func (t *Table) DefaultEncoding() charset.Encoding { return t.encoding }
func (t *Table) Codec() datatype.Codec             { return datatype.Codec{Version: t.version} }

// Columns returns the columns in declaration order.
func (t *Table) Columns() []Column { return slices.Clone(t.columns) }

// PrimaryKey returns the primary key columns, or nil.
func (t *Table) PrimaryKey() []string { return slices.Clone(t.primaryKey) }

// Indexes returns the secondary indexes in creation order.
func (t *Table) Indexes() []Index {
	out := make([]Index, len(t.indexes))
	for i, idx := range t.indexes {
		out[i] = idx.clone()
	}
	return out
}

// ForeignKeys returns the foreign keys in creation order.
func (t *Table) ForeignKeys() []ForeignKey {
	out := make([]ForeignKey, len(t.foreignKeys))
	for i, fk := range t.foreignKeys {
		out[i] = fk.clone()
	}
	return out
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	if i := t.columnIndex(name); i >= 0 {
		return t.columns[i], true
	}
	return Column{}, false
}

// Index looks up a secondary index by name.
func (t *Table) Index(name string) (Index, bool) {
	if i := t.indexIndex(name); i >= 0 {
		return t.indexes[i].clone(), true
	}
	return Index{}, false
}

// ForeignKey looks up a foreign key by name.
func (t *Table) ForeignKey(name string) (ForeignKey, bool) {
	if i := t.foreignKeyIndex(name); i >= 0 {
		return t.foreignKeys[i].clone(), true
	}
	return ForeignKey{}, false
}

func (t *Table) columnIndex(name string) int {
	return slices.IndexFunc(t.columns, func(c Column) bool { return c.Name == name })
}

func (t *Table) indexIndex(name string) int {
	return slices.IndexFunc(t.indexes, func(i Index) bool { return i.Name == name })
}

func (t *Table) foreignKeyIndex(name string) int {
	return slices.IndexFunc(t.foreignKeys, func(fk ForeignKey) bool { return fk.Name == name })
}

func (t *Table) clone() *Table {
	n := *t
	n.columns = slices.Clone(t.columns)
	n.primaryKey = slices.Clone(t.primaryKey)
	n.indexes = t.Indexes()
	n.foreignKeys = t.ForeignKeys()
	return &n
}

func (t *Table) requireColumns(cols []string) error {
	for _, c := range cols {
		if t.columnIndex(c) < 0 {
			return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.name, c)
		}
	}
	return nil
}

// AddColumn appends col, or places it according to pos.
func (t *Table) AddColumn(col Column, pos Position) (*Table, error) {
	if t.columnIndex(col.Name) >= 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnAlreadyExists, t.name, col.Name)
	}
	if _, err := col.TypeInfo(t.Codec(), t.encoding); err != nil {
		return nil, fmt.Errorf("column %s.%s: %w", t.name, col.Name, err)
	}
	n := t.clone()
	n.columns = append(n.columns, col)
	if err := n.place(col.Name, pos); err != nil {
		return nil, err
	}
	return n, nil
}

// place moves the named column of a freshly cloned table.
func (t *Table) place(name string, pos Position) error {
	if pos.IsZero() {
		return nil
	}
	i := t.columnIndex(name)
	col := t.columns[i]
	t.columns = slices.Delete(t.columns, i, i+1)

	at := 0
	if !pos.First {
		j := t.columnIndex(pos.After)
		if j < 0 {
			return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.name, pos.After)
		}
		at = j + 1
	}
	t.columns = slices.Insert(t.columns, at, col)
	return nil
}

// RemoveColumn drops a column together with its index and primary key parts.
// Indexes left without columns disappear.
func (t *Table) RemoveColumn(name string) (*Table, error) {
	i := t.columnIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.name, name)
	}
	for _, fk := range t.foreignKeys {
		if slices.Contains(fk.Columns, name) {
			return nil, fmt.Errorf("%w: %s.%s is used by %s", ErrColumnInUseByForeignKey, t.name, name, fk.Name)
		}
	}

	n := t.clone()
	n.columns = slices.Delete(n.columns, i, i+1)

	indexes := n.indexes[:0]
	for _, idx := range n.indexes {
		idx.Columns = slices.DeleteFunc(idx.Columns, func(c string) bool { return c == name })
		if len(idx.Columns) > 0 {
			indexes = append(indexes, idx)
		}
	}
	n.indexes = indexes

	n.primaryKey = slices.DeleteFunc(n.primaryKey, func(c string) bool { return c == name })
	if len(n.primaryKey) == 0 {
		n.primaryKey = nil
	}
	return n, nil
}

// RenameColumn renames a column and every local reference to it.
func (t *Table) RenameColumn(oldName, newName string) (*Table, error) {
	i := t.columnIndex(oldName)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.name, oldName)
	}
	if oldName == newName {
		return t, nil
	}
	if t.columnIndex(newName) >= 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnAlreadyExists, t.name, newName)
	}

	n := t.clone()
	n.columns[i] = n.columns[i].WithName(newName)
	rename := func(cols []string) {
		for j, c := range cols {
			if c == oldName {
				cols[j] = newName
			}
		}
	}
	rename(n.primaryKey)
	for _, idx := range n.indexes {
		rename(idx.Columns)
	}
	for _, fk := range n.foreignKeys {
		rename(fk.Columns)
	}
	return n, nil
}

// ReplaceColumn swaps the definition of oldName for col, renaming and moving
// it as needed. Primary key columns stay NOT NULL.
func (t *Table) ReplaceColumn(oldName string, col Column, pos Position) (*Table, error) {
	if t.columnIndex(oldName) < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.name, oldName)
	}
	if _, err := col.TypeInfo(t.Codec(), t.encoding); err != nil {
		return nil, fmt.Errorf("column %s.%s: %w", t.name, col.Name, err)
	}

	var n *Table
	if col.Name != oldName {
		var err error
		if n, err = t.RenameColumn(oldName, col.Name); err != nil {
			return nil, err
		}
	} else {
		n = t.clone()
	}

	if slices.Contains(n.primaryKey, col.Name) {
		col = col.WithNullable(false)
	}
	n.columns[n.columnIndex(col.Name)] = col
	if err := n.place(col.Name, pos); err != nil {
		return nil, err
	}
	return n, nil
}

// AlterColumnDefault sets or, with a nil def, drops a column's default.
func (t *Table) AlterColumnDefault(name string, def *string) (*Table, error) {
	i := t.columnIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, t.name, name)
	}
	n := t.clone()
	n.columns[i] = n.columns[i].WithDefault(def)
	return n, nil
}

// AddPrimaryKey sets the primary key; its columns become NOT NULL.
func (t *Table) AddPrimaryKey(cols []string) (*Table, error) {
	if t.primaryKey != nil {
		return nil, fmt.Errorf("%w: %s", ErrPrimaryKeyAlreadyExists, t.name)
	}
	if err := t.requireColumns(cols); err != nil {
		return nil, err
	}
	n := t.clone()
	n.primaryKey = slices.Clone(cols)
	for _, c := range cols {
		i := n.columnIndex(c)
		n.columns[i] = n.columns[i].WithNullable(false)
	}
	return n, nil
}

// DropPrimaryKey removes the primary key.
func (t *Table) DropPrimaryKey() (*Table, error) {
	if t.primaryKey == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, t.name)
	}
	n := t.clone()
	n.primaryKey = nil
	if fk, ok := n.unsupportedForeignKey(nil); ok {
		return nil, fmt.Errorf("%w: PRIMARY on %s (%s)", ErrIndexRequiredByForeignKey, t.name, fk)
	}
	return n, nil
}

// AddForeignKey adds fk, naming it <table>_ibfk_<n> when fk.Name is empty,
// and makes sure an index supports its local columns. indexName, or else an
// explicit constraint name, names that index.
//
// Cross-table checks are the Database's job.
func (t *Table) AddForeignKey(fk ForeignKey, indexName string) (*Table, error) {
	if len(fk.Columns) == 0 {
		return nil, fmt.Errorf("%w: foreign key on %s has no columns", ErrInvariantViolation, t.name)
	}
	if err := t.requireColumns(fk.Columns); err != nil {
		return nil, err
	}
	if fk.Name != "" && t.foreignKeyIndex(fk.Name) >= 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrForeignKeyAlreadyExists, fk.Name, t.name)
	}

	requested := indexName
	if requested == "" {
		requested = fk.Name
	}
	if fk.Name == "" {
		fk.Name = t.nextForeignKeyName()
	}

	n := t.clone()
	n.ensureForeignKeyIndex(fk.Columns, requested)
	n.foreignKeys = append(n.foreignKeys, fk.clone())
	return n, nil
}

func (t *Table) ensureForeignKeyIndex(cols []string, requested string) {
	if requested != "" {
		for i, idx := range t.indexes {
			if idx.Locked || idx.Kind == IndexFulltext || !slices.Equal(idx.Columns, cols) {
				continue
			}
			if idx.Name != requested && t.indexIndex(requested) >= 0 {
				return
			}
			idx.Name = requested
			t.indexes = append(slices.Delete(t.indexes, i, i+1), idx)
			return
		}
	}

	if t.supported(cols) {
		return
	}

	name := requested
	if name == "" {
		name = cols[0]
	}
	t.indexes = append(t.indexes, Index{
		Name:    t.uniqueIndexName(name),
		Columns: slices.Clone(cols),
		Kind:    IndexNormal,
	})
}

// supported reports whether the primary key or a secondary index starts with
// cols.
func (t *Table) supported(cols []string) bool {
	if hasPrefix(t.primaryKey, cols) {
		return true
	}
	return slices.ContainsFunc(t.indexes, func(idx Index) bool { return idx.supports(cols) })
}

// unsupportedForeignKey returns the first foreign key, other than those in
// skip, that no longer has a supporting index.
func (t *Table) unsupportedForeignKey(skip []string) (string, bool) {
	for _, fk := range t.foreignKeys {
		if slices.Contains(skip, fk.Name) {
			continue
		}
		if !t.supported(fk.Columns) {
			return fk.Name, true
		}
	}
	return "", false
}

func (t *Table) nextForeignKeyName() string {
	prefix := t.name + "_ibfk_"
	highest := 0
	for _, fk := range t.foreignKeys {
		suffix, ok := strings.CutPrefix(fk.Name, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > highest {
			highest = n
		}
	}
	return prefix + strconv.Itoa(highest+1)
}

func (t *Table) uniqueIndexName(base string) string {
	taken := func(name string) bool {
		return strings.EqualFold(name, "PRIMARY") || t.indexIndex(name) >= 0
	}
	if !taken(base) {
		return base
	}
	for i := 2; ; i++ {
		if name := base + "_" + strconv.Itoa(i); !taken(name) {
			return name
		}
	}
}

// DropForeignKey removes a foreign key. Its supporting index stays.
func (t *Table) DropForeignKey(name string) (*Table, error) {
	i := t.foreignKeyIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrForeignKeyNotFound, name, t.name)
	}
	n := t.clone()
	n.foreignKeys = slices.Delete(n.foreignKeys, i, i+1)
	return n, nil
}

// AddIndex adds a secondary index. Without a name, the index is named after
// its first column, suffixed _2, _3, ... on collision. An unlocked index whose
// columns are a prefix of cols is superseded by the new one.
func (t *Table) AddIndex(name string, kind IndexKind, cols []string, locked bool) (*Table, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: index on %s has no columns", ErrInvariantViolation, t.name)
	}
	if err := t.requireColumns(cols); err != nil {
		return nil, err
	}

	n := t.clone()
	if kind != IndexFulltext {
		i := slices.IndexFunc(n.indexes, func(idx Index) bool {
			return !idx.Locked && idx.Kind == IndexNormal && hasPrefix(cols, idx.Columns)
		})
		if i >= 0 {
			n.indexes = slices.Delete(n.indexes, i, i+1)
		}
	}

	switch {
	case name == "":
		name = n.uniqueIndexName(cols[0])
	case n.indexIndex(name) >= 0 || strings.EqualFold(name, "PRIMARY"):
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexAlreadyExists, name, t.name)
	}

	n.indexes = append(n.indexes, Index{
		Name:    name,
		Columns: slices.Clone(cols),
		Kind:    kind,
		Locked:  locked,
	})
	return n, nil
}

// DropIndex removes a secondary index. It fails when a foreign key would be
// left without a supporting index, unless that foreign key is named in
// droppingForeignKeys (dropped by the same statement).
func (t *Table) DropIndex(name string, droppingForeignKeys ...string) (*Table, error) {
	i := t.indexIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexNotFound, name, t.name)
	}
	n := t.clone()
	n.indexes = slices.Delete(n.indexes, i, i+1)
	if fk, ok := n.unsupportedForeignKey(droppingForeignKeys); ok {
		return nil, fmt.Errorf("%w: %s on %s (%s)", ErrIndexRequiredByForeignKey, name, t.name, fk)
	}
	return n, nil
}

// RenameIndex renames a secondary index; the new name is locked.
func (t *Table) RenameIndex(oldName, newName string) (*Table, error) {
	i := t.indexIndex(oldName)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexNotFound, oldName, t.name)
	}
	if oldName != newName && t.indexIndex(newName) >= 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexAlreadyExists, newName, t.name)
	}
	n := t.clone()
	n.indexes[i].Name = newName
	n.indexes[i].Locked = true
	return n, nil
}

// SetDefaultEncoding changes the table default. Existing textual columns keep
// their current encoding, which is pinned into their type strings.
func (t *Table) SetDefaultEncoding(enc charset.Encoding) (*Table, error) {
	n := t.clone()
	for i, col := range n.columns {
		ti, err := col.TypeInfo(t.Codec(), t.encoding)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", t.name, col.Name, err)
		}
		if _, ok := ti.(datatype.Textual); ok {
			n.columns[i] = col.WithType(datatype.FormatExplicit(ti))
		}
	}
	n.encoding = enc
	return n, nil
}

// ConvertToEncoding changes the table default and re-encodes every textual
// column. TEXT columns become MEDIUMTEXT when the new charset is wider than
// the column's old one.
func (t *Table) ConvertToEncoding(enc charset.Encoding) (*Table, error) {
	n := t.clone()
	for i, col := range n.columns {
		ti, err := col.TypeInfo(t.Codec(), t.encoding)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", t.name, col.Name, err)
		}
		tx, ok := ti.(datatype.Textual)
		if !ok {
			continue
		}
		wider, err := charset.IsWider(enc.Charset, tx.Encoding().Charset)
		if err != nil {
			return nil, fmt.Errorf("column %s.%s: %w", t.name, col.Name, err)
		}
		var converted datatype.TypeInfo = tx.WithEncoding(enc)
		if wider {
			converted = datatype.Promote(converted)
		}
		n.columns[i] = col.WithType(datatype.FormatExplicit(converted))
	}
	n.encoding = enc
	return n, nil
}

// withName renames the table. Auto-numbered foreign keys follow the new name.
func (t *Table) withName(name string) *Table {
	n := t.clone()
	oldPrefix := t.name + "_ibfk_"
	for i, fk := range n.foreignKeys {
		suffix, ok := strings.CutPrefix(fk.Name, oldPrefix)
		if !ok {
			continue
		}
		if _, err := strconv.Atoi(suffix); err == nil {
			n.foreignKeys[i].Name = name + "_ibfk_" + suffix
		}
	}
	n.name = name
	return n
}

// mapReferences rewrites the foreign key references of t.
func (t *Table) mapReferences(fn func(Reference) Reference) *Table {
	n := t.clone()
	for i, fk := range n.foreignKeys {
		n.foreignKeys[i].Reference = fn(fk.Reference)
	}
	return n
}

// Validate checks the structural invariants of the table.
func (t *Table) Validate() error {
	seen := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		if seen[c.Name] {
			return fmt.Errorf("%w: %s has duplicate column %s", ErrInvariantViolation, t.name, c.Name)
		}
		seen[c.Name] = true
	}
	check := func(what string, cols []string) error {
		for _, c := range cols {
			if !seen[c] {
				return fmt.Errorf("%w: %s %s references missing column %s.%s", ErrInvariantViolation, what, t.name, t.name, c)
			}
		}
		return nil
	}
	if err := check("primary key of", t.primaryKey); err != nil {
		return err
	}
	names := make(map[string]bool, len(t.indexes))
	for _, idx := range t.indexes {
		if names[idx.Name] {
			return fmt.Errorf("%w: %s has duplicate index %s", ErrInvariantViolation, t.name, idx.Name)
		}
		names[idx.Name] = true
		if err := check("index "+idx.Name+" of", idx.Columns); err != nil {
			return err
		}
	}
	for _, fk := range t.foreignKeys {
		if err := check("foreign key "+fk.Name+" of", fk.Columns); err != nil {
			return err
		}
		if !t.supported(fk.Columns) {
			return fmt.Errorf("%w: foreign key %s of %s has no supporting index", ErrInvariantViolation, fk.Name, t.name)
		}
	}
	return nil
}

// CreateStatement renders SHOW CREATE TABLE output. Without table options the
// ENGINE and CHARSET clauses are left out.
func (t *Table) CreateStatement(withOptions bool) (string, error) {
	codec := t.Codec()
	lines := make([]string, 0, len(t.columns)+len(t.indexes)+len(t.foreignKeys)+1)

	for _, col := range t.columns {
		def, err := col.Definition(codec, t.encoding)
		if err != nil {
			return "", fmt.Errorf("column %s.%s: %w", t.name, col.Name, err)
		}
		lines = append(lines, def)
	}
	if t.primaryKey != nil {
		lines = append(lines, "PRIMARY KEY ("+quoteIdents(t.primaryKey)+")")
	}
	for _, idx := range t.orderedIndexes() {
		lines = append(lines, idx.Definition())
	}
	fks := slices.Clone(t.foreignKeys)
	slices.SortStableFunc(fks, func(a, b ForeignKey) int { return strings.Compare(a.Name, b.Name) })
	for _, fk := range fks {
		lines = append(lines, fk.Definition())
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(quoteIdent(t.name))
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(lines, ",\n  "))
	b.WriteString("\n)")
	if withOptions {
		b.WriteString(" ENGINE=InnoDB DEFAULT CHARSET=")
		b.WriteString(t.encoding.Charset)
		if !t.version.IsDefaultCollation(t.encoding.Charset, t.encoding.Collate) {
			b.WriteString(" COLLATE=")
			b.WriteString(t.encoding.Collate)
		}
	}
	b.WriteString(";")
	return b.String(), nil
}

// orderedIndexes returns the indexes in SHOW CREATE TABLE order: unique
// indexes on a NOT NULL first column, other unique indexes, normal, fulltext.
func (t *Table) orderedIndexes() []Index {
	rank := func(idx Index) int {
		switch idx.Kind {
		case IndexUnique:
			if c, ok := t.Column(idx.Columns[0]); ok && !c.Nullable {
				return 0
			}
			return 1
		case IndexFulltext:
			return 3
		}
		return 2
	}
	out := slices.Clone(t.indexes)
	slices.SortStableFunc(out, func(a, b Index) int { return rank(a) - rank(b) })
	return out
}

func (t *Table) String() string {
	s, err := t.CreateStatement(true)
	if err != nil {
		return fmt.Sprintf("<table %s: %v>", t.name, err)
	}
	return s
}
