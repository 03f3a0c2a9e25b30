package engine

import "github.com/Limetric/mysql-simulator/internal/schema"

// Position places a column; the zero value appends.
type Position = schema.Position

// Statement is one parsed top-level DDL statement. The set of implementations
// is closed: CreateTableStmt, CreateTableLikeStmt, DropTableStmt,
// RenameTableStmt, CreateIndexStmt, DropIndexStmt, AlterTableStmt,
// CreateFunctionStmt and CreateTriggerStmt.
type Statement interface {
	statementKind() string
}

// AlterChange is one clause of an ALTER TABLE statement.
type AlterChange interface {
	changeKind() string
}

// ColumnDefinition is a column as written in CREATE TABLE or ALTER TABLE.
// Nil pointers mean the clause was absent.
type ColumnDefinition struct {
	Name          string
	Type          string
	Nullable      *bool
	Default       *string
	OnUpdate      *string
	AutoIncrement bool
	PrimaryKey    bool
	Unique        bool
	Comment       *string
	Generated     *schema.Generated
}

// TableConstraint is a table-level definition inside CREATE TABLE:
// PrimaryKeyDefinition, IndexDefinition or ForeignKeyDefinition.
type TableConstraint interface {
	constraintKind() string
}

type PrimaryKeyDefinition struct {
	Columns []string
}

type IndexDefinition struct {
	Name    string
	Kind    schema.IndexKind
	Columns []string
}

// ForeignKeyDefinition carries the constraint name and, separately, the
// optional index name of FOREIGN KEY [index_name] (...).
type ForeignKeyDefinition struct {
	Name       string
	IndexName  string
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
	OnUpdate   string
}

func (PrimaryKeyDefinition) constraintKind() string { return "PRIMARY KEY" }
func (IndexDefinition) constraintKind() string      { return "INDEX" }
func (ForeignKeyDefinition) constraintKind() string { return "FOREIGN KEY" }

// TableOptions are the encoding options of CREATE TABLE.
type TableOptions struct {
	Charset string
	Collate string
}

type CreateTableStmt struct {
	Table       string
	IfNotExists bool
	Columns     []ColumnDefinition
	Constraints []TableConstraint
	Options     TableOptions
}

type CreateTableLikeStmt struct {
	Table       string
	Like        string
	IfNotExists bool
}

type DropTableStmt struct {
	Tables   []string
	IfExists bool
}

type RenamePair struct {
	From string
	To   string
}

type RenameTableStmt struct {
	Pairs []RenamePair
}

type CreateIndexStmt struct {
	Table string
	Index IndexDefinition
}

type DropIndexStmt struct {
	Table string
	Index string
}

type AlterTableStmt struct {
	Table   string
	Changes []AlterChange
}

// CreateFunctionStmt and CreateTriggerStmt are accepted and ignored.
type CreateFunctionStmt struct {
	Name string
}

type CreateTriggerStmt struct {
	Name string
}

func (CreateTableStmt) statementKind() string     { return "CREATE TABLE" }
func (CreateTableLikeStmt) statementKind() string { return "CREATE TABLE LIKE" }
func (DropTableStmt) statementKind() string       { return "DROP TABLE" }
func (RenameTableStmt) statementKind() string     { return "RENAME TABLE" }
func (CreateIndexStmt) statementKind() string     { return "CREATE INDEX" }
func (DropIndexStmt) statementKind() string       { return "DROP INDEX" }
func (AlterTableStmt) statementKind() string      { return "ALTER TABLE" }
func (CreateFunctionStmt) statementKind() string  { return "CREATE FUNCTION" }
func (CreateTriggerStmt) statementKind() string   { return "CREATE TRIGGER" }

// ALTER TABLE clauses.
type (
	RenameTable struct{ NewName string }

	AddColumn struct {
		Column   ColumnDefinition
		Position Position
	}

	// ChangeColumn covers CHANGE COLUMN and MODIFY COLUMN (OldName equal to
	// Column.Name).
	ChangeColumn struct {
		OldName  string
		Column   ColumnDefinition
		Position Position
	}

	RenameColumn struct{ OldName, NewName string }
	DropColumn   struct{ Name string }

	AddPrimaryKey  struct{ Columns []string }
	DropPrimaryKey struct{}

	AddForeignKey  struct{ ForeignKey ForeignKeyDefinition }
	DropForeignKey struct{ Name string }

	AddIndex    struct{ Index IndexDefinition }
	DropIndex   struct{ Name string }
	RenameIndex struct{ OldName, NewName string }

	SetDefault struct {
		Column  string
		Default string
	}
	DropDefault struct{ Column string }

	// ChangeTableOptions is [DEFAULT] CHARSET/COLLATE, or CONVERT TO
	// CHARACTER SET when Convert is set.
	ChangeTableOptions struct {
		Charset string
		Collate string
		Convert bool
	}
)

func (RenameTable) changeKind() string    { return "RENAME TO" }
func (AddColumn) changeKind() string      { return "ADD COLUMN" }
func (ChangeColumn) changeKind() string   { return "CHANGE COLUMN" }
func (RenameColumn) changeKind() string   { return "RENAME COLUMN" }
func (DropColumn) changeKind() string     { return "DROP COLUMN" }
func (AddPrimaryKey) changeKind() string  { return "ADD PRIMARY KEY" }
func (DropPrimaryKey) changeKind() string { return "DROP PRIMARY KEY" }
func (AddForeignKey) changeKind() string  { return "ADD FOREIGN KEY" }
func (DropForeignKey) changeKind() string { return "DROP FOREIGN KEY" }
func (AddIndex) changeKind() string       { return "ADD INDEX" }
func (DropIndex) changeKind() string      { return "DROP INDEX" }
func (RenameIndex) changeKind() string    { return "RENAME INDEX" }
func (SetDefault) changeKind() string     { return "ALTER COLUMN SET DEFAULT" }
func (DropDefault) changeKind() string    { return "ALTER COLUMN DROP DEFAULT" }

func (c ChangeTableOptions) changeKind() string {
	if c.Convert {
		return "CONVERT TO CHARACTER SET"
	}
	return "DEFAULT CHARSET"
}
