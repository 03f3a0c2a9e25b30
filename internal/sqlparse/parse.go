// Package sqlparse turns MySQL DDL scripts into engine statements. Statement
// syntax is handled by the TiDB parser; this package splits scripts, maps the
// TiDB AST onto the engine's statement types and recognizes the statements
// that TiDB does not model (stored routines and triggers).
package sqlparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"

	// Value expressions of the parsed AST.
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/Limetric/mysql-simulator/internal/engine"
)

var (
	// ErrUnsupportedStatement is returned for statements that change the schema
	// in ways the simulator does not model, and for DML when it is not ignored.
	ErrUnsupportedStatement = errors.New("unsupported statement")
	// ErrUnsupportedClause is returned for clauses of otherwise supported
	// statements that the simulator does not model.
	ErrUnsupportedClause = errors.New("unsupported clause")
)

// Error locates a parse failure within a script.
type Error struct {
	Line int
	SQL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Statement is an engine statement with its position in the script.
type Statement struct {
	engine.Statement
	Line int
	SQL  string
}

// Script is the parsed form of one SQL file.
type Script []Statement

// Statements returns the bare engine statements.
func (s Script) Statements() []engine.Statement {
	out := make([]engine.Statement, len(s))
	for i, st := range s {
		out[i] = st.Statement
	}
	return out
}

// Parser converts SQL text. It is not safe for concurrent use.
type Parser struct {
	// IgnoreDML skips data and session statements (INSERT, SET, USE, ...)
	// instead of rejecting them.
	IgnoreDML bool

	tidb *parser.Parser
}

// New returns a Parser.
func New(ignoreDML bool) *Parser {
	return &Parser{IgnoreDML: ignoreDML, tidb: parser.New()}
}

// Parse splits sql and converts every statement.
func (p *Parser) Parse(sql string) (Script, error) {
	var out Script
	for _, chunk := range Split(sql) {
		stmts, err := p.parseChunk(chunk.SQL)
		if err != nil {
			return nil, &Error{Line: chunk.Line, SQL: chunk.SQL, Err: err}
		}
		for _, st := range stmts {
			out = append(out, Statement{Statement: st, Line: chunk.Line, SQL: chunk.SQL})
		}
	}
	return out, nil
}

var (
	createRoutine = regexp.MustCompile(`(?is)^CREATE\s+(?:OR\s+REPLACE\s+)?(?:DEFINER\s*=\s*\S+\s+)?(?:SQL\s+SECURITY\s+\w+\s+)?(FUNCTION|PROCEDURE|TRIGGER|EVENT)\s+(?:IF\s+NOT\s+EXISTS\s+)?([^\s(]+)`)
	dropRoutine   = regexp.MustCompile(`(?is)^DROP\s+(?:FUNCTION|PROCEDURE|TRIGGER|EVENT)\b`)
)

func (p *Parser) parseChunk(sql string) ([]engine.Statement, error) {
	if m := createRoutine.FindStringSubmatch(sql); m != nil {
		name := strings.Trim(m[2], "`")
		if strings.EqualFold(m[1], "TRIGGER") {
			return []engine.Statement{engine.CreateTriggerStmt{Name: name}}, nil
		}
		return []engine.Statement{engine.CreateFunctionStmt{Name: name}}, nil
	}
	if dropRoutine.MatchString(sql) {
		return nil, nil
	}

	nodes, _, err := p.tidb.Parse(sql, "", "")
	if err != nil {
		return nil, err
	}

	var out []engine.Statement
	for _, node := range nodes {
		stmts, err := p.convert(node)
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
	}
	return out, nil
}

func (p *Parser) convert(node ast.StmtNode) ([]engine.Statement, error) {
	switch n := node.(type) {
	case *ast.CreateTableStmt:
		st, err := createTable(n)
		if err != nil {
			return nil, err
		}
		return []engine.Statement{st}, nil

	case *ast.AlterTableStmt:
		st, err := alterTable(n)
		if err != nil {
			return nil, err
		}
		return []engine.Statement{st}, nil

	case *ast.DropTableStmt:
		if n.IsView {
			return nil, fmt.Errorf("%w: DROP VIEW", ErrUnsupportedStatement)
		}
		st := engine.DropTableStmt{IfExists: n.IfExists}
		for _, t := range n.Tables {
			st.Tables = append(st.Tables, t.Name.O)
		}
		return []engine.Statement{st}, nil

	case *ast.RenameTableStmt:
		var st engine.RenameTableStmt
		for _, tt := range n.TableToTables {
			st.Pairs = append(st.Pairs, engine.RenamePair{From: tt.OldTable.Name.O, To: tt.NewTable.Name.O})
		}
		return []engine.Statement{st}, nil

	case *ast.CreateIndexStmt:
		kind, err := indexKeyKind(n.KeyType)
		if err != nil {
			return nil, err
		}
		cols, err := keyColumns(n.IndexPartSpecifications)
		if err != nil {
			return nil, err
		}
		return []engine.Statement{engine.CreateIndexStmt{
			Table: n.Table.Name.O,
			Index: engine.IndexDefinition{Name: n.IndexName, Kind: kind, Columns: cols},
		}}, nil

	case *ast.DropIndexStmt:
		return []engine.Statement{engine.DropIndexStmt{Table: n.Table.Name.O, Index: n.IndexName}}, nil

	case ast.DMLNode, *ast.SetStmt, *ast.UseStmt, *ast.BeginStmt, *ast.CommitStmt, *ast.RollbackStmt,
		*ast.LockTablesStmt, *ast.UnlockTablesStmt, *ast.TruncateTableStmt,
		*ast.CreateDatabaseStmt, *ast.DropDatabaseStmt, *ast.AlterDatabaseStmt:
		if p.IgnoreDML {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %T (enable ignore_dml to skip it)", ErrUnsupportedStatement, node)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedStatement, node)
}
