package sqlparse

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"

	"github.com/Limetric/mysql-simulator/internal/engine"
	"github.com/Limetric/mysql-simulator/internal/schema"
)

const restoreFlags = format.DefaultRestoreFlags | format.RestoreStringEscapeBackslash | format.RestoreStringWithoutDefaultCharset

type restorer interface {
	Restore(ctx *format.RestoreCtx) error
}

// restore renders an AST fragment back to SQL text.
func restore(n restorer) (string, error) {
	var b strings.Builder
	if err := n.Restore(format.NewRestoreCtx(restoreFlags, &b)); err != nil {
		return "", fmt.Errorf("restore %T: %w", n, err)
	}
	return b.String(), nil
}

// unquote undoes the string escaping applied by restore.
func unquote(lit string) string {
	if len(lit) < 2 || lit[0] != '\'' || lit[len(lit)-1] != '\'' {
		return lit
	}
	inside := lit[1 : len(lit)-1]
	var b strings.Builder
	for i := 0; i < len(inside); i++ {
		c := inside[i]
		if (c == '\\' || c == '\'') && i+1 < len(inside) && inside[i+1] == c {
			i++
		}
		b.WriteByte(c)
	}
	return b.String()
}

func createTable(n *ast.CreateTableStmt) (engine.Statement, error) {
	if n.ReferTable != nil {
		return engine.CreateTableLikeStmt{
			Table:       n.Table.Name.O,
			Like:        n.ReferTable.Name.O,
			IfNotExists: n.IfNotExists,
		}, nil
	}
	if n.Select != nil {
		return nil, fmt.Errorf("%w: CREATE TABLE ... SELECT", ErrUnsupportedClause)
	}

	st := engine.CreateTableStmt{Table: n.Table.Name.O, IfNotExists: n.IfNotExists}
	for _, def := range n.Cols {
		col, err := column(def)
		if err != nil {
			return nil, err
		}
		st.Columns = append(st.Columns, col)
	}
	for _, c := range n.Constraints {
		tc, ok, err := tableConstraint(c)
		if err != nil {
			return nil, err
		}
		if ok {
			st.Constraints = append(st.Constraints, tc)
		}
	}
	for _, opt := range n.Options {
		switch opt.Tp {
		case ast.TableOptionCharset:
			st.Options.Charset = opt.StrValue
		case ast.TableOptionCollate:
			st.Options.Collate = opt.StrValue
		}
	}
	return st, nil
}

func column(def *ast.ColumnDef) (engine.ColumnDefinition, error) {
	col := engine.ColumnDefinition{Name: def.Name.Name.O}
	if def.Tp == nil {
		return col, fmt.Errorf("%w: column %s has no type", ErrUnsupportedClause, col.Name)
	}
	typ, err := restore(def.Tp)
	if err != nil {
		return col, err
	}
	col.Type = typ

	for _, opt := range def.Options {
		switch opt.Tp {
		case ast.ColumnOptionNotNull:
			col.Nullable = boolPtr(false)
		case ast.ColumnOptionNull:
			col.Nullable = boolPtr(true)
		case ast.ColumnOptionPrimaryKey:
			col.PrimaryKey = true
		case ast.ColumnOptionUniqKey:
			col.Unique = true
		case ast.ColumnOptionAutoIncrement:
			col.AutoIncrement = true
		case ast.ColumnOptionCollate:
			col.Type += " COLLATE " + opt.StrValue
		case ast.ColumnOptionDefaultValue:
			s, err := restore(opt.Expr)
			if err != nil {
				return col, err
			}
			col.Default = &s
		case ast.ColumnOptionOnUpdate:
			s, err := restore(opt.Expr)
			if err != nil {
				return col, err
			}
			col.OnUpdate = &s
		case ast.ColumnOptionComment:
			s, err := restore(opt.Expr)
			if err != nil {
				return col, err
			}
			s = unquote(s)
			col.Comment = &s
		case ast.ColumnOptionGenerated:
			s, err := restore(opt.Expr)
			if err != nil {
				return col, err
			}
			mode := schema.Virtual
			if opt.Stored {
				mode = schema.Stored
			}
			col.Generated = &schema.Generated{Expr: s, Mode: mode}
		}
	}
	return col, nil
}

func keyColumns(parts []*ast.IndexPartSpecification) ([]string, error) {
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Column == nil {
			return nil, fmt.Errorf("%w: functional key part", ErrUnsupportedClause)
		}
		cols = append(cols, p.Column.Name.O)
	}
	return cols, nil
}

// tableConstraint maps a table-level constraint. CHECK constraints and other
// kinds the simulator ignores report ok == false.
func tableConstraint(c *ast.Constraint) (engine.TableConstraint, bool, error) {
	var kind schema.IndexKind
	switch c.Tp {
	case ast.ConstraintPrimaryKey:
		cols, err := keyColumns(c.Keys)
		if err != nil {
			return nil, false, err
		}
		return engine.PrimaryKeyDefinition{Columns: cols}, true, nil
	case ast.ConstraintForeignKey:
		fk, err := foreignKey(c)
		if err != nil {
			return nil, false, err
		}
		return fk, true, nil
	case ast.ConstraintKey, ast.ConstraintIndex:
		kind = schema.IndexNormal
	case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
		kind = schema.IndexUnique
	case ast.ConstraintFulltext:
		kind = schema.IndexFulltext
	default:
		return nil, false, nil
	}

	cols, err := keyColumns(c.Keys)
	if err != nil {
		return nil, false, err
	}
	return engine.IndexDefinition{Name: c.Name, Kind: kind, Columns: cols}, true, nil
}

func foreignKey(c *ast.Constraint) (engine.ForeignKeyDefinition, error) {
	cols, err := keyColumns(c.Keys)
	if err != nil {
		return engine.ForeignKeyDefinition{}, err
	}
	if c.Refer == nil || c.Refer.Table == nil {
		return engine.ForeignKeyDefinition{}, fmt.Errorf("%w: foreign key without REFERENCES", ErrUnsupportedClause)
	}
	refCols, err := keyColumns(c.Refer.IndexPartSpecifications)
	if err != nil {
		return engine.ForeignKeyDefinition{}, err
	}
	fk := engine.ForeignKeyDefinition{
		Name:       c.Name,
		Columns:    cols,
		RefTable:   c.Refer.Table.Name.O,
		RefColumns: refCols,
	}
	if c.Refer.OnDelete != nil {
		fk.OnDelete = c.Refer.OnDelete.ReferOpt.String()
	}
	if c.Refer.OnUpdate != nil {
		fk.OnUpdate = c.Refer.OnUpdate.ReferOpt.String()
	}
	return fk, nil
}

func indexKeyKind(t ast.IndexKeyType) (schema.IndexKind, error) {
	switch t {
	case ast.IndexKeyTypeNone:
		return schema.IndexNormal, nil
	case ast.IndexKeyTypeUnique:
		return schema.IndexUnique, nil
	case ast.IndexKeyTypeFulltext:
		return schema.IndexFulltext, nil
	}
	return "", fmt.Errorf("%w: index type %v", ErrUnsupportedClause, t)
}

func position(p *ast.ColumnPosition) engine.Position {
	if p == nil {
		return engine.Position{}
	}
	switch p.Tp {
	case ast.ColumnPositionFirst:
		return engine.Position{First: true}
	case ast.ColumnPositionAfter:
		return engine.Position{After: p.RelativeColumn.Name.O}
	}
	return engine.Position{}
}

func alterTable(n *ast.AlterTableStmt) (engine.Statement, error) {
	st := engine.AlterTableStmt{Table: n.Table.Name.O}
	for _, spec := range n.Specs {
		changes, err := alterSpec(spec)
		if err != nil {
			return nil, err
		}
		st.Changes = append(st.Changes, changes...)
	}
	return st, nil
}

func alterSpec(spec *ast.AlterTableSpec) ([]engine.AlterChange, error) {
	switch spec.Tp {
	case ast.AlterTableAddColumns:
		var out []engine.AlterChange
		for _, def := range spec.NewColumns {
			col, err := column(def)
			if err != nil {
				return nil, err
			}
			out = append(out, engine.AddColumn{Column: col, Position: position(spec.Position)})
		}
		for _, c := range spec.NewConstraints {
			ch, ok, err := addConstraint(c)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, ch)
			}
		}
		return out, nil

	case ast.AlterTableAddConstraint:
		ch, ok, err := addConstraint(spec.Constraint)
		if err != nil || !ok {
			return nil, err
		}
		return []engine.AlterChange{ch}, nil

	case ast.AlterTableModifyColumn, ast.AlterTableChangeColumn:
		if len(spec.NewColumns) != 1 {
			return nil, fmt.Errorf("%w: column change without a definition", ErrUnsupportedClause)
		}
		col, err := column(spec.NewColumns[0])
		if err != nil {
			return nil, err
		}
		oldName := col.Name
		if spec.Tp == ast.AlterTableChangeColumn {
			oldName = spec.OldColumnName.Name.O
		}
		return []engine.AlterChange{engine.ChangeColumn{OldName: oldName, Column: col, Position: position(spec.Position)}}, nil

	case ast.AlterTableRenameColumn:
		return []engine.AlterChange{engine.RenameColumn{
			OldName: spec.OldColumnName.Name.O,
			NewName: spec.NewColumnName.Name.O,
		}}, nil

	case ast.AlterTableDropColumn:
		return []engine.AlterChange{engine.DropColumn{Name: spec.OldColumnName.Name.O}}, nil

	case ast.AlterTableDropPrimaryKey:
		return []engine.AlterChange{engine.DropPrimaryKey{}}, nil

	case ast.AlterTableDropIndex:
		return []engine.AlterChange{engine.DropIndex{Name: spec.Name}}, nil

	case ast.AlterTableDropForeignKey:
		return []engine.AlterChange{engine.DropForeignKey{Name: spec.Name}}, nil

	case ast.AlterTableRenameIndex:
		return []engine.AlterChange{engine.RenameIndex{OldName: spec.FromKey.O, NewName: spec.ToKey.O}}, nil

	case ast.AlterTableRenameTable:
		return []engine.AlterChange{engine.RenameTable{NewName: spec.NewTable.Name.O}}, nil

	case ast.AlterTableAlterColumn:
		if len(spec.NewColumns) != 1 {
			return nil, fmt.Errorf("%w: ALTER COLUMN without a column", ErrUnsupportedClause)
		}
		def := spec.NewColumns[0]
		if len(def.Options) == 0 {
			return []engine.AlterChange{engine.DropDefault{Column: def.Name.Name.O}}, nil
		}
		s, err := restore(def.Options[0].Expr)
		if err != nil {
			return nil, err
		}
		return []engine.AlterChange{engine.SetDefault{Column: def.Name.Name.O, Default: s}}, nil

	case ast.AlterTableOption:
		var ch engine.ChangeTableOptions
		for _, opt := range spec.Options {
			switch opt.Tp {
			case ast.TableOptionCharset:
				ch.Charset = opt.StrValue
				ch.Convert = ch.Convert || opt.UintValue == ast.TableOptionCharsetWithConvertTo
			case ast.TableOptionCollate:
				ch.Collate = opt.StrValue
			}
		}
		if ch.Charset == "" && ch.Collate == "" {
			return nil, nil
		}
		return []engine.AlterChange{ch}, nil

	case ast.AlterTableLock, ast.AlterTableAlgorithm, ast.AlterTableForce:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: ALTER TABLE clause %d", ErrUnsupportedClause, spec.Tp)
}

func addConstraint(c *ast.Constraint) (engine.AlterChange, bool, error) {
	tc, ok, err := tableConstraint(c)
	if err != nil || !ok {
		return nil, false, err
	}
	switch tc := tc.(type) {
	case engine.PrimaryKeyDefinition:
		return engine.AddPrimaryKey{Columns: tc.Columns}, true, nil
	case engine.IndexDefinition:
		return engine.AddIndex{Index: tc}, true, nil
	case engine.ForeignKeyDefinition:
		return engine.AddForeignKey{ForeignKey: tc}, true, nil
	}
	return nil, false, nil
}

func boolPtr(b bool) *bool { return &b }
