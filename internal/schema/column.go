package schema

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/charset"
	"github.com/Limetric/mysql-simulator/internal/datatype"
)

// GeneratedMode is the storage mode of a generated column.
type GeneratedMode string

const (
	Stored  GeneratedMode = "STORED"
	Virtual GeneratedMode = "VIRTUAL"
)

// Generated holds a generated column's expression. Expr is echoed verbatim.
type Generated struct {
	Expr string
	Mode GeneratedMode
}

// Column is an immutable column definition. Type is the raw type string as
// written in the statement; it is parsed against the owning table's default
// encoding whenever structured type information is needed. Default and
// OnUpdate hold SQL expression text (string literals keep their quotes);
// Comment holds the unquoted comment text.
type Column struct {
	Name          string
	Type          string
	Nullable      bool
	Default       *string
	OnUpdate      *string
	AutoIncrement bool
	Comment       *string
	Generated     *Generated
}

// WithName returns a copy of c renamed to name.
func (c Column) WithName(name string) Column {
	c.Name = name
	return c
}

// WithType returns a copy of c with a new raw type.
func (c Column) WithType(typ string) Column {
	c.Type = typ
	return c
}

// WithNullable returns a copy of c with the given nullability. A NULL default
// is dropped from a column that becomes NOT NULL.
func (c Column) WithNullable(nullable bool) Column {
	c.Nullable = nullable
	if !nullable && c.Default != nil && strings.EqualFold(*c.Default, "NULL") {
		c.Default = nil
	}
	return c
}

// WithDefault returns a copy of c with the given default expression; nil
// removes the default.
func (c Column) WithDefault(def *string) Column {
	if def != nil {
		v := *def
		def = &v
	}
	c.Default = def
	return c
}

// TypeInfo parses the column's type within a table whose default encoding is
// tableEnc.
func (c Column) TypeInfo(codec datatype.Codec, tableEnc charset.Encoding) (datatype.TypeInfo, error) {
	return codec.Parse(c.Type, tableEnc)
}

// Definition renders the column clause of SHOW CREATE TABLE, starting with the
// quoted column name.
func (c Column) Definition(codec datatype.Codec, tableEnc charset.Encoding) (string, error) {
	ti, err := c.TypeInfo(codec, tableEnc)
	if err != nil {
		return "", err
	}

	parts := []string{quoteIdent(c.Name), codec.Format(ti, tableEnc)}

	if c.Generated != nil {
		parts = append(parts, "GENERATED ALWAYS AS ("+c.Generated.Expr+") "+string(c.Generated.Mode))
	}

	switch {
	case !c.Nullable:
		parts = append(parts, "NOT NULL")
	case isBareTimestamp(ti):
		parts = append(parts, "NULL")
	}

	if def, ok := c.defaultClause(ti); ok {
		parts = append(parts, "DEFAULT "+def)
	}
	if c.OnUpdate != nil {
		parts = append(parts, "ON UPDATE "+normalizeTimestampFunc(*c.OnUpdate))
	}
	if c.AutoIncrement {
		parts = append(parts, "AUTO_INCREMENT")
	}
	if c.Comment != nil {
		parts = append(parts, "COMMENT "+datatype.QuoteString(*c.Comment))
	}
	return strings.Join(parts, " "), nil
}

var numericLiteral = regexp.MustCompile(`^[-+]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][-+]?[0-9]+)?$`)

func (c Column) defaultClause(ti datatype.TypeInfo) (string, bool) {
	if c.Generated != nil {
		return "", false
	}

	if c.Default == nil || strings.EqualFold(*c.Default, "NULL") {
		if !c.Nullable || c.AutoIncrement || suppressesDefaultNull(ti) {
			return "", false
		}
		return "NULL", true
	}

	def := strings.TrimSpace(*c.Default)

	if it, ok := ti.(datatype.IntType); ok {
		word := strings.ToUpper(def)
		if it.Base == "tinyint" && it.Length == 1 {
			word = strings.ToUpper(strings.Trim(def, "'"))
		}
		switch word {
		case "TRUE":
			return "'1'", true
		case "FALSE":
			return "'0'", true
		}
	}

	if rt, ok := ti.(datatype.RealType); ok && rt.Base == "decimal" {
		if lit := strings.Trim(def, "'"); numericLiteral.MatchString(lit) {
			scale, known := datatype.Scale(ti)
			if !known {
				scale = 2
			}
			if r, ok := new(big.Rat).SetString(lit); ok {
				return "'" + r.FloatString(scale) + "'", true
			}
		}
	}

	if numericLiteral.MatchString(def) {
		return "'" + strings.TrimPrefix(def, "+") + "'", true
	}
	return normalizeTimestampFunc(def), true
}

// suppressesDefaultNull reports types for which MySQL never prints DEFAULT NULL.
func suppressesDefaultNull(ti datatype.TypeInfo) bool {
	base := ti.BaseType()
	return datatype.IsTextOrBlob(base) || base == "json"
}

func isBareTimestamp(ti datatype.TypeInfo) bool {
	t, ok := ti.(datatype.TemporalType)
	return ok && t.Base == "timestamp" && (t.FSP == nil || *t.FSP == 0)
}

var timestampFunc = regexp.MustCompile(`(?i)^(?:current_timestamp|now|localtime|localtimestamp)(?:\s*\(\s*([0-9]*)\s*\))?$`)

// normalizeTimestampFunc spells the CURRENT_TIMESTAMP synonyms the way MySQL
// prints them. Other expressions are returned unchanged.
func normalizeTimestampFunc(expr string) string {
	m := timestampFunc.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return expr
	}
	if m[1] != "" && m[1] != "0" {
		return "CURRENT_TIMESTAMP(" + m[1] + ")"
	}
	return "CURRENT_TIMESTAMP"
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ",")
}
