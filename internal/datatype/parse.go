package datatype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/Limetric/mysql-simulator/internal/charset"
)

// typeGrammar is the participle grammar for a column type string.
// Examples: "int(11) unsigned", "varchar(64) CHARACTER SET utf8",
// "enum('a','b') COLLATE latin1_bin", "double precision".
//
//nolint:govet // participle grammar tags are not standard struct tags
type typeGrammar struct {
	Base      string        `@Ident`
	Precision bool          `@"PRECISION"?`
	Params    []*typeParam  `( "(" ( @@ ( "," @@ )* )? ")" )?`
	Options   []*typeOption `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type typeParam struct {
	Number *string `  @Number`
	String *string `| @String`
}

//nolint:govet // participle grammar tags are not standard struct tags
type typeOption struct {
	Unsigned bool    `  @"UNSIGNED"`
	Signed   bool    `| @"SIGNED"`
	ZeroFill bool    `| @"ZEROFILL"`
	Binary   bool    `| @"BINARY"`
	Charset  *string `| ( "CHARACTER" "SET" | "CHARSET" ) @( Ident | String )`
	Collate  *string `| "COLLATE" @( Ident | String )`
}

var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'(?:[^'\\]|\\.|'')*'`},
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var typeParser = participle.MustBuild[typeGrammar](
	participle.Lexer(typeLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
)

// Integer display widths MySQL infers when none is given: signed, unsigned.
var intWidths = map[string][2]int{
	"tinyint":   {4, 3},
	"smallint":  {6, 5},
	"mediumint": {9, 8},
	"int":       {11, 10},
	"bigint":    {20, 20},
	"bit":       {1, 1},
}

var aliases = map[string]string{
	"integer": "int",
	"dec":     "decimal",
	"numeric": "decimal",
	"fixed":   "decimal",
	"real":    "double",
}

type parsed struct {
	base     string
	numbers  []int
	strings  []string
	unsigned bool
	zeroFill bool
	binary   bool
	charset  string
	collate  string
}

// Parse turns a raw type string into a TypeInfo. Textual types resolve their
// encoding against tableEnc.
func (c Codec) Parse(s string, tableEnc charset.Encoding) (TypeInfo, error) {
	p, err := tokenize(s)
	if err != nil {
		return nil, err
	}

	switch p.base {
	case "bool", "boolean":
		if len(p.numbers) == 0 {
			p.numbers = []int{1}
		}
		p.base = "tinyint"
	}

	if _, ok := intWidths[p.base]; ok {
		return parseInt(s, p)
	}

	switch p.base {
	case "decimal", "float", "double":
		return parseReal(s, p)

	case "time", "datetime", "timestamp":
		if err := maxParams(s, p, 1); err != nil {
			return nil, err
		}
		t := TemporalType{Base: p.base}
		if len(p.numbers) == 1 {
			fsp := p.numbers[0]
			t.FSP = &fsp
		}
		return t, nil

	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext":
		enc, err := c.encoding(p, tableEnc)
		if err != nil {
			return nil, err
		}
		t := TextType{Base: p.base, Charset: enc.Charset, Collate: enc.Collate}
		switch p.base {
		case "char", "varchar":
			if err := maxParams(s, p, 1); err != nil {
				return nil, err
			}
			n := 1
			if len(p.numbers) == 1 {
				n = p.numbers[0]
			} else if p.base == "varchar" {
				return nil, fmt.Errorf("%w: %q", ErrMissingLength, s)
			}
			t.Length = &n
		}
		return t, nil

	case "binary", "varbinary":
		if err := maxParams(s, p, 1); err != nil {
			return nil, err
		}
		if len(p.numbers) == 0 {
			if p.base == "varbinary" {
				return nil, fmt.Errorf("%w: %q", ErrMissingLength, s)
			}
			return BinaryType{Base: p.base, Length: 1}, nil
		}
		return BinaryType{Base: p.base, Length: p.numbers[0]}, nil

	case "enum", "set":
		if len(p.numbers) > 0 {
			return nil, fmt.Errorf("%w: %q: %s values must be quoted strings", ErrMalformedType, s, p.base)
		}
		enc, err := c.encoding(p, tableEnc)
		if err != nil {
			return nil, err
		}
		return EnumType{Base: p.base, Values: p.strings, Charset: enc.Charset, Collate: enc.Collate}, nil

	case "date", "year", "json",
		"tinyblob", "blob", "mediumblob", "longblob",
		"geometry", "point", "linestring", "polygon",
		"multipoint", "multilinestring", "multipolygon", "geometrycollection":
		return SimpleType{Base: p.base}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnrecognizedDataType, s)
}

// MustParse is Parse for static inputs; it panics on error.
func (c Codec) MustParse(s string, tableEnc charset.Encoding) TypeInfo {
	ti, err := c.Parse(s, tableEnc)
	if err != nil {
		panic(err)
	}
	return ti
}

func tokenize(s string) (*parsed, error) {
	g, err := typeParser.ParseString("", strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedType, s, err)
	}

	p := &parsed{base: strings.ToLower(g.Base)}
	if g.Precision {
		if p.base != "double" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedType, s)
		}
	}
	if a, ok := aliases[p.base]; ok {
		p.base = a
	}

	for _, prm := range g.Params {
		switch {
		case prm.Number != nil:
			n, err := strconv.Atoi(*prm.Number)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrMalformedType, s, err)
			}
			p.numbers = append(p.numbers, n)
		case prm.String != nil:
			v, err := unquote(*prm.String)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrMalformedType, s, err)
			}
			p.strings = append(p.strings, v)
		}
	}
	if len(p.numbers) > 0 && len(p.strings) > 0 {
		return nil, fmt.Errorf("%w: %q: mixed parameter kinds", ErrMalformedType, s)
	}

	for _, o := range g.Options {
		switch {
		case o.Unsigned:
			p.unsigned = true
		case o.ZeroFill:
			// ZEROFILL implies UNSIGNED.
			p.zeroFill = true
			p.unsigned = true
		case o.Binary:
			p.binary = true
		case o.Charset != nil:
			p.charset = strings.ToLower(strings.Trim(*o.Charset, "'"))
		case o.Collate != nil:
			p.collate = strings.ToLower(strings.Trim(*o.Collate, "'"))
		}
	}
	return p, nil
}

func (c Codec) encoding(p *parsed, tableEnc charset.Encoding) (charset.Encoding, error) {
	enc, err := c.Version.Resolve(p.charset, p.collate, tableEnc)
	if err != nil {
		return charset.Encoding{}, err
	}
	if p.binary && p.collate == "" {
		enc.Collate = enc.Charset + "_bin"
	}
	return enc, nil
}

func parseInt(s string, p *parsed) (TypeInfo, error) {
	if err := maxParams(s, p, 1); err != nil {
		return nil, err
	}
	widths := intWidths[p.base]
	t := IntType{Base: p.base, Unsigned: p.unsigned, ZeroFill: p.zeroFill}
	if p.base == "bit" {
		t.Unsigned, t.ZeroFill = false, false
	}
	switch {
	case len(p.numbers) == 1:
		t.Length = p.numbers[0]
	case t.Unsigned:
		t.Length = widths[1]
	default:
		t.Length = widths[0]
	}
	return t, nil
}

func parseReal(s string, p *parsed) (TypeInfo, error) {
	if err := maxParams(s, p, 2); err != nil {
		return nil, err
	}
	t := RealType{Base: p.base, Unsigned: p.unsigned, ZeroFill: p.zeroFill}
	switch {
	case len(p.numbers) == 2:
		t.Precision = &Precision{Length: p.numbers[0], Decimals: p.numbers[1]}
	case p.base == "decimal" && len(p.numbers) == 1:
		t.Precision = &Precision{Length: p.numbers[0]}
	case p.base == "decimal":
		t.Precision = &Precision{Length: 10}
	case p.base == "float" && len(p.numbers) == 1:
		// FLOAT(p) only selects between single and double precision.
		if p.numbers[0] > 24 {
			t.Base = "double"
		}
	case len(p.numbers) == 1:
		return nil, fmt.Errorf("%w: %q: %s needs (M,D)", ErrMalformedType, s, p.base)
	}
	return t, nil
}

func maxParams(s string, p *parsed, n int) error {
	if len(p.strings) > 0 || len(p.numbers) > n {
		return fmt.Errorf("%w: %q: %s takes at most %d numeric parameter(s)", ErrMalformedType, s, p.base, n)
	}
	return nil
}

// unquote strips the surrounding quotes of a SQL string literal and resolves
// doubled quotes and backslash escapes.
func unquote(lit string) (string, error) {
	if len(lit) < 2 || lit[0] != '\'' || lit[len(lit)-1] != '\'' {
		return "", fmt.Errorf("invalid string literal %s", lit)
	}
	inside := lit[1 : len(lit)-1]

	var b strings.Builder
	for i := 0; i < len(inside); i++ {
		c := inside[i]
		if c == '\\' {
			if i+1 >= len(inside) {
				return "", fmt.Errorf("invalid escape in %s", lit)
			}
			b.WriteByte(inside[i+1])
			i++
			continue
		}
		if c == '\'' && i+1 < len(inside) && inside[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}
