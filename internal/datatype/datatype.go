// Package datatype models MySQL column types: it parses raw type strings into
// structured TypeInfo values and formats them back the way SHOW CREATE TABLE
// prints them.
package datatype

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/charset"
)

var (
	// ErrUnrecognizedDataType is returned for an unknown base type keyword.
	ErrUnrecognizedDataType = errors.New("unrecognized data type")
	// ErrMissingLength is returned for VARCHAR/VARBINARY without a length.
	ErrMissingLength = errors.New("missing required length")
	// ErrMalformedType is returned when a type string cannot be tokenized or
	// its parameter list does not fit the base type.
	ErrMalformedType = errors.New("malformed data type")
)

// TypeInfo is one of IntType, RealType, TemporalType, TextType, BinaryType,
// EnumType or SimpleType.
type TypeInfo interface {
	BaseType() string
	isTypeInfo()
}

// Textual is implemented by the types that carry an encoding.
type Textual interface {
	TypeInfo
	Encoding() charset.Encoding
	WithEncoding(enc charset.Encoding) Textual
}

// IntType covers tinyint, smallint, mediumint, int, bigint and bit.
type IntType struct {
	Base     string
	Length   int
	Unsigned bool
	ZeroFill bool
}

// Precision is the (M,D) pair of a fixed or floating point type.
type Precision struct {
	Length   int
	Decimals int
}

// RealType covers decimal, float and double.
type RealType struct {
	Base      string
	Precision *Precision
	Unsigned  bool
	ZeroFill  bool
}

// TemporalType covers the types with fractional seconds precision.
type TemporalType struct {
	Base string
	FSP  *int
}

// TextType covers char, varchar and the text family.
type TextType struct {
	Base    string
	Length  *int
	Charset string
	Collate string
}

// BinaryType covers binary and varbinary.
type BinaryType struct {
	Base   string
	Length int
}

// EnumType covers enum and set.
type EnumType struct {
	Base    string
	Values  []string
	Charset string
	Collate string
}

// SimpleType covers parameterless types: date, year, json, the blob family
// and spatial types.
type SimpleType struct {
	Base string
}

func (t IntType) BaseType() string      { return t.Base }
func (t RealType) BaseType() string     { return t.Base }
func (t TemporalType) BaseType() string { return t.Base }
func (t TextType) BaseType() string     { return t.Base }
func (t BinaryType) BaseType() string   { return t.Base }
func (t EnumType) BaseType() string     { return t.Base }
func (t SimpleType) BaseType() string   { return t.Base }

func (IntType) isTypeInfo()      {}
func (RealType) isTypeInfo()     {}
func (TemporalType) isTypeInfo() {}
func (TextType) isTypeInfo()     {}
func (BinaryType) isTypeInfo()   {}
func (EnumType) isTypeInfo()     {}
func (SimpleType) isTypeInfo()   {}

func (t TextType) Encoding() charset.Encoding {
	return charset.Encoding{Charset: t.Charset, Collate: t.Collate}
}

func (t TextType) WithEncoding(enc charset.Encoding) Textual {
	t.Charset, t.Collate = enc.Charset, enc.Collate
	return t
}

func (t EnumType) Encoding() charset.Encoding {
	return charset.Encoding{Charset: t.Charset, Collate: t.Collate}
}

func (t EnumType) WithEncoding(enc charset.Encoding) Textual {
	t.Values = append([]string(nil), t.Values...)
	t.Charset, t.Collate = enc.Charset, enc.Collate
	return t
}

// IsTextOrBlob reports whether base is one of the TEXT or BLOB types, for
// which MySQL never prints DEFAULT NULL.
func IsTextOrBlob(base string) bool {
	switch base {
	case "tinytext", "text", "mediumtext", "longtext",
		"tinyblob", "blob", "mediumblob", "longblob":
		return true
	}
	return false
}

// Codec parses and formats type strings for one server version.
type Codec struct {
	Version charset.Version
}

// Format renders ti as SHOW CREATE TABLE would inside a table whose default
// encoding is tableEnc. CHARACTER SET is printed whenever the column's
// encoding differs from the table's; COLLATE when the collation is not the
// charset default, or when only the collation differs from the table's.
func (c Codec) Format(ti TypeInfo, tableEnc charset.Encoding) string {
	var b strings.Builder
	writeBase(&b, ti)
	if tx, ok := ti.(Textual); ok {
		enc := tx.Encoding()
		differs := enc != tableEnc
		if differs {
			b.WriteString(" CHARACTER SET ")
			b.WriteString(enc.Charset)
		}
		if !c.Version.IsDefaultCollation(enc.Charset, enc.Collate) ||
			(differs && enc.Charset == tableEnc.Charset) {
			b.WriteString(" COLLATE ")
			b.WriteString(enc.Collate)
		}
	}
	return b.String()
}

// FormatExplicit renders ti with its encoding spelled out in full, so the
// result no longer depends on the enclosing table's default.
func FormatExplicit(ti TypeInfo) string {
	var b strings.Builder
	writeBase(&b, ti)
	if tx, ok := ti.(Textual); ok {
		enc := tx.Encoding()
		fmt.Fprintf(&b, " CHARACTER SET %s COLLATE %s", enc.Charset, enc.Collate)
	}
	return b.String()
}

func writeBase(b *strings.Builder, ti TypeInfo) {
	switch t := ti.(type) {
	case IntType:
		fmt.Fprintf(b, "%s(%d)", t.Base, t.Length)
		if t.Unsigned {
			b.WriteString(" unsigned")
		}
		if t.ZeroFill {
			b.WriteString(" zerofill")
		}
	case RealType:
		b.WriteString(t.Base)
		if t.Precision != nil {
			fmt.Fprintf(b, "(%d,%d)", t.Precision.Length, t.Precision.Decimals)
		}
		if t.Unsigned {
			b.WriteString(" unsigned")
		}
		if t.ZeroFill {
			b.WriteString(" zerofill")
		}
	case TemporalType:
		b.WriteString(t.Base)
		if t.FSP != nil && *t.FSP > 0 {
			fmt.Fprintf(b, "(%d)", *t.FSP)
		}
	case TextType:
		b.WriteString(t.Base)
		if t.Length != nil {
			fmt.Fprintf(b, "(%d)", *t.Length)
		}
	case BinaryType:
		fmt.Fprintf(b, "%s(%d)", t.Base, t.Length)
	case EnumType:
		b.WriteString(t.Base)
		b.WriteByte('(')
		for i, v := range t.Values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(QuoteString(v))
		}
		b.WriteByte(')')
	case SimpleType:
		b.WriteString(t.Base)
	}
}

// QuoteString renders s as a single-quoted SQL string literal the way MySQL
// prints enum values and comments.
func QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return "'" + s + "'"
}

// Promote returns the next-larger TEXT type for promotion on re-encoding.
// Non-TEXT types are returned unchanged.
func Promote(ti TypeInfo) TypeInfo {
	if t, ok := ti.(TextType); ok && t.Base == "text" {
		t.Base = "mediumtext"
		return t
	}
	return ti
}

// Scale returns the number of decimals of a fixed-point type, if known.
func Scale(ti TypeInfo) (int, bool) {
	if t, ok := ti.(RealType); ok && t.Precision != nil {
		return t.Precision.Decimals, true
	}
	return 0, false
}
