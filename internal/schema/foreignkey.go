package schema

import (
	"slices"
	"strings"
)

// Reference is the target side of a foreign key.
type Reference struct {
	Table   string
	Columns []string
}

// ForeignKey is a foreign key constraint. OnDelete and OnUpdate hold the
// referential action keywords ("CASCADE", "SET NULL", ...), empty when unset.
type ForeignKey struct {
	Name      string
	Columns   []string
	Reference Reference
	OnDelete  string
	OnUpdate  string
}

// Definition renders the CONSTRAINT line of SHOW CREATE TABLE.
func (fk ForeignKey) Definition() string {
	var b strings.Builder
	b.WriteString("CONSTRAINT ")
	b.WriteString(quoteIdent(fk.Name))
	b.WriteString(" FOREIGN KEY (")
	b.WriteString(quoteIdents(fk.Columns))
	b.WriteString(") REFERENCES ")
	b.WriteString(quoteIdent(fk.Reference.Table))
	b.WriteString(" (")
	b.WriteString(quoteIdents(fk.Reference.Columns))
	b.WriteString(")")
	if printsAction(fk.OnDelete) {
		b.WriteString(" ON DELETE ")
		b.WriteString(fk.OnDelete)
	}
	if printsAction(fk.OnUpdate) {
		b.WriteString(" ON UPDATE ")
		b.WriteString(fk.OnUpdate)
	}
	return b.String()
}

// RESTRICT and NO ACTION are InnoDB's default and never printed.
func printsAction(action string) bool {
	switch strings.ToUpper(action) {
	case "", "RESTRICT", "NO ACTION":
		return false
	}
	return true
}

func (fk ForeignKey) clone() ForeignKey {
	fk.Columns = slices.Clone(fk.Columns)
	fk.Reference.Columns = slices.Clone(fk.Reference.Columns)
	return fk
}
