package schema

import "slices"

// IndexKind distinguishes secondary index flavours.
type IndexKind string

const (
	IndexNormal   IndexKind = "NORMAL"
	IndexUnique   IndexKind = "UNIQUE"
	IndexFulltext IndexKind = "FULLTEXT"
)

// Index is a secondary index. Locked is set when the name was given
// explicitly; unlocked indexes were created implicitly for a foreign key and
// may be renamed or superseded later.
type Index struct {
	Name    string
	Columns []string
	Kind    IndexKind
	Locked  bool
}

// Definition renders the index line of SHOW CREATE TABLE.
func (i Index) Definition() string {
	keyword := "KEY"
	switch i.Kind {
	case IndexUnique:
		keyword = "UNIQUE KEY"
	case IndexFulltext:
		keyword = "FULLTEXT KEY"
	}
	return keyword + " " + quoteIdent(i.Name) + " (" + quoteIdents(i.Columns) + ")"
}

func (i Index) clone() Index {
	i.Columns = slices.Clone(i.Columns)
	return i
}

// supports reports whether the index can serve lookups on cols, i.e. cols is
// a prefix of the index columns.
func (i Index) supports(cols []string) bool {
	return i.Kind != IndexFulltext && hasPrefix(i.Columns, cols)
}

func hasPrefix(cols, prefix []string) bool {
	return len(prefix) > 0 && len(prefix) <= len(cols) && slices.Equal(cols[:len(prefix)], prefix)
}
