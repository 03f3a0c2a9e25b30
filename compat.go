package main

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Limetric/mysql-simulator/internal/datatype"
	"github.com/Limetric/mysql-simulator/internal/schema"
)

// collectSchemaWarnings reports schema traits that are legal but usually
// unintended, such as tables without a primary key, columns whose charset
// differs from their table, redundant indexes, and use of the deprecated
// 3-byte utf8 charset.
func collectSchemaWarnings(db *schema.Database) []string {
	var warnings []string
	// table.column refs per deprecated charset
	utf8Refs := make(map[string][]string)

	for _, name := range db.TableNames() {
		t, _ := db.Table(name)
		tableEnc := t.DefaultEncoding()

		if len(t.PrimaryKey()) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s has no primary key", name))
		}
		if isUTF8MB3(tableEnc.Charset) {
			utf8Refs[tableEnc.Charset] = append(utf8Refs[tableEnc.Charset], name)
		}

		for _, col := range t.Columns() {
			ti, err := col.TypeInfo(t.Codec(), tableEnc)
			if err != nil {
				continue
			}
			tx, ok := ti.(datatype.Textual)
			if !ok {
				continue
			}
			enc := tx.Encoding()
			ref := fmt.Sprintf("%s.%s", name, col.Name)
			if isUTF8MB3(enc.Charset) && enc.Charset != tableEnc.Charset {
				utf8Refs[enc.Charset] = append(utf8Refs[enc.Charset], ref)
			}
			if enc.Charset != tableEnc.Charset {
				warnings = append(warnings, fmt.Sprintf(
					"%s uses charset %s while %s defaults to %s", ref, enc.Charset, name, tableEnc.Charset))
			}
		}

		warnings = append(warnings, collectIndexWarnings(t)...)
	}

	for _, cs := range sortedKeys(utf8Refs) {
		warnings = append(warnings, fmt.Sprintf(
			"%s is a deprecated alias for the 3-byte utf8mb3 charset; consider utf8mb4: %s",
			cs, strings.Join(utf8Refs[cs], ", ")))
	}
	return warnings
}

// redundantIndexReason reports whether idx is covered by another index: its
// columns are a leading prefix of a wider non-fulltext index. Unique indexes
// are never redundant since they enforce a constraint.
func redundantIndexReason(idx schema.Index, all []schema.Index) (string, bool) {
	if idx.Kind != schema.IndexNormal {
		return "", false
	}
	for _, other := range all {
		if other.Name == idx.Name || other.Kind == schema.IndexFulltext {
			continue
		}
		if len(other.Columns) > len(idx.Columns) && slices.Equal(other.Columns[:len(idx.Columns)], idx.Columns) {
			return fmt.Sprintf("columns are a prefix of %s", other.Name), true
		}
	}
	return "", false
}

func collectIndexWarnings(t *schema.Table) []string {
	var warnings []string
	indexes := t.Indexes()
	for _, idx := range indexes {
		if reason, redundant := redundantIndexReason(idx, indexes); redundant {
			warnings = append(warnings, fmt.Sprintf("%s.%s may be redundant: %s", t.Name(), idx.Name, reason))
		}
	}
	return warnings
}

func isUTF8MB3(cs string) bool {
	return cs == "utf8" || cs == "utf8mb3"
}

// sortedKeys returns the keys of a map in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
