package sqlparse

import (
	"strings"
	"unicode"
)

// Chunk is one statement of a script and the line it starts on.
type Chunk struct {
	SQL  string
	Line int
}

// Split splits a SQL script on its statement delimiter, ignoring delimiters
// inside quoted strings, quoted identifiers and comments. Plain comments are
// dropped; executable /*! ... */ comments are kept. A mysql client
// "DELIMITER xx" line changes the delimiter for the statements after it.
func Split(sql string) []Chunk {
	var (
		chunks  []Chunk
		current strings.Builder
		delim   = ";"
		start   = -1
		line    = 1
		lineAt  = 0
	)

	lineOf := func(offset int) int {
		line += strings.Count(sql[lineAt:offset], "\n")
		lineAt = offset
		return line
	}
	mark := func(i int) {
		if start < 0 {
			start = i
		}
	}
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, Chunk{SQL: s, Line: lineOf(start)})
		}
		current.Reset()
		start = -1
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			mark(i)
			end := skipQuoted(sql, i)
			current.WriteString(sql[i:end])
			i = end - 1

		case c == '#' || (c == '-' && strings.HasPrefix(sql[i:], "--") && (i+2 == len(sql) || isSpace(sql[i+2]))):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
				continue
			}
			i += end - 1

		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				end = len(sql)
			} else {
				end += i + 4
			}
			if strings.HasPrefix(sql[i:], "/*!") {
				mark(i)
				current.WriteString(sql[i:end])
			} else {
				current.WriteByte(' ')
			}
			i = end - 1

		case strings.HasPrefix(sql[i:], delim):
			flush()
			i += len(delim) - 1

		case start < 0 && hasKeyword(sql[i:], "DELIMITER"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql) - i
			}
			if f := strings.Fields(sql[i : i+end]); len(f) >= 2 {
				delim = f[1]
			}
			i += end - 1

		default:
			if !isSpace(c) {
				mark(i)
			}
			current.WriteByte(c)
		}
	}

	// Trailing statement without delimiter
	flush()
	return chunks
}

// skipQuoted returns the offset just past the quoted token starting at i.
// Doubled quotes escape the quote; backslash escapes apply to strings only.
func skipQuoted(sql string, i int) int {
	q := sql[i]
	for j := i + 1; j < len(sql); j++ {
		switch sql[j] {
		case '\\':
			if q != '`' {
				j++
			}
		case q:
			if j+1 < len(sql) && sql[j+1] == q {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(sql)
}

func hasKeyword(s, kw string) bool {
	if len(s) <= len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}
	return isSpace(s[len(kw)])
}

func isSpace(c byte) bool {
	return unicode.IsSpace(rune(c))
}
