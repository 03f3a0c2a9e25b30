// Package charset resolves MySQL character set and collation pairs the way a
// server of a given version would.
package charset

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCharset is returned for a character set the simulator has no
	// defaults for.
	ErrUnknownCharset = errors.New("unknown charset")
	// ErrIllegalEncodingCombination is returned when a collation does not
	// belong to the character set it is paired with.
	ErrIllegalEncodingCombination = errors.New("illegal charset/collation combination")
	// ErrUnknownVersion is returned by ParseVersion.
	ErrUnknownVersion = errors.New("unknown MySQL version")
)

// Encoding is a (charset, collation) pair.
type Encoding struct {
	Charset string
	Collate string
}

func (e Encoding) String() string {
	return e.Charset + "/" + e.Collate
}

// Version selects the server defaults used during resolution.
type Version string

const (
	MySQL57 Version = "5.7"
	MySQL80 Version = "8.0"
)

type versionDefaults struct {
	encoding   Encoding
	collations map[string]string
}

var defaults = map[Version]versionDefaults{
	MySQL57: {
		encoding: Encoding{Charset: "latin1", Collate: "latin1_swedish_ci"},
		collations: map[string]string{
			"ascii":   "ascii_general_ci",
			"binary":  "binary",
			"latin1":  "latin1_swedish_ci",
			"utf8":    "utf8_general_ci",
			"utf8mb3": "utf8_general_ci",
			"utf8mb4": "utf8mb4_general_ci",
		},
	},
	MySQL80: {
		encoding: Encoding{Charset: "utf8mb4", Collate: "utf8mb4_0900_ai_ci"},
		collations: map[string]string{
			"ascii":   "ascii_general_ci",
			"binary":  "binary",
			"latin1":  "latin1_swedish_ci",
			"utf8":    "utf8_general_ci",
			"utf8mb3": "utf8_general_ci",
			"utf8mb4": "utf8mb4_0900_ai_ci",
		},
	},
}

// widths ranks charsets by bytes per character.
var widths = map[string]int{
	"ascii":   1,
	"binary":  1,
	"latin1":  1,
	"utf8":    3,
	"utf8mb3": 3,
	"utf8mb4": 4,
}

// ParseVersion accepts "5.7" or "8.0" (an optional "mysql" prefix and patch
// component are tolerated, e.g. "mysql-8.0.32").
func ParseVersion(s string) (Version, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "mysql")
	v = strings.TrimLeft(v, "-: ")
	switch {
	case v == "", v == "5.7", strings.HasPrefix(v, "5.7."):
		return MySQL57, nil
	case v == "8.0", v == "8", strings.HasPrefix(v, "8.0."):
		return MySQL80, nil
	}
	return "", fmt.Errorf("%w: %q (must be 5.7 or 8.0)", ErrUnknownVersion, s)
}

func (v Version) defaults() versionDefaults {
	if d, ok := defaults[v]; ok {
		return d
	}
	return defaults[MySQL57]
}

// DefaultEncoding is the server-wide default for new tables.
func (v Version) DefaultEncoding() Encoding {
	return v.defaults().encoding
}

// DefaultCollation returns the default collation of charset cs.
func (v Version) DefaultCollation(cs string) (string, error) {
	cs = strings.ToLower(cs)
	if c, ok := v.defaults().collations[cs]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCharset, cs)
}

// IsDefaultCollation reports whether collate is the default for cs. Unknown
// charsets never have a default.
func (v Version) IsDefaultCollation(cs, collate string) bool {
	def, err := v.DefaultCollation(cs)
	return err == nil && def == strings.ToLower(collate)
}

// Resolve derives a concrete encoding from an optional charset and collation,
// falling back to the encoding of the enclosing scope.
func (v Version) Resolve(cs, collate string, fallback Encoding) (Encoding, error) {
	cs = strings.ToLower(strings.TrimSpace(cs))
	collate = strings.ToLower(strings.TrimSpace(collate))

	switch {
	case cs == "" && collate == "":
		return fallback, nil

	case collate == "":
		// Keeps a collation override set by the outer scope.
		if cs == fallback.Charset {
			return fallback, nil
		}
		def, err := v.DefaultCollation(cs)
		if err != nil {
			return Encoding{}, err
		}
		return Encoding{Charset: cs, Collate: def}, nil

	case cs == "":
		if collate == fallback.Collate {
			return fallback, nil
		}
		return Encoding{Charset: CharsetOf(collate), Collate: collate}, nil
	}

	if !BelongsTo(collate, cs) {
		return Encoding{}, fmt.Errorf("%w: %s is not a collation of %s", ErrIllegalEncodingCombination, collate, cs)
	}
	return Encoding{Charset: cs, Collate: collate}, nil
}

// CharsetOf returns the charset family a collation name belongs to.
func CharsetOf(collate string) string {
	collate = strings.ToLower(collate)
	if i := strings.IndexByte(collate, '_'); i >= 0 {
		return collate[:i]
	}
	return collate
}

// BelongsTo reports whether collate is a collation of charset cs.
func BelongsTo(collate, cs string) bool {
	collate = strings.ToLower(collate)
	cs = strings.ToLower(cs)
	if collate == cs {
		return true
	}
	if strings.HasPrefix(collate, cs+"_") {
		return true
	}
	// utf8mb3 is an alias of utf8 whose collations keep the utf8_ prefix.
	return cs == "utf8mb3" && strings.HasPrefix(collate, "utf8_")
}

// Width returns the relative per-character width of a charset.
func Width(cs string) (int, error) {
	if w, ok := widths[strings.ToLower(cs)]; ok {
		return w, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCharset, cs)
}

// IsWider reports whether charset a stores strictly more bytes per character
// than charset b.
func IsWider(a, b string) (bool, error) {
	wa, err := Width(a)
	if err != nil {
		return false, err
	}
	wb, err := Width(b)
	if err != nil {
		return false, err
	}
	return wa > wb, nil
}
