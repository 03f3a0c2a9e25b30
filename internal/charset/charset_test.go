package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	latin1 := Encoding{Charset: "latin1", Collate: "latin1_swedish_ci"}
	unicode := Encoding{Charset: "utf8mb4", Collate: "utf8mb4_unicode_ci"}

	tests := []struct {
		name     string
		version  Version
		charset  string
		collate  string
		fallback Encoding
		want     Encoding
	}{
		{"both omitted", MySQL57, "", "", latin1, latin1},
		{"same charset keeps fallback collation", MySQL57, "utf8mb4", "", unicode, unicode},
		{"other charset uses 5.7 default", MySQL57, "utf8mb4", "", latin1, Encoding{"utf8mb4", "utf8mb4_general_ci"}},
		{"other charset uses 8.0 default", MySQL80, "utf8mb4", "", latin1, Encoding{"utf8mb4", "utf8mb4_0900_ai_ci"}},
		{"collate only derives charset", MySQL57, "", "utf8mb4_bin", latin1, Encoding{"utf8mb4", "utf8mb4_bin"}},
		{"collate equal to fallback", MySQL57, "", "utf8mb4_unicode_ci", unicode, unicode},
		{"both given", MySQL57, "utf8", "utf8_bin", latin1, Encoding{"utf8", "utf8_bin"}},
		{"case is normalized", MySQL57, "UTF8MB4", "UTF8MB4_BIN", latin1, Encoding{"utf8mb4", "utf8mb4_bin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.version.Resolve(tt.charset, tt.collate, tt.fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	fallback := MySQL57.DefaultEncoding()

	_, err := MySQL57.Resolve("utf8", "utf8mb4_bin", fallback)
	assert.ErrorIs(t, err, ErrIllegalEncodingCombination)

	_, err = MySQL57.Resolve("latin1", "utf8_general_ci", fallback)
	assert.ErrorIs(t, err, ErrIllegalEncodingCombination)

	_, err = MySQL57.Resolve("klingon", "", fallback)
	assert.ErrorIs(t, err, ErrUnknownCharset)
}

func TestResolve_Idempotent(t *testing.T) {
	fallback := Encoding{Charset: "utf8mb4", Collate: "utf8mb4_unicode_ci"}
	inputs := [][2]string{
		{"", ""},
		{"utf8mb4", ""},
		{"latin1", ""},
		{"", "utf8_bin"},
		{"utf8", "utf8_unicode_ci"},
	}
	for _, v := range []Version{MySQL57, MySQL80} {
		for _, in := range inputs {
			first, err := v.Resolve(in[0], in[1], fallback)
			require.NoError(t, err)
			second, err := v.Resolve(first.Charset, first.Collate, fallback)
			require.NoError(t, err)
			assert.Equal(t, first, second, "version %s input %v", v, in)
		}
	}
}

func TestWidth(t *testing.T) {
	wider, err := IsWider("utf8mb4", "utf8")
	require.NoError(t, err)
	assert.True(t, wider)

	wider, err = IsWider("utf8", "utf8mb3")
	require.NoError(t, err)
	assert.False(t, wider)

	wider, err = IsWider("latin1", "utf8")
	require.NoError(t, err)
	assert.False(t, wider)

	_, err = Width("ebcdic")
	assert.ErrorIs(t, err, ErrUnknownCharset)
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]Version{
		"":             MySQL57,
		"5.7":          MySQL57,
		"5.7.44":       MySQL57,
		"8.0":          MySQL80,
		"mysql-8.0.32": MySQL80,
	} {
		got, err := ParseVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseVersion("9.1")
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestDefaultCollation(t *testing.T) {
	assert.True(t, MySQL80.IsDefaultCollation("utf8mb4", "utf8mb4_0900_ai_ci"))
	assert.False(t, MySQL57.IsDefaultCollation("utf8mb4", "utf8mb4_0900_ai_ci"))
	assert.False(t, MySQL57.IsDefaultCollation("nope", "nope_ci"))
}
