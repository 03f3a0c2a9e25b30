package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []Chunk
	}{
		{
			name: "simple",
			sql:  "CREATE TABLE a (x int);\nCREATE TABLE b (y int);",
			want: []Chunk{
				{SQL: "CREATE TABLE a (x int)", Line: 1},
				{SQL: "CREATE TABLE b (y int)", Line: 2},
			},
		},
		{
			name: "trailing statement without delimiter",
			sql:  "DROP TABLE a;\n\n  DROP TABLE b\n",
			want: []Chunk{
				{SQL: "DROP TABLE a", Line: 1},
				{SQL: "DROP TABLE b", Line: 3},
			},
		},
		{
			name: "delimiters inside quotes",
			sql:  "INSERT INTO t VALUES ('a;b', \"c;d\", `e;f`);",
			want: []Chunk{{SQL: "INSERT INTO t VALUES ('a;b', \"c;d\", `e;f`)", Line: 1}},
		},
		{
			name: "escaped quotes",
			sql:  `SELECT 'it''s;', 'a\';b'; SELECT 2`,
			want: []Chunk{
				{SQL: `SELECT 'it''s;', 'a\';b'`, Line: 1},
				{SQL: "SELECT 2", Line: 1},
			},
		},
		{
			name: "comments",
			sql:  "-- drop; this\nCREATE TABLE a (x int); # trailing; comment\n/* block; */ CREATE TABLE b (y int)",
			want: []Chunk{
				{SQL: "CREATE TABLE a (x int)", Line: 2},
				{SQL: "CREATE TABLE b (y int)", Line: 3},
			},
		},
		{
			name: "double dash without space is not a comment",
			sql:  "SELECT 1--1;",
			want: []Chunk{{SQL: "SELECT 1--1", Line: 1}},
		},
		{
			name: "executable comment kept",
			sql:  "/*!40101 SET NAMES utf8 */;\nCREATE TABLE a (x int);",
			want: []Chunk{
				{SQL: "/*!40101 SET NAMES utf8 */", Line: 1},
				{SQL: "CREATE TABLE a (x int)", Line: 2},
			},
		},
		{
			name: "delimiter command",
			sql: "DELIMITER //\n" +
				"CREATE TRIGGER trg BEFORE INSERT ON t FOR EACH ROW BEGIN SET NEW.x = 1; END//\n" +
				"DELIMITER ;\n" +
				"CREATE TABLE c (z int);\n",
			want: []Chunk{
				{SQL: "CREATE TRIGGER trg BEFORE INSERT ON t FOR EACH ROW BEGIN SET NEW.x = 1; END", Line: 2},
				{SQL: "CREATE TABLE c (z int)", Line: 4},
			},
		},
		{
			name: "only whitespace and comments",
			sql:  "  \n-- nothing\n;;\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.sql))
		})
	}
}
