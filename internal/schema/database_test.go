package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Limetric/mysql-simulator/internal/charset"
)

func createTable(t *testing.T, db *Database, name string, cols ...Column) *Database {
	t.Helper()
	tbl := db.NewTable(name, db.DefaultEncoding())
	for _, c := range cols {
		var err error
		tbl, err = tbl.AddColumn(c, Position{})
		require.NoError(t, err)
	}
	db, err := db.CreateTable(tbl)
	require.NoError(t, err)
	return db
}

// usersAndA builds lusers(id INT PRIMARY KEY) and a(user_id INT).
func usersAndA(t *testing.T) *Database {
	t.Helper()
	db := createTable(t, New(charset.MySQL57), "lusers", Column{Name: "id", Type: "int"})
	db, err := db.SwapTable("lusers", func(tbl *Table) (*Table, error) { return tbl.AddPrimaryKey([]string{"id"}) })
	require.NoError(t, err)
	return createTable(t, db, "a", nullable("user_id", "int"))
}

func userFK(name string) ForeignKey {
	return ForeignKey{Name: name, Columns: []string{"user_id"}, Reference: Reference{Table: "lusers", Columns: []string{"id"}}}
}

func TestDatabase_SimpleDump(t *testing.T) {
	db := createTable(t, New(charset.MySQL57), "a", nullable("user_id", "int"))

	got, err := db.DumpBare()
	require.NoError(t, err)
	assert.Equal(t, "\nCREATE TABLE `a` (\n  `user_id` int(11) DEFAULT NULL\n);\n", got)

	got, err = db.Dump()
	require.NoError(t, err)
	assert.Equal(t, "\nCREATE TABLE `a` (\n  `user_id` int(11) DEFAULT NULL\n) ENGINE=InnoDB DEFAULT CHARSET=latin1;\n", got)
}

func TestDatabase_ImplicitForeignKeyIndex(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)

	got, err := db.Dump("a")
	require.NoError(t, err)
	assert.Equal(t, "\nCREATE TABLE `a` (\n"+
		"  `user_id` int(11) DEFAULT NULL,\n"+
		"  KEY `user_id` (`user_id`),\n"+
		"  CONSTRAINT `a_ibfk_1` FOREIGN KEY (`user_id`) REFERENCES `lusers` (`id`)\n"+
		") ENGINE=InnoDB DEFAULT CHARSET=latin1;\n", got)

	// A second identical foreign key reuses the index.
	db, err = db.AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)
	tbl, _ := db.Table("a")
	assert.Equal(t, []string{"user_id"}, indexNames(tbl))
	fk, ok := tbl.ForeignKey("a_ibfk_2")
	require.True(t, ok)
	assert.Equal(t, "lusers", fk.Reference.Table)
}

func TestDatabase_NamedForeignKeysShareIndex(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK("foo"), "")
	require.NoError(t, err)
	db, err = db.AddForeignKey("a", userFK("bar"), "")
	require.NoError(t, err)

	got, err := db.DumpBare("a")
	require.NoError(t, err)
	assert.Equal(t, "\nCREATE TABLE `a` (\n"+
		"  `user_id` int(11) DEFAULT NULL,\n"+
		"  KEY `bar` (`user_id`),\n"+
		"  CONSTRAINT `bar` FOREIGN KEY (`user_id`) REFERENCES `lusers` (`id`),\n"+
		"  CONSTRAINT `foo` FOREIGN KEY (`user_id`) REFERENCES `lusers` (`id`)\n"+
		");\n", got)
}

func TestDatabase_DropColumnUsedByForeignKey(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)
	before, err := db.Dump()
	require.NoError(t, err)

	_, err = db.RemoveColumn("a", "user_id")
	assert.ErrorIs(t, err, ErrColumnInUseByForeignKey)

	_, err = db.RemoveColumn("lusers", "id")
	assert.ErrorIs(t, err, ErrColumnInUseByForeignKey)

	after, err := db.Dump()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDatabase_AddForeignKeyChecks(t *testing.T) {
	db := usersAndA(t)
	db = createTable(t, db, "b",
		Column{Name: "user_id", Type: "int unsigned", Nullable: true},
		Column{Name: "code", Type: "varchar(10)", Nullable: true},
	)

	_, err := db.AddForeignKey("b", userFK(""), "")
	var mismatch *ForeignKeyTypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.ErrorIs(t, err, ErrForeignKeyTypeMismatch)
	assert.Equal(t, "b.user_id", mismatch.Local)
	assert.Equal(t, "int unsigned", mismatch.LocalType)
	assert.Equal(t, "lusers.id", mismatch.Target)
	assert.Equal(t, "int", mismatch.TargetType)

	fk := userFK("")
	fk.Reference.Columns = []string{"id", "id"}
	_, err = db.AddForeignKey("a", fk, "")
	assert.ErrorIs(t, err, ErrForeignKeyColumnCountMismatch)

	fk = userFK("")
	fk.Reference.Table = "ghosts"
	_, err = db.AddForeignKey("a", fk, "")
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = db.AddForeignKey("nope", userFK(""), "")
	assert.ErrorIs(t, err, ErrTableNotFound)

	fk = userFK("")
	fk.Reference.Columns = []string{"missing"}
	_, err = db.AddForeignKey("a", fk, "")
	assert.ErrorIs(t, err, ErrColumnNotFound)

	// Display widths do not matter.
	db = createTable(t, db, "c", Column{Name: "user_id", Type: "int(5)", Nullable: true})
	_, err = db.AddForeignKey("c", userFK(""), "")
	require.NoError(t, err)
}

func TestDatabase_SelfReference(t *testing.T) {
	db := createTable(t, New(charset.MySQL57), "node",
		Column{Name: "id", Type: "int"},
		Column{Name: "parent_id", Type: "int", Nullable: true},
	)
	db, err := db.SwapTable("node", func(tbl *Table) (*Table, error) { return tbl.AddPrimaryKey([]string{"id"}) })
	require.NoError(t, err)
	db, err = db.AddForeignKey("node", ForeignKey{Columns: []string{"parent_id"}, Reference: Reference{Table: "node", Columns: []string{"id"}}}, "")
	require.NoError(t, err)
	require.NoError(t, db.Validate())

	db, err = db.RenameTable("node", "tree")
	require.NoError(t, err)
	tbl, ok := db.Table("tree")
	require.True(t, ok)
	fk, ok := tbl.ForeignKey("tree_ibfk_1")
	require.True(t, ok)
	assert.Equal(t, "tree", fk.Reference.Table)

	db, err = db.RenameColumn("tree", "id", "node_id")
	require.NoError(t, err)
	tbl, _ = db.Table("tree")
	fk, _ = tbl.ForeignKey("tree_ibfk_1")
	assert.Equal(t, []string{"node_id"}, fk.Reference.Columns)

	db, err = db.RemoveTable("tree", false)
	require.NoError(t, err)
	assert.False(t, db.HasTable("tree"))
}

func TestDatabase_RemoveTables(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)

	_, err = db.RemoveTable("lusers", false)
	assert.ErrorIs(t, err, ErrForeignKeyReferenceExists)

	got, err := db.RemoveTables([]string{"lusers", "a"}, false)
	require.NoError(t, err)
	assert.Empty(t, got.TableNames())

	_, err = db.RemoveTable("ghost", false)
	assert.ErrorIs(t, err, ErrTableNotFound)

	got, err = db.RemoveTables([]string{"ghost", "a"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"lusers"}, got.TableNames())

	// Dropping a is fine; lusers was never touched.
	assert.Equal(t, []string{"a", "lusers"}, db.TableNames())
}

func TestDatabase_RenameTable(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)
	db, err = db.AddForeignKey("a", userFK("named"), "")
	require.NoError(t, err)

	got, err := db.RenameTable("lusers", "users")
	require.NoError(t, err)
	a, _ := got.Table("a")
	for _, fk := range a.ForeignKeys() {
		assert.Equal(t, "users", fk.Reference.Table, fk.Name)
	}

	got, err = got.RenameTable("a", "accounts")
	require.NoError(t, err)
	accounts, ok := got.Table("accounts")
	require.True(t, ok)
	_, ok = accounts.ForeignKey("accounts_ibfk_1")
	assert.True(t, ok)
	_, ok = accounts.ForeignKey("named")
	assert.True(t, ok)
	assert.False(t, got.HasTable("a"))
	require.NoError(t, got.Validate())

	_, err = db.RenameTable("a", "lusers")
	assert.ErrorIs(t, err, ErrTableAlreadyExists)
	_, err = db.RenameTable("ghost", "x")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestDatabase_CloneTable(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)

	db, err = db.CloneTable("a", "a_copy")
	require.NoError(t, err)
	clone, ok := db.Table("a_copy")
	require.True(t, ok)
	assert.Empty(t, clone.ForeignKeys())
	assert.Equal(t, []string{"user_id"}, indexNames(clone))
	assert.Equal(t, "a_copy", clone.Name())

	_, err = db.CloneTable("a", "lusers")
	assert.ErrorIs(t, err, ErrTableAlreadyExists)
	_, err = db.CloneTable("ghost", "x")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestDatabase_CreateTableTwice(t *testing.T) {
	db := usersAndA(t)
	_, err := db.CreateTable(db.NewTable("a", db.DefaultEncoding()))
	assert.ErrorIs(t, err, ErrTableAlreadyExists)
}

func TestDatabase_SwapTableRejectsRename(t *testing.T) {
	db := usersAndA(t)
	_, err := db.SwapTable("a", func(tbl *Table) (*Table, error) { return tbl.withName("b"), nil })
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = db.MapTables(func(tbl *Table) (*Table, error) { return tbl.withName("x"), nil })
	assert.ErrorIs(t, err, ErrInvariantViolation)

	boom := errors.New("boom")
	_, err = db.SwapTable("a", func(*Table) (*Table, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestDatabase_MapTables(t *testing.T) {
	db := usersAndA(t)
	utf8 := charset.Encoding{Charset: "utf8", Collate: "utf8_general_ci"}
	got, err := db.MapTables(func(tbl *Table) (*Table, error) { return tbl.ConvertToEncoding(utf8) })
	require.NoError(t, err)
	for _, name := range got.TableNames() {
		tbl, _ := got.Table(name)
		assert.Equal(t, utf8, tbl.DefaultEncoding())
	}
}

func TestDatabase_DumpOrder(t *testing.T) {
	db := New(charset.MySQL57)
	for _, name := range []string{"b", "A", "c"} {
		db = createTable(t, db, name, nullable("x", "int"))
	}
	assert.Equal(t, []string{"A", "b", "c"}, db.TableNames())

	got, err := db.DumpBare()
	require.NoError(t, err)
	block := func(name string) string { return "CREATE TABLE `" + name + "` (\n  `x` int(11) DEFAULT NULL\n);" }
	assert.Equal(t, "\n"+block("A")+"\n\n"+block("b")+"\n\n"+block("c")+"\n", got)

	got, err = db.DumpBare("c", "A")
	require.NoError(t, err)
	assert.Equal(t, "\n"+block("c")+"\n\n"+block("A")+"\n", got)

	_, err = db.Dump("ghost")
	assert.ErrorIs(t, err, ErrTableNotFound)

	empty, err := New(charset.MySQL80).Dump()
	require.NoError(t, err)
	assert.Equal(t, "\n", empty)
}

func TestDatabase_ForeignKeyTypeChangeAdvisories(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)

	msgs := db.ForeignKeyTypeChangeAdvisories("a", "user_id", Column{Name: "user_id", Type: "bigint", Nullable: true})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "a_ibfk_1")
	assert.Contains(t, msgs[0], "ER_FK_COLUMN_CANNOT_CHANGE")

	msgs = db.ForeignKeyTypeChangeAdvisories("lusers", "id", Column{Name: "id", Type: "bigint"})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "a.a_ibfk_1")

	assert.Empty(t, db.ForeignKeyTypeChangeAdvisories("a", "user_id", Column{Name: "user_id", Type: "int(11)"}))
}

func TestDatabase_ReplaceColumnRewritesReferences(t *testing.T) {
	db, err := usersAndA(t).AddForeignKey("a", userFK(""), "")
	require.NoError(t, err)

	db, err = db.ReplaceColumn("lusers", "id", Column{Name: "uid", Type: "int"}, Position{})
	require.NoError(t, err)
	a, _ := db.Table("a")
	fk, _ := a.ForeignKey("a_ibfk_1")
	assert.Equal(t, []string{"uid"}, fk.Reference.Columns)
	require.NoError(t, db.Validate())
}

// Every sequence of foreign key additions leaves each foreign key with a
// supporting index and all index names unique.
func TestDatabase_ForeignKeyIndexInvariant(t *testing.T) {
	db := createTable(t, New(charset.MySQL57), "p",
		Column{Name: "x", Type: "int"}, Column{Name: "y", Type: "int"})
	db, err := db.SwapTable("p", func(tbl *Table) (*Table, error) { return tbl.AddPrimaryKey([]string{"x", "y"}) })
	require.NoError(t, err)
	db = createTable(t, db, "c", nullable("x", "int"), nullable("y", "int"), nullable("z", "int"))

	type op struct {
		name, index string
		cols        []string
	}
	ops := []op{
		{"", "", []string{"x"}},
		{"f1", "", []string{"x", "y"}},
		{"", "x", []string{"x"}},
		{"f2", "", []string{"y"}},
		{"", "", []string{"y", "x"}},
		{"f3", "idx", []string{"x", "y"}},
		{"", "", []string{"x"}},
	}
	for i, o := range ops {
		ref := []string{"x", "y"}[:len(o.cols)]
		db, err = db.AddForeignKey("c", ForeignKey{Name: o.name, Columns: o.cols, Reference: Reference{Table: "p", Columns: ref}}, o.index)
		require.NoError(t, err, "op %d", i)
		require.NoError(t, db.Validate(), "op %d", i)

		db, err = db.SwapTable("c", func(tbl *Table) (*Table, error) {
			return tbl.AddIndex("", IndexNormal, []string{"z"}, i%2 == 0)
		})
		require.NoError(t, err)
		require.NoError(t, db.Validate(), "op %d", i)
	}
}
