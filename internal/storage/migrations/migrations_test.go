package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x Int64);

-- second
CREATE TABLE b (y String)
ENGINE = Memory;
`
	stmts := splitStatements(input)
	if len(stmts) != 2 {
		t.Fatalf("Expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") {
		t.Errorf("Unexpected first statement: %q", stmts[0])
	}
	if !strings.Contains(stmts[1], "ENGINE = Memory") {
		t.Errorf("Multi-line statement not joined: %q", stmts[1])
	}
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	if err := validateNoSemicolonInStrings("SELECT 'a''b'; SELECT 1;"); err != nil {
		t.Errorf("Escaped quote should pass: %v", err)
	}
	if err := validateNoSemicolonInStrings("SELECT 'a;b';"); !errors.Is(err, ErrSemicolonInString) {
		t.Errorf("Expected ErrSemicolonInString, got %v", err)
	}
}

func TestEmbeddedMigrationsSplit(t *testing.T) {
	for _, dir := range []string{dirPostgres, dirClickhouse, dirSqlite} {
		entries, err := fs.ReadDir(Schema, dir)
		if err != nil {
			t.Fatalf("%s: read dir: %v", dir, err)
		}
		if len(entries) == 0 {
			t.Errorf("%s: no embedded migrations", dir)
		}
		for _, e := range entries {
			data, err := fs.ReadFile(Schema, dir+"/"+e.Name())
			if err != nil {
				t.Fatalf("%s/%s: %v", dir, e.Name(), err)
			}
			if err := validateNoSemicolonInStrings(string(data)); err != nil {
				t.Errorf("%s/%s: %v", dir, e.Name(), err)
			}
			if len(splitStatements(string(data))) == 0 {
				t.Errorf("%s/%s: no statements", dir, e.Name())
			}
		}
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/quotes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db != "quotes" {
		t.Errorf("Expected quotes, got %s", db)
	}

	if _, err := databaseFromDSN("clickhouse://localhost:9000"); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("Expected ErrInvalidDatabase for DSN without database, got %v", err)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000/quotes;DROP"); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("Expected ErrInvalidDatabase for non-identifier, got %v", err)
	}
}

func TestLoadSortsAndSkipsEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql":  {Data: []byte("CREATE TABLE b (x INTEGER);")},
		"m/001_a.sql":  {Data: []byte("-- a\nCREATE TABLE a (x INTEGER);")},
		"m/003_c.sql":  {Data: []byte("-- nothing yet\n")},
		"m/README.txt": {Data: []byte("not sql")},
	}
	got, err := load(fsys, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].name != "001_a.sql" || got[1].name != "002_b.sql" {
		t.Fatalf("unexpected migrations: %+v", got)
	}

	if _, err := load(fstest.MapFS{"m/001.sql": {Data: []byte("SELECT 'a;b';")}}, "m"); !errors.Is(err, ErrSemicolonInString) {
		t.Errorf("Expected ErrSemicolonInString, got %v", err)
	}
}

func TestPending(t *testing.T) {
	all := []migration{{name: "001.sql"}, {name: "002.sql"}, {name: "003.sql"}}
	got := pending(all, map[string]bool{"001.sql": true, "003.sql": true})
	if len(got) != 1 || got[0].name != "002.sql" {
		t.Errorf("pending = %+v, want only 002.sql", got)
	}
	if len(pending(all, nil)) != 3 {
		t.Error("nil applied set should leave everything pending")
	}
}

func TestRunSqliteMigrationsRecordsVersions(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunSqliteMigrations(ctx, db); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	entries, err := fs.ReadDir(Schema, dirSqlite)
	if err != nil {
		t.Fatal(err)
	}
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(entries) {
		t.Errorf("schema_migrations has %d rows, want %d", count, len(entries))
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO slips (slip_id, slippage_pct, updated_at) VALUES ('s', '1', 0)`); err != nil {
		t.Errorf("slips table missing: %v", err)
	}
}
