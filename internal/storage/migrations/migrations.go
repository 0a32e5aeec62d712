// Package migrations applies the embedded schema for each storage backend.
//
// Postgres and SQLite record applied files in schema_migrations and apply each file
// once, in its own transaction. ClickHouse has no transactions; its statements are
// written to be re-runnable and are applied on every start.
package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// ErrSemicolonInString is returned for SQL the statement splitter cannot handle.
var ErrSemicolonInString = errors.New("semicolon inside string literal")

// migration is one embedded SQL file.
type migration struct {
	name string // file name, also the version key
	sql  string
}

// statements returns the individual statements of the file.
func (m migration) statements() []string {
	return splitStatements(m.sql)
}

// load reads the .sql files of dir in lexical order, skipping empty ones.
func load(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sql := string(data)
		if len(splitStatements(sql)) == 0 {
			continue
		}
		if err := validateNoSemicolonInStrings(sql); err != nil {
			return nil, fmt.Errorf("validate migration %s: %w", name, err)
		}
		out = append(out, migration{name: name, sql: sql})
	}
	return out, nil
}

// pending filters out migrations whose names are in applied.
func pending(all []migration, applied map[string]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.name] {
			out = append(out, m)
		}
	}
	return out
}

// splitStatements splits SQL on semicolons after dropping blank and "--" comment lines.
//
// The splitter does not understand quoting: migrations must not put semicolons inside
// string literals or /* */ comments. validateNoSemicolonInStrings enforces the first.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(filtered, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects semicolons inside single-quoted literals.
// Doubled quotes ('') are treated as escapes.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("%w at offset %d", ErrSemicolonInString, i)
			}
		}
	}
	return nil
}
