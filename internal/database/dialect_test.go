package database

import (
	"strings"
	"testing"
)

func TestDialectSQLite(t *testing.T) {
	dialect := NewSQLiteDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "sqlite3"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		result := dialect.SupportsLastInsertId()
		if !result {
			t.Error("SupportsLastInsertId() should return true for SQLite")
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "sqlite"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestDialectPostgreSQL(t *testing.T) {
	dialect := NewPostgresDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "postgres"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		result := dialect.SupportsLastInsertId()
		if result {
			t.Error("SupportsLastInsertId() should return false for PostgreSQL")
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "postgres"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestDialectMySQL(t *testing.T) {
	dialect := NewMySQLDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "mysql"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		result := dialect.SupportsLastInsertId()
		if !result {
			t.Error("SupportsLastInsertId() should return true for MySQL")
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "mysql"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "SQLite no change",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM people WHERE id = ?",
			expected: "SELECT * FROM people WHERE id = ?",
		},
		{
			name:     "PostgreSQL single placeholder",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM people WHERE id = ?",
			expected: "SELECT * FROM people WHERE id = $1",
		},
		{
			name:     "PostgreSQL multiple placeholders",
			dialect:  NewPostgresDialect(),
			query:    "INSERT INTO people (username, full_name) VALUES (?, ?)",
			expected: "INSERT INTO people (username, full_name) VALUES ($1, $2)",
		},
		{
			name:     "PostgreSQL placeholder inside literal",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM people WHERE full_name = '?' AND id = ?",
			expected: "SELECT * FROM people WHERE full_name = '?' AND id = $1",
		},
		{
			name:     "MySQL no change",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE people SET full_name = ?, gender = ? WHERE id = ?",
			expected: "UPDATE people SET full_name = ?, gender = ? WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.dialect.RewriteQuery(tt.query)
			if result != tt.expected {
				t.Errorf("RewriteQuery() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	t.Run("SQLite enables foreign keys", func(t *testing.T) {
		got := NewSQLiteDialect().DSN(DialectConfig{Path: "kinship.db"})
		want := "kinship.db?_foreign_keys=on&_busy_timeout=5000"
		if got != want {
			t.Errorf("DSN() = %v, want %v", got, want)
		}
	})

	t.Run("SQLite keeps existing parameters", func(t *testing.T) {
		got := NewSQLiteDialect().DSN(DialectConfig{Path: "file:test.db?cache=shared"})
		want := "file:test.db?cache=shared&_foreign_keys=on&_busy_timeout=5000"
		if got != want {
			t.Errorf("DSN() = %v, want %v", got, want)
		}
	})

	t.Run("MySQL parses time", func(t *testing.T) {
		got := NewMySQLDialect().DSN(DialectConfig{URL: "kinship:secret@tcp(localhost:3306)/kinship"})
		if !strings.Contains(got, "parseTime=true") {
			t.Errorf("DSN() = %v, want parseTime=true", got)
		}
	})

	t.Run("PostgreSQL passthrough", func(t *testing.T) {
		url := "postgres://kinship@localhost/kinship?sslmode=disable"
		if got := NewPostgresDialect().DSN(DialectConfig{URL: url}); got != url {
			t.Errorf("DSN() = %v, want %v", got, url)
		}
	})
}

func TestSplitStatements(t *testing.T) {
	script := `-- people
CREATE TABLE a (id INTEGER);

-- seed
INSERT INTO a (id) VALUES (1);
INSERT INTO a (id) VALUES (2);
`
	got := SplitStatements(script)
	if len(got) != 3 {
		t.Fatalf("SplitStatements() returned %d statements, want 3: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (id INTEGER)" {
		t.Errorf("first statement = %q", got[0])
	}
}

func TestResetSequenceQuery(t *testing.T) {
	if got := NewSQLiteDialect().ResetSequenceQuery("people"); got != "" {
		t.Errorf("SQLite ResetSequenceQuery() = %q, want empty", got)
	}
	if got := NewMySQLDialect().ResetSequenceQuery("people"); got != "" {
		t.Errorf("MySQL ResetSequenceQuery() = %q, want empty", got)
	}
	got := NewPostgresDialect().ResetSequenceQuery("people")
	if !strings.Contains(got, "pg_get_serial_sequence('people', 'id')") || !strings.HasSuffix(got, "FROM people") {
		t.Errorf("PostgreSQL ResetSequenceQuery() = %q", got)
	}
}
