package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestMigrateSQLiteCreatesTablesAndIsIdempotent(t *testing.T) {
	sqdb, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "console.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })

	if err := Migrate(sqdb, DriverSQLite); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(sqdb, DriverSQLite); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
	for _, table := range []string{"admins", "audit_log", "notifications"} {
		var name string
		err := sqdb.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "whatever", 1, 1, time.Minute); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT id FROM admins WHERE email=? AND id=?`
	if got := Rebind(DriverSQLite, q); got != q {
		t.Fatalf("sqlite query should be unchanged, got %q", got)
	}
	if got := Rebind(DriverMySQL, q); got != q {
		t.Fatalf("mysql query should be unchanged, got %q", got)
	}
	want := `SELECT id FROM admins WHERE email=$1 AND id=$2`
	if got := Rebind(DriverPgx, q); got != want {
		t.Fatalf("unexpected pgx rebind: %q", got)
	}
}
