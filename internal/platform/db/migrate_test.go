package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrations_SortedByVersion(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_emails.sql":   "CREATE TABLE email_address (id UUID PRIMARY KEY);",
		"001_accounts.sql": "CREATE TABLE users (id UUID PRIMARY KEY);",
		"notes.txt":        "not a migration",
		"README.sql":       "-- no numeric prefix, skipped",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_accounts.sql" {
		t.Errorf("expected 001_accounts.sql first, got %+v", migrations[0])
	}
	if migrations[1].Version != 2 {
		t.Errorf("expected version 2 second, got %d", migrations[1].Version)
	}
	if migrations[0].SQL == "" {
		t.Error("expected migration SQL to be loaded")
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	m := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := m.LoadMigrations(); err == nil {
		t.Error("expected error for missing migrations directory")
	}
}
