package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/vrsandeep/catalog-importer/internal/db"
	"github.com/vrsandeep/catalog-importer/migrations"
)

// SetupTestDB creates a file-backed SQLite database in a per-test temp
// directory and applies all migrations. A file is used instead of
// ":memory:" because every pooled connection to ":memory:" gets its own
// empty database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}
