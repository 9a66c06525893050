package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_120000_create_samples.up.sql":   {Data: []byte("CREATE TABLE samples (id INTEGER PRIMARY KEY, value TEXT);")},
		"20261001_120000_create_samples.down.sql": {Data: []byte("DROP TABLE samples;")},
		"20261002_080000_add_notes.up.sql":        {Data: []byte("CREATE TABLE notes (id INTEGER PRIMARY KEY);")},
		"README.md":                               {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Migrate(ctx, testMigrations())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}
	if !tableExists(t, db, "samples") || !tableExists(t, db, "notes") {
		t.Fatal("migration tables missing")
	}

	n, err = db.Migrate(ctx, testMigrations())
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate() applied %d, want 0", n)
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("status = %d applied, %d pending; want 2, 0", len(applied), len(pending))
	}
	if applied[0].Version != "20261001_120000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied[0] = %+v", applied[0])
	}
}

func TestMigrateFailureStopsAtBadMigration(t *testing.T) {
	db := openTestDB(t)
	fsys := testMigrations()
	fsys["20261002_080000_add_notes.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE broken (")}

	n, err := db.Migrate(context.Background(), fsys)
	if err == nil {
		t.Fatal("Migrate() should fail on bad SQL")
	}
	if n != 1 {
		t.Errorf("Migrate() applied %d before failing, want 1", n)
	}
	if !tableExists(t, db, "samples") {
		t.Error("earlier migration should stay committed")
	}
}

func TestMigrateNil(t *testing.T) {
	db := openTestDB(t)
	if n, err := db.Migrate(context.Background(), nil); err != nil || n != 0 {
		t.Fatalf("Migrate(nil) = %d, %v", n, err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20261001_120000_create_samples.up.sql":   {Data: []byte("CREATE TABLE samples (id INTEGER PRIMARY KEY);")},
		"20261001_120000_create_samples.down.sql": {Data: []byte("DROP TABLE samples;")},
	}

	if _, err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "samples") {
		t.Error("samples should be dropped")
	}
	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20261019_090000_session_journal.up.sql", "20261019_090000", "session_journal", true, true},
		{"20261019_090000_session_journal.down.sql", "20261019_090000", "session_journal", false, true},
		{"20261019_090000_add_index_to_events.up.sql", "20261019_090000", "add_index_to_events", true, true},
		{"20261019_090000_session_journal.sql", "", "", false, false},
		{"notes.txt", "", "", false, false},
		{"broken.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
