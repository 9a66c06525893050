// Package database provides the SQLite store behind the session journal.
//
// It owns the connection (WAL mode, busy timeout, one connection in the
// pool) and a small forward-only migration runner. Migration files are
// supplied as an fs.FS so the binary can embed them:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is created
// with mode 0600.
package database
