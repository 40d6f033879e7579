// Package database opens the Flowline SQLite store and applies its
// embedded schema migrations.
//
// The store holds the automation catalog, run history and the generic
// records written by actions. SQLite runs in WAL mode with a single
// writer connection; every table is declared STRICT.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
