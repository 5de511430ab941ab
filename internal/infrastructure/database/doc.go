// Package database provides SQLite connectivity for mysa-core.
//
// It stores the cached vendor credential (so a restart can renew instead of
// logging in again) and the last discovered home/zone/device registry.
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
// Migrations live in the top-level migrations package as
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql pairs and are embedded into
// the binary.
//
// Security Considerations:
//   - The file holds refresh tokens and is chmod 0600
//   - All queries use parameterised statements
package database
