// Package database provides the SQLite storage layer for the supervisor.
//
// Everything the supervisor must remember across a crash lives here: the
// monitored checklist, per-check reference timestamps, instrument flags and
// lock keys.
//
// # Architecture
//
//	┌──────────────────────┐     ┌──────────────────────┐
//	│ instrument.Store     │     │ checklist.Repository │
//	└──────────┬───────────┘     └──────────┬───────────┘
//	           └────────────┬───────────────┘
//	                        ▼
//	              ┌───────────────────┐
//	              │ database.DB       │  single connection, WAL
//	              └─────────┬─────────┘
//	                        ▼
//	                 supervisor.db (SQLite)
//
// # Key Types
//
//   - DB: sql.DB wrapper with WithTx, HealthCheck and Migrate
//   - Config: path, WAL mode and busy timeout
//   - Migration: an up/down pair from the migrations package
//
// # Conventions
//
// Timestamps are stored as RFC3339 TEXT in UTC (FormatTime / ParseTime) and
// booleans as INTEGER 0/1 (BoolToInt). Tables are declared STRICT.
//
// # Thread Safety
//
// The pool holds exactly one connection, so transactions are serialised by
// database/sql itself.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
