// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are named {version}_{description}.sql (for example
// "001_initial_schema.sql") and are read from an fs.FS, typically an embedded
// directory. Applied versions are tracked in a schema_migrations table and
// each file runs inside its own transaction.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(), migration.NewSQLiteExecutor(db), files, "migrations", logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
