package database

import (
	"database/sql"
	"fmt"
	"log"
)

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// modernc/sqlite ignores user_version changes made inside a transaction,
// so the stamp happens after commit. The DDL is idempotent, which makes a
// crash between commit and stamp harmless.
func setSchemaVersion(conn *sql.DB, version int) error {
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("setting version %d: %w", version, err)
	}
	return nil
}

// SchemaVersion returns the applied history schema version.
func (db *DB) SchemaVersion() (int, error) {
	return getSchemaVersion(db.conn)
}

// migrate applies every migration newer than the stored user_version.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		if err := setSchemaVersion(conn, m.Version); err != nil {
			return err
		}
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	log.Printf("Applying history migration %d: %s", m.Version, m.Description)

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}
