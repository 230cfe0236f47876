package database

import (
	"database/sql"
	"fmt"
)

// Persisted state layout is exactly one JSON-serialized array per logical
// store, under a fixed namespaced key.
const (
	reportsKey    = "incident:reports"
	recordingsKey = "incident:recordings"
)

// getValue reads a single value; a missing key comes back as an empty string.
func (d *Database) getValue(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT v FROM kv_store WHERE k = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// setValue writes a single value, inserting or replacing.
func (d *Database) setValue(key, value string) error {
	_, err := d.db.Exec(
		"INSERT INTO kv_store (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = ?",
		key, value, value)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}
