package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetPref returns the value stored under key. ok is false when the key was
// never set.
func (db *DB) GetPref(key string) (value string, ok bool, err error) {
	err = db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetPref stores value under key, replacing any previous value.
func (db *DB) SetPref(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// DeletePref removes key.
func (db *DB) DeletePref(key string) error {
	_, err := db.Exec(`DELETE FROM preferences WHERE key = ?`, key)
	return err
}
