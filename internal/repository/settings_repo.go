package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"stovewatch/internal/models"
)

// Well-known settings keys. Fixed identifiers: the persisted layout is part of
// the upgrade contract.
const (
	KeyHomeLocation = "home_location"
	KeyEnabled      = "geofencing_enabled"
)

type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite {
	return &SettingsSQLite{db: db}
}

const (
	upsertSettingSQL = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`

	selectSettingSQL = `SELECT value FROM settings WHERE key=?`

	deleteSettingSQL = `DELETE FROM settings WHERE key=?`
)

// enabledRecord is the persisted shape of the monitoring flag.
type enabledRecord struct {
	Enabled bool `json:"enabled"`
}

// SaveHomeLocation upserts the home location as a single JSON record.
func (r *SettingsSQLite) SaveHomeLocation(ctx context.Context, loc models.Coordinate) error {
	return r.save(ctx, KeyHomeLocation, loc)
}

// LoadHomeLocation returns the stored home location, or nil when the record is
// absent or cannot be parsed. A corrupt record degrades to "not set" so the
// monitor falls back to safe defaults instead of failing to boot.
func (r *SettingsSQLite) LoadHomeLocation(ctx context.Context) (*models.Coordinate, error) {
	raw, found, err := r.load(ctx, KeyHomeLocation)
	if err != nil || !found {
		return nil, err
	}
	var loc models.Coordinate
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return nil, nil // corrupt record: treat as absent
	}
	if !loc.HasFix() {
		return nil, nil
	}
	return &loc, nil
}

// ClearHomeLocation deletes the record; a missing record is not an error.
func (r *SettingsSQLite) ClearHomeLocation(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, deleteSettingSQL, KeyHomeLocation)
	return err
}

// SaveEnabled upserts the monitoring-enabled flag.
func (r *SettingsSQLite) SaveEnabled(ctx context.Context, enabled bool) error {
	return r.save(ctx, KeyEnabled, enabledRecord{Enabled: enabled})
}

// LoadEnabled returns the stored flag; absent or corrupt records read as false.
func (r *SettingsSQLite) LoadEnabled(ctx context.Context) (bool, error) {
	raw, found, err := r.load(ctx, KeyEnabled)
	if err != nil || !found {
		return false, err
	}
	var rec enabledRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, nil
	}
	return rec.Enabled, nil
}

func (r *SettingsSQLite) save(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, upsertSettingSQL, key, string(b), time.Now().UTC())
	return err
}

func (r *SettingsSQLite) load(ctx context.Context, key string) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, selectSettingSQL, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil // no record yet
		}
		return "", false, err
	}
	return raw, true, nil
}
