package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the persistence operations for the discovery registry.
// This abstraction allows the Registry to be tested without a database.
type Repository interface {
	// ListHomes returns every home with its zones in position order.
	ListHomes(ctx context.Context) ([]Home, error)

	// ListDevices returns every device ordered by name.
	ListDevices(ctx context.Context) ([]Device, error)

	// ReplaceHomes swaps the stored homes and zones for homes.
	ReplaceHomes(ctx context.Context, homes []Home) error

	// ReplaceDevices swaps the stored device set for devices.
	ReplaceDevices(ctx context.Context, devices []Device) error

	// UpdateModel changes one device's model string.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateModel(ctx context.Context, id, model string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListHomes returns every home with its zones.
func (r *SQLiteRepository) ListHomes(ctx context.Context) ([]Home, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, erate, updated_at FROM homes ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying homes: %w", err)
	}
	defer rows.Close()

	var homes []Home
	index := make(map[string]int)
	for rows.Next() {
		var (
			h       Home
			erate   sql.NullFloat64
			updated string
		)
		if err := rows.Scan(&h.ID, &h.Name, &erate, &updated); err != nil {
			return nil, fmt.Errorf("scanning home: %w", err)
		}
		if erate.Valid {
			v := erate.Float64
			h.ElectricityRate = &v
		}
		h.UpdatedAt = parseTime(updated)
		index[h.ID] = len(homes)
		homes = append(homes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating homes: %w", err)
	}

	zrows, err := r.db.QueryContext(ctx, `SELECT id, home_id, name FROM zones ORDER BY home_id, position`)
	if err != nil {
		return nil, fmt.Errorf("querying zones: %w", err)
	}
	defer zrows.Close()

	for zrows.Next() {
		var z Zone
		if err := zrows.Scan(&z.ID, &z.HomeID, &z.Name); err != nil {
			return nil, fmt.Errorf("scanning zone: %w", err)
		}
		if i, ok := index[z.HomeID]; ok {
			homes[i].Zones = append(homes[i].Zones, z)
		}
	}
	if err := zrows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zones: %w", err)
	}
	return homes, nil
}

// ListDevices returns every device.
func (r *SQLiteRepository) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mac_key, name, model, home_id, zone_id, firmware, updated_at
		FROM devices
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var (
			d       Device
			zoneID  sql.NullString
			updated string
		)
		if err := rows.Scan(&d.ID, &d.MacKey, &d.Name, &d.Model, &d.HomeID, &zoneID, &d.Firmware, &updated); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		if zoneID.Valid {
			z := zoneID.String
			d.ZoneID = &z
		}
		d.UpdatedAt = parseTime(updated)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// ReplaceHomes deletes all homes (zones cascade) and inserts homes in one
// transaction.
func (r *SQLiteRepository) ReplaceHomes(ctx context.Context, homes []Home) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM homes`); err != nil {
		return fmt.Errorf("clearing homes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, h := range homes {
		var erate any
		if h.ElectricityRate != nil {
			erate = *h.ElectricityRate
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO homes (id, name, erate, updated_at) VALUES (?, ?, ?, ?)`,
			h.ID, h.Name, erate, now); err != nil {
			return fmt.Errorf("inserting home %s: %w", h.ID, err)
		}
		for pos, z := range h.Zones {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO zones (id, home_id, name, position) VALUES (?, ?, ?, ?)`,
				z.ID, h.ID, z.Name, pos); err != nil {
				return fmt.Errorf("inserting zone %s: %w", z.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing homes: %w", err)
	}
	return nil
}

// ReplaceDevices deletes all devices and inserts devices in one transaction.
func (r *SQLiteRepository) ReplaceDevices(ctx context.Context, devices []Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range devices {
		if d.ID == "" || d.HomeID == "" {
			return fmt.Errorf("%w: id=%q home=%q", ErrInvalidDevice, d.ID, d.HomeID)
		}
		mac := d.MacKey
		if mac == "" {
			mac = MacKey(d.ID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO devices (id, mac_key, name, model, home_id, zone_id, firmware, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, mac, d.Name, d.Model, d.HomeID, d.ZoneID, d.Firmware, now); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing devices: %w", err)
	}
	return nil
}

// UpdateModel changes one device's model string.
func (r *SQLiteRepository) UpdateModel(ctx context.Context, id, model string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET model = ?, updated_at = ? WHERE id = ?`,
		model, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating device model: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
