package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// DeviceRepository handles the device to user mapping
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert stores a device and its owner
func (r *DeviceRepository) Upsert(ctx context.Context, d models.Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, user_id) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id
	`, d.ID, d.UserID)
	if err != nil {
		return fmt.Errorf("failed to upsert device %d: %w", d.ID, err)
	}
	return nil
}

// GetByID returns a device
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (models.Device, error) {
	d := models.Device{}
	err := r.db.QueryRowContext(ctx, "SELECT id, user_id FROM devices WHERE id = ?", id).Scan(&d.ID, &d.UserID)
	if err == sql.ErrNoRows {
		return d, fmt.Errorf("device %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return d, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// ListDevicesWithData returns the devices that have filtered points, with their owners
func (r *DeviceRepository) ListDevicesWithData(ctx context.Context) ([]models.Device, error) {
	return r.list(ctx, `
		SELECT d.id, d.user_id FROM devices d
		WHERE EXISTS (SELECT 1 FROM device_data_filtered f WHERE f.device_id = d.id)
		ORDER BY d.id
	`)
}

// ListUserIDs returns every user owning at least one device
func (r *DeviceRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM devices ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *DeviceRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
