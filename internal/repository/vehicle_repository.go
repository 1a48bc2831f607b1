package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
)

// VehicleRepository stores live vehicle positions
type VehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository creates a new vehicle repository
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// InsertSamples stores a snapshot of vehicle positions. Reports already stored
// for the same vehicle and timestamp are skipped. Returns the number inserted.
func (r *VehicleRepository) InsertSamples(ctx context.Context, samples []models.VehicleSample) (int, error) {
	inserted := 0
	err := database.WithTx(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO vehicle_samples (snapshot_id, vehicle_ref, time, lat, lon, line_type, line_name)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, s := range samples {
			res, err := stmt.ExecContext(ctx, s.SnapshotID, s.VehicleRef, s.Time.Unix(),
				s.Coordinate.Lat, s.Coordinate.Lon, s.LineType, s.LineName)
			if err != nil {
				return fmt.Errorf("failed to insert sample for %s: %w", s.VehicleRef, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

// VehiclesNear returns samples within window of at and inside bound
func (r *VehicleRepository) VehiclesNear(ctx context.Context, at time.Time, window time.Duration, bound orb.Bound) ([]models.VehicleSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, snapshot_id, vehicle_ref, time, lat, lon, line_type, line_name
		FROM vehicle_samples
		WHERE time >= ? AND time <= ?
		  AND lat >= ? AND lat <= ? AND lon >= ? AND lon <= ?
		ORDER BY vehicle_ref, time
	`, at.Add(-window).Unix(), at.Add(window).Unix(),
		bound.Min.Lat(), bound.Max.Lat(), bound.Min.Lon(), bound.Max.Lon())
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle samples: %w", err)
	}
	defer rows.Close()

	var samples []models.VehicleSample
	for rows.Next() {
		var s models.VehicleSample
		var t int64
		if err := rows.Scan(&s.ID, &s.SnapshotID, &s.VehicleRef, &t,
			&s.Coordinate.Lat, &s.Coordinate.Lon, &s.LineType, &s.LineName); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle sample: %w", err)
		}
		s.Time = fromUnix(t)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Prune deletes samples older than before
func (r *VehicleRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM vehicle_samples WHERE time < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune vehicle samples: %w", err)
	}
	return res.RowsAffected()
}
