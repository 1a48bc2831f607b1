package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
)

// FilterState records how far a user's point stream has been filtered
type FilterState struct {
	UserID        int64
	FilteredUntil time.Time
	LastPointID   int64
}

// PointRepository handles raw and filtered telemetry points
type PointRepository struct {
	db *sql.DB
}

// NewPointRepository creates a new point repository
func NewPointRepository(db *sql.DB) *PointRepository {
	return &PointRepository{db: db}
}

const pointColumns = `p.id, p.device_id, p.time, p.lat, p.lon, p.accuracy,
	p.activity_1, p.activity_1_conf, p.activity_2, p.activity_2_conf, p.activity_3, p.activity_3_conf`

// InsertPoints appends raw points. IDs are assigned by the database and written back.
func (r *PointRepository) InsertPoints(ctx context.Context, points []models.RawPoint) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO device_data (
				device_id, time, lat, lon, accuracy,
				activity_1, activity_1_conf, activity_2, activity_2_conf, activity_3, activity_3_conf
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range points {
			p := &points[i]
			res, err := stmt.ExecContext(ctx,
				p.DeviceID, p.Time.Unix(), p.Coordinate.Lat, p.Coordinate.Lon, p.Accuracy,
				nullActivity(p.Activity1), p.Confidence1,
				nullActivity(p.Activity2), p.Confidence2,
				nullActivity(p.Activity3), p.Confidence3,
			)
			if err != nil {
				return fmt.Errorf("failed to insert point: %w", err)
			}
			if p.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
		}
		return nil
	})
}

// UserPoints returns the raw points of all the user's devices with from <= time <= to,
// ordered by time, device and id.
func (r *PointRepository) UserPoints(ctx context.Context, userID int64, from, to time.Time) ([]models.RawPoint, error) {
	return r.query(ctx, `
		SELECT `+pointColumns+`
		FROM device_data p
		JOIN devices d ON d.id = p.device_id
		WHERE d.user_id = ? AND p.time >= ? AND p.time <= ?
		ORDER BY p.time, p.device_id, p.id
	`, userID, from.Unix(), to.Unix())
}

// DeviceFilteredPoints returns the device's points that survived filtering, from <= time <= to
func (r *PointRepository) DeviceFilteredPoints(ctx context.Context, deviceID int64, from, to time.Time) ([]models.RawPoint, error) {
	return r.query(ctx, `
		SELECT `+pointColumns+`
		FROM device_data_filtered f
		JOIN device_data p ON p.id = f.point_id
		WHERE f.device_id = ? AND f.time >= ? AND f.time <= ?
		ORDER BY p.time, p.id
	`, deviceID, from.Unix(), to.Unix())
}

// LastFilteredBefore returns the user's latest surviving point strictly before t
func (r *PointRepository) LastFilteredBefore(ctx context.Context, userID int64, t time.Time) (models.RawPoint, bool, error) {
	points, err := r.query(ctx, `
		SELECT `+pointColumns+`
		FROM device_data_filtered f
		JOIN device_data p ON p.id = f.point_id
		WHERE f.user_id = ? AND f.time < ?
		ORDER BY p.time DESC, p.device_id DESC, p.id DESC
		LIMIT 1
	`, userID, t.Unix())
	if err != nil || len(points) == 0 {
		return models.RawPoint{}, false, err
	}
	return points[0], true, nil
}

// EarliestArrival returns the earliest time among the user's points with id > afterID
// and time <= cutoff, i.e. points that arrived since the last filter pass.
func (r *PointRepository) EarliestArrival(ctx context.Context, userID, afterID int64, cutoff time.Time) (time.Time, bool, error) {
	var minTime sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(p.time) FROM device_data p
		JOIN devices d ON d.id = p.device_id
		WHERE d.user_id = ? AND p.id > ? AND p.time <= ?
	`, userID, afterID, cutoff.Unix()).Scan(&minTime)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query earliest arrival: %w", err)
	}
	if !minTime.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(minTime.Int64), true, nil
}

// MaxPointID returns the highest id among the user's points with time <= cutoff
func (r *PointRepository) MaxPointID(ctx context.Context, userID int64, cutoff time.Time) (int64, error) {
	var maxID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(p.id) FROM device_data p
		JOIN devices d ON d.id = p.device_id
		WHERE d.user_id = ? AND p.time <= ?
	`, userID, cutoff.Unix()).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("failed to query max point id: %w", err)
	}
	return maxID.Int64, nil
}

// GetFilterState returns the user's filter progress
func (r *PointRepository) GetFilterState(ctx context.Context, userID int64) (FilterState, bool, error) {
	st := FilterState{UserID: userID}
	var until int64
	err := r.db.QueryRowContext(ctx,
		"SELECT filtered_until, last_point_id FROM filter_state WHERE user_id = ?", userID,
	).Scan(&until, &st.LastPointID)
	if err == sql.ErrNoRows {
		return st, false, nil
	}
	if err != nil {
		return st, false, fmt.Errorf("failed to get filter state: %w", err)
	}
	st.FilteredUntil = fromUnix(until)
	return st, true, nil
}

// ReplaceFiltered replaces the user's surviving points with from <= time <= to by kept,
// drops the points in removed, and stores the new filter state, in one transaction.
func (r *PointRepository) ReplaceFiltered(ctx context.Context, userID int64, from, to time.Time, kept []models.RawPoint, removed []int64, state FilterState) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM device_data_filtered WHERE user_id = ? AND time >= ? AND time <= ?",
			userID, from.Unix(), to.Unix(),
		); err != nil {
			return fmt.Errorf("failed to clear filtered points: %w", err)
		}
		for _, id := range removed {
			if _, err := tx.ExecContext(ctx, "DELETE FROM device_data_filtered WHERE point_id = ?", id); err != nil {
				return fmt.Errorf("failed to remove filtered point %d: %w", id, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO device_data_filtered (point_id, user_id, device_id, time)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range kept {
			if _, err := stmt.ExecContext(ctx, p.ID, userID, p.DeviceID, p.Time.Unix()); err != nil {
				return fmt.Errorf("failed to insert filtered point %d: %w", p.ID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO filter_state (user_id, filtered_until, last_point_id) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				filtered_until = excluded.filtered_until,
				last_point_id = excluded.last_point_id
		`, userID, state.FilteredUntil.Unix(), state.LastPointID); err != nil {
			return fmt.Errorf("failed to save filter state: %w", err)
		}
		return nil
	})
}

func (r *PointRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.RawPoint, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []models.RawPoint
	for rows.Next() {
		var p models.RawPoint
		var t int64
		var a1, a2, a3 sql.NullString
		if err := rows.Scan(
			&p.ID, &p.DeviceID, &t, &p.Coordinate.Lat, &p.Coordinate.Lon, &p.Accuracy,
			&a1, &p.Confidence1, &a2, &p.Confidence2, &a3, &p.Confidence3,
		); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		p.Time = fromUnix(t)
		p.Activity1 = models.Activity(a1.String)
		p.Activity2 = models.Activity(a2.String)
		p.Activity3 = models.Activity(a3.String)
		points = append(points, p)
	}
	return points, rows.Err()
}
