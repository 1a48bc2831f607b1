package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
)

// LegRepository handles legs and their mode assignments
type LegRepository struct {
	db *sql.DB
}

// NewLegRepository creates a new leg repository
func NewLegRepository(db *sql.DB) *LegRepository {
	return &LegRepository{db: db}
}

const legColumns = `l.id, l.device_id, l.user_id, l.time_start, l.time_end,
	l.lat_start, l.lon_start, l.lat_end, l.lon_end, l.activity, l.modes_detected`

// GetByID returns a leg with its mode assignments
func (r *LegRepository) GetByID(ctx context.Context, id int64) (models.Leg, error) {
	legs, err := r.query(ctx, r.db, "SELECT "+legColumns+" FROM legs l WHERE l.id = ?", id)
	if err != nil {
		return models.Leg{}, err
	}
	if len(legs) == 0 {
		return models.Leg{}, fmt.Errorf("leg %d: %w", id, ErrNotFound)
	}
	leg := legs[0]
	if leg.Modes, err = r.Modes(ctx, id); err != nil {
		return leg, err
	}
	return leg, nil
}

// LastCommittedLegs returns the device's latest n legs that carry an activity, oldest first
func (r *LegRepository) LastCommittedLegs(ctx context.Context, deviceID int64, n int) ([]models.Leg, error) {
	legs, err := r.query(ctx, r.db, `
		SELECT `+legColumns+` FROM legs l
		WHERE l.device_id = ? AND l.activity IS NOT NULL
		ORDER BY l.time_start DESC, l.id DESC
		LIMIT ?
	`, deviceID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(legs)-1; i < j; i, j = i+1, j-1 {
		legs[i], legs[j] = legs[j], legs[i]
	}
	return legs, nil
}

// DeviceLegsEndingAfter returns the device's legs with time_end > after, ordered by start
func (r *LegRepository) DeviceLegsEndingAfter(ctx context.Context, deviceID int64, after time.Time) ([]models.Leg, error) {
	return r.query(ctx, r.db, `
		SELECT `+legColumns+` FROM legs l
		WHERE l.device_id = ? AND l.time_end > ?
		ORDER BY l.time_start, l.id
	`, deviceID, after.Unix())
}

// DeviceLegs returns the device's legs overlapping [from, to] with their modes
func (r *LegRepository) DeviceLegs(ctx context.Context, deviceID int64, from, to time.Time) ([]models.Leg, error) {
	legs, err := r.query(ctx, r.db, `
		SELECT `+legColumns+` FROM legs l
		WHERE l.device_id = ? AND l.time_end >= ? AND l.time_start <= ?
		ORDER BY l.time_start, l.id
	`, deviceID, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	for i := range legs {
		if legs[i].Modes, err = r.Modes(ctx, legs[i].ID); err != nil {
			return nil, err
		}
	}
	return legs, nil
}

// UserCommittedLegs returns the committed legs of every device of the user
func (r *LegRepository) UserCommittedLegs(ctx context.Context, userID int64) ([]models.Leg, error) {
	return r.query(ctx, r.db, `
		SELECT `+legColumns+` FROM legs l
		JOIN devices d ON d.id = l.device_id
		WHERE d.user_id = ? AND l.activity IS NOT NULL
		ORDER BY l.time_start, l.id
	`, userID)
}

// UndetectedVehicleLegs returns the device's IN_VEHICLE legs whose modes are not yet detected
func (r *LegRepository) UndetectedVehicleLegs(ctx context.Context, deviceID int64) ([]models.Leg, error) {
	return r.query(ctx, r.db, `
		SELECT `+legColumns+` FROM legs l
		WHERE l.device_id = ? AND l.activity = ? AND l.modes_detected = 0
		ORDER BY l.time_start, l.id
	`, deviceID, string(models.ActivityInVehicle))
}

// DeleteBetween removes the device's legs with time_end > after and time_start < before
func (r *LegRepository) DeleteBetween(ctx context.Context, deviceID int64, after, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM legs WHERE device_id = ? AND time_end > ? AND time_start < ?",
		deviceID, after.Unix(), before.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete legs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAfter removes the device's legs ending after t that start no later than cutoff
func (r *LegRepository) DeleteAfter(ctx context.Context, deviceID int64, t, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM legs WHERE device_id = ? AND time_end > ? AND time_start <= ?",
		deviceID, t.Unix(), cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete legs: %w", err)
	}
	return res.RowsAffected()
}

// ReplaceLegs atomically deletes the device's legs that end after prevEnd and overlap leg,
// then inserts leg. A USER mode assignment of the deleted leg overlapping leg the most
// is carried over to the new leg unless it is a terminator. Returns the new leg id
// and the ids of the deleted legs.
func (r *LegRepository) ReplaceLegs(ctx context.Context, prevEnd time.Time, leg models.Leg) (int64, []int64, error) {
	var id int64
	var deleted []int64
	err := database.WithTx(r.db, func(tx *sql.Tx) error {
		replaced, err := r.query(ctx, tx, `
			SELECT `+legColumns+` FROM legs l
			WHERE l.device_id = ? AND l.time_end > ? AND (l.time_start < ? OR l.time_start = ?)
		`, leg.DeviceID, prevEnd.Unix(), leg.TimeEnd.Unix(), leg.TimeStart.Unix())
		if err != nil {
			return err
		}

		var carried *models.ModeAssignment
		if !leg.IsTerminator() {
			carried, err = userModeWithGreatestOverlap(ctx, tx, replaced, leg)
			if err != nil {
				return err
			}
		}

		for _, old := range replaced {
			if _, err := tx.ExecContext(ctx, "DELETE FROM legs WHERE id = ?", old.ID); err != nil {
				return fmt.Errorf("failed to delete leg %d: %w", old.ID, err)
			}
			deleted = append(deleted, old.ID)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO legs (
				device_id, user_id, time_start, time_end,
				lat_start, lon_start, lat_end, lon_end, activity, modes_detected
			) VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, 0)
		`, leg.DeviceID, leg.TimeStart.Unix(), leg.TimeEnd.Unix(),
			leg.CoordinateStart.Lat, leg.CoordinateStart.Lon,
			leg.CoordinateEnd.Lat, leg.CoordinateEnd.Lon,
			nullActivity(leg.Activity))
		if err != nil {
			return fmt.Errorf("failed to insert leg: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		if carried != nil {
			carried.LegID = id
			if err := upsertMode(ctx, tx, *carried); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return id, deleted, nil
}

func userModeWithGreatestOverlap(ctx context.Context, tx *sql.Tx, replaced []models.Leg, leg models.Leg) (*models.ModeAssignment, error) {
	var best *models.ModeAssignment
	var bestOverlap time.Duration
	for _, old := range replaced {
		overlap := old.Overlap(leg)
		if overlap <= 0 || (best != nil && overlap <= bestOverlap) {
			continue
		}
		m, ok, err := getMode(ctx, tx, old.ID, models.SourceUser)
		if err != nil {
			return nil, err
		}
		if ok {
			best, bestOverlap = &m, overlap
		}
	}
	return best, nil
}

// SetUser attaches a leg to a user, or detaches it when userID is nil
func (r *LegRepository) SetUser(ctx context.Context, legID int64, userID *int64) error {
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE legs SET user_id = ? WHERE id = ?", uid, legID); err != nil {
		return fmt.Errorf("failed to set user of leg %d: %w", legID, err)
	}
	return nil
}

// Modes returns the mode assignments of a leg ordered by source
func (r *LegRepository) Modes(ctx context.Context, legID int64) ([]models.ModeAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT leg_id, source, mode, line FROM modes WHERE leg_id = ? ORDER BY source", legID)
	if err != nil {
		return nil, fmt.Errorf("failed to query modes: %w", err)
	}
	defer rows.Close()

	var modes []models.ModeAssignment
	for rows.Next() {
		var m models.ModeAssignment
		var line sql.NullString
		if err := rows.Scan(&m.LegID, &m.Source, &m.Mode, &line); err != nil {
			return nil, fmt.Errorf("failed to scan mode: %w", err)
		}
		m.Line = line.String
		modes = append(modes, m)
	}
	return modes, rows.Err()
}

// ReconcileModes brings the leg's assignments for the given sources in line with computed.
// A source without a computed value loses its assignment; unchanged values are not written.
// Sources not listed, and USER, are never touched. modes_detected is set in the same transaction.
func (r *LegRepository) ReconcileModes(ctx context.Context, legID int64, sources []models.ModeSource, computed map[models.ModeSource]models.ModeAssignment, detected bool) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		for _, src := range sources {
			if !src.Automatic() {
				continue
			}
			existing, ok, err := getMode(ctx, tx, legID, src)
			if err != nil {
				return err
			}
			want, has := computed[src]
			switch {
			case !has && ok:
				if _, err := tx.ExecContext(ctx, "DELETE FROM modes WHERE leg_id = ? AND source = ?", legID, src); err != nil {
					return fmt.Errorf("failed to delete %s mode of leg %d: %w", src, legID, err)
				}
			case has && (!ok || existing.Mode != want.Mode || existing.Line != want.Line):
				want.LegID, want.Source = legID, src
				if err := upsertMode(ctx, tx, want); err != nil {
					return err
				}
			}
		}

		if _, err := tx.ExecContext(ctx, "UPDATE legs SET modes_detected = ? WHERE id = ?", detected, legID); err != nil {
			return fmt.Errorf("failed to mark modes detected for leg %d: %w", legID, err)
		}
		return nil
	})
}

// SetUserMode records a manual correction of a leg's mode
func (r *LegRepository) SetUserMode(ctx context.Context, legID int64, mode, line string) error {
	if _, err := r.GetByID(ctx, legID); err != nil {
		return err
	}
	return upsertMode(ctx, r.db, models.ModeAssignment{LegID: legID, Source: models.SourceUser, Mode: mode, Line: line})
}

// DeleteUserMode removes a manual correction
func (r *LegRepository) DeleteUserMode(ctx context.Context, legID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM modes WHERE leg_id = ? AND source = ?", legID, models.SourceUser)
	if err != nil {
		return fmt.Errorf("failed to delete user mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user mode of leg %d: %w", legID, ErrNotFound)
	}
	return nil
}

type contextExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertMode(ctx context.Context, db contextExecer, m models.ModeAssignment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO modes (leg_id, source, mode, line) VALUES (?, ?, ?, ?)
		ON CONFLICT(leg_id, source) DO UPDATE SET mode = excluded.mode, line = excluded.line
	`, m.LegID, m.Source, m.Mode, sql.NullString{String: m.Line, Valid: m.Line != ""})
	if err != nil {
		return fmt.Errorf("failed to upsert %s mode of leg %d: %w", m.Source, m.LegID, err)
	}
	return nil
}

func getMode(ctx context.Context, tx *sql.Tx, legID int64, src models.ModeSource) (models.ModeAssignment, bool, error) {
	m := models.ModeAssignment{LegID: legID, Source: src}
	var line sql.NullString
	err := tx.QueryRowContext(ctx, "SELECT mode, line FROM modes WHERE leg_id = ? AND source = ?", legID, src).Scan(&m.Mode, &line)
	if err == sql.ErrNoRows {
		return m, false, nil
	}
	if err != nil {
		return m, false, fmt.Errorf("failed to get %s mode of leg %d: %w", src, legID, err)
	}
	m.Line = line.String
	return m, true, nil
}

type contextQueryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *LegRepository) query(ctx context.Context, db contextQueryer, query string, args ...interface{}) ([]models.Leg, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query legs: %w", err)
	}
	defer rows.Close()

	var legs []models.Leg
	for rows.Next() {
		var l models.Leg
		var userID sql.NullInt64
		var start, end int64
		var activity sql.NullString
		if err := rows.Scan(
			&l.ID, &l.DeviceID, &userID, &start, &end,
			&l.CoordinateStart.Lat, &l.CoordinateStart.Lon,
			&l.CoordinateEnd.Lat, &l.CoordinateEnd.Lon,
			&activity, &l.ModesDetected,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leg: %w", err)
		}
		if userID.Valid {
			uid := userID.Int64
			l.UserID = &uid
		}
		l.TimeStart, l.TimeEnd = fromUnix(start), fromUnix(end)
		l.Activity = models.Activity(activity.String)
		legs = append(legs, l)
	}
	return legs, rows.Err()
}
