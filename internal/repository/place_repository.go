package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/legs-backend-go/internal/database"
	"github.com/jengzang/legs-backend-go/internal/models"
)

// PlaceRepository handles clustered places
type PlaceRepository struct {
	db *sql.DB
}

// NewPlaceRepository creates a new place repository
func NewPlaceRepository(db *sql.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

// ReplaceUserPlaces rewrites all places of a user
func (r *PlaceRepository) ReplaceUserPlaces(ctx context.Context, userID int64, places []models.Place) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM places WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("failed to clear places: %w", err)
		}
		for _, p := range places {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO places (user_id, geohash, lat, lon, visits, last_visit)
				VALUES (?, ?, ?, ?, ?, ?)
			`, userID, p.Geohash, p.Center.Lat, p.Center.Lon, p.Visits, p.LastVisit.Unix()); err != nil {
				return fmt.Errorf("failed to insert place %s: %w", p.Geohash, err)
			}
		}
		return nil
	})
}

// UserPlaces returns a user's places, most visited first
func (r *PlaceRepository) UserPlaces(ctx context.Context, userID int64) ([]models.Place, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, geohash, lat, lon, visits, last_visit
		FROM places WHERE user_id = ?
		ORDER BY visits DESC, geohash
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query places: %w", err)
	}
	defer rows.Close()

	var places []models.Place
	for rows.Next() {
		var p models.Place
		var last int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.Geohash, &p.Center.Lat, &p.Center.Lon, &p.Visits, &last); err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		p.LastVisit = fromUnix(last)
		places = append(places, p)
	}
	return places, rows.Err()
}
