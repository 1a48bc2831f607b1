package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PlannerCacheEntry is one stored journey planner response
type PlannerCacheEntry struct {
	Key             string
	StartTime       time.Time
	Origin          string
	Destination     string
	Mode            string
	MaxWalkDistance int
	NumItineraries  int
	Response        string
}

// PlannerCacheRepository persists raw planner responses
type PlannerCacheRepository struct {
	db *sql.DB
}

// NewPlannerCacheRepository creates a new planner cache repository
func NewPlannerCacheRepository(db *sql.DB) *PlannerCacheRepository {
	return &PlannerCacheRepository{db: db}
}

// Get returns the cached response for key
func (r *PlannerCacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var body string
	err := r.db.QueryRowContext(ctx, "SELECT response FROM planner_cache WHERE cache_key = ?", key).Scan(&body)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read planner cache: %w", err)
	}
	return body, true, nil
}

// Put stores a response, replacing any previous one for the same key
func (r *PlannerCacheRepository) Put(ctx context.Context, e PlannerCacheEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO planner_cache (
			cache_key, start_time, origin, destination, mode, max_walk_distance, num_itineraries, response
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET response = excluded.response
	`, e.Key, e.StartTime.Unix(), e.Origin, e.Destination, e.Mode, e.MaxWalkDistance, e.NumItineraries, e.Response)
	if err != nil {
		return fmt.Errorf("failed to write planner cache: %w", err)
	}
	return nil
}
