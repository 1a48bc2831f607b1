package models

import "time"

// Place is a cluster of leg end points of one user
type Place struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Geohash   string     `json:"geohash" db:"geohash"`
	Center    Coordinate `json:"center"`
	Visits    int        `json:"visits" db:"visits"`
	LastVisit time.Time  `json:"last_visit" db:"last_visit"`
}
