package models

import "time"

// VehicleSample is one position report from the live public transport feed
type VehicleSample struct {
	ID         int64      `json:"id" db:"id"`
	SnapshotID string     `json:"snapshot_id" db:"snapshot_id"`
	VehicleRef string     `json:"vehicle_ref" db:"vehicle_ref"`
	Coordinate Coordinate `json:"coordinate"`
	Time       time.Time  `json:"time" db:"time"`
	LineType   string     `json:"line_type" db:"line_type"`
	LineName   string     `json:"line_name" db:"line_name"`
}
