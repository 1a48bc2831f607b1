package models

import "time"

// Leg is a contiguous time interval of one device with one stabilized activity.
// An empty Activity marks the undecided tail (terminator) of a device's stream.
type Leg struct {
	ID       int64  `json:"id" db:"id"`
	DeviceID int64  `json:"device_id" db:"device_id"`
	UserID   *int64 `json:"user_id,omitempty" db:"user_id"`

	TimeStart time.Time `json:"time_start" db:"time_start"`
	TimeEnd   time.Time `json:"time_end" db:"time_end"`

	CoordinateStart Coordinate `json:"coordinate_start"`
	CoordinateEnd   Coordinate `json:"coordinate_end"`

	Activity      Activity `json:"activity,omitempty" db:"activity"`
	ModesDetected bool     `json:"modes_detected" db:"modes_detected"`

	Modes []ModeAssignment `json:"modes,omitempty"`
}

// IsTerminator reports whether the leg is an undecided tail
func (l Leg) IsTerminator() bool {
	return l.Activity == ActivityNotSet
}

// Duration returns the observed duration of the leg
func (l Leg) Duration() time.Duration {
	return l.TimeEnd.Sub(l.TimeStart)
}

// AttachedTo reports whether the leg is attached to the given user's timeline
func (l Leg) AttachedTo(userID int64) bool {
	return l.UserID != nil && *l.UserID == userID
}

// SameAs compares the fields that identify a computed leg.
// IDs, user attachment and mode state are not part of the identity.
func (l Leg) SameAs(o Leg) bool {
	return l.DeviceID == o.DeviceID &&
		l.TimeStart.Equal(o.TimeStart) &&
		l.TimeEnd.Equal(o.TimeEnd) &&
		l.Activity == o.Activity &&
		l.CoordinateStart == o.CoordinateStart &&
		l.CoordinateEnd == o.CoordinateEnd
}

// Overlap returns how long two legs overlap, zero if they don't
func (l Leg) Overlap(o Leg) time.Duration {
	start := l.TimeStart
	if o.TimeStart.After(start) {
		start = o.TimeStart
	}
	end := l.TimeEnd
	if o.TimeEnd.Before(end) {
		end = o.TimeEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// LegFilter represents filter parameters for querying a device's legs
type LegFilter struct {
	From int64 `form:"from"` // Unix timestamp
	To   int64 `form:"to"`   // Unix timestamp
}
