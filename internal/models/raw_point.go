package models

import "time"

// Activity is an activity classifier label, or a stabilized activity derived from them.
type Activity string

// Activity constants. ActivityNotSet is the empty value so it maps to SQL NULL.
const (
	ActivityNotSet    Activity = ""
	ActivityInVehicle Activity = "IN_VEHICLE"
	ActivityOnBicycle Activity = "ON_BICYCLE"
	ActivityOnFoot    Activity = "ON_FOOT"
	ActivityRunning   Activity = "RUNNING"
	ActivityStill     Activity = "STILL"
	ActivityTilting   Activity = "TILTING"
	ActivityUnknown   Activity = "UNKNOWN"
	ActivityWalking   Activity = "WALKING"
)

// String returns the label, or NOT_SET for the empty activity
func (a Activity) String() string {
	if a == ActivityNotSet {
		return "NOT_SET"
	}
	return string(a)
}

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RawPoint is one telemetry sample uploaded by a device.
// Up to three classifier guesses are ranked 1..3; confidence 0 means absent.
type RawPoint struct {
	ID         int64      `json:"id" db:"id"`
	DeviceID   int64      `json:"device_id" db:"device_id"`
	Time       time.Time  `json:"time" db:"time"` // stored as unix seconds
	Coordinate Coordinate `json:"coordinate"`
	Accuracy   float64    `json:"accuracy" db:"accuracy"`

	Activity1   Activity `json:"activity_1,omitempty" db:"activity_1"`
	Activity2   Activity `json:"activity_2,omitempty" db:"activity_2"`
	Activity3   Activity `json:"activity_3,omitempty" db:"activity_3"`
	Confidence1 int      `json:"activity_1_conf" db:"activity_1_conf"`
	Confidence2 int      `json:"activity_2_conf" db:"activity_2_conf"`
	Confidence3 int      `json:"activity_3_conf" db:"activity_3_conf"`
}

// ActivityTuple is the classifier part of a point, compared by the duplicate guard
type ActivityTuple struct {
	Activity1, Activity2, Activity3       Activity
	Confidence1, Confidence2, Confidence3 int
}

// Tuple returns the point's classifier tuple
func (p RawPoint) Tuple() ActivityTuple {
	return ActivityTuple{
		Activity1:   p.Activity1,
		Activity2:   p.Activity2,
		Activity3:   p.Activity3,
		Confidence1: p.Confidence1,
		Confidence2: p.Confidence2,
		Confidence3: p.Confidence3,
	}
}

// Device maps a device to its owning user
type Device struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"user_id" db:"user_id"`
}
