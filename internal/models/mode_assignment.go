package models

// ModeSource tells how a leg's transit mode and line were determined
type ModeSource string

// ModeSource constants
const (
	SourceLive    ModeSource = "LIVE"
	SourcePlanner ModeSource = "PLANNER"
	SourceUser    ModeSource = "USER"
)

// Automatic reports whether the source is recomputed by leg generation
func (s ModeSource) Automatic() bool {
	return s == SourceLive || s == SourcePlanner
}

// ModeAssignment is one source's opinion of a leg's mode. At most one per (leg, source).
type ModeAssignment struct {
	LegID  int64      `json:"leg_id" db:"leg_id"`
	Source ModeSource `json:"source" db:"source"`
	Mode   string     `json:"mode" db:"mode"` // BUS, TRAM, SUBWAY, RAIL, FERRY, ...
	Line   string     `json:"line,omitempty" db:"line"`
}
