package job

import "fmt"

// Lane is one of five fixed priority classes used to bias dispatch order.
// Higher-weight lanes are preferred by workers; the pool periodically
// drains the two lowest lanes so they are never starved.
type Lane string

const (
	// LaneCritical is for work that must run before everything else,
	// such as payment confirmations.
	LaneCritical Lane = "critical"
	// LaneUrgent is for time-sensitive customer-facing work, such as
	// order notifications.
	LaneUrgent Lane = "urgent"
	// LaneNormal is the default lane.
	LaneNormal Lane = "normal"
	// LaneBulk is for large fan-out workloads, such as catalog sync
	// batches and broadcast sends.
	LaneBulk Lane = "bulk"
	// LaneMaintenance is for background housekeeping, such as retention
	// sweeps.
	LaneMaintenance Lane = "maintenance"
)

// laneWeights defines the strict dispatch-preference ordering.
// Every lane maps to exactly one weight; higher dispatches first.
var laneWeights = map[Lane]int{
	LaneCritical:    50,
	LaneUrgent:      40,
	LaneNormal:      30,
	LaneBulk:        20,
	LaneMaintenance: 10,
}

// Lanes returns all lanes in dispatch-preference order, highest first.
func Lanes() []Lane {
	return []Lane{LaneCritical, LaneUrgent, LaneNormal, LaneBulk, LaneMaintenance}
}

// LowLanes returns the lanes drained on fairness polls, highest first.
func LowLanes() []Lane {
	return []Lane{LaneBulk, LaneMaintenance}
}

// Weight returns the dispatch preference for this lane. Higher weights
// dispatch first. Unknown lanes weigh zero.
func (l Lane) Weight() int {
	return laneWeights[l]
}

// Valid reports whether l is one of the five fixed lanes.
func (l Lane) Valid() bool {
	_, ok := laneWeights[l]
	return ok
}

// Group returns the scheduler group name for this lane, used by stores
// to namespace per-lane queues.
func (l Lane) Group() string {
	return "courier_" + string(l)
}

// String implements fmt.Stringer.
func (l Lane) String() string { return string(l) }

// ParseLane validates and returns the lane named by s.
func ParseLane(s string) (Lane, error) {
	l := Lane(s)
	if !l.Valid() {
		return "", fmt.Errorf("job: unknown lane %q", s)
	}
	return l, nil
}
