package schema

import "time"

// Route is a distance-vector routing table entry.
type Route struct {
	Destination  string
	NextHop      string // must be a direct neighbor
	Metric       int
	Sequence     uint64
	LearnedAt    time.Time
	LearnedFrom  string
}

// Dominates reports whether a candidate (seq, metric) strictly dominates the
// receiver under the order (sequence desc, metric asc).
func (r Route) Dominates(seq uint64, metric int) bool {
	if seq > r.Sequence {
		return true
	}
	if seq == r.Sequence && metric < r.Metric {
		return true
	}
	return false
}
