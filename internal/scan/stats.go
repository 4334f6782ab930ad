package scan

import "github.com/sloppy/infrared/internal/engine"

// Stats is the running per-job verdict tally. Buckets only grow within one
// job, and Clean+Malicious+Suspicious+Errors always equals Total.
type Stats struct {
	Total      int `json:"total"`
	Clean      int `json:"clean"`
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Errors     int `json:"errors"`
}

// Add tallies one verdict. Signature and hash hits land in the same
// malicious bucket; anything unrecognized counts as an error.
func (s *Stats) Add(v engine.Verdict) {
	s.Total++
	switch {
	case v == engine.Clean:
		s.Clean++
	case v.Malicious():
		s.Malicious++
	case v == engine.SuspiciousHeuristic:
		s.Suspicious++
	default:
		s.Errors++
	}
}

// Threats is the count of files needing attention.
func (s Stats) Threats() int {
	return s.Malicious + s.Suspicious
}

// Percent converts a bucket count into a share of the total. A zero total
// yields 0 for every bucket rather than dividing by zero.
func (s Stats) Percent(count int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(count) / float64(s.Total) * 100
}
