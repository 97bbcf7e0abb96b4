package asyncnode

import "fmt"

// ProgressInfo is a current/total counter pair for UI progress messages.
type ProgressInfo struct {
	Current int
	Total   int
}

// String formats the counter as "current/total".
func (p ProgressInfo) String() string {
	return fmt.Sprintf("%d/%d", p.Current, p.Total)
}

// Fraction returns completion in [0,1]. A zero total reports 0.
func (p ProgressInfo) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}
