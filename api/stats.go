// File: api/stats.go
// Author: momentics <momentics@gmail.com>
//
// Read-only statistics snapshots for the buffer pool and hint-token pool.

package api

import "fmt"

// SizeClassStatistics is the per-class breakdown of PoolStatistics.
type SizeClassStatistics struct {
	Index       int
	Capacity    int
	MaxResident int
	Free        int // current free-list length
	Rents       int64
	Returns     int64
	Hits        int64
	Misses      int64
	Discards    int64 // returns dropped because the class was full
}

// Outstanding is rents minus returns for this class.
func (s SizeClassStatistics) Outstanding() int64 { return s.Rents - s.Returns }

// HitRate is hits / (hits + misses), 0 when the class was never rented.
func (s SizeClassStatistics) HitRate() float64 { return ratio(s.Hits, s.Misses) }

func (s SizeClassStatistics) String() string {
	return fmt.Sprintf(
		"Class[size=%d, free=%d, rents=%d, returns=%d, hits=%d, misses=%d, discards=%d, outstanding=%d, hitRate=%.2f%%]",
		s.Capacity, s.Free, s.Rents, s.Returns, s.Hits, s.Misses, s.Discards, s.Outstanding(), s.HitRate()*100,
	)
}

// PoolStatistics aggregates buffer pool counters.
type PoolStatistics struct {
	Rents         int64
	Returns       int64
	Hits          int64
	Misses        int64
	Discards      int64
	OversizeRents int64
	Classes       []SizeClassStatistics
}

// Overflow counts both oversize rents and full-class discards.
func (s PoolStatistics) Overflow() int64 { return s.OversizeRents + s.Discards }

// Outstanding is buffers currently rented but not yet returned.
// Oversize buffers are untracked and never contribute.
func (s PoolStatistics) Outstanding() int64 { return s.Rents - s.Returns }

// HitRate is hits / (hits + misses) across all classes.
func (s PoolStatistics) HitRate() float64 { return ratio(s.Hits, s.Misses) }

func (s PoolStatistics) String() string {
	return fmt.Sprintf(
		"PoolStatistics[rents=%d, returns=%d, hits=%d, misses=%d, overflow=%d, outstanding=%d, hitRate=%.2f%%]",
		s.Rents, s.Returns, s.Hits, s.Misses, s.Overflow(), s.Outstanding(), s.HitRate()*100,
	)
}

// HintStatistics aggregates hint-token pool counters.
type HintStatistics struct {
	Acquired   int64
	Claimed    int64
	Duplicates int64 // claims for a handle that was already claimed
	Unknown    int64 // claims for a handle never issued
	Allocated  int64 // tokens ever created
	Free       int
	Live       int64
}

func ratio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
