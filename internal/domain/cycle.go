package domain

import "time"

// CycleStats holds statistics about one poll cycle.
type CycleStats struct {
	Sources        int
	SkippedSources int
	Fetched        int
	New            int
	Notified       int
	Duration       time.Duration
}
