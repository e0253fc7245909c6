package entity

import "time"

// SyncSummary is the outcome of one sync run.
type SyncSummary struct {
	RunID     string
	Mode      string
	StartedAt time.Time
	Duration  time.Duration

	Selected  int // Records matched by the mode's predicate
	Attempted int // Records a worker started on
	Failed    int // Downloads that did not settle the record

	StaleFound   int
	StaleDeleted int
	StaleFailed  int
}

// Interrupted reports whether the run stopped before every selected record was attempted.
func (s *SyncSummary) Interrupted() bool {
	return s.Attempted < s.Selected
}
