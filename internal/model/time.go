package model

import "time"

// EndOfTime is the sentinel deletion time of a resource that is not deleted
// and the end of an open index window.
var EndOfTime = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// StartOfTime is the earliest instant the registry reasons about.
var StartOfTime = time.Unix(0, 0).UTC()

// IsBeforeOrAt reports whether a is not after b.
func IsBeforeOrAt(a, b time.Time) bool {
	return !a.After(b)
}

// Window is a half-open validity interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Open reports whether the window has no end yet.
func (w Window) Open() bool {
	return w.End.Equal(EndOfTime)
}

// Overlaps reports whether two windows share at least one instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}
