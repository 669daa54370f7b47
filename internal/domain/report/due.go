package report

import "time"

// DueSet reports which report categories are due on a given calendar day.
// Both flags can hold at once (a Monday that is also the 1st).
type DueSet struct {
	Weekly  bool
	Monthly bool
}

// WhatIsDue applies the cadence rules: weekly reports fire on Mondays,
// monthly reports on the first day of the month.
func WhatIsDue(ref time.Time) DueSet {
	return DueSet{
		Weekly:  ref.Weekday() == time.Monday,
		Monthly: ref.Day() == 1,
	}
}

// None is true when no category is due.
func (d DueSet) None() bool {
	return !d.Weekly && !d.Monthly
}
