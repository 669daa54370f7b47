package report

import (
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMode is returned for an unrecognized schedule mode string.
var ErrInvalidMode = fmt.Errorf("invalid schedule mode")

// ScheduleMode selects the window computation rule for a report.
type ScheduleMode string

const (
	ModeDaily      ScheduleMode = "DAILY"
	ModeWeekly     ScheduleMode = "WEEKLY"
	ModeMonthly    ScheduleMode = "MONTHLY"
	ModeMonthlyMTD ScheduleMode = "MONTHLY_MTD"
)

// ParseMode resolves a mode string case-insensitively.
func ParseMode(s string) (ScheduleMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ModeDaily):
		return ModeDaily, nil
	case string(ModeWeekly):
		return ModeWeekly, nil
	case string(ModeMonthly):
		return ModeMonthly, nil
	case string(ModeMonthlyMTD):
		return ModeMonthlyMTD, nil
	default:
		return "", fmt.Errorf("%w: %q (use DAILY, WEEKLY, MONTHLY, or MONTHLY_MTD)", ErrInvalidMode, s)
	}
}

// Label returns the human form used in email sections, e.g. "Monthly MTD".
func (m ScheduleMode) Label() string {
	if m == ModeMonthlyMTD {
		return "Monthly MTD"
	}
	s := string(m)
	if s == "" {
		return ""
	}
	return s[:1] + strings.ToLower(s[1:])
}

// DateWindow is a half-open [Start, End) datetime range, both ends at local
// midnight. It parameterizes the report query and is never persisted.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

func (w DateWindow) String() string {
	return fmt.Sprintf("%s -> %s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// Midnight normalizes t to 00:00:00 in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ComputeWindow maps a schedule mode and a reference date to its window:
//
//	DAILY       [midnight(ref), midnight(ref)+1d)
//	WEEKLY      [midnight(ref)-7d, midnight(ref))         trailing week
//	MONTHLY     [1st of prior month, 1st of ref's month)  full prior month
//	MONTHLY_MTD [1st of ref's month, midnight(ref)+1d)    month to date
func ComputeWindow(mode ScheduleMode, ref time.Time) (DateWindow, error) {
	midnight := Midnight(ref)
	firstOfMonth := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())

	switch mode {
	case ModeDaily:
		return DateWindow{Start: midnight, End: midnight.AddDate(0, 0, 1)}, nil
	case ModeWeekly:
		return DateWindow{Start: midnight.AddDate(0, 0, -7), End: midnight}, nil
	case ModeMonthly:
		return DateWindow{Start: firstOfMonth.AddDate(0, -1, 0), End: firstOfMonth}, nil
	case ModeMonthlyMTD:
		return DateWindow{Start: firstOfMonth, End: midnight.AddDate(0, 0, 1)}, nil
	default:
		return DateWindow{}, fmt.Errorf("%w: %q (use DAILY, WEEKLY, MONTHLY, or MONTHLY_MTD)", ErrInvalidMode, mode)
	}
}

// ComputeFiscalWindow returns the fiscal year-to-date window through the end
// of the previous month: [1st of the anchor month, 1st of ref's month).
// When ref falls inside the anchor month the year-to-date range would be
// empty, so the anchor rolls back a year and the window covers the full
// prior fiscal year.
func ComputeFiscalWindow(ref time.Time, yearStart time.Month) DateWindow {
	end := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	start := time.Date(ref.Year(), yearStart, 1, 0, 0, 0, 0, ref.Location())
	if !start.Before(end) {
		start = start.AddDate(-1, 0, 0)
	}
	return DateWindow{Start: start, End: end}
}

// DateString is the compact day stamp used in artifact and log file names.
func DateString(t time.Time) string {
	return t.Format("20060102")
}
