package settlement

import "time"

// =============================================================================
// PERIOD - The monthly boundary for settlement generation
// =============================================================================

// Period is a half-open time range [Start, End). Settlements are always
// generated for a calendar month; half-open bounds keep a submission
// created at exactly midnight on the 1st in the following month.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the period covering the given calendar month, in UTC.
func MonthPeriod(year, month int) (Period, error) {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		return Period{}, ErrInvalidPeriod
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// PreviousMonth returns the (year, month) preceding the given time.
// Used by the auto-generation scheduler.
func PreviousMonth(now time.Time) (int, int) {
	t := now.UTC().AddDate(0, -1, -now.UTC().Day()+1)
	return t.Year(), int(t.Month())
}

// Contains returns true if t falls within the period [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + ")"
}
