package patient

import (
	"fmt"
	"time"
)

// Range is a named window over patient creation dates.
type Range string

const (
	RangeAll        Range = "all"
	RangeToday      Range = "today"
	RangeYesterday  Range = "yesterday"
	RangeLast7Days  Range = "last7days"
	RangeLast30Days Range = "last30days"
	RangeThisMonth  Range = "thisMonth"
	RangeLastMonth  Range = "lastMonth"
)

// Bounds returns the half-open interval [from, to) selected by r relative to
// now, in now's location. Both are zero for RangeAll.
func (r Range) Bounds(now time.Time) (from, to time.Time, err error) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	month := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())

	switch r {
	case RangeAll, "":
		return time.Time{}, time.Time{}, nil
	case RangeToday:
		return today, today.AddDate(0, 0, 1), nil
	case RangeYesterday:
		return today.AddDate(0, 0, -1), today, nil
	case RangeLast7Days:
		return today.AddDate(0, 0, -7), now.Add(time.Nanosecond), nil
	case RangeLast30Days:
		return today.AddDate(0, 0, -30), now.Add(time.Nanosecond), nil
	case RangeThisMonth:
		return month, month.AddDate(0, 1, 0), nil
	case RangeLastMonth:
		return month.AddDate(0, -1, 0), month, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown range %q", string(r))
	}
}
