package advisor

import (
	"fmt"
	"time"
)

// Date range names accepted by get_category_spending.
const (
	rangeLast7Days  = "last7days"
	rangeLast30Days = "last30days"
	rangeLast90Days = "last90days"
	rangeThisMonth  = "thisMonth"
	rangeLastMonth  = "lastMonth"

	defaultDateRange = rangeLast30Days
)

var dateRangeNames = []string{rangeLast7Days, rangeLast30Days, rangeLast90Days, rangeThisMonth, rangeLastMonth}

// resolveDateRange converts a symbolic range into a concrete [start, end)
// window. All boundaries are UTC.
func resolveDateRange(name string, now time.Time) (start, end time.Time, err error) {
	now = now.UTC()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch name {
	case rangeLast7Days:
		return now.AddDate(0, 0, -7), now, nil
	case rangeLast30Days:
		return now.AddDate(0, 0, -30), now, nil
	case rangeLast90Days:
		return now.AddDate(0, 0, -90), now, nil
	case rangeThisMonth:
		return firstOfMonth, now, nil
	case rangeLastMonth:
		return firstOfMonth.AddDate(0, -1, 0), firstOfMonth, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown date range %q", name)
	}
}
