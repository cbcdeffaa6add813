package billing

import (
	"time"

	"github.com/omnivurse/crm-eco-sub010/pkg/enums"
)

// NextBillingDate computes the next scheduled charge date after a successful
// charge at "from". The advance is anchored to the charge time, not to the
// previously stored date, so a schedule billed late drifts with the run that
// billed it. The billing day is clamped to the last day of months too short
// to hold it, and short months never shift later anchors because the anchor
// day is carried on the schedule.
func NextBillingDate(from time.Time, billingDay int, frequency enums.BillingFrequency) time.Time {
	from = from.UTC()

	months := frequency.Months()
	total := int(from.Month()) - 1 + months
	year := from.Year() + total/12
	month := time.Month(total%12 + 1)

	return time.Date(year, month, clampDay(billingDay, year, month), 0, 0, 0, 0, time.UTC)
}

func clampDay(billingDay, year int, month time.Month) int {
	if billingDay < 1 {
		billingDay = 1
	}
	if last := daysInMonth(year, month); billingDay > last {
		return last
	}
	return billingDay
}

// midnightUTC truncates t to the start of its UTC day, the form every
// stored billing date takes.
func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
