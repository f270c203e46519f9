package payout

import "time"

// NextCadence returns the next occurrence of the configured payout weekday at
// 00:00 UTC, strictly after the given instant. Running on the cadence day
// itself dates the payout for the following week; the midnight slot for today
// has already passed.
func NextCadence(from time.Time, weekday time.Weekday) time.Time {
	from = from.UTC()
	daysAhead := (int(weekday) - int(from.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	next := from.AddDate(0, 0, daysAhead)
	return time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, time.UTC)
}
