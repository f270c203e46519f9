package payout

import (
	"testing"
	"time"
)

func TestNextCadence(t *testing.T) {
	tests := []struct {
		name    string
		from    time.Time
		weekday time.Weekday
		want    time.Time
	}{
		{
			name:    "midweek to friday",
			from:    time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC), // Wednesday
			weekday: time.Friday,
			want:    time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "on cadence day rolls to next week",
			from:    time.Date(2026, 3, 13, 10, 0, 0, 0, time.UTC), // Friday
			weekday: time.Friday,
			want:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "saturday wraps to friday",
			from:    time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), // Saturday
			weekday: time.Friday,
			want:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "monday cadence",
			from:    time.Date(2026, 3, 13, 23, 59, 0, 0, time.UTC), // Friday
			weekday: time.Monday,
			want:    time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextCadence(tc.from, tc.weekday)
			if !got.Equal(tc.want) {
				t.Fatalf("NextCadence(%v, %v) = %v, want %v", tc.from, tc.weekday, got, tc.want)
			}
		})
	}
}
