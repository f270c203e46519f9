package config

import (
	"testing"
	"time"
)

func TestPayoutConfigWeekday(t *testing.T) {
	tests := []struct {
		name    string
		cadence string
		want    time.Weekday
	}{
		{name: "default friday", cadence: "Friday", want: time.Friday},
		{name: "lowercase friday", cadence: "friday", want: time.Friday},
		{name: "monday", cadence: "monday", want: time.Monday},
		{name: "padded mixed case", cadence: " Wednesday ", want: time.Wednesday},
		{name: "unknown falls back to friday", cadence: "someday", want: time.Friday},
		{name: "empty falls back to friday", cadence: "", want: time.Friday},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := PayoutConfig{CadenceWeekday: tc.cadence}
			if got := cfg.Weekday(); got != tc.want {
				t.Fatalf("Weekday(%q) = %s, want %s", tc.cadence, got, tc.want)
			}
		})
	}
}
