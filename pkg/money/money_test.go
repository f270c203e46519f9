package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound2Bankers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2.805", "2.80"},
		{"2.815", "2.82"},
		{"2.825", "2.82"},
		{"7.004999", "7.00"},
		{"4.20", "4.20"},
	}
	for _, tc := range tests {
		got := Round2(decimal.RequireFromString(tc.in))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Round2(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestApplyRate(t *testing.T) {
	amount := decimal.RequireFromString("100")
	rate := decimal.RequireFromString("7")
	if got := ApplyRate(amount, rate); !got.Equal(decimal.RequireFromString("7")) {
		t.Fatalf("ApplyRate = %s, want 7", got)
	}
}

func TestProportionKeepsExactIntermediate(t *testing.T) {
	// 7.00 * 40 / 100 = 2.80 exactly.
	got := Proportion(
		decimal.RequireFromString("7.00"),
		decimal.RequireFromString("40"),
		decimal.RequireFromString("100"),
	)
	if !got.Equal(decimal.RequireFromString("2.8")) {
		t.Fatalf("Proportion = %s, want 2.8", got)
	}
}

func TestClamp(t *testing.T) {
	min := decimal.RequireFromString("1")
	max := decimal.RequireFromString("10")

	if got := Clamp(decimal.RequireFromString("0.5"), &min, &max); !got.Equal(min) {
		t.Fatalf("expected clamp to min, got %s", got)
	}
	if got := Clamp(decimal.RequireFromString("15"), &min, &max); !got.Equal(max) {
		t.Fatalf("expected clamp to max, got %s", got)
	}
	if got := Clamp(decimal.RequireFromString("5"), nil, nil); !got.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("expected unbounded passthrough, got %s", got)
	}
}
