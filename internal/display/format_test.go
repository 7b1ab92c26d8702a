package display

import (
	"testing"
	"time"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		value    float64
		decimals int
		want     string
	}{
		{45000, 2, "$45,000.00"},
		{1234567.891, 2, "$1,234,567.89"},
		{999.5, 0, "$1,000"},
		{0.42, 2, "$0.42"},
		{-1500, 2, "-$1,500.00"},
	}
	for _, tc := range tests {
		if got := Currency(tc.value, tc.decimals); got != tc.want {
			t.Errorf("Currency(%v, %d) = %q, want %q", tc.value, tc.decimals, got, tc.want)
		}
	}
}

func TestLargeNumber(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{2.3e9, "$2.30B"},
		{1.5e6, "$1.50M"},
		{42_000, "$42.00K"},
		{12.5, "$12.50"},
	}
	for _, tc := range tests {
		if got := LargeNumber(tc.value); got != tc.want {
			t.Errorf("LargeNumber(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		ts   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "30s ago"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-2 * time.Hour), "2h ago"},
		{now.Add(-72 * time.Hour), "3d ago"},
		{now.Add(-45 * 24 * time.Hour), "1mo ago"},
		{now.Add(time.Minute), "just now"},
		{time.Time{}, ""},
	}
	for _, tc := range tests {
		if got := TimeAgo(tc.ts); got != tc.want {
			t.Errorf("TimeAgo(%v) = %q, want %q", tc.ts, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("This is a very long text", 15); got != "This is a ve..." {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("short", 15); got != "short" {
		t.Fatalf("Truncate should not touch short text, got %q", got)
	}
	if got := Truncate("abcdef", 2); got != "ab" {
		t.Fatalf("Truncate with tiny limit = %q", got)
	}
}
