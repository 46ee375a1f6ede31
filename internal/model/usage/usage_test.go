package usage

import (
	"testing"
	"time"
)

func TestBilledMinutes(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{-5 * time.Second, 0},
		{1 * time.Second, 1},
		{59 * time.Second, 1},
		{60 * time.Second, 1},
		{61 * time.Second, 2},
		{10 * time.Minute, 10},
		{10*time.Minute + time.Millisecond, 11},
	}

	for _, tc := range cases {
		if got := BilledMinutes(tc.elapsed); got != tc.want {
			t.Fatalf("BilledMinutes(%v) = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}

func TestParseTier(t *testing.T) {
	if ParseTier("unlimited") != TierUnlimited {
		t.Fatalf("expected unlimited tier")
	}
	if ParseTier("free") != TierFree {
		t.Fatalf("expected free tier")
	}
	if ParseTier("premium-plus") != TierFree {
		t.Fatalf("unknown tier should degrade to free")
	}
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	ts := time.Date(2025, 3, 10, 2, 30, 0, 0, loc) // 2025-03-09 18:30 UTC
	day := DayOf(ts)
	if day.Year() != 2025 || day.Month() != 3 || day.Day() != 9 {
		t.Fatalf("unexpected day: %v", day)
	}
	if day.Hour() != 0 || day.Location() != time.UTC {
		t.Fatalf("day should be midnight UTC, got %v", day)
	}
}
