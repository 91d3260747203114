package srs

import (
	"testing"

	"github.com/conorfennell/knolsched/internal/rng"
)

func TestFuzzRange(t *testing.T) {
	testCases := []struct {
		ivl    int
		lo, hi int
	}{
		{ivl: 0, lo: 0, hi: 0},
		{ivl: 1, lo: 1, hi: 1},
		{ivl: 2, lo: 2, hi: 3},
		{ivl: 3, lo: 2, hi: 4},
		{ivl: 6, lo: 5, hi: 7},
		{ivl: 7, lo: 5, hi: 9},
		{ivl: 20, lo: 17, hi: 23},
		{ivl: 30, lo: 26, hi: 34},
		{ivl: 100, lo: 95, hi: 105},
	}

	for _, tc := range testCases {
		lo, hi := FuzzRange(tc.ivl, nil)
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("Expected FuzzRange(%d) to be [%d, %d], but got [%d, %d]", tc.ivl, tc.lo, tc.hi, lo, hi)
		}
	}
}

func TestFuzzRangeCustomBands(t *testing.T) {
	bands := []FuzzBand{{From: 10, Percent: 0.5, MinDays: 0}}

	if lo, hi := FuzzRange(5, bands); lo != 5 || hi != 5 {
		t.Errorf("Expected no fuzz below the first band, but got [%d, %d]", lo, hi)
	}
	if lo, hi := FuzzRange(10, bands); lo != 5 || hi != 15 {
		t.Errorf("Expected [5, 15], but got [%d, %d]", lo, hi)
	}
	if lo, hi := FuzzRange(10, []FuzzBand{}); lo != 10 || hi != 10 {
		t.Errorf("Expected an empty table to disable fuzz, but got [%d, %d]", lo, hi)
	}
}

func TestFuzzStaysInWindow(t *testing.T) {
	r := rng.New(7)
	for ivl := 1; ivl < 400; ivl++ {
		lo, hi := FuzzRange(ivl, nil)
		for i := 0; i < 20; i++ {
			got := Fuzz(ivl, nil, r)
			if got < lo || got > hi {
				t.Fatalf("Expected Fuzz(%d) in [%d, %d], but got %d", ivl, lo, hi, got)
			}
		}
	}
}

func TestFuzzIsDeterministic(t *testing.T) {
	a, b := rng.New(99), rng.New(99)
	for ivl := 2; ivl < 100; ivl++ {
		if x, y := Fuzz(ivl, nil, a), Fuzz(ivl, nil, b); x != y {
			t.Fatalf("Expected equal seeds to fuzz %d identically, but got %d and %d", ivl, x, y)
		}
	}
}
