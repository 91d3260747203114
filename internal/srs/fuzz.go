package srs

import (
	"math/rand/v2"

	"github.com/conorfennell/knolsched/internal/rng"
)

// FuzzBand applies to intervals of at least From days. The window is
// ivl ± max(MinDays, ivl*Percent).
type FuzzBand struct {
	From    int     `koanf:"from" validate:"gte=2"`
	Percent float64 `koanf:"percent" validate:"gte=0,lt=1"`
	MinDays int     `koanf:"min_days" validate:"gte=0"`
}

// DefaultFuzzBands returns the band table used when none is configured.
// Short intervals get wide windows and long intervals narrow ones.
func DefaultFuzzBands() []FuzzBand {
	return []FuzzBand{
		{From: 2, Percent: 0.25, MinDays: 1},
		{From: 7, Percent: 0.15, MinDays: 2},
		{From: 30, Percent: 0.05, MinDays: 4},
	}
}

// FuzzRange returns the inclusive window an interval may be fuzzed into.
// Intervals below 2 days are never fuzzed and the lower bound never drops
// below 2.
func FuzzRange(ivl int, bands []FuzzBand) (lo, hi int) {
	if ivl < 2 {
		return ivl, ivl
	}
	if bands == nil {
		bands = DefaultFuzzBands()
	}
	band, ok := bandFor(ivl, bands)
	if !ok {
		return ivl, ivl
	}
	fuzz := max(band.MinDays, int(float64(ivl)*band.Percent), 1)
	return max(2, ivl-fuzz), ivl + fuzz
}

// bandFor picks the band with the largest From not above ivl.
func bandFor(ivl int, bands []FuzzBand) (FuzzBand, bool) {
	var (
		best  FuzzBand
		found bool
	)
	for _, b := range bands {
		if b.From <= ivl && (!found || b.From > best.From) {
			best, found = b, true
		}
	}
	return best, found
}

// Fuzz draws a uniformly random interval from FuzzRange.
func Fuzz(ivl int, bands []FuzzBand, r *rand.Rand) int {
	lo, hi := FuzzRange(ivl, bands)
	if lo == hi {
		return lo
	}
	return rng.Between(r, lo, hi)
}
