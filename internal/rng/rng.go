// Package rng provides the seedable random sources used for interval fuzz
// and queue shuffling. Sources satisfy math/rand/v2's Source, whose Uint64
// method is the only primitive the scheduler needs.
package rng

import (
	"math/rand/v2"
	"time"
)

// New returns a deterministic generator for the given seed.
func New(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSource returns a generator seeded from the wall clock.
func NewSource() *rand.Rand {
	return New(uint64(time.Now().UnixNano()))
}

// ForDay returns a generator seeded by a day index, so a shuffle made with it
// is stable for the whole day.
func ForDay(day int64) *rand.Rand {
	return New(uint64(day))
}

// Between returns a uniform integer in [lo, hi]. It returns lo when hi < lo.
func Between(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}
