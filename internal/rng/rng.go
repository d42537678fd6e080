// Package rng derives reproducible random draws from 64-bit seeds.
//
// Every draw is a pure function of a seed and a position (a list of
// integers naming where in the run the draw happens). There is no shared
// generator state, so resolutions can be computed ahead of time, cached and
// re-verified in any order.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

const golden = 0x9e3779b97f4a7c15

func splitmix(x uint64) uint64 {
	x += golden
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Mix derives a sub-seed from seed and the given position parts.
// The same inputs always produce the same output.
func Mix(seed uint64, parts ...uint64) uint64 {
	h := splitmix(seed)
	for _, p := range parts {
		h = splitmix(h ^ splitmix(p+golden))
	}
	return h
}

// New returns a generator positioned at (seed, parts...). Callers own the
// returned generator; it is never shared.
func New(seed uint64, parts ...uint64) *rand.Rand {
	s := Mix(seed, parts...)
	return rand.New(rand.NewPCG(s, splitmix(s)))
}

// Intn returns a value in [0, n). n must be positive.
func Intn(n int, seed uint64, parts ...uint64) int {
	return New(seed, parts...).IntN(n)
}

// Float64 returns a value in [0, 1).
func Float64(seed uint64, parts ...uint64) float64 {
	return New(seed, parts...).Float64()
}

// Uniform returns a value in [lo, hi].
func Uniform(lo, hi float64, seed uint64, parts ...uint64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + (hi-lo)*Float64(seed, parts...)
}

// Perm returns a permutation of [0, n).
func Perm(n int, seed uint64, parts ...uint64) []int {
	return New(seed, parts...).Perm(n)
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
