package rng

import (
	"hash/fnv"
	"math/rand"
)

// SeededRNG derives deterministic streams from a base seed.
type SeededRNG struct {
	seed int64
}

// NewSeededRNG creates a stream factory for the given base seed
func NewSeededRNG(seed int64) *SeededRNG {
	return &SeededRNG{seed: seed}
}

// Seed returns the base seed
func (s *SeededRNG) Seed() int64 {
	return s.seed
}

// Stream returns a generator keyed by (seed, name, index).
func (s *SeededRNG) Stream(name string, index int) *rand.Rand {
	return rand.New(rand.NewSource(DeriveSeed(s.seed, name, index)))
}

// DeriveSeed mixes the base seed with a name and index through FNV-1a and
// a splitmix64 finalizer so neighbouring indexes get unrelated seeds.
func DeriveSeed(seed int64, name string, index int) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	x := h.Sum64() ^ uint64(seed) ^ (uint64(index) * 0x9e3779b97f4a7c15)
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}
