package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream returns an independent generator for one named operation and
	// index (trial chunk, dataset slot). The same name, index and base seed
	// always yield the same sequence, whatever the worker count.
	Stream(name string, index int) *rand.Rand

	// Seed returns the base seed the streams derive from.
	Seed() int64
}
