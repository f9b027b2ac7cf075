// Package rng provides the random sources used by samplers and the seed
// derivation that keeps every draw of a batch on its own stream.
package rng

import (
	"math/bits"

	"gonum.org/v1/gonum/mathext/prng"
)

// Source is satisfied by the gonum prng generators and can be handed directly
// to the Src field of gonum distuv distributions.
type Source interface {
	// Uint64 returns a random number in [0, MaxUint64] and advances the
	// generator's state.
	Uint64() uint64
	Seed(seed uint64)
}

// New returns a 64-bit MT19937 source seeded with all 64 bits of seed.
func New(seed uint64) Source {
	source := prng.NewMT19937_64()
	source.Seed(seed)
	return source
}

// DeriveSeed returns the seed for substream index under base. It is the
// (index+1)-th output of a SplitMix64 generator seeded with base, so distinct
// indexes of one batch never share a stream and the mapping does not depend
// on how draws are scheduled across workers.
func DeriveSeed(base uint64, index int) uint64 {
	const gamma = 0x9e3779b97f4a7c15
	return prng.NewSplitMix64(base + uint64(index)*gamma).Uint64()
}

// Float64 returns a uniform number in [0, 1) built from the top 53 bits of one
// Uint64 draw.
func Float64(src Source) float64 {
	return float64(src.Uint64()>>11) * 0x1p-53
}

// IntN returns a number in [0, n). n must be positive.
func IntN(src Source, n int) int {
	if n <= 0 {
		panic("rng: IntN called with non-positive n")
	}
	hi, _ := bits.Mul64(src.Uint64(), uint64(n))
	return int(hi)
}
