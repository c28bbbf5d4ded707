// Package rng is the only source of randomness in the execution path.
//
// It wraps the PCG generator from math/rand/v2, whose algorithm and output
// are fixed by the Go standard library, so a seed produces the same stream on
// every machine and Go release.
package rng

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
)

// streamIncrement is the PCG stream selector used for every root generator.
const streamIncrement = 0x9e3779b97f4a7c15

// RNG is a seeded deterministic random stream. Not safe for concurrent use;
// each replay owns its own instance.
type RNG struct {
	seed uint64
	src  *rand.PCG
	r    *rand.Rand
}

// New creates a stream from an integer seed.
func New(seed uint64) *RNG {
	src := rand.NewPCG(seed, streamIncrement)
	return &RNG{seed: seed, src: src, r: rand.New(src)}
}

// SeedFromString derives a seed from a human-chosen identifier.
// The first 8 bytes of SHA256(s), big endian.
func SeedFromString(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(sum[:8])
}

// FromString is New(SeedFromString(s)).
func FromString(s string) *RNG {
	return New(SeedFromString(s))
}

// Seed returns the seed the stream was created with.
func (g *RNG) Seed() uint64 { return g.seed }

// Next returns a float in [0, 1).
func (g *RNG) Next() float64 {
	return g.r.Float64()
}

// NextInt returns an int in [min, max]. Returns min when max <= min.
func (g *RNG) NextInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + g.r.IntN(max-min+1)
}

// NextFloat returns a float in [min, max). Returns min when max <= min.
func (g *RNG) NextFloat(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + g.r.Float64()*(max-min)
}

// Bernoulli returns true with probability p.
func (g *RNG) Bernoulli(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.r.Float64() < p
}

// Clone returns an independent copy positioned at the same point of the
// stream. Draws from the clone do not advance the original.
func (g *RNG) Clone() *RNG {
	state, err := g.src.MarshalBinary()
	if err != nil {
		// PCG.MarshalBinary never fails.
		panic(err)
	}
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(state); err != nil {
		panic(err)
	}
	return &RNG{seed: g.seed, src: src, r: rand.New(src)}
}

// Derive returns a substream keyed by key. The substream depends only on the
// root seed and the key, never on how many values the parent has drawn, so a
// fill that is skipped cannot shift the draws of later fills.
func (g *RNG) Derive(key string) *RNG {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], g.seed)
	h.Write(buf[:])
	h.Write([]byte(key))
	sum := h.Sum(nil)

	src := rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])|1)
	return &RNG{seed: g.seed, src: src, r: rand.New(src)}
}
