package engine

import "math/rand"

// countingSource counts draws from the underlying source so a restored RNG
// lands on exactly the same stream position, however many draws each call
// consumed.
type countingSource struct {
	src   rand.Source64
	draws int64
}

func (c *countingSource) Int63() int64 {
	c.draws++
	return c.src.Int63()
}

func (c *countingSource) Uint64() uint64 {
	c.draws++
	return c.src.Uint64()
}

func (c *countingSource) Seed(seed int64) {
	c.draws = 0
	c.src.Seed(seed)
}

// RNG wraps math/rand.Rand with deterministic position tracking.
// Each NPC owns one; it is only consulted for exploration.
type RNG struct {
	seed int64
	src  *countingSource
	r    *rand.Rand
}

// NewRNG creates a new deterministic RNG from a seed.
func NewRNG(seed int64) *RNG {
	cs := &countingSource{src: rand.NewSource(seed).(rand.Source64)}
	return &RNG{seed: seed, src: cs, r: rand.New(cs)}
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	return r.r.Float64()
}

// Intn returns a value in [0, n).
func (r *RNG) Intn(n int) int {
	return r.r.Intn(n)
}

// Seed returns the seed the RNG was created from.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Position returns the number of source draws since creation.
func (r *RNG) Position() int64 {
	return r.src.draws
}

// RestoreRNG creates an RNG and advances it to the given position.
// This reproduces the exact RNG state for save/load.
func RestoreRNG(seed int64, position int64) *RNG {
	rng := NewRNG(seed)
	for i := int64(0); i < position; i++ {
		rng.src.Int63()
	}
	return rng
}
