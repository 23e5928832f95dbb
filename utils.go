package main

import (
	mathrand "math/rand"

	"golang.org/x/exp/rand"
)

// datasetSeed keeps collected datasets identical across training seeds.
const datasetSeed = 0

// seedAll seeds the global random sources and returns the private source
// that drives weight init, the eval split and batch sampling.
func seedAll(seed int64) *rand.Rand {
	mathrand.Seed(seed)
	rand.Seed(uint64(seed))
	return rand.New(rand.NewSource(uint64(seed)))
}
