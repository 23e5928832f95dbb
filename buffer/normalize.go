package buffer

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// NormalizeEps is added to every feature std.
const NormalizeEps = 1e-3

// Normalizer holds per-feature statistics of the training states.
type Normalizer struct {
	Mean []float64
	Std  []float64
}

// NormalizeStates computes the normalizer over this buffer's states and
// rescales both states and next states with it.
func (b *ReplayBuffer) NormalizeStates() (Normalizer, error) {
	if b.size == 0 {
		return Normalizer{}, ErrEmptyBuffer
	}

	n := Normalizer{
		Mean: make([]float64, b.stateDim),
		Std:  make([]float64, b.stateDim),
	}
	col := make([]float64, b.size)
	for j := 0; j < b.stateDim; j++ {
		for i := 0; i < b.size; i++ {
			col[i] = b.state[i*b.stateDim+j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		n.Mean[j] = mean
		n.Std[j] = std + NormalizeEps
	}

	if err := n.Apply(b); err != nil {
		return Normalizer{}, err
	}
	return n, nil
}

// Apply rescales the states and next states of b in place.
func (n Normalizer) Apply(b *ReplayBuffer) error {
	if len(n.Mean) != b.stateDim || len(n.Std) != b.stateDim {
		return fmt.Errorf("%w: normalizer has %d features, buffer %d", ErrDimension, len(n.Mean), b.stateDim)
	}
	n.apply(b.state)
	n.apply(b.nextState)
	return nil
}

// ApplyVec rescales a single row-major block of states in place.
func (n Normalizer) ApplyVec(states []float64) {
	n.apply(states)
}

func (n Normalizer) apply(states []float64) {
	dim := len(n.Mean)
	for i, v := range states {
		j := i % dim
		states[i] = (v - n.Mean[j]) / n.Std[j]
	}
}
