package dynamics

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

func init() {
	gob.Register(&tensor.Dense{})
	gob.Register(map[string]*tensor.Dense{})
}

// Checkpoint is the serialized result of a pretraining run.
type Checkpoint struct {
	Env        string
	StateDim   int
	ActionDim  int
	Hidden     []int
	Normalized bool
	Mean       []float64
	Std        []float64
	Weights    map[string]*tensor.Dense
}

// CheckpointPath names the checkpoint after env and normalization so that
// runs with different settings never overwrite each other.
func CheckpointPath(dir, env string, normalized bool) string {
	return filepath.Join(dir, fmt.Sprintf("dynamics_%s_norm%t.gob", env, normalized))
}

// Checkpoint snapshots the current weights.
func (m *Model) Checkpoint(env string, normalized bool, mean, std []float64) *Checkpoint {
	weights := make(map[string]*tensor.Dense, len(m.names))
	for name, w := range m.Weights() {
		weights[name] = w.Clone().(*tensor.Dense)
	}
	return &Checkpoint{
		Env:        env,
		StateDim:   m.cfg.StateDim,
		ActionDim:  m.cfg.ActionDim,
		Hidden:     append([]int(nil), m.cfg.Hidden...),
		Normalized: normalized,
		Mean:       mean,
		Std:        std,
		Weights:    weights,
	}
}

// SaveCheckpoint writes ck as gob, creating the directory if needed.
func SaveCheckpoint(path string, ck *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(ck); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return f.Close()
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	var ck Checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &ck, nil
}

// FromCheckpoint rebuilds a trainable model from ck.
func FromCheckpoint(ck *Checkpoint, batchSize int, lr float64) (*Model, error) {
	cfg := Config{
		StateDim:     ck.StateDim,
		ActionDim:    ck.ActionDim,
		Hidden:       ck.Hidden,
		BatchSize:    batchSize,
		LearningRate: lr,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// shapes come from a fresh init so a mismatching checkpoint is caught
	want := initParams(cfg, rand.New(rand.NewSource(0)))
	names := paramNames(len(cfg.Hidden) + 1)
	params := make([]*tensor.Dense, len(want))
	for i, name := range names {
		w, ok := ck.Weights[name]
		if !ok {
			return nil, fmt.Errorf("%w: checkpoint has no %s", ErrShape, name)
		}
		if !w.Shape().Eq(want[i].Shape()) {
			return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrShape, name, w.Shape(), want[i].Shape())
		}
		params[i] = w.Clone().(*tensor.Dense)
	}
	return newModel(cfg, params)
}
