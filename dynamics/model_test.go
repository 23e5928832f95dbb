package dynamics

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/exp/rand"
)

func testConfig() Config {
	return Config{
		StateDim:     3,
		ActionDim:    1,
		Hidden:       []int{8, 5},
		BatchSize:    16,
		LearningRate: 1e-2,
	}
}

// linearBatch builds rows where next = state + 0.1*action.
func linearBatch(rng *rand.Rand, rows int) (states, actions, next []float64) {
	for r := 0; r < rows; r++ {
		a := rng.Float64()*2 - 1
		actions = append(actions, a)
		for j := 0; j < 3; j++ {
			s := rng.NormFloat64()
			states = append(states, s)
			next = append(next, s+0.1*a)
		}
	}
	return states, actions, next
}

func newTestModel(t *testing.T, cfg Config, seed uint64) *Model {
	t.Helper()
	m, err := New(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func TestNumParams(t *testing.T) {
	m := newTestModel(t, testConfig(), 1)
	// (3+1)*8+8 + 8*5+5 + 5*3+3
	if got := m.NumParams(); got != 103 {
		t.Errorf("expected 103 parameters, got %d", got)
	}
	if len(m.Weights()) != 6 {
		t.Errorf("expected 6 named tensors, got %d", len(m.Weights()))
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	bad := []Config{
		{StateDim: 0, ActionDim: 1, Hidden: []int{4}, BatchSize: 1, LearningRate: 1},
		{StateDim: 1, ActionDim: 1, Hidden: nil, BatchSize: 1, LearningRate: 1},
		{StateDim: 1, ActionDim: 1, Hidden: []int{0}, BatchSize: 1, LearningRate: 1},
		{StateDim: 1, ActionDim: 1, Hidden: []int{4}, BatchSize: 0, LearningRate: 1},
		{StateDim: 1, ActionDim: 1, Hidden: []int{4}, BatchSize: 1, LearningRate: 0},
	}
	for i, cfg := range bad {
		if _, err := New(cfg, rand.New(rand.NewSource(1))); err == nil {
			t.Errorf("config %d should be rejected", i)
		}
	}
}

func TestTrainStepReducesLoss(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 2)
	states, actions, next := linearBatch(rand.New(rand.NewSource(5)), cfg.BatchSize)

	first, err := m.TrainStep(states, actions, next)
	if err != nil {
		t.Fatalf("TrainStep failed: %v", err)
	}
	last := first
	for i := 0; i < 300; i++ {
		if last, err = m.TrainStep(states, actions, next); err != nil {
			t.Fatalf("TrainStep %d failed: %v", i, err)
		}
	}
	if math.IsNaN(last) || last > first/2 {
		t.Errorf("loss did not drop: first %v, last %v", first, last)
	}
}

func TestSameSeedSameTrajectory(t *testing.T) {
	cfg := testConfig()
	a := newTestModel(t, cfg, 11)
	b := newTestModel(t, cfg, 11)
	states, actions, next := linearBatch(rand.New(rand.NewSource(5)), cfg.BatchSize)

	for i := 0; i < 20; i++ {
		la, err := a.TrainStep(states, actions, next)
		if err != nil {
			t.Fatal(err)
		}
		lb, err := b.TrainStep(states, actions, next)
		if err != nil {
			t.Fatal(err)
		}
		if la != lb {
			t.Fatalf("step %d: losses differ %v != %v", i, la, lb)
		}
	}
}

func TestEvaluateIsReadOnly(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 3)
	states, actions, next := linearBatch(rand.New(rand.NewSource(6)), 40)

	before := make(map[string][]float64)
	for name, w := range m.Weights() {
		before[name] = append([]float64(nil), w.Data().([]float64)...)
	}

	if _, err := m.Evaluate(states, actions, next); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !m.Training() {
		t.Error("Evaluate should restore training mode")
	}
	for name, w := range m.Weights() {
		for i, v := range w.Data().([]float64) {
			if v != before[name][i] {
				t.Fatalf("%s[%d] changed during evaluation", name, i)
			}
		}
	}
}

func TestEvaluateTracksTraining(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 4)
	rng := rand.New(rand.NewSource(8))
	evalStates, evalActions, evalNext := linearBatch(rng, 64)

	before, err := m.Evaluate(evalStates, evalActions, evalNext)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 400; i++ {
		s, a, n := linearBatch(rng, cfg.BatchSize)
		if _, err := m.TrainStep(s, a, n); err != nil {
			t.Fatal(err)
		}
	}
	after, err := m.Evaluate(evalStates, evalActions, evalNext)
	if err != nil {
		t.Fatal(err)
	}
	if after >= before {
		t.Errorf("eval loss should follow the trained weights: before %v, after %v", before, after)
	}
}

func TestEvaluateMatchesPredict(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 5)
	states, actions, next := linearBatch(rand.New(rand.NewSource(9)), 33)

	loss, err := m.Evaluate(states, actions, next)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := m.Predict(states, actions)
	if err != nil {
		t.Fatal(err)
	}
	if len(pred) != len(next) {
		t.Fatalf("expected %d predictions, got %d", len(next), len(pred))
	}
	mse := 0.0
	for i := range pred {
		d := pred[i] - next[i]
		mse += d * d
	}
	mse /= float64(len(pred))
	if math.Abs(mse-loss) > 1e-9 {
		t.Errorf("graph loss %v and forward pass mse %v disagree", loss, mse)
	}
}

func TestEvaluateKeepsEvalMode(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 8)
	states, actions, next := linearBatch(rand.New(rand.NewSource(2)), 10)

	m.Eval()
	if _, err := m.Evaluate(states, actions, next); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if m.Training() {
		t.Error("Evaluate switched an eval-mode model back to training")
	}
}

func TestEvalModeRefusesTraining(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 6)
	states, actions, next := linearBatch(rand.New(rand.NewSource(1)), cfg.BatchSize)

	m.Eval()
	if _, err := m.TrainStep(states, actions, next); !errors.Is(err, ErrEvalMode) {
		t.Errorf("expected ErrEvalMode, got %v", err)
	}
	m.Train()
	if _, err := m.TrainStep(states, actions, next); err != nil {
		t.Errorf("TrainStep after Train failed: %v", err)
	}
}

func TestShapeErrors(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 7)
	states, actions, next := linearBatch(rand.New(rand.NewSource(1)), cfg.BatchSize-1)

	if _, err := m.TrainStep(states, actions, next); !errors.Is(err, ErrShape) {
		t.Errorf("short batch: expected ErrShape, got %v", err)
	}
	if _, err := m.Evaluate(states, actions[:3], next); !errors.Is(err, ErrShape) {
		t.Errorf("short actions: expected ErrShape, got %v", err)
	}
	if _, err := m.Evaluate(nil, nil, nil); !errors.Is(err, ErrShape) {
		t.Errorf("empty eval: expected ErrShape, got %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 8)
	states, actions, next := linearBatch(rand.New(rand.NewSource(2)), cfg.BatchSize)
	for i := 0; i < 10; i++ {
		if _, err := m.TrainStep(states, actions, next); err != nil {
			t.Fatal(err)
		}
	}

	path := CheckpointPath(filepath.Join(t.TempDir(), "ckpt"), "pendulum-medium-v0", true)
	if filepath.Base(path) != "dynamics_pendulum-medium-v0_normtrue.gob" {
		t.Errorf("unexpected checkpoint name %s", filepath.Base(path))
	}

	ck := m.Checkpoint("pendulum-medium-v0", true, []float64{1, 2, 3}, []float64{4, 5, 6})
	if err := SaveCheckpoint(path, ck); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.Env != "pendulum-medium-v0" || !loaded.Normalized || loaded.Std[2] != 6 {
		t.Errorf("metadata lost: %+v", loaded)
	}

	restored, err := FromCheckpoint(loaded, cfg.BatchSize, cfg.LearningRate)
	if err != nil {
		t.Fatalf("FromCheckpoint failed: %v", err)
	}
	if restored.NumParams() != m.NumParams() {
		t.Errorf("parameter count %d, want %d", restored.NumParams(), m.NumParams())
	}

	want, _ := m.Predict(states, actions)
	got, err := restored.Predict(states, actions)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("prediction %d differs after reload: %v != %v", i, got[i], want[i])
		}
	}

	delete(loaded.Weights, "b3")
	if _, err := FromCheckpoint(loaded, cfg.BatchSize, cfg.LearningRate); !errors.Is(err, ErrShape) {
		t.Errorf("missing tensor: expected ErrShape, got %v", err)
	}
}

func TestCheckpointIsASnapshot(t *testing.T) {
	cfg := testConfig()
	m := newTestModel(t, cfg, 9)
	ck := m.Checkpoint("cartpole-expert-v0", false, nil, nil)
	w1 := ck.Weights["w1"].Data().([]float64)[0]

	states, actions, next := linearBatch(rand.New(rand.NewSource(2)), cfg.BatchSize)
	if _, err := m.TrainStep(states, actions, next); err != nil {
		t.Fatal(err)
	}
	if ck.Weights["w1"].Data().([]float64)[0] != w1 {
		t.Error("checkpoint should not follow later updates")
	}
}
