package dynamics

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	// ErrEvalMode is returned by TrainStep while the model is in eval mode.
	ErrEvalMode = errors.New("model is in eval mode")
	// ErrShape reports inputs or checkpoint tensors that do not match the
	// layer sizes.
	ErrShape = errors.New("input shape mismatch")
)

// Config describes the network and optimizer.
type Config struct {
	StateDim     int
	ActionDim    int
	Hidden       []int
	BatchSize    int
	LearningRate float64
}

func (c Config) validate() error {
	if c.StateDim <= 0 || c.ActionDim <= 0 {
		return fmt.Errorf("invalid dims %d/%d", c.StateDim, c.ActionDim)
	}
	if len(c.Hidden) == 0 {
		return errors.New("at least one hidden layer is required")
	}
	for _, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("invalid hidden size %d", h)
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("invalid learning rate %v", c.LearningRate)
	}
	return nil
}

// layerSizes returns the width of every layer boundary, input first.
func (c Config) layerSizes() []int {
	sizes := []int{c.StateDim + c.ActionDim}
	sizes = append(sizes, c.Hidden...)
	return append(sizes, c.StateDim)
}

// Model predicts the next state from (state, action) with an MLP:
// concat -> [Linear -> ReLU] x len(Hidden) -> Linear.
type Model struct {
	cfg    Config
	names  []string
	train  *graph
	eval   *graph
	solver gorgonia.Solver
	// training is false while an evaluation pass runs
	training bool
}

// New builds a model with weights drawn from rng.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newModel(cfg, initParams(cfg, rng))
}

func newModel(cfg Config, params []*tensor.Dense) (*Model, error) {
	train, err := buildGraph(cfg, params, cfg.BatchSize, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build training graph: %w", err)
	}
	return &Model{
		cfg:      cfg,
		names:    paramNames(len(cfg.Hidden) + 1),
		train:    train,
		solver:   gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearningRate)),
		training: true,
	}, nil
}

// initParams draws every weight and bias from U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
func initParams(cfg Config, rng *rand.Rand) []*tensor.Dense {
	sizes := cfg.layerSizes()
	params := make([]*tensor.Dense, 0, 2*(len(sizes)-1))
	for i := 0; i+1 < len(sizes); i++ {
		in, out := sizes[i], sizes[i+1]
		bound := 1 / math.Sqrt(float64(in))
		params = append(params,
			tensor.New(tensor.WithShape(in, out), tensor.WithBacking(uniform(rng, in*out, bound))),
			tensor.New(tensor.WithShape(1, out), tensor.WithBacking(uniform(rng, out, bound))),
		)
	}
	return params
}

func uniform(rng *rand.Rand, n int, bound float64) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * bound
	}
	return data
}

func paramNames(layers int) []string {
	names := make([]string, 0, 2*layers)
	for i := 1; i <= layers; i++ {
		names = append(names, fmt.Sprintf("w%d", i), fmt.Sprintf("b%d", i))
	}
	return names
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Training reports whether the model is in training mode.
func (m *Model) Training() bool { return m.training }

// Train switches back to training mode.
func (m *Model) Train() { m.training = true }

// Eval switches to inference mode; TrainStep is refused until Train.
func (m *Model) Eval() { m.training = false }

// NumParams counts every scalar weight and bias.
func (m *Model) NumParams() int {
	total := 0
	for _, p := range m.train.params {
		total += p.Shape().TotalSize()
	}
	return total
}

// Weights returns the live parameter tensors keyed by name.
func (m *Model) Weights() map[string]*tensor.Dense {
	out := make(map[string]*tensor.Dense, len(m.names))
	for i, p := range m.train.params {
		out[m.names[i]] = p.Value().(*tensor.Dense)
	}
	return out
}

func (m *Model) checkRows(rows int, states, actions, next []float64) error {
	if len(states) != rows*m.cfg.StateDim || len(actions) != rows*m.cfg.ActionDim {
		return fmt.Errorf("%w: %d states, %d actions for %d rows", ErrShape, len(states), len(actions), rows)
	}
	if next != nil && len(next) != rows*m.cfg.StateDim {
		return fmt.Errorf("%w: %d next states for %d rows", ErrShape, len(next), rows)
	}
	return nil
}

// TrainStep runs forward and backward on one batch, applies an Adam update
// and returns the batch loss before the update.
func (m *Model) TrainStep(states, actions, next []float64) (float64, error) {
	if !m.training {
		return 0, ErrEvalMode
	}
	if err := m.checkRows(m.cfg.BatchSize, states, actions, next); err != nil {
		return 0, err
	}

	g := m.train
	defer g.vm.Reset()
	if err := g.bind(states, actions, next); err != nil {
		return 0, err
	}
	if err := g.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("training pass error: %w", err)
	}
	loss, err := g.loss()
	if err != nil {
		return 0, err
	}
	if err := m.solver.Step(gorgonia.NodesToValueGrads(g.params)); err != nil {
		return 0, fmt.Errorf("optimizer step error: %w", err)
	}
	return loss, nil
}

// Evaluate returns the mean squared next-state error over all rows in
// inference mode. No gradients are computed and no parameter changes. The
// previous mode is restored on return.
func (m *Model) Evaluate(states, actions, next []float64) (float64, error) {
	rows := len(states) / m.cfg.StateDim
	if rows == 0 {
		return 0, fmt.Errorf("%w: no rows to evaluate", ErrShape)
	}
	if err := m.checkRows(rows, states, actions, next); err != nil {
		return 0, err
	}

	wasTraining := m.training
	m.Eval()
	defer func() { m.training = wasTraining }()

	if m.eval == nil || m.eval.rows != rows {
		g, err := buildGraph(m.cfg, cloneParams(m.train), rows, false)
		if err != nil {
			return 0, fmt.Errorf("failed to build eval graph: %w", err)
		}
		m.eval = g
	}

	g := m.eval
	defer g.vm.Reset()
	g.copyParamsFrom(m.train)
	if err := g.bind(states, actions, next); err != nil {
		return 0, err
	}
	if err := g.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("eval pass error: %w", err)
	}
	return g.loss()
}

func cloneParams(g *graph) []*tensor.Dense {
	out := make([]*tensor.Dense, len(g.params))
	for i, p := range g.params {
		out[i] = p.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return out
}
