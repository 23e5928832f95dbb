package buffer

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/rand"

	"dynamics-pretrain/dataset"
)

// DefaultCapacity matches the size of the largest offline datasets.
const DefaultCapacity = 1_000_000

// Errors returned by buffer operations.
var (
	ErrBufferFull  = errors.New("buffer is full")
	ErrEmptyBuffer = errors.New("buffer is empty")
	ErrDimension   = errors.New("dimension mismatch")
)

// Transition is a single environment step.
type Transition struct {
	State     []float64
	Action    []float64
	NextState []float64
	Reward    float64
	Done      bool
}

// ReplayBuffer stores transitions in flat row-major arrays.
type ReplayBuffer struct {
	stateDim  int
	actionDim int
	capacity  int
	size      int

	state     []float64
	action    []float64
	nextState []float64
	reward    []float64
	notDone   []float64
}

// Batch holds n sampled rows, row-major.
type Batch struct {
	N          int
	States     []float64
	Actions    []float64
	NextStates []float64
}

// NewReplayBuffer creates an empty buffer for the given dimensions.
func NewReplayBuffer(stateDim, actionDim, capacity int) *ReplayBuffer {
	return &ReplayBuffer{
		stateDim:  stateDim,
		actionDim: actionDim,
		capacity:  capacity,
	}
}

func (b *ReplayBuffer) StateDim() int  { return b.stateDim }
func (b *ReplayBuffer) ActionDim() int { return b.actionDim }
func (b *ReplayBuffer) Capacity() int  { return b.capacity }
func (b *ReplayBuffer) Size() int      { return b.size }

// Add appends a transition.
func (b *ReplayBuffer) Add(t Transition) error {
	if b.size >= b.capacity {
		return ErrBufferFull
	}
	if len(t.State) != b.stateDim || len(t.NextState) != b.stateDim || len(t.Action) != b.actionDim {
		return fmt.Errorf("%w: got state %d, action %d, next state %d", ErrDimension, len(t.State), len(t.Action), len(t.NextState))
	}
	b.state = append(b.state, t.State...)
	b.action = append(b.action, t.Action...)
	b.nextState = append(b.nextState, t.NextState...)
	b.reward = append(b.reward, t.Reward)
	notDone := 1.0
	if t.Done {
		notDone = 0
	}
	b.notDone = append(b.notDone, notDone)
	b.size++
	return nil
}

// ConvertDataset fills the buffer with every transition of d.
func (b *ReplayBuffer) ConvertDataset(d *dataset.Dataset) error {
	if d.ObservationDim != b.stateDim || d.ActionDim != b.actionDim {
		return fmt.Errorf("%w: dataset %s has dims %d/%d, buffer %d/%d",
			ErrDimension, d.Env, d.ObservationDim, d.ActionDim, b.stateDim, b.actionDim)
	}
	if b.size+d.Len() > b.capacity {
		return fmt.Errorf("%w: %d transitions do not fit in %d", ErrBufferFull, d.Len(), b.capacity-b.size)
	}

	for i := 0; i < d.Len(); i++ {
		err := b.Add(Transition{
			State:     d.Observations[i],
			Action:    d.Actions[i],
			NextState: d.NextObservations[i],
			Reward:    d.Rewards[i],
			Done:      d.Terminals[i],
		})
		if err != nil {
			return fmt.Errorf("transition %d: %w", i, err)
		}
	}
	return nil
}

// State returns row i of the state column. The slice aliases storage.
func (b *ReplayBuffer) State(i int) []float64 {
	return b.state[i*b.stateDim : (i+1)*b.stateDim]
}

// Action returns row i of the action column.
func (b *ReplayBuffer) Action(i int) []float64 {
	return b.action[i*b.actionDim : (i+1)*b.actionDim]
}

// NextState returns row i of the next-state column.
func (b *ReplayBuffer) NextState(i int) []float64 {
	return b.nextState[i*b.stateDim : (i+1)*b.stateDim]
}

// Sample draws n rows uniformly at random with replacement.
func (b *ReplayBuffer) Sample(rng *rand.Rand, n int) (Batch, error) {
	if b.size == 0 {
		return Batch{}, ErrEmptyBuffer
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(b.size)
	}
	return b.gather(idx), nil
}

// All returns every row in storage order.
func (b *ReplayBuffer) All() Batch {
	return Batch{
		N:          b.size,
		States:     b.state,
		Actions:    b.action,
		NextStates: b.nextState,
	}
}

func (b *ReplayBuffer) gather(idx []int) Batch {
	batch := Batch{
		N:          len(idx),
		States:     make([]float64, 0, len(idx)*b.stateDim),
		Actions:    make([]float64, 0, len(idx)*b.actionDim),
		NextStates: make([]float64, 0, len(idx)*b.stateDim),
	}
	for _, i := range idx {
		batch.States = append(batch.States, b.State(i)...)
		batch.Actions = append(batch.Actions, b.Action(i)...)
		batch.NextStates = append(batch.NextStates, b.NextState(i)...)
	}
	return batch
}

// subset copies the rows at idx into a new buffer sized to fit them.
func (b *ReplayBuffer) subset(idx []int) *ReplayBuffer {
	out := NewReplayBuffer(b.stateDim, b.actionDim, len(idx))
	out.size = len(idx)
	out.state = make([]float64, 0, len(idx)*b.stateDim)
	out.action = make([]float64, 0, len(idx)*b.actionDim)
	out.nextState = make([]float64, 0, len(idx)*b.stateDim)
	out.reward = make([]float64, 0, len(idx))
	out.notDone = make([]float64, 0, len(idx))
	for _, i := range idx {
		out.state = append(out.state, b.State(i)...)
		out.action = append(out.action, b.Action(i)...)
		out.nextState = append(out.nextState, b.NextState(i)...)
		out.reward = append(out.reward, b.reward[i])
		out.notDone = append(out.notDone, b.notDone[i])
	}
	return out
}

// Split holds out floor(frac*size) rows for evaluation. Eval rows are taken
// in the order of a random permutation; train rows keep storage order. When
// the eval share rounds down to zero, eval is nil.
func (b *ReplayBuffer) Split(rng *rand.Rand, frac float64) (train, eval *ReplayBuffer, err error) {
	if frac < 0 || frac >= 1 {
		return nil, nil, fmt.Errorf("eval fraction %v outside [0, 1)", frac)
	}
	evalSize := int(float64(b.size) * frac)
	if evalSize == 0 {
		return b, nil, nil
	}

	evalIdx := rng.Perm(b.size)[:evalSize]
	held := make([]bool, b.size)
	for _, i := range evalIdx {
		held[i] = true
	}
	trainIdx := make([]int, 0, b.size-evalSize)
	for i := 0; i < b.size; i++ {
		if !held[i] {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(trainIdx) == 0 {
		return nil, nil, fmt.Errorf("%w: no training rows left after holding out %d", ErrEmptyBuffer, evalSize)
	}
	sort.Ints(trainIdx)

	return b.subset(trainIdx), b.subset(evalIdx), nil
}
