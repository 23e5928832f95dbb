package env

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
)

// ErrUnknownEnv is returned for ids outside the registry.
var ErrUnknownEnv = errors.New("unknown environment")

// Env is a simulated control task with a continuous action box.
type Env interface {
	Spec() Spec
	Reset() []float64
	// Step advances one tick. terminal reports a true end of episode,
	// not a time limit.
	Step(action []float64) (obs []float64, reward float64, terminal bool)
}

// Policy maps an observation to an action inside the action box.
type Policy interface {
	Act(obs []float64) []float64
}

// Spec describes an environment id such as "pendulum-medium-v0".
type Spec struct {
	ID              string
	Name            string
	Quality         string
	Version         string
	ObservationDim  int
	ActionDim       int
	MaxAction       float64
	MaxEpisodeSteps int
}

type task struct {
	obsDim    int
	actDim    int
	maxAction float64
	maxSteps  int
	newEnv    func(spec Spec, rng *rand.Rand) Env
	control   func(obs []float64) []float64
}

var tasks = map[string]task{
	"cartpole": {
		obsDim:    4,
		actDim:    1,
		maxAction: 1.0,
		maxSteps:  cartPoleMaxSteps,
		newEnv:    func(s Spec, rng *rand.Rand) Env { return newCartPole(s, rng) },
		control:   cartPoleController,
	},
	"pendulum": {
		obsDim:    3,
		actDim:    1,
		maxAction: pendulumMaxTorque,
		maxSteps:  pendulumMaxSteps,
		newEnv:    func(s Spec, rng *rand.Rand) Env { return newPendulum(s, rng) },
		control:   pendulumController,
	},
}

// noise scale per dataset quality, as a fraction of the max action
var qualities = map[string]float64{
	"random": -1,
	"medium": 0.6,
	"expert": 0.1,
}

// Lookup parses an id of the form <name>-<quality>-v<n>.
func Lookup(id string) (Spec, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownEnv, id)
	}
	name, quality, version := parts[0], parts[1], parts[2]
	t, ok := tasks[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownEnv, id)
	}
	if _, ok := qualities[quality]; !ok {
		return Spec{}, fmt.Errorf("%w: %q has no %q dataset", ErrUnknownEnv, name, quality)
	}
	if version != "v0" {
		return Spec{}, fmt.Errorf("%w: %q has no version %q", ErrUnknownEnv, name, version)
	}
	return Spec{
		ID:              id,
		Name:            name,
		Quality:         quality,
		Version:         version,
		ObservationDim:  t.obsDim,
		ActionDim:       t.actDim,
		MaxAction:       t.maxAction,
		MaxEpisodeSteps: t.maxSteps,
	}, nil
}

// IDs lists every registered environment id.
func IDs() []string {
	var ids []string
	for _, name := range []string{"cartpole", "pendulum"} {
		for _, q := range []string{"random", "medium", "expert"} {
			ids = append(ids, name+"-"+q+"-v0")
		}
	}
	return ids
}

// Make builds the environment for id.
func Make(id string, rng *rand.Rand) (Env, error) {
	spec, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	return tasks[spec.Name].newEnv(spec, rng), nil
}

// NewPolicy returns the behaviour policy that generates the dataset for id.
func NewPolicy(id string, rng *rand.Rand) (Policy, error) {
	spec, err := Lookup(id)
	if err != nil {
		return nil, err
	}
	noise := qualities[spec.Quality]
	if noise < 0 {
		return &randomPolicy{spec: spec, rng: rng}, nil
	}
	return &noisyPolicy{
		spec:    spec,
		rng:     rng,
		control: tasks[spec.Name].control,
		noise:   noise * spec.MaxAction,
	}, nil
}

type randomPolicy struct {
	spec Spec
	rng  *rand.Rand
}

func (p *randomPolicy) Act(obs []float64) []float64 {
	a := make([]float64, p.spec.ActionDim)
	for i := range a {
		a[i] = (p.rng.Float64()*2 - 1) * p.spec.MaxAction
	}
	return a
}

type noisyPolicy struct {
	spec    Spec
	rng     *rand.Rand
	control func(obs []float64) []float64
	noise   float64
}

func (p *noisyPolicy) Act(obs []float64) []float64 {
	a := p.control(obs)
	for i := range a {
		a[i] = clip(a[i]+p.rng.NormFloat64()*p.noise, p.spec.MaxAction)
	}
	return a
}

func clip(x, limit float64) float64 {
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}
