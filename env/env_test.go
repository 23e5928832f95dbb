package env

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

func TestLookup(t *testing.T) {
	spec, err := Lookup("cartpole-medium-v0")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if spec.ObservationDim != 4 || spec.ActionDim != 1 {
		t.Errorf("unexpected dims %d/%d", spec.ObservationDim, spec.ActionDim)
	}
	if spec.Quality != "medium" || spec.MaxEpisodeSteps != cartPoleMaxSteps {
		t.Errorf("unexpected spec %+v", spec)
	}

	for _, id := range []string{"hopper-medium-v2", "pendulum-medium", "pendulum-legendary-v0", "pendulum-medium-v9", ""} {
		if _, err := Lookup(id); !errors.Is(err, ErrUnknownEnv) {
			t.Errorf("Lookup(%q) = %v, want ErrUnknownEnv", id, err)
		}
	}
}

func TestIDsAreAllRegistered(t *testing.T) {
	ids := IDs()
	if len(ids) != 6 {
		t.Fatalf("expected 6 ids, got %d", len(ids))
	}
	for _, id := range ids {
		if _, err := Lookup(id); err != nil {
			t.Errorf("Lookup(%q): %v", id, err)
		}
	}
}

func TestCartPoleTerminates(t *testing.T) {
	e, err := Make("cartpole-random-v0", rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	obs := e.Reset()
	if len(obs) != 4 {
		t.Fatalf("expected 4 observations, got %d", len(obs))
	}

	terminal := false
	for i := 0; i < cartPoleMaxSteps && !terminal; i++ {
		_, _, terminal = e.Step([]float64{1})
	}
	if !terminal {
		t.Error("constant push should tip the pole over")
	}
}

func TestPendulumObservation(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	e, err := Make("pendulum-expert-v0", rng)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPolicy("pendulum-expert-v0", rng)
	if err != nil {
		t.Fatal(err)
	}

	obs := e.Reset()
	for i := 0; i < 100; i++ {
		a := p.Act(obs)
		if math.Abs(a[0]) > pendulumMaxTorque {
			t.Fatalf("action %v outside the torque limit", a)
		}
		var reward float64
		var terminal bool
		obs, reward, terminal = e.Step(a)
		if terminal {
			t.Fatal("pendulum never terminates")
		}
		if reward > 0 {
			t.Fatalf("reward must be a non-positive cost, got %v", reward)
		}
		if n := obs[0]*obs[0] + obs[1]*obs[1]; math.Abs(n-1) > 1e-9 {
			t.Fatalf("cos/sin observation not on the unit circle: %v", obs)
		}
		if math.Abs(obs[2]) > pendulumMaxSpeed {
			t.Fatalf("angular speed %v exceeds the limit", obs[2])
		}
	}
}

func TestRandomPolicyStaysInBox(t *testing.T) {
	p, err := NewPolicy("cartpole-random-v0", rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		a := p.Act([]float64{0, 0, 0, 0})
		if a[0] < -1 || a[0] > 1 {
			t.Fatalf("action %v outside [-1, 1]", a)
		}
	}
}

func TestAngleNormalize(t *testing.T) {
	cases := map[float64]float64{
		0:               0,
		2 * math.Pi:     0,
		-2 * math.Pi:    0,
		1.5 * math.Pi:   -0.5 * math.Pi,
		-1.5 * math.Pi:  0.5 * math.Pi,
		0.25 * math.Pi:  0.25 * math.Pi,
		-0.25 * math.Pi: -0.25 * math.Pi,
	}
	for in, want := range cases {
		if got := angleNormalize(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("angleNormalize(%v) = %v, want %v", in, got, want)
		}
	}
}
