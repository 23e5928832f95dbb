package env

import (
	"math"

	"golang.org/x/exp/rand"
)

const (
	pendulumMaxSpeed  = 8.0
	pendulumMaxTorque = 2.0
	pendulumDt        = 0.05
	pendulumG         = 10.0
	pendulumMass      = 1.0
	pendulumLength    = 1.0
	pendulumMaxSteps  = 200
)

// Pendulum is the torque-limited inverted pendulum swing-up task.
// Observations are [cos(theta), sin(theta), theta_dot]; it never terminates.
type Pendulum struct {
	spec          Spec
	rng           *rand.Rand
	theta, thetaD float64
}

func newPendulum(spec Spec, rng *rand.Rand) *Pendulum {
	return &Pendulum{spec: spec, rng: rng}
}

func (p *Pendulum) Spec() Spec { return p.spec }

func (p *Pendulum) Reset() []float64 {
	p.theta = (p.rng.Float64()*2 - 1) * math.Pi
	p.thetaD = p.rng.Float64()*2 - 1
	return p.obs()
}

func (p *Pendulum) Step(action []float64) ([]float64, float64, bool) {
	u := clip(action[0], pendulumMaxTorque)
	th := angleNormalize(p.theta)
	cost := th*th + 0.1*p.thetaD*p.thetaD + 0.001*u*u

	l := pendulumLength
	thetaD := p.thetaD + (3*pendulumG/(2*l)*math.Sin(p.theta)+3.0/(pendulumMass*l*l)*u)*pendulumDt
	thetaD = clip(thetaD, pendulumMaxSpeed)
	p.theta += thetaD * pendulumDt
	p.thetaD = thetaD

	return p.obs(), -cost, false
}

func (p *Pendulum) obs() []float64 {
	return []float64{math.Cos(p.theta), math.Sin(p.theta), p.thetaD}
}

func angleNormalize(x float64) float64 {
	return math.Mod(math.Mod(x+math.Pi, 2*math.Pi)+2*math.Pi, 2*math.Pi) - math.Pi
}

// pendulumController pumps energy by pushing along the swing until the
// pole is near upright, then balances it with a PD law.
func pendulumController(obs []float64) []float64 {
	th := math.Atan2(obs[1], obs[0])
	thetaD := obs[2]
	if math.Abs(th) < 0.6 {
		return []float64{clip(-8*th-1.5*thetaD, pendulumMaxTorque)}
	}
	if thetaD < 0 {
		return []float64{-pendulumMaxTorque}
	}
	return []float64{pendulumMaxTorque}
}
