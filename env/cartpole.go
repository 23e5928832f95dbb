package env

import (
	"math"

	"golang.org/x/exp/rand"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold       = 2.4
	thetaThreshold   = 12.0 * math.Pi / 180.0
	cartPoleMaxSteps = 500
)

// CartPole is the classic cart-pole with a continuous force in [-1, 1]
// scaled to forceMax newtons.
type CartPole struct {
	spec                     Spec
	rng                      *rand.Rand
	x, xDot, theta, thetaDot float64
}

func newCartPole(spec Spec, rng *rand.Rand) *CartPole {
	return &CartPole{spec: spec, rng: rng}
}

func (c *CartPole) Spec() Spec { return c.spec }

func (c *CartPole) Reset() []float64 {
	c.x = c.rng.Float64()*0.1 - 0.05
	c.xDot = c.rng.Float64()*0.1 - 0.05
	c.theta = c.rng.Float64()*0.1 - 0.05
	c.thetaDot = c.rng.Float64()*0.1 - 0.05
	return c.obs()
}

func (c *CartPole) Step(action []float64) ([]float64, float64, bool) {
	force := clip(action[0], c.spec.MaxAction) * forceMax

	cosTheta := math.Cos(c.theta)
	sinTheta := math.Sin(c.theta)

	temp := (force + poleMassLength*c.thetaDot*c.thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	c.x += tau * c.xDot
	c.xDot += tau * xAcc
	c.theta += tau * c.thetaDot
	c.thetaDot += tau * thetaAcc

	terminal := c.x < -xThreshold || c.x > xThreshold || c.theta < -thetaThreshold || c.theta > thetaThreshold
	reward := 1.0
	if terminal {
		reward = 0.0
	}
	return c.obs(), reward, terminal
}

func (c *CartPole) obs() []float64 {
	return []float64{c.x, c.xDot, c.theta, c.thetaDot}
}

// cartPoleController pushes the cart under the falling pole.
func cartPoleController(obs []float64) []float64 {
	x, xDot, theta, thetaDot := obs[0], obs[1], obs[2], obs[3]
	u := 0.1*x + 0.2*xDot + 3.0*theta + 0.5*thetaDot
	return []float64{clip(u, 1.0)}
}
