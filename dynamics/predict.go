package dynamics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Predict runs the network outside the expression graph on any number of
// rows and returns row-major next-state predictions.
func (m *Model) Predict(states, actions []float64) ([]float64, error) {
	rows := len(states) / m.cfg.StateDim
	if err := m.checkRows(rows, states, actions, nil); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, nil
	}

	in := m.cfg.StateDim + m.cfg.ActionDim
	x := mat.NewDense(rows, in, nil)
	for r := 0; r < rows; r++ {
		row := x.RawRowView(r)
		copy(row, states[r*m.cfg.StateDim:(r+1)*m.cfg.StateDim])
		copy(row[m.cfg.StateDim:], actions[r*m.cfg.ActionDim:(r+1)*m.cfg.ActionDim])
	}

	layers := len(m.train.params) / 2
	var h mat.Matrix = x
	for i := 0; i < layers; i++ {
		w := denseOf(m.train.params[2*i].Value().(*tensor.Dense))
		b := m.train.params[2*i+1].Value().(*tensor.Dense).Data().([]float64)

		var out mat.Dense
		out.Mul(h, w)
		relu := i < layers-1
		out.Apply(func(_, j int, v float64) float64 {
			v += b[j]
			if relu && v < 0 {
				return 0
			}
			return v
		}, &out)
		h = &out
	}

	pred := h.(*mat.Dense)
	r, c := pred.Dims()
	if c != m.cfg.StateDim {
		return nil, fmt.Errorf("%w: output width %d", ErrShape, c)
	}
	result := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		result = append(result, pred.RawRowView(i)...)
	}
	return result, nil
}

func denseOf(t *tensor.Dense) *mat.Dense {
	shape := t.Shape()
	return mat.NewDense(shape[0], shape[1], t.Data().([]float64))
}
