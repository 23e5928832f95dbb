package dynamics

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graph is a compiled expression graph for a fixed number of rows.
type graph struct {
	g    *gorgonia.ExprGraph
	rows int

	states, actions, next *gorgonia.Node
	params                gorgonia.Nodes
	pred, cost            *gorgonia.Node
	costVal               gorgonia.Value

	vm gorgonia.VM
}

// buildGraph wires the MLP over params. With grad set, symbolic gradients
// of the cost are added and bound for the solver.
func buildGraph(cfg Config, params []*tensor.Dense, rows int, grad bool) (*graph, error) {
	g := gorgonia.NewGraph()
	gr := &graph{g: g, rows: rows}

	gr.states = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cfg.StateDim),
		gorgonia.WithName("states"))
	gr.actions = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cfg.ActionDim),
		gorgonia.WithName("actions"))
	gr.next = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(rows, cfg.StateDim),
		gorgonia.WithName("next_states"))

	names := paramNames(len(params) / 2)
	for i, p := range params {
		shape := p.Shape()
		gr.params = append(gr.params, gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(shape[0], shape[1]),
			gorgonia.WithName(names[i]),
			gorgonia.WithValue(p)))
	}

	// (rows x 1) of ones broadcasts a (1 x out) bias over the batch
	ones := make([]float64, rows)
	for i := range ones {
		ones[i] = 1.0
	}
	onesNode := gorgonia.NodeFromAny(g,
		tensor.New(tensor.WithShape(rows, 1), tensor.WithBacking(ones)),
		gorgonia.WithName("ones"))

	h, err := gorgonia.Concat(1, gr.states, gr.actions)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	layers := len(gr.params) / 2
	for i := 0; i < layers; i++ {
		w, b := gr.params[2*i], gr.params[2*i+1]
		if h, err = gorgonia.Mul(h, w); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i+1, err)
		}
		bias, err := gorgonia.Mul(onesNode, b)
		if err != nil {
			return nil, fmt.Errorf("layer %d bias: %w", i+1, err)
		}
		if h, err = gorgonia.Add(h, bias); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i+1, err)
		}
		if i < layers-1 {
			if h, err = gorgonia.Rectify(h); err != nil {
				return nil, fmt.Errorf("layer %d relu: %w", i+1, err)
			}
		}
	}
	gr.pred = h

	// MSE Loss
	diff, err := gorgonia.Sub(gr.pred, gr.next)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	sq, err := gorgonia.Square(diff)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	if gr.cost, err = gorgonia.Mean(sq); err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	gorgonia.Read(gr.cost, &gr.costVal)

	if grad {
		if _, err := gorgonia.Grad(gr.cost, gr.params...); err != nil {
			return nil, fmt.Errorf("gradients: %w", err)
		}
		gr.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(gr.params...))
	} else {
		gr.vm = gorgonia.NewTapeMachine(g)
	}
	return gr, nil
}

func (gr *graph) bind(states, actions, next []float64) error {
	inputs := []struct {
		node *gorgonia.Node
		data []float64
	}{
		{gr.states, states},
		{gr.actions, actions},
		{gr.next, next},
	}
	for _, in := range inputs {
		shape := in.node.Shape()
		t := tensor.New(tensor.WithShape(shape[0], shape[1]), tensor.WithBacking(in.data))
		if err := gorgonia.Let(in.node, t); err != nil {
			return fmt.Errorf("bind %s: %w", in.node.Name(), err)
		}
	}
	return nil
}

func (gr *graph) loss() (float64, error) {
	if gr.costVal == nil {
		return 0, fmt.Errorf("nil loss value")
	}
	loss, ok := gr.costVal.Data().(float64)
	if !ok {
		return 0, fmt.Errorf("invalid loss type %T", gr.costVal.Data())
	}
	return loss, nil
}

// copyParamsFrom overwrites this graph's parameter values with src's.
func (gr *graph) copyParamsFrom(src *graph) {
	for i, p := range gr.params {
		dst := p.Value().(*tensor.Dense).Data().([]float64)
		copy(dst, src.params[i].Value().(*tensor.Dense).Data().([]float64))
	}
}
