package jinx

import (
	"github.com/pkg/errors"

	nn "github.com/gorgonia/jinx/neuralnet"
)

var (
	// ErrNoRecurrence is returned when a sequence operation is asked of a network without recurring layers.
	ErrNoRecurrence = errors.New("network has no recurring layers")
	// ErrBatchTooLong is returned when a sequence is longer than the unroll window.
	ErrBatchTooLong = errors.New("sequence is longer than the max unroll length")
)

// Generator computes how the inputs of a network should change to move its output towards a
// target. The weights are never modified.
type Generator struct {
	net       *nn.Network
	grads     *nn.Gradients
	ctxs      []*nn.Context
	fulls     []*nn.FullContext
	states    []*nn.PropagationState
	recurring bool
}

// NewGenerator creates a Generator able to unroll sequences of up to maxUnroll steps. maxUnroll
// is ignored for networks without recurring layers.
func NewGenerator(net *nn.Network, maxUnroll int) *Generator {
	g := &Generator{
		net:       net,
		grads:     nn.NewGradients(net),
		recurring: net.HasRecurring(),
	}
	if !g.recurring || maxUnroll < 1 {
		maxUnroll = 1
	}
	for i := 0; i < maxUnroll; i++ {
		c, f := nn.NewContext(net), nn.NewFullContext(net)
		g.ctxs = append(g.ctxs, c)
		g.fulls = append(g.fulls, f)
		g.states = append(g.states, nn.NewPropagationState(net, c, f, g.grads).WithInputGrad())
	}
	return g
}

// InputErrorPropagation returns the gradient of the average loss between the network's output
// for input and target, with respect to input. The network runs from empty recurrent state, so
// equal arguments give equal gradients.
func (g *Generator) InputErrorPropagation(input, target []float32) []float32 {
	g.grads.Reset()
	c, f, p := g.ctxs[0], g.fulls[0], g.states[0]
	c.Reset(false)
	f.Reset()
	copy(c.Input, input)
	g.net.ExecuteFull(c, f)
	g.net.Backward(target, p, nn.LossAverage, -1)

	retVal := make([]float32, len(p.InputGrad))
	copy(retVal, p.InputGrad)
	return retVal
}

// InputErrorPropagationRecurring runs inputs as a sequence starting from empty recurrent
// state, then backpropagates through time and returns the input gradient of every step.
func (g *Generator) InputErrorPropagationRecurring(inputs, targets [][]float32) ([][]float32, error) {
	switch {
	case !g.recurring:
		return nil, errors.WithStack(ErrNoRecurrence)
	case len(inputs) > len(g.ctxs):
		return nil, errors.Wrapf(ErrBatchTooLong, "%d steps, at most %d", len(inputs), len(g.ctxs))
	case len(inputs) != len(targets):
		return nil, errors.Errorf("%d inputs but %d targets", len(inputs), len(targets))
	}

	g.grads.Reset()
	for i := range inputs {
		g.ctxs[i].Reset(true)
		g.fulls[i].Reset()
	}
	for i, in := range inputs {
		c := g.ctxs[i]
		copy(c.Input, in)
		g.net.ExecuteFull(c, g.fulls[i])
		if i+1 < len(inputs) {
			c.CopyRecurrent(g.ctxs[i+1])
		}
	}
	for i := len(inputs) - 1; i >= 0; i-- {
		g.net.Backward(targets[i], g.states[i], nn.LossAverage, -1)
	}

	retVal := make([][]float32, len(inputs))
	for i := range retVal {
		retVal[i] = make([]float32, len(g.states[i].InputGrad))
		copy(retVal[i], g.states[i].InputGrad)
	}
	return retVal, nil
}
