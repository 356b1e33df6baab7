package nn

import "github.com/chewxy/math32"

// LossType selects how per-output errors are reduced to a scalar loss.
type LossType byte

const (
	// LossAverage is the mean absolute error.
	LossAverage LossType = iota
	// LossMax is the largest absolute error.
	LossMax
	// LossCrossEntropy is -ln(output[class]) for a one-hot target.
	LossCrossEntropy
)

func (l LossType) String() string {
	switch l {
	case LossAverage:
		return "average"
	case LossMax:
		return "max"
	case LossCrossEntropy:
		return "crossentropy"
	}
	return "unknown"
}

// crossEntropyCap replaces infinite or NaN cross entropy.
const crossEntropyCap = 1e8

// DerivativeMode selects the activation derivative used when error flows into a layer.
type DerivativeMode byte

const (
	// Analytic uses the derivative of each layer's activation function.
	Analytic DerivativeMode = iota
	// TanhApprox uses 1 - a² for every layer, whatever its activation.
	TanhApprox
)

// PropagationState is the per-timestep state of a backward pass. It refers to the Context and
// FullContext that the forward pass of the same timestep used, and to the shared Gradients.
type PropagationState struct {
	Loss float32
	Mode DerivativeMode

	// InputGrad receives the gradient of the loss with respect to the input when not nil.
	InputGrad []float32

	ctx   *Context
	full  *FullContext
	grads *Gradients

	outErr []float32
	errs   [][]float32 // per hidden level
}

// NewPropagationState creates the backward state for one timestep.
func NewPropagationState(n *Network, c *Context, f *FullContext, g *Gradients) *PropagationState {
	p := &PropagationState{
		ctx:    c,
		full:   f,
		grads:  g,
		outErr: make([]float32, n.Outputs()),
		errs:   make([][]float32, n.Hidden()),
	}
	for i := range p.errs {
		p.errs[i] = make([]float32, n.Layer(i).Neurons)
	}
	return p
}

// WithInputGrad attaches an input gradient buffer.
func (p *PropagationState) WithInputGrad() *PropagationState {
	p.InputGrad = make([]float32, len(p.ctx.Input))
	return p
}

// Gradients returns the accumulator this state writes to.
func (p *PropagationState) Gradients() *Gradients { return p.grads }

// Reset zeroes the loss, the error buffers and the input gradient.
func (p *PropagationState) Reset() {
	p.Loss = 0
	zero(p.outErr)
	zero(p.InputGrad)
	for _, e := range p.errs {
		zero(e)
	}
}

// Backward backpropagates the error between the network output held by p's context and
// target, adding the gradients to p's Gradients. class is the index of the one-hot target for
// LossCrossEntropy, -1 otherwise. The forward pass must have been run with ExecuteFull. When
// backpropagating an unrolled sequence, call Backward from the last timestep to the first.
func (n *Network) Backward(target []float32, p *PropagationState, lt LossType, class int) float32 {
	p.Reset()
	p.grads.step()
	out := p.ctx.Output
	var loss float32
	for i := range out {
		d := out[i] - target[i]
		p.outErr[i] = d
		switch lt {
		case LossAverage:
			loss += math32.Abs(d)
		case LossMax:
			if a := math32.Abs(d); a > loss {
				loss = a
			}
		}
	}
	switch {
	case lt == LossAverage:
		loss /= float32(len(out))
	case lt == LossCrossEntropy && class >= 0:
		loss = -math32.Log(out[class])
		if math32.IsInf(loss, 0) || math32.IsNaN(loss) {
			loss = crossEntropyCap
		}
	}
	p.Loss = loss

	top := len(n.conf.Hidden)
	n.propagate(top, p.outErr, p)
	for level := top - 1; level >= 0; level-- {
		n.propagate(level, n.delta(level, p), p)
	}
	return loss
}

// delta turns the accumulated error at the activations of hidden layer level into the error at
// its pre-activations.
func (n *Network) delta(level int, p *PropagationState) []float32 {
	e := p.errs[level]
	fb := p.grads.feedback[level]
	fn := n.conf.Hidden[level].Activation
	h, z := p.full.Hidden[level], p.full.Pre[level]
	for i := range e {
		v := e[i]
		if fb != nil {
			v += fb[i]
		}
		e[i] = v * slope(p.Mode, fn, z[i], h[i])
	}
	return e
}

// propagate pushes delta, the error at the pre-activations of level, into the gradients and
// into the error of the layer below.
func (n *Network) propagate(level int, delta []float32, p *PropagationState) {
	g := p.grads
	var src, acc []float32
	if level == 0 {
		src = p.ctx.Input
	} else {
		src = p.full.Hidden[level-1]
		acc = p.errs[level-1]
	}
	igrad := p.InputGrad
	if level != 0 {
		igrad = nil
	}

	w, gw, gb := n.weights[level], g.Weights[level], g.Biases[level]
	wi := 0
	for d := len(delta) - 1; d >= 0; d-- {
		dd := delta[d]
		gb[d] += dd
		for s := len(src) - 1; s >= 0; s-- {
			gw[wi] += dd * src[s]
			switch {
			case acc != nil:
				acc[s] += dd * w[wi]
			case igrad != nil:
				igrad[s] += slope(p.Mode, Identity, src[s], src[s]) * dd * w[wi]
			}
			wi++
		}
	}

	if !n.Recurring(level) {
		return
	}
	rw, gr := n.recurrent[level], g.Recurrent[level]
	prev, next := p.full.PrevRecurrent[level], g.nextFeedback[level]
	wi = 0
	for d := len(delta) - 1; d >= 0; d-- {
		dd := delta[d]
		for s := len(prev) - 1; s >= 0; s-- {
			gr[wi] += dd * prev[s]
			v := next[s] + dd*rw[wi]
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				v = 0
			}
			next[s] = v
			wi++
		}
	}
}

func slope(mode DerivativeMode, fn Activation, z, a float32) float32 {
	if mode == TanhApprox {
		return 1 - a*a
	}
	return fn.Derivative(z, a)
}
