package nn

import "gorgonia.org/vecf32"

// Gradients accumulates parameter gradients for a network, shaped like it. A single Gradients
// is shared by every PropagationState of an unrolled sequence so that the contributions of all
// timesteps add up before an optimizer step.
type Gradients struct {
	Biases    [][]float32
	Weights   [][]float32
	Recurrent [][]float32

	// Recurrent error fed back across time: feedback is read by the timestep being
	// backpropagated and was written by the one after it; nextFeedback is written for the
	// timestep before it.
	feedback     [][]float32
	nextFeedback [][]float32
}

// NewGradients allocates zeroed gradients for n.
func NewGradients(n *Network) *Gradients {
	levels := n.Levels()
	g := &Gradients{
		Biases:       make([][]float32, levels),
		Weights:      make([][]float32, levels),
		Recurrent:    make([][]float32, n.Hidden()),
		feedback:     make([][]float32, n.Hidden()),
		nextFeedback: make([][]float32, n.Hidden()),
	}
	for i := 0; i < levels; i++ {
		g.Biases[i] = make([]float32, len(n.biases[i]))
		g.Weights[i] = make([]float32, len(n.weights[i]))
		if n.Recurring(i) {
			g.Recurrent[i] = make([]float32, len(n.recurrent[i]))
			g.feedback[i] = make([]float32, len(n.biases[i]))
			g.nextFeedback[i] = make([]float32, len(n.biases[i]))
		}
	}
	return g
}

// Reset zeroes all gradients and the recurrent feedback.
func (g *Gradients) Reset() {
	g.each(zero)
	for i := range g.feedback {
		zero(g.feedback[i])
		zero(g.nextFeedback[i])
	}
}

// Scale multiplies all gradients by s.
func (g *Gradients) Scale(s float32) {
	g.each(func(a []float32) { vecf32.Scale(a, s) })
}

func (g *Gradients) each(fn func([]float32)) {
	for i := range g.Biases {
		fn(g.Biases[i])
		fn(g.Weights[i])
	}
	for _, r := range g.Recurrent {
		if r != nil {
			fn(r)
		}
	}
}

// step moves the feedback written by the previous Backward call into place and clears the
// buffer that the coming call writes.
func (g *Gradients) step() {
	g.feedback, g.nextFeedback = g.nextFeedback, g.feedback
	for _, b := range g.nextFeedback {
		zero(b)
	}
}
