package nn

import (
	"io"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gorgonia/jinx/internal/binio"
)

const adagradEpsilon = 1e-8

// AdaGrad holds the sum of squared gradients of every parameter of a network.
type AdaGrad struct {
	LearningRate float32

	weights   [][]float32
	biases    [][]float32
	recurrent [][]float32
}

// NewAdaGrad creates a zeroed accumulator shaped like n.
func NewAdaGrad(n *Network, learningRate float32) *AdaGrad {
	a := &AdaGrad{
		LearningRate: learningRate,
		weights:      make([][]float32, n.Levels()),
		biases:       make([][]float32, n.Levels()),
		recurrent:    make([][]float32, n.Hidden()),
	}
	for i := range a.weights {
		a.weights[i] = make([]float32, len(n.weights[i]))
		a.biases[i] = make([]float32, len(n.biases[i]))
		if n.Recurring(i) {
			a.recurrent[i] = make([]float32, len(n.recurrent[i]))
		}
	}
	return a
}

// Reset zeroes the accumulators.
func (a *AdaGrad) Reset() { a.each(zero) }

// ResetPartial keeps the given fraction of the accumulators.
func (a *AdaGrad) ResetPartial(keep float32) {
	a.each(func(m []float32) {
		for i := range m {
			m[i] *= keep
		}
	})
}

// Apply takes one step against the gradients g.
func (a *AdaGrad) Apply(n *Network, g *Gradients) {
	for i := range n.weights {
		adagrad(n.weights[i], g.Weights[i], a.weights[i], a.LearningRate)
		adagrad(n.biases[i], g.Biases[i], a.biases[i], a.LearningRate)
		if n.Recurring(i) {
			adagrad(n.recurrent[i], g.Recurrent[i], a.recurrent[i], a.LearningRate)
		}
	}
}

// ApplyNoMemory takes a flat step of size rate against the clipped gradients g.
func ApplyNoMemory(n *Network, g *Gradients, rate float32) {
	for i := range n.weights {
		flat(n.weights[i], g.Weights[i], rate)
		flat(n.biases[i], g.Biases[i], rate)
		if n.Recurring(i) {
			flat(n.recurrent[i], g.Recurrent[i], rate)
		}
	}
}

func adagrad(w, d, m []float32, lr float32) {
	for k := len(w) - 1; k >= 0; k-- {
		g := clip(d[k])
		m[k] += g * g
		w[k] -= lr * g / math32.Sqrt(m[k]+adagradEpsilon)
	}
}

func flat(w, d []float32, lr float32) {
	for k := len(w) - 1; k >= 0; k-- {
		w[k] -= lr * clip(d[k])
	}
}

func clip(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Save writes the accumulators, level by level: weights, biases, then recurrent weights.
func (a *AdaGrad) Save(w io.Writer) error {
	bw := binio.NewWriter(w)
	a.each(bw.Floats)
	return errors.WithMessage(bw.Err(), "saving adagrad memory")
}

// Load reads accumulators written by Save.
func (a *AdaGrad) Load(r io.Reader) error {
	br := binio.NewReader(r)
	a.each(br.Floats)
	return errors.WithMessage(br.Err(), "loading adagrad memory")
}

func (a *AdaGrad) each(fn func([]float32)) {
	for i := range a.weights {
		fn(a.weights[i])
		fn(a.biases[i])
		if i < len(a.recurrent) && a.recurrent[i] != nil {
			fn(a.recurrent[i])
		}
	}
}
