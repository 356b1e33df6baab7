package nn

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Range bounds the values drawn when randomizing or mutating parameters.
type Range struct {
	MinBias, MaxBias     float32
	MinWeight, MaxWeight float32
}

// DefaultRange is the range used for evolved networks.
func DefaultRange() Range { return Range{MaxWeight: 0.06} }

// AdaGradRange is the range used before gradient training: zero biases and weights in
// [0, 1/w) where w is the widest hidden layer (or the input layer if there is none).
func (n *Network) AdaGradRange() Range {
	w := n.maxHidden
	if w == 0 {
		w = n.Inputs()
	}
	return Range{MaxWeight: 1 / float32(w)}
}

func (rng Range) pick(r *rand.Rand, kind paramKind) float32 {
	if kind == biasParam {
		return r.Float32()*(rng.MaxBias-rng.MinBias) + rng.MinBias
	}
	return r.Float32()*(rng.MaxWeight-rng.MinWeight) + rng.MinWeight
}

// Randomize draws every parameter uniformly from rng.
func (n *Network) Randomize(r *rand.Rand, rng Range) {
	n.each(func(kind paramKind, p []float32) {
		for i := range p {
			p[i] = rng.pick(r, kind)
		}
	})
}

// Mutate redraws each parameter from rng with the given probability.
func (n *Network) Mutate(r *rand.Rand, chance float32, rng Range) {
	n.each(func(kind paramKind, p []float32) {
		for i := range p {
			if r.Float32() <= chance {
				p[i] = rng.pick(r, kind)
			}
		}
	})
}

// Breed replaces every parameter of n by a random interpolation between it and the matching
// parameter of partner.
func (n *Network) Breed(r *rand.Rand, partner *Network) error {
	if !n.SameShape(partner) {
		return errors.Wrap(ErrShapeMismatch, "cannot breed")
	}
	var others [][]float32
	partner.each(func(_ paramKind, p []float32) { others = append(others, p) })
	i := 0
	n.each(func(_ paramKind, p []float32) {
		o := others[i]
		for k := range p {
			v := r.Float32()
			p[k] = p[k]*v + o[k]*(1-v)
		}
		i++
	})
	return nil
}
