package nn

import (
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// ErrShapeMismatch is returned when two networks (or a network and a stream) disagree on shape.
var ErrShapeMismatch = errors.New("network shapes do not match")

// Network is a chain of dense layers: input → hidden... → output. Parameters are held per
// level: level i < len(Hidden) is hidden layer i, and level len(Hidden) is the output layer.
// Level i's weights connect the layer below it (the input layer for level 0) to it.
type Network struct {
	conf Config

	biases    [][]float32
	weights   [][]float32
	recurrent [][]float32 // per hidden level, nil unless that layer is recurring

	maxHidden int
}

// New allocates a zeroed network with the given topology.
func New(conf Config) (*Network, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	hidden := make([]Layer, len(conf.Hidden))
	copy(hidden, conf.Hidden)
	conf.Hidden = hidden

	levels := len(hidden) + 1
	n := &Network{
		conf:      conf,
		biases:    make([][]float32, levels),
		weights:   make([][]float32, levels),
		recurrent: make([][]float32, len(hidden)),
	}
	for i := 0; i < levels; i++ {
		l, src := n.Layer(i), n.Source(i)
		n.biases[i] = make([]float32, l.Neurons)
		n.weights[i] = make([]float32, l.Neurons*src.Neurons)
		if i < len(hidden) {
			if l.Recurring {
				n.recurrent[i] = make([]float32, l.Neurons*l.Neurons)
			}
			if l.Neurons > n.maxHidden {
				n.maxHidden = l.Neurons
			}
		}
	}
	return n, nil
}

// Clone creates a network with the same topology. Weights are copied only if copyWeights is set.
func (n *Network) Clone(copyWeights bool) *Network {
	retVal, _ := New(n.conf)
	if copyWeights {
		retVal.CopyFrom(n)
	}
	return retVal
}

// CopyFrom copies every parameter of src into n.
func (n *Network) CopyFrom(src *Network) error {
	if !n.SameShape(src) {
		return errors.WithStack(ErrShapeMismatch)
	}
	for i := range n.biases {
		copy(n.biases[i], src.biases[i])
		copy(n.weights[i], src.weights[i])
	}
	for i := range n.recurrent {
		copy(n.recurrent[i], src.recurrent[i])
	}
	return nil
}

// SameShape reports whether other has the same layer sizes and recurrence as n.
func (n *Network) SameShape(other *Network) bool {
	if other == nil || len(n.conf.Hidden) != len(other.conf.Hidden) {
		return false
	}
	if n.conf.Input.Neurons != other.conf.Input.Neurons || n.conf.Output.Neurons != other.conf.Output.Neurons {
		return false
	}
	for i, l := range n.conf.Hidden {
		o := other.conf.Hidden[i]
		if l.Neurons != o.Neurons || l.Recurring != o.Recurring {
			return false
		}
	}
	return true
}

// Config returns the topology of the network.
func (n *Network) Config() Config {
	conf := n.conf
	conf.Hidden = make([]Layer, len(n.conf.Hidden))
	copy(conf.Hidden, n.conf.Hidden)
	return conf
}

// Levels returns the number of parameterised levels: the hidden layers plus the output layer.
func (n *Network) Levels() int { return len(n.biases) }

// Layer returns the layer at the given level.
func (n *Network) Layer(level int) Layer {
	if level == len(n.conf.Hidden) {
		return n.conf.Output
	}
	return n.conf.Hidden[level]
}

// Source returns the layer feeding the given level.
func (n *Network) Source(level int) Layer {
	if level == 0 {
		return n.conf.Input
	}
	return n.conf.Hidden[level-1]
}

// Inputs is the width of the input layer.
func (n *Network) Inputs() int { return n.conf.Input.Neurons }

// Outputs is the width of the output layer.
func (n *Network) Outputs() int { return n.conf.Output.Neurons }

// Hidden returns the number of hidden layers.
func (n *Network) Hidden() int { return len(n.conf.Hidden) }

// MaxHidden is the width of the widest hidden layer, 0 if there are none.
func (n *Network) MaxHidden() int { return n.maxHidden }

// HasRecurring reports whether any hidden layer is recurring.
func (n *Network) HasRecurring() bool { return n.conf.HasRecurring() }

// Recurring reports whether the given level has a self connection.
func (n *Network) Recurring(level int) bool { return level < len(n.recurrent) && n.recurrent[level] != nil }

// Biases returns the biases of a level. The returned slice aliases the network.
func (n *Network) Biases(level int) []float32 { return n.biases[level] }

// Weights returns the incoming weights of a level. The weight connecting source neuron s to
// neuron d is at (N-1-d)*S + (S-1-s), where N and S are the widths of the level and its source.
func (n *Network) Weights(level int) []float32 { return n.weights[level] }

// RecurrentWeights returns the self connection of a hidden level, nil if it is not recurring.
// It is laid out like Weights with S == N.
func (n *Network) RecurrentWeights(level int) []float32 {
	if level >= len(n.recurrent) {
		return nil
	}
	return n.recurrent[level]
}

// TotalNeurons counts neurons in every layer, input included.
func (n *Network) TotalNeurons() int {
	retVal := n.conf.Input.Neurons + n.conf.Output.Neurons
	for _, l := range n.conf.Hidden {
		retVal += l.Neurons
	}
	return retVal
}

// TotalSynapses counts every weight, recurrent ones included.
func (n *Network) TotalSynapses() int {
	var retVal int
	for i := range n.weights {
		retVal += len(n.weights[i])
	}
	for i := range n.recurrent {
		retVal += len(n.recurrent[i])
	}
	return retVal
}

// Scale multiplies every parameter by s.
func (n *Network) Scale(s float32) {
	n.each(func(_ paramKind, p []float32) { vecf32.Scale(p, s) })
}

type paramKind byte

const (
	biasParam paramKind = iota
	weightParam
)

// each walks all parameters, level by level: weights, biases, then recurrent weights.
func (n *Network) each(fn func(kind paramKind, p []float32)) {
	for i := range n.biases {
		fn(weightParam, n.weights[i])
		fn(biasParam, n.biases[i])
		if i < len(n.recurrent) && n.recurrent[i] != nil {
			fn(weightParam, n.recurrent[i])
		}
	}
}

// weightIndex is the offset of the weight connecting source s to destination d.
func weightIndex(d, s, dests, sources int) int { return (dests-1-d)*sources + (sources - 1 - s) }
