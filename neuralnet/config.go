// Package nn implements dense neural networks with optional self recurrent hidden layers,
// forward execution, backpropagation through time and AdaGrad.
package nn

import (
	"strconv"

	"github.com/pkg/errors"
)

// Layer describes one layer of neurons.
type Layer struct {
	Neurons    int
	Recurring  bool
	Activation Activation
}

// Config is the topology of a network: an input layer, a chain of hidden layers and an output
// layer.
type Config struct {
	Input  Layer
	Hidden []Layer
	Output Layer
}

// DefaultConf creates a network topology with one sigmoid layer per entry in hidden.
func DefaultConf(inputs, outputs int, hidden ...int) Config {
	conf := Config{
		Input:  Layer{Neurons: inputs, Activation: Identity},
		Output: Layer{Neurons: outputs, Activation: Sigmoid},
	}
	for _, h := range hidden {
		conf.Hidden = append(conf.Hidden, Layer{Neurons: h, Activation: Sigmoid})
	}
	return conf
}

// Validate returns a descriptive error for a malformed topology.
func (conf Config) Validate() error {
	if err := conf.Input.validate("input"); err != nil {
		return err
	}
	if conf.Input.Recurring {
		return errors.New("input layer cannot be recurring")
	}
	for i, l := range conf.Hidden {
		if err := l.validate("hidden layer " + strconv.Itoa(i)); err != nil {
			return err
		}
	}
	if err := conf.Output.validate("output"); err != nil {
		return err
	}
	if conf.Output.Recurring {
		return errors.New("output layer cannot be recurring")
	}
	return nil
}

func (conf Config) IsValid() bool { return conf.Validate() == nil }

// HasRecurring reports whether any hidden layer is recurring.
func (conf Config) HasRecurring() bool {
	for _, l := range conf.Hidden {
		if l.Recurring {
			return true
		}
	}
	return false
}

// MaxNeurons is the widest layer a network may have.
const MaxNeurons = 1 << 14

func (l Layer) validate(name string) error {
	if l.Neurons < 1 || l.Neurons > MaxNeurons {
		return errors.Errorf("%s has %d neurons, expected 1 to %d", name, l.Neurons, MaxNeurons)
	}
	if !l.Activation.IsValid() {
		return errors.Errorf("%s has unknown activation function %d", name, int32(l.Activation))
	}
	return nil
}
