package jinx

import (
	"github.com/pkg/errors"

	nn "github.com/gorgonia/jinx/neuralnet"
)

// Data is a set of examples: Inputs[i] is presented to the network and Targets[i] is the output
// it should produce.
type Data struct {
	Inputs  [][]float32
	Targets [][]float32
}

// Len is the number of examples.
func (d Data) Len() int { return len(d.Targets) }

// validate checks d against the input and output widths of n.
func (d Data) validate(n *nn.Network) error {
	if len(d.Inputs) != len(d.Targets) {
		return errors.Errorf("have %d inputs but %d targets", len(d.Inputs), len(d.Targets))
	}
	if len(d.Targets) == 0 {
		return errors.New("no examples")
	}
	for i := range d.Inputs {
		if len(d.Inputs[i]) != n.Inputs() {
			return errors.Errorf("input %d has %d values, the network takes %d", i, len(d.Inputs[i]), n.Inputs())
		}
		if len(d.Targets[i]) != n.Outputs() {
			return errors.Errorf("target %d has %d values, the network produces %d", i, len(d.Targets[i]), n.Outputs())
		}
	}
	return nil
}

// StreamFunc is called whenever a driver runs out of data. It may replace the contents of d, and
// returns whether recurrent state should be reset before the next pass.
type StreamFunc func(d *Data) (reset bool)

// State is the lifecycle state of a Trainer.
type State int32

const (
	Uninitialized State = iota
	Ready
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}
