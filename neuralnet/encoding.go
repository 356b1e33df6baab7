package nn

import (
	"io"

	"github.com/pkg/errors"

	"github.com/gorgonia/jinx/internal/binio"
)

// SaveStructure writes the topology of n: input layer, hidden layer count, hidden layers,
// output layer.
func (n *Network) SaveStructure(w io.Writer) error {
	bw := binio.NewWriter(w)
	writeLayer(bw, n.conf.Input)
	bw.Int32(int32(len(n.conf.Hidden)))
	for _, l := range n.conf.Hidden {
		writeLayer(bw, l)
	}
	writeLayer(bw, n.conf.Output)
	return errors.WithMessage(bw.Err(), "saving network structure")
}

// LoadStructure reads a topology written by SaveStructure and allocates a zeroed network for it.
func LoadStructure(r io.Reader) (*Network, error) {
	br := binio.NewReader(r)
	var conf Config
	var err error
	if conf.Input, err = readLayer(br); err != nil {
		return nil, err
	}
	hidden := br.Int32()
	if hidden < 0 {
		return nil, errors.Errorf("invalid hidden layer count %d", hidden)
	}
	for i := int32(0); i < hidden && br.Err() == nil; i++ {
		l, err := readLayer(br)
		if err != nil {
			return nil, err
		}
		conf.Hidden = append(conf.Hidden, l)
	}
	if conf.Output, err = readLayer(br); err != nil {
		return nil, err
	}
	if err := br.Err(); err != nil {
		return nil, errors.WithMessage(err, "loading network structure")
	}
	return New(conf)
}

// Save writes the parameters of n: output biases, hidden biases, output weights, then each
// hidden layer's weights followed by its recurrent weights.
func (n *Network) Save(w io.Writer) error {
	bw := binio.NewWriter(w)
	n.streamOrder(bw.Floats)
	return errors.WithMessage(bw.Err(), "saving network weights")
}

// Load reads parameters written by Save. The stream must come from a network of the same shape.
func (n *Network) Load(r io.Reader) error {
	br := binio.NewReader(r)
	n.streamOrder(br.Floats)
	return errors.WithMessage(br.Err(), "loading network weights")
}

func (n *Network) streamOrder(fn func([]float32)) {
	top := len(n.conf.Hidden)
	fn(n.biases[top])
	for i := 0; i < top; i++ {
		fn(n.biases[i])
	}
	fn(n.weights[top])
	for i := 0; i < top; i++ {
		fn(n.weights[i])
		if n.recurrent[i] != nil {
			fn(n.recurrent[i])
		}
	}
}

func writeLayer(bw *binio.Writer, l Layer) {
	bw.Int32(int32(l.Neurons))
	bw.Bool(l.Recurring)
	bw.Int32(int32(l.Activation))
}

func readLayer(br *binio.Reader) (Layer, error) {
	l := Layer{Neurons: int(br.Int32()), Recurring: br.Bool()}
	id := br.Int32()
	if err := br.Err(); err != nil {
		return l, errors.WithMessage(err, "loading network structure")
	}
	if l.Neurons < 1 || l.Neurons > MaxNeurons {
		return l, errors.Errorf("corrupt network structure: layer of %d neurons", l.Neurons)
	}
	var err error
	l.Activation, err = ActivationFromID(id)
	return l, err
}
