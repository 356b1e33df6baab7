// Package dataset loads labelled examples from whitespace delimited text files.
//
// The first line of a file holds three integers: the number of inputs, the number of hidden
// neurons to train with, and the number of outputs. Every following line is one example: the
// input values followed by one 0 or 1 label per output. Blank lines are skipped.
package dataset

import (
	"bufio"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// Set is a loaded dataset. Inputs has shape (examples, inputs) and Targets has shape
// (examples, outputs).
type Set struct {
	Hidden  int
	Inputs  *tensor.Dense
	Targets *tensor.Dense
}

// LoadFile loads a dataset from the named file.
func LoadFile(name string) (*Set, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	s, err := Load(f)
	return s, errors.WithMessagef(err, "loading %v", name)
}

// Load reads a dataset.
func Load(r io.Reader) (*Set, error) {
	sc := bufio.NewScanner(r)
	line := 0
	next := func() ([]string, bool) {
		for sc.Scan() {
			line++
			if fields := strings.Fields(sc.Text()); len(fields) > 0 {
				return fields, true
			}
		}
		return nil, false
	}

	header, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		return nil, errors.New("empty dataset")
	}
	if len(header) != 3 {
		return nil, errors.Errorf("header has %d fields, expected inputs, hidden and outputs", len(header))
	}
	var dims [3]int
	for i, f := range header {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed header field %q", f)
		}
		dims[i] = v
	}
	inputs, hidden, outputs := dims[0], dims[1], dims[2]
	switch {
	case inputs < 2:
		return nil, errors.Errorf("at least 2 inputs are required, got %d", inputs)
	case hidden < 2:
		return nil, errors.Errorf("at least 2 hidden neurons are required, got %d", hidden)
	case outputs < 1:
		return nil, errors.Errorf("at least 1 output is required, got %d", outputs)
	}

	var xs, ys []float32
	rows := 0
	for {
		fields, ok := next()
		if !ok {
			break
		}
		if len(fields) != inputs+outputs {
			return nil, errors.Errorf("line %d has %d fields instead of %d", line, len(fields), inputs+outputs)
		}
		for _, f := range fields[:inputs] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			xs = append(xs, float32(v))
		}
		for _, f := range fields[inputs:] {
			switch f {
			case "0":
				ys = append(ys, 0)
			case "1":
				ys = append(ys, 1)
			default:
				return nil, errors.Errorf("line %d has label %q, labels are 0 or 1", line, f)
			}
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if rows == 0 {
		return nil, errors.New("dataset has no examples")
	}

	return &Set{
		Hidden:  hidden,
		Inputs:  tensor.New(tensor.WithShape(rows, inputs), tensor.WithBacking(xs)),
		Targets: tensor.New(tensor.WithShape(rows, outputs), tensor.WithBacking(ys)),
	}, nil
}

// Len is the number of examples.
func (s *Set) Len() int { return s.Inputs.Shape()[0] }

// InputSize is the number of inputs of each example.
func (s *Set) InputSize() int { return s.Inputs.Shape()[1] }

// OutputSize is the number of labels of each example.
func (s *Set) OutputSize() int { return s.Targets.Shape()[1] }

// Rows returns one slice per example. The slices share memory with the tensors.
func (s *Set) Rows() (inputs, targets [][]float32, err error) {
	if inputs, err = native.MatrixF32(s.Inputs); err != nil {
		return nil, nil, errors.Wrap(err, "input rows")
	}
	if targets, err = native.MatrixF32(s.Targets); err != nil {
		return nil, nil, errors.Wrap(err, "target rows")
	}
	return inputs, targets, nil
}

// Shuffle reorders the examples, keeping inputs and targets paired.
func (s *Set) Shuffle(r *rand.Rand) error {
	xs, ys, err := s.Rows()
	if err != nil {
		return errors.WithMessage(err, "shuffle failed")
	}
	tmpX := make([]float32, s.InputSize())
	tmpY := make([]float32, s.OutputSize())
	for i := range xs {
		j := r.Intn(i + 1)
		copy(tmpX, xs[i])
		copy(xs[i], xs[j])
		copy(xs[j], tmpX)

		copy(tmpY, ys[i])
		copy(ys[i], ys[j])
		copy(ys[j], tmpY)
	}
	return nil
}
