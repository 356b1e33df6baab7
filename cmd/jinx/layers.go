package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	nn "github.com/gorgonia/jinx/neuralnet"
)

// parseHidden parses a comma separated list of hidden layers. Each layer is a neuron count,
// optionally followed by r for a recurring layer, and optionally by :activation.
//
//	8:sigmoid,4r:tanh
func parseHidden(spec string) ([]nn.Layer, error) {
	var retVal []nn.Layer
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		l := nn.Layer{Activation: nn.Sigmoid}
		if i := strings.IndexByte(part, ':'); i >= 0 {
			a, err := nn.ParseActivation(part[i+1:])
			if err != nil {
				return nil, err
			}
			l.Activation = a
			part = part[:i]
		}
		if strings.HasSuffix(part, "r") {
			l.Recurring = true
			part = strings.TrimSuffix(part, "r")
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed hidden layer %q", part)
		}
		l.Neurons = n
		retVal = append(retVal, l)
	}
	return retVal, nil
}

func saveModel(filename string, n *nn.Network) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := n.SaveStructure(f); err != nil {
		f.Close()
		return err
	}
	if err := n.Save(f); err != nil {
		f.Close()
		return err
	}
	return errors.WithStack(f.Close())
}

func loadModel(filename string) (*nn.Network, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	n, err := nn.LoadStructure(f)
	if err != nil {
		return nil, err
	}
	if err := n.Load(f); err != nil {
		return nil, err
	}
	return n, nil
}

// adagradFile is where the optimizer memory of a model file is kept.
func adagradFile(model string) string { return model + ".adagrad" }

func saveAdaGrad(filename string, a *nn.AdaGrad) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := a.Save(f); err != nil {
		f.Close()
		return err
	}
	return errors.WithStack(f.Close())
}

// loadAdaGrad restores the optimizer memory saved next to a model. A missing file is not an
// error; training then continues with fresh accumulators.
func loadAdaGrad(filename string, a *nn.AdaGrad) (bool, error) {
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	defer f.Close()
	if err := a.Load(f); err != nil {
		return false, errors.WithMessagef(err, "reading %s", filename)
	}
	return true, nil
}
