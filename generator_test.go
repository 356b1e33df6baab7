package jinx

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nn "github.com/gorgonia/jinx/neuralnet"
)

func halfSquaredError(out, target []float32) float32 {
	var retVal float32
	for i := range out {
		d := out[i] - target[i]
		retVal += d * d / 2
	}
	return retVal
}

// sequenceError runs inputs from empty recurrent state and sums the error of every step.
func sequenceError(n *nn.Network, inputs, targets [][]float32) float32 {
	c := nn.NewContext(n)
	var retVal float32
	for i := range inputs {
		copy(c.Input, inputs[i])
		n.Execute(c)
		retVal += halfSquaredError(c.Output, targets[i])
	}
	return retVal
}

func TestInputErrorPropagation(t *testing.T) {
	conf := nn.DefaultConf(3, 2, 4)
	conf.Output.Activation = nn.Identity
	n := testNetwork(t, conf, 11)
	g := NewGenerator(n, 4)

	input := []float32{0.2, -0.4, 0.7}
	target := []float32{1, 0}
	grad := g.InputErrorPropagation(input, target)
	require.Len(t, grad, 3)

	const eps = 1e-2
	for i := range input {
		x := input[i]
		input[i] = x + eps
		up := sequenceError(n, [][]float32{input}, [][]float32{target})
		input[i] = x - eps
		down := sequenceError(n, [][]float32{input}, [][]float32{target})
		input[i] = x
		assert.InDelta(t, (up-down)/(2*eps), grad[i], 1e-3, "input %d", i)
	}

	// the gradient is a fresh slice every call
	again := g.InputErrorPropagation(input, target)
	assert.Equal(t, grad, again)
	again[0] = 100
	assert.NotEqual(t, grad[0], again[0])
}

func TestInputErrorPropagationRecurring(t *testing.T) {
	conf := nn.Config{
		Input:  nn.Layer{Neurons: 2},
		Hidden: []nn.Layer{{Neurons: 3, Recurring: true, Activation: nn.Sigmoid}},
		Output: nn.Layer{Neurons: 2},
	}
	n := testNetwork(t, conf, 13)
	g := NewGenerator(n, 3)

	inputs := [][]float32{{0.5, -0.1}, {0.2, 0.9}, {-0.6, 0.3}}
	targets := [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}}
	grads, err := g.InputErrorPropagationRecurring(inputs, targets)
	require.NoError(t, err)
	require.Len(t, grads, 3)

	const eps = 1e-2
	for step := range inputs {
		for i := range inputs[step] {
			x := inputs[step][i]
			inputs[step][i] = x + eps
			up := sequenceError(n, inputs, targets)
			inputs[step][i] = x - eps
			down := sequenceError(n, inputs, targets)
			inputs[step][i] = x
			assert.InDelta(t, (up-down)/(2*eps), grads[step][i], 1e-3, "step %d input %d", step, i)
		}
	}

	_, err = g.InputErrorPropagationRecurring(append(inputs, inputs[0]), append(targets, targets[0]))
	assert.True(t, errors.Is(err, ErrBatchTooLong))
	_, err = g.InputErrorPropagationRecurring(inputs, targets[:2])
	assert.Error(t, err)

	ff := NewGenerator(testNetwork(t, nn.DefaultConf(2, 2, 3), 1), 3)
	_, err = ff.InputErrorPropagationRecurring(inputs[:1], targets[:1])
	assert.True(t, errors.Is(err, ErrNoRecurrence))
}

func TestInputErrorPropagationRepeatable(t *testing.T) {
	n := testNetwork(t, recurringConf(), 17)
	g := NewGenerator(n, 2)

	input, target := []float32{0.5, 0.2}, []float32{1, 0}
	first := g.InputErrorPropagation(input, target)
	second := g.InputErrorPropagation(input, target)
	assert.Equal(t, first, second)

	_, err := g.InputErrorPropagationRecurring([][]float32{{0.1, 0.9}, {0.7, 0.3}}, [][]float32{{0, 1}, {1, 0}})
	require.NoError(t, err)
	assert.Equal(t, first, g.InputErrorPropagation(input, target))
}
