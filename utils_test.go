package jinx

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomChoice(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	assert.Equal(t, 2, RandomChoice(r, []float32{0, 0, 1}))
	assert.Equal(t, 1, RandomChoice(r, []float32{0, 0}))

	counts := make([]int, 3)
	weights := []float32{0.1, 0.6, 0.3}
	const draws = 20000
	for i := 0; i < draws; i++ {
		counts[RandomChoice(r, weights)]++
	}
	for i, w := range weights {
		assert.InDelta(t, w, float32(counts[i])/draws, 0.02, "index %d", i)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		in, out []float32
	}{
		{"positive", []float32{1, 3}, []float32{0.25, 0.75}},
		{"zero", []float32{0, 0}, []float32{0, 0}},
		{"negative sum", []float32{1, -3}, []float32{1, -3}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			Normalize(c.in)
			assert.Equal(t, c.out, c.in)
		})
	}
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, 1, classOf([]float32{0, 1, 0}))
	assert.Equal(t, -1, classOf([]float32{0, 0, 0}))
}

func TestShufflePairs(t *testing.T) {
	d := Data{}
	for i := 0; i < 20; i++ {
		d.Inputs = append(d.Inputs, []float32{float32(i)})
		d.Targets = append(d.Targets, []float32{float32(2 * i)})
	}
	shufflePairs(rand.New(rand.NewSource(3)), &d)
	for i := range d.Inputs {
		assert.Equal(t, 2*d.Inputs[i][0], d.Targets[i][0])
	}
}

func TestManyErr(t *testing.T) {
	err := manyErr{errors.New("a"), errors.New("b")}
	assert.Equal(t, "a\nb\n", err.Error())
}
