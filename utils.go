package jinx

import (
	"bytes"
	"math/rand"
	"time"

	"gorgonia.org/vecf32"
)

// RandomChoice picks an index with probability proportional to its weight. The weights are
// expected to sum to 1; if the draw falls past the end the last index is returned.
func RandomChoice(r *rand.Rand, weights []float32) int {
	v := r.Float32()
	var sum float32
	for i, w := range weights {
		next := sum + w
		if v >= sum && v <= next {
			return i
		}
		sum = next
	}
	return len(weights) - 1
}

// Normalize scales a to sum to 1. It does nothing unless the sum is positive.
func Normalize(a []float32) {
	if sum := vecf32.Sum(a); sum > 0 {
		vecf32.Scale(a, 1/sum)
	}
}

// classOf is the index of the one-hot class in target, -1 if there is none.
func classOf(target []float32) int {
	i := vecf32.Argmax(target)
	if target[i] > 0 {
		return i
	}
	return -1
}

func shufflePairs(r *rand.Rand, d *Data) {
	r.Shuffle(len(d.Targets), func(i, j int) {
		d.Inputs[i], d.Inputs[j] = d.Inputs[j], d.Inputs[i]
		d.Targets[i], d.Targets[j] = d.Targets[j], d.Targets[i]
	})
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

type manyErr []error

func (err manyErr) Error() string {
	var buf bytes.Buffer
	for _, e := range err {
		buf.WriteString(e.Error())
		buf.WriteString("\n")
	}
	return buf.String()
}
