package nn

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Activation is the activation function of a layer. The numeric value is the id written to
// structure streams.
type Activation int32

const (
	Identity Activation = iota
	Rectifier
	Sin
	Cos
	Tan
	Tanh
	Sinh
	Exp
	Sigmoid
	Sqrt
	Square

	MAXACTIVATION // sentinel
)

var activationNames = [...]string{
	Identity:  "identity",
	Rectifier: "rectifier",
	Sin:       "sin",
	Cos:       "cos",
	Tan:       "tan",
	Tanh:      "tanh",
	Sinh:      "sinh",
	Exp:       "exp",
	Sigmoid:   "sigmoid",
	Sqrt:      "sqrt",
	Square:    "pow2",
}

func (a Activation) String() string {
	if !a.IsValid() {
		return "Activation(" + strconv.Itoa(int(a)) + ")"
	}
	return activationNames[a]
}

// IsValid reports whether a is one of the registered functions.
func (a Activation) IsValid() bool { return a >= Identity && a < MAXACTIVATION }

// ActivationFromID maps a serialized id back to its Activation.
func ActivationFromID(id int32) (Activation, error) {
	a := Activation(id)
	if !a.IsValid() {
		return Identity, errors.Errorf("unknown activation function id %d", id)
	}
	return a, nil
}

// ParseActivation looks an activation up by name.
func ParseActivation(name string) (Activation, error) {
	for i, n := range activationNames {
		if n == name {
			return Activation(i), nil
		}
	}
	return Identity, errors.Errorf("unknown activation function %q", name)
}

// Apply evaluates the activation. Everything except identity and exp is clamped to [0, 1], and
// NaN becomes 0.
func (a Activation) Apply(v float32) float32 {
	switch a {
	case Identity:
		return v
	case Rectifier:
	case Sin:
		v = math32.Sin(v)
	case Cos:
		v = math32.Cos(v)
	case Tan:
		v = math32.Tan(v)
	case Tanh:
		v = math32.Tanh(v)
	case Sinh:
		v = math32.Sinh(v)
	case Exp:
		v = math32.Exp(v)
		if math32.IsNaN(v) {
			return 0
		}
		return v
	case Sigmoid:
		v = 1 / (1 + math32.Exp(-v))
	case Sqrt:
		v = math32.Sqrt(v)
	case Square:
		v = v * v
	default:
		return v
	}
	return clamp01(v)
}

// Derivative returns df/dz at pre-activation z, where y = a.Apply(z). Clamped regions have a
// zero derivative.
func (a Activation) Derivative(z, y float32) float32 {
	if a == Identity {
		return 1
	}
	if a == Exp {
		return y
	}
	if y <= 0 || y >= 1 {
		return 0
	}
	switch a {
	case Rectifier:
		return 1
	case Sin:
		return math32.Cos(z)
	case Cos:
		return -math32.Sin(z)
	case Tan:
		return 1 + y*y
	case Tanh:
		return 1 - y*y
	case Sinh:
		return math32.Cosh(z)
	case Sigmoid:
		return y * (1 - y)
	case Sqrt:
		return 0.5 / y
	case Square:
		return 2 * z
	}
	return 1
}

func clamp01(v float32) float32 {
	switch {
	case math32.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
