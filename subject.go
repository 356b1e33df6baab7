package jinx

import (
	"math/rand"

	nn "github.com/gorgonia/jinx/neuralnet"
)

// A Subject is one member of an Evolver's population: a candidate network and the state of
// the episode it is playing through.
type Subject struct {
	ID      int
	Network *nn.Network
	Context *nn.Context
	Rand    *rand.Rand

	// Episode state, owned by the StepFunc. State is -1 between episodes.
	State int
	Loss  float32
	Total int
}

func newSubject(id int, n *nn.Network, seed int64) *Subject {
	return &Subject{
		ID:      id,
		Network: n,
		Context: nn.NewContext(n),
		Rand:    newRand(seed),
		State:   -1,
	}
}

// Execute runs the subject's network over its context.
func (s *Subject) Execute() { s.Network.Execute(s.Context) }

// StepFunc advances a subject by one step: it scores the output of the previous execution and
// loads the next input into s.Context. It returns true when an episode has completed, at which
// point s.Loss and s.Total describe it.
type StepFunc func(s *Subject) (done bool)
