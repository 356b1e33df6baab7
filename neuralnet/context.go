package nn

// Context holds the mutable buffers of one execution against a Network. A Network may be
// executed concurrently with distinct Contexts.
type Context struct {
	Input  []float32
	Output []float32

	// Recurrent is the carried state of each hidden layer, nil for layers that do not recur.
	Recurrent [][]float32

	// only one hidden layer's activations are alive at a time; cur and prev alternate
	cur, prev []float32
}

// NewContext allocates a zeroed Context sized for n.
func NewContext(n *Network) *Context {
	c := &Context{
		Input:     make([]float32, n.Inputs()),
		Output:    make([]float32, n.Outputs()),
		Recurrent: make([][]float32, n.Hidden()),
		cur:       make([]float32, n.MaxHidden()),
		prev:      make([]float32, n.MaxHidden()),
	}
	for i := range c.Recurrent {
		if n.Recurring(i) {
			c.Recurrent[i] = make([]float32, n.Layer(i).Neurons)
		}
	}
	return c
}

// Reset zeroes the recurrent state. Input and output are zeroed as well if io is set.
func (c *Context) Reset(io bool) {
	if io {
		zero(c.Input)
		zero(c.Output)
	}
	for _, r := range c.Recurrent {
		zero(r)
	}
}

// CopyRecurrent copies the recurrent state of c into dst.
func (c *Context) CopyRecurrent(dst *Context) {
	for i, r := range c.Recurrent {
		if r != nil {
			copy(dst.Recurrent[i], r)
		}
	}
}

// RecurrentSize is the number of floats held as recurrent state.
func (c *Context) RecurrentSize() int {
	var retVal int
	for _, r := range c.Recurrent {
		retVal += len(r)
	}
	return retVal
}

// FullContext captures what a forward pass computed for every hidden layer, as needed by the
// backward pass. One is required per unrolled timestep.
type FullContext struct {
	Hidden [][]float32 // activations
	Pre    [][]float32 // pre-activations

	// PrevRecurrent is each recurring layer's state as it was before the step.
	PrevRecurrent [][]float32
}

// NewFullContext allocates a FullContext sized for n.
func NewFullContext(n *Network) *FullContext {
	h := n.Hidden()
	f := &FullContext{
		Hidden:        make([][]float32, h),
		Pre:           make([][]float32, h),
		PrevRecurrent: make([][]float32, h),
	}
	for i := 0; i < h; i++ {
		w := n.Layer(i).Neurons
		f.Hidden[i] = make([]float32, w)
		f.Pre[i] = make([]float32, w)
		if n.Recurring(i) {
			f.PrevRecurrent[i] = make([]float32, w)
		}
	}
	return f
}

// Reset zeroes every captured buffer.
func (f *FullContext) Reset() {
	for i := range f.Hidden {
		zero(f.Hidden[i])
		zero(f.Pre[i])
		zero(f.PrevRecurrent[i])
	}
}

func zero(a []float32) {
	for i := range a {
		a[i] = 0
	}
}
