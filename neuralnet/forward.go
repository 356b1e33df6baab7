package nn

// Execute runs one forward pass over c.Input, writing c.Output and advancing the recurrent
// state held in c.
func (n *Network) Execute(c *Context) { n.forward(c, nil) }

// ExecuteFull is Execute that also captures the intermediate values needed by Backward.
func (n *Network) ExecuteFull(c *Context, f *FullContext) { n.forward(c, f) }

func (n *Network) forward(c *Context, f *FullContext) {
	in := c.Input
	for i, l := range n.conf.Hidden {
		out := c.cur[:l.Neurons]
		var rec []float32
		if n.recurrent[i] != nil {
			rec = c.Recurrent[i]
			if f != nil {
				copy(f.PrevRecurrent[i], rec)
			}
		}
		var pre []float32
		if f != nil {
			pre = f.Pre[i]
		}
		n.layer(i, in, rec, out, pre)
		if rec != nil {
			copy(rec, out)
		}
		if f != nil {
			copy(f.Hidden[i], out)
		}
		in = out
		c.cur, c.prev = c.prev, c.cur
	}
	n.layer(len(n.conf.Hidden), in, nil, c.Output, nil)
}

// layer computes the activations of one level into out. pre, if not nil, receives the
// pre-activations.
func (n *Network) layer(level int, in, rec, out, pre []float32) {
	fn := n.Layer(level).Activation
	b, w := n.biases[level], n.weights[level]
	rw := n.RecurrentWeights(level)

	wi, ri := 0, 0
	for d := len(b) - 1; d >= 0; d-- {
		sum := b[d]
		for s := len(in) - 1; s >= 0; s-- {
			sum += in[s] * w[wi]
			wi++
		}
		if rec != nil {
			for s := len(rec) - 1; s >= 0; s-- {
				sum += rec[s] * rw[ri]
				ri++
			}
		}
		if pre != nil {
			pre[d] = sum
		}
		out[d] = fn.Apply(sum)
	}
}
