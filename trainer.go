package jinx

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/gorgonia/jinx/metrics"
	nn "github.com/gorgonia/jinx/neuralnet"
)

var (
	// ErrNotStarted is returned by Learn before StartInit.
	ErrNotStarted = errors.New("trainer has not been initialised")
	// ErrAlreadyRunning is returned by Start while the background loop of a previous Start runs.
	ErrAlreadyRunning = errors.New("trainer is already running")
)

// TrainerConfig configures a Trainer.
type TrainerConfig struct {
	Name string // identifies the run in logs and metrics

	LearningRate  float32
	DesiredLoss   float32 // training stops once an epoch's loss is at or below this
	LossSmoothing float32 // weight of the previous smoothed loss
	ShuffleChance float32 // chance to shuffle the data after each epoch

	// MaxUnroll is the truncated BPTT window. It only applies to networks with recurring layers.
	MaxUnroll int
	// StochasticSkipping runs a random number of forward only steps at the start of each epoch
	// so that windows do not always start at the same example.
	StochasticSkipping bool

	LossType   nn.LossType
	Derivative nn.DerivativeMode

	Delay time.Duration // pause between steps when running in the background
	Seed  int64         // 0 seeds from the clock

	Metrics    *metrics.Metrics
	Statistics *Statistics
}

// DefaultTrainerConfig returns the default configuration.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Name:          "trainer",
		LearningRate:  0.1,
		DesiredLoss:   0.01,
		LossSmoothing: 0.001,
		MaxUnroll:     1,
		LossType:      nn.LossAverage,
	}
}

// Validate returns a descriptive error for an unusable configuration.
func (conf TrainerConfig) Validate() error {
	switch {
	case conf.MaxUnroll < 1:
		return errors.Errorf("max unroll length must be at least 1, got %d", conf.MaxUnroll)
	case conf.LearningRate <= 0:
		return errors.Errorf("learning rate must be positive, got %v", conf.LearningRate)
	case conf.LossSmoothing < 0 || conf.LossSmoothing > 1:
		return errors.Errorf("loss smoothing must be within [0, 1], got %v", conf.LossSmoothing)
	case conf.ShuffleChance < 0 || conf.ShuffleChance > 1:
		return errors.Errorf("shuffle chance must be within [0, 1], got %v", conf.ShuffleChance)
	case conf.LossType > nn.LossCrossEntropy:
		return errors.Errorf("unknown loss type %d", conf.LossType)
	}
	return nil
}

func (conf TrainerConfig) IsValid() bool { return conf.Validate() == nil }

// Trainer trains a network by gradient descent with AdaGrad, unrolling recurring layers over
// windows of MaxUnroll examples.
//
// A Trainer is driven either by calling Learn, or by Start which calls Learn on a background
// goroutine. The getters may be called from any goroutine.
type Trainer struct {
	TrainerConfig
	OnStream StreamFunc // called at the end of each epoch
	OnGoal   func()     // called when DesiredLoss is reached

	net       *nn.Network
	data      Data
	classes   []int // cross entropy class of each target
	adagrad   *nn.AdaGrad
	grads     *nn.Gradients
	ctxs      []*nn.Context
	fulls     []*nn.FullContext
	states    []*nn.PropagationState
	recurring bool
	r         *rand.Rand

	// cursor
	dataIndex   int
	unrollCount int
	skip        int
	resetState  bool
	newLoss     float32
	samples     int

	state      int32
	iterations int64
	bestLoss   uint32
	smoothLoss uint32
	lossDelta  uint32
	done       chan struct{}
}

// NewTrainer creates a trainer for net over data.
func NewTrainer(net *nn.Network, data Data, conf TrainerConfig) (*Trainer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := data.validate(net); err != nil {
		return nil, errors.WithMessage(err, "invalid training data")
	}
	t := &Trainer{
		TrainerConfig: conf,
		net:           net,
		data:          data,
		adagrad:       nn.NewAdaGrad(net, conf.LearningRate),
		grads:         nn.NewGradients(net),
		recurring:     net.HasRecurring(),
		r:             newRand(conf.Seed),
	}
	slots := 1
	if t.recurring {
		slots = conf.MaxUnroll
	}
	for i := 0; i < slots; i++ {
		c, f := nn.NewContext(net), nn.NewFullContext(net)
		p := nn.NewPropagationState(net, c, f, t.grads)
		p.Mode = conf.Derivative
		t.ctxs = append(t.ctxs, c)
		t.fulls = append(t.fulls, f)
		t.states = append(t.states, p)
	}
	return t, nil
}

// Network returns the network being trained.
func (t *Trainer) Network() *nn.Network { return t.net }

// AdaGrad returns the optimizer memory, to be saved and restored alongside the weights.
func (t *Trainer) AdaGrad() *nn.AdaGrad { return t.adagrad }

// StartInit resets the losses and the data cursor, and readies the trainer. It fails if the data
// streamed by OnStream does not fit the network.
func (t *Trainer) StartInit() error {
	t.adagrad.LearningRate = t.LearningRate
	initial := float32(1)
	if t.LossType == nn.LossCrossEntropy {
		initial = -math32.Log(1/float32(t.net.Outputs())) * float32(len(t.ctxs))
	}
	t.store(&t.bestLoss, initial)
	t.store(&t.smoothLoss, initial)
	t.store(&t.lossDelta, 1)
	atomic.StoreInt64(&t.iterations, 0)

	t.unrollCount, t.skip, t.dataIndex = 0, 0, 0
	t.resetState = true
	if t.OnStream != nil {
		t.OnStream(&t.data)
		if err := t.data.validate(t.net); err != nil {
			atomic.StoreInt32(&t.state, int32(Uninitialized))
			return errors.WithMessage(err, "invalid streamed data")
		}
	}
	t.computeClasses()
	atomic.StoreInt32(&t.state, int32(Ready))
	return nil
}

// Start initialises the trainer and runs Learn on a background goroutine until the goal is
// reached or Stop is called. It fails with ErrAlreadyRunning while a previous loop is alive.
func (t *Trainer) Start() error {
	if t.looping() {
		return errors.WithStack(ErrAlreadyRunning)
	}
	if err := t.StartInit(); err != nil {
		return err
	}
	atomic.StoreInt32(&t.state, int32(Running))
	t.done = make(chan struct{})
	go t.loop(t.done)
	return nil
}

func (t *Trainer) looping() bool {
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *Trainer) loop(done chan struct{}) {
	defer close(done)
	for t.Running() {
		if err := t.Learn(); err != nil {
			log.Error().Err(err).Str("run", t.Name).Msg("training stopped")
			t.Stop()
			return
		}
		if t.Delay > 0 {
			time.Sleep(t.Delay)
		}
	}
}

// Stop halts training. A background loop exits after its current step.
func (t *Trainer) Stop() { atomic.StoreInt32(&t.state, int32(Stopped)) }

// Join waits up to timeout for the background loop to exit. It reports whether it did.
func (t *Trainer) Join(timeout time.Duration) bool {
	if t.done == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// State returns the lifecycle state.
func (t *Trainer) State() State { return State(atomic.LoadInt32(&t.state)) }

// Running reports whether Learn still does work.
func (t *Trainer) Running() bool {
	s := t.State()
	return s == Ready || s == Running
}

// Loss is the best epoch loss so far.
func (t *Trainer) Loss() float32 { return t.load(&t.bestLoss) }

// SmoothLoss is the exponentially smoothed epoch loss.
func (t *Trainer) SmoothLoss() float32 { return t.load(&t.smoothLoss) }

// LossDelta is the smoothed decrease of SmoothLoss per epoch.
func (t *Trainer) LossDelta() float32 { return t.load(&t.lossDelta) }

// Iterations is the number of completed epochs.
func (t *Trainer) Iterations() int64 { return atomic.LoadInt64(&t.iterations) }

// Learn performs one step: a forward pass over the next example, and the backward pass and
// optimizer step when a window completes.
func (t *Trainer) Learn() error {
	switch t.State() {
	case Uninitialized:
		return errors.WithStack(ErrNotStarted)
	case Stopped:
		return nil
	case Ready:
		atomic.StoreInt32(&t.state, int32(Running))
	}

	if t.resetState {
		t.reset()
	}

	n := t.data.Len()
	switch {
	case t.skip > 0:
		if t.recurring {
			copy(t.ctxs[0].Input, t.data.Inputs[t.dataIndex])
			t.net.Execute(t.ctxs[0])
		}
		t.skip--
	case t.recurring:
		slot := t.unrollCount
		copy(t.ctxs[slot].Input, t.data.Inputs[t.dataIndex])
		t.net.ExecuteFull(t.ctxs[slot], t.fulls[slot])
		t.unrollCount++
		if t.unrollCount >= len(t.ctxs) || t.dataIndex+1 >= n {
			t.backpropWindow()
		} else {
			t.ctxs[slot].CopyRecurrent(t.ctxs[slot+1])
		}
	default:
		copy(t.ctxs[0].Input, t.data.Inputs[t.dataIndex])
		t.net.ExecuteFull(t.ctxs[0], t.fulls[0])
		loss := t.net.Backward(t.data.Targets[t.dataIndex], t.states[0], t.LossType, t.class(t.dataIndex))
		t.accumulate(loss)
		t.adagrad.Apply(t.net, t.grads)
		t.grads.Reset()
	}

	t.dataIndex++
	if t.dataIndex >= n {
		return t.endEpoch()
	}
	return nil
}

func (t *Trainer) reset() {
	t.resetState = false
	t.newLoss, t.samples = 0, 0
	t.grads.Reset()
	for i := range t.ctxs {
		t.ctxs[i].Reset(true)
		t.fulls[i].Reset()
		t.states[i].Reset()
	}
	t.skip = 0
	if t.recurring && t.StochasticSkipping && t.data.Len() >= len(t.ctxs) {
		t.skip = t.r.Intn(t.data.Len()%len(t.ctxs) + 1)
	}
}

// backpropWindow runs the backward passes of the unrolled window, latest first, and takes an
// optimizer step.
func (t *Trainer) backpropWindow() {
	steps := t.unrollCount
	var loss float32
	for i, di := steps-1, t.dataIndex; i >= 0; i, di = i-1, di-1 {
		l := t.net.Backward(t.data.Targets[di], t.states[i], t.LossType, t.class(di))
		if t.LossType == nn.LossAverage {
			loss += l
		} else if l > loss {
			loss = l
		}
	}
	if t.LossType == nn.LossAverage {
		loss /= float32(steps)
	}
	t.accumulate(loss)

	t.adagrad.Apply(t.net, t.grads)
	t.grads.Reset()
	t.unrollCount = 0
	if steps > 1 {
		t.ctxs[steps-1].CopyRecurrent(t.ctxs[0])
	}
}

func (t *Trainer) accumulate(loss float32) {
	if t.LossType == nn.LossAverage {
		t.newLoss += loss
		t.samples++
		return
	}
	if loss > t.newLoss {
		t.newLoss = loss
	}
}

func (t *Trainer) endEpoch() error {
	it := atomic.AddInt64(&t.iterations, 1)
	t.dataIndex = 0
	if t.LossType == nn.LossAverage && t.samples > 0 {
		t.newLoss /= float32(t.samples)
	}
	loss := t.newLoss
	best := t.Loss()
	if loss < best {
		best = loss
		t.store(&t.bestLoss, best)
	}
	if t.Statistics != nil {
		t.Statistics.record(it, loss)
	}
	if loss <= t.DesiredLoss {
		log.Info().Str("run", t.Name).Int64("epoch", it).Float32("loss", loss).Msg("desired loss reached")
		t.Stop()
		if t.OnGoal != nil {
			t.OnGoal()
		}
		return nil
	}

	prev := t.SmoothLoss()
	smooth := prev*t.LossSmoothing + loss*(1-t.LossSmoothing)
	delta := t.LossDelta()*t.LossSmoothing + (prev-smooth)*(1-t.LossSmoothing)
	t.store(&t.smoothLoss, smooth)
	t.store(&t.lossDelta, delta)
	t.Metrics.Epoch(t.Name, loss, best, smooth, delta)
	log.Debug().Str("run", t.Name).Int64("epoch", it).Float32("loss", loss).Float32("smooth", smooth).Float32("delta", delta).Msg("epoch")

	t.newLoss, t.samples = 0, 0
	t.resetState = true
	if t.OnStream != nil {
		t.resetState = t.OnStream(&t.data)
		if err := t.data.validate(t.net); err != nil {
			return errors.WithMessage(err, "invalid streamed data")
		}
		t.computeClasses()
	}
	if t.ShuffleChance > 0 && t.r.Float32() < t.ShuffleChance {
		shufflePairs(t.r, &t.data)
		t.computeClasses()
	}
	return nil
}

func (t *Trainer) computeClasses() {
	if t.LossType != nn.LossCrossEntropy {
		t.classes = nil
		return
	}
	t.classes = make([]int, t.data.Len())
	for i, target := range t.data.Targets {
		t.classes[i] = classOf(target)
	}
}

func (t *Trainer) class(i int) int {
	if t.classes == nil {
		return -1
	}
	return t.classes[i]
}

func (t *Trainer) store(addr *uint32, v float32) { atomic.StoreUint32(addr, math32.Float32bits(v)) }

func (t *Trainer) load(addr *uint32) float32 { return math32.Float32frombits(atomic.LoadUint32(addr)) }
