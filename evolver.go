package jinx

import (
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/gorgonia/jinx/internal/binio"
	"github.com/gorgonia/jinx/metrics"
	nn "github.com/gorgonia/jinx/neuralnet"
)

// ErrNoBest is returned when saving an Evolver that has not recorded two networks yet.
var ErrNoBest = errors.New("evolver has no best and second best network")

// generationScale is the unit in which the generation count is saved.
const generationScale = 10000000

// EvolverConfig configures an Evolver.
type EvolverConfig struct {
	Name string // identifies the run in logs and metrics

	Population int
	Breeding   bool

	MaxBreedingLoss  float32 // breed only once the best loss is at or below this
	DesiredLoss      float32 // evolution stops once an episode's loss is at or below this
	MaxMutationRate  float32
	MinMutationRate  float32
	MutationIncrease float32 // added to the mutation rate on each recorded episode

	LossType nn.LossType // reduction used by the dataset step function
	Range    nn.Range    // used to randomize and mutate networks

	Delay time.Duration // pause between steps of each subject
	Seed  int64         // 0 seeds from the clock

	Metrics    *metrics.Metrics
	Statistics *Statistics
}

// DefaultEvolverConfig returns the default configuration.
func DefaultEvolverConfig() EvolverConfig {
	return EvolverConfig{
		Name:             "evolver",
		Population:       4,
		Breeding:         true,
		MaxBreedingLoss:  1,
		MaxMutationRate:  1,
		MutationIncrease: 1e-3,
		LossType:         nn.LossAverage,
		Range:            nn.DefaultRange(),
	}
}

// Validate returns a descriptive error for an unusable configuration.
func (conf EvolverConfig) Validate() error {
	switch {
	case conf.Population < 1:
		return errors.Errorf("population must be at least 1, got %d", conf.Population)
	case conf.MinMutationRate > conf.MaxMutationRate:
		return errors.Errorf("min mutation rate %v exceeds max mutation rate %v", conf.MinMutationRate, conf.MaxMutationRate)
	case conf.LossType == nn.LossCrossEntropy:
		return errors.New("the evolver scores episodes by average or max error only")
	case conf.LossType > nn.LossCrossEntropy:
		return errors.Errorf("unknown loss type %d", conf.LossType)
	}
	return nil
}

func (conf EvolverConfig) IsValid() bool { return conf.Validate() == nil }

// Evolver evolves a population of networks. Each subject plays episodes on its own goroutine;
// finished episodes are recorded and the subject continues with a new generation bred from the
// best networks seen so far.
type Evolver struct {
	EvolverConfig
	OnStream StreamFunc // called once every subject finished its episode
	OnGoal   func()     // called when DesiredLoss is reached

	source    *nn.Network
	step      StepFunc
	data      Data
	checkData bool // data drives the step function and must fit the network
	subjects  []*Subject

	sync.Mutex     // guards the fields below
	first          bool
	generations    int64
	bestLoss       float32
	secondBestLoss float32
	lossDelta      float32
	best           *nn.Network
	secondBest     *nn.Network

	running int32
	ready   []int32
	reset   int32
	goal    sync.Once
	wg      sync.WaitGroup
}

// NewEvolver creates an Evolver scoring networks against data with the dataset step function.
func NewEvolver(source *nn.Network, data Data, conf EvolverConfig) (*Evolver, error) {
	if err := data.validate(source); err != nil {
		return nil, errors.WithMessage(err, "invalid evolver data")
	}
	e, err := newEvolver(source, conf)
	if err != nil {
		return nil, err
	}
	e.data = data
	e.checkData = true
	e.step = e.datasetStep
	return e, nil
}

// NewCustomEvolver creates an Evolver whose subjects are driven by step.
func NewCustomEvolver(source *nn.Network, conf EvolverConfig, step StepFunc) (*Evolver, error) {
	if step == nil {
		return nil, errors.New("nil step function")
	}
	e, err := newEvolver(source, conf)
	if err != nil {
		return nil, err
	}
	e.step = step
	return e, nil
}

func newEvolver(source *nn.Network, conf EvolverConfig) (*Evolver, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	e := &Evolver{
		EvolverConfig:  conf,
		source:         source,
		first:          true,
		bestLoss:       1,
		secondBestLoss: 1,
		lossDelta:      conf.MinMutationRate,
		ready:          make([]int32, conf.Population),
	}
	seeds := newRand(conf.Seed)
	for i := 0; i < conf.Population; i++ {
		e.subjects = append(e.subjects, newSubject(i, source.Clone(true), seeds.Int63()))
	}
	return e, nil
}

// Subjects returns the population.
func (e *Evolver) Subjects() []*Subject { return e.subjects }

// Record scores a network. Losses above 1 are ignored.
func (e *Evolver) Record(n *nn.Network, loss float32) {
	e.Lock()
	defer e.Unlock()
	e.generations++
	if loss > 1 {
		return
	}
	e.lossDelta += e.MutationIncrease
	if e.lossDelta > e.MaxMutationRate {
		e.lossDelta = e.MaxMutationRate
	}
	switch {
	case loss < e.bestLoss:
		e.lossDelta = e.MinMutationRate
		if e.Breeding && n != e.best {
			e.secondBestLoss, e.secondBest = e.bestLoss, e.best
		}
		e.bestLoss, e.best = loss, n
		log.Debug().Str("run", e.Name).Int64("generation", e.generations).Float32("loss", loss).Msg("new best")
	case e.Breeding && loss < e.secondBestLoss && n != e.best:
		e.secondBestLoss, e.secondBest = loss, n
	}
	e.Metrics.Generation(e.Name, e.bestLoss, e.secondBestLoss, e.lossDelta)
	if e.Statistics != nil {
		e.Statistics.record(e.generations, loss)
	}
}

// NextGeneration creates a new network. The first generation is a copy of the source network.
// Afterwards, if breeding applies, it is the best network bred with the second best and
// mutated by the current mutation rate; otherwise it is random.
func (e *Evolver) NextGeneration(r *rand.Rand) *nn.Network {
	e.Lock()
	first := e.first
	e.first = false
	best, second := e.best, e.secondBest
	breed := e.Breeding && e.bestLoss <= e.MaxBreedingLoss && best != nil && second != nil
	delta := e.lossDelta
	e.Unlock()

	retVal := e.source.Clone(false)
	switch {
	case first:
		retVal.CopyFrom(e.source)
	case breed:
		retVal.CopyFrom(best)
		retVal.Breed(r, second)
		if delta > 0 {
			retVal.Mutate(r, delta, e.Range)
		}
	default:
		retVal.Randomize(r, e.Range)
	}
	return retVal
}

// Start runs every subject on its own goroutine.
func (e *Evolver) Start() {
	atomic.StoreInt32(&e.running, 1)
	for _, s := range e.subjects {
		e.wg.Add(1)
		go e.work(s)
	}
}

// Stop halts every subject and waits for them to exit.
func (e *Evolver) Stop() {
	atomic.StoreInt32(&e.running, 0)
	e.wg.Wait()
}

// Wait blocks until every subject has exited, which happens after Stop or once the goal is
// reached.
func (e *Evolver) Wait() { e.wg.Wait() }

// Running reports whether the subjects are running.
func (e *Evolver) Running() bool { return atomic.LoadInt32(&e.running) == 1 }

// Reset forgets the best losses so that the next recorded episodes replace the best networks.
func (e *Evolver) Reset() {
	e.Lock()
	e.lossDelta = e.MinMutationRate
	e.bestLoss, e.secondBestLoss = 1, 1
	e.Unlock()
}

// Loss is the best recorded loss.
func (e *Evolver) Loss() float32 {
	e.Lock()
	defer e.Unlock()
	return e.bestLoss
}

// SecondBestLoss is the second best recorded loss.
func (e *Evolver) SecondBestLoss() float32 {
	e.Lock()
	defer e.Unlock()
	return e.secondBestLoss
}

// MutationRate is the current mutation chance.
func (e *Evolver) MutationRate() float32 {
	e.Lock()
	defer e.Unlock()
	return e.lossDelta
}

// Best is the network with the best recorded loss, nil if none was recorded.
func (e *Evolver) Best() *nn.Network {
	e.Lock()
	defer e.Unlock()
	return e.best
}

// Generations is the number of recorded episodes.
func (e *Evolver) Generations() int64 {
	e.Lock()
	defer e.Unlock()
	return e.generations
}

// HasBestAndSecondBest reports whether both networks needed for breeding exist.
func (e *Evolver) HasBestAndSecondBest() bool {
	e.Lock()
	defer e.Unlock()
	return e.best != nil && e.secondBest != nil
}

func (e *Evolver) work(s *Subject) {
	defer e.wg.Done()
	for e.Running() {
		if !e.step(s) {
			s.Execute()
			if e.Delay > 0 {
				time.Sleep(e.Delay)
			}
			continue
		}

		reset := true
		if e.OnStream != nil {
			var ok bool
			if reset, ok = e.barrier(s.ID); !ok {
				return
			}
		}
		if !reset || s.Total == 0 {
			continue
		}
		loss := s.Loss
		if e.LossType == nn.LossAverage {
			loss /= float32(s.Total)
		}
		s.Loss, s.Total = 0, 0

		e.Record(s.Network, loss)
		s.Network = e.NextGeneration(s.Rand)
		s.Context.Reset(false)
		if loss <= e.DesiredLoss {
			e.reachGoal(loss)
			return
		}
	}
}

// barrier waits until every subject reached it. The first subject then streams the next data.
// It returns the reset flag of the stream, and false if the evolver stopped while waiting.
func (e *Evolver) barrier(id int) (reset, ok bool) {
	atomic.StoreInt32(&e.ready[id], 1)
	if id == 0 {
		for !e.allReady() {
			if !e.Running() {
				return false, false
			}
			time.Sleep(time.Millisecond)
		}
		reset = e.OnStream(&e.data)
		if e.checkData {
			if err := e.data.validate(e.source); err != nil {
				log.Error().Err(err).Str("run", e.Name).Msg("invalid streamed data, stopping")
				atomic.StoreInt32(&e.running, 0)
				return false, false
			}
		}
		var r int32
		if reset {
			r = 1
		}
		atomic.StoreInt32(&e.reset, r)
		for i := range e.ready {
			atomic.StoreInt32(&e.ready[i], 0)
		}
		return reset, true
	}
	for atomic.LoadInt32(&e.ready[id]) == 1 {
		if !e.Running() {
			return false, false
		}
		time.Sleep(time.Millisecond)
	}
	return atomic.LoadInt32(&e.reset) == 1, true
}

func (e *Evolver) allReady() bool {
	for i := range e.ready {
		if atomic.LoadInt32(&e.ready[i]) == 0 {
			return false
		}
	}
	return true
}

func (e *Evolver) reachGoal(loss float32) {
	atomic.StoreInt32(&e.running, 0)
	e.goal.Do(func() {
		log.Info().Str("run", e.Name).Float32("loss", loss).Int64("generations", e.Generations()).Msg("desired loss reached")
		if e.OnGoal != nil {
			e.OnGoal()
		}
	})
}

// datasetStep plays one pass over the evolver's data per episode, scoring each output by
// average or max absolute error.
func (e *Evolver) datasetStep(s *Subject) bool {
	if s.State >= 0 {
		out, target := s.Context.Output, e.data.Targets[s.State]
		var perf float32
		for i := range out {
			d := math32.Abs(out[i] - target[i])
			if e.LossType == nn.LossAverage {
				perf += d
			} else if d > perf {
				perf = d
			}
		}
		if e.LossType == nn.LossAverage {
			s.Loss += perf / float32(len(out))
		} else if perf > s.Loss {
			s.Loss = perf
		}

		s.State++
		if s.State >= e.data.Len() {
			s.Total += s.State
			s.State = -1
			return true
		}
	} else {
		s.State = 0
	}
	copy(s.Context.Input, e.data.Inputs[s.State])
	return false
}

// Save writes the generation count, the best losses and the weights of the best and second
// best networks.
func (e *Evolver) Save(w io.Writer) error {
	e.Lock()
	defer e.Unlock()
	if e.best == nil || e.secondBest == nil {
		return errors.WithStack(ErrNoBest)
	}
	bw := binio.NewWriter(w)
	bw.Int32(int32(e.generations / generationScale))
	bw.Float32(e.bestLoss)
	bw.Float32(e.secondBestLoss)
	if err := bw.Err(); err != nil {
		return errors.WithMessage(err, "saving evolver")
	}
	if err := e.best.Save(w); err != nil {
		return err
	}
	return e.secondBest.Save(w)
}

// Load reads a state written by Save.
func (e *Evolver) Load(r io.Reader) error {
	br := binio.NewReader(r)
	generations := int64(br.Int32()) * generationScale
	bestLoss, secondBestLoss := br.Float32(), br.Float32()
	if err := br.Err(); err != nil {
		return errors.WithMessage(err, "loading evolver")
	}
	best, second := e.source.Clone(false), e.source.Clone(false)
	if err := best.Load(r); err != nil {
		return err
	}
	if err := second.Load(r); err != nil {
		return err
	}

	e.Lock()
	e.generations = generations
	e.bestLoss, e.secondBestLoss = bestLoss, secondBestLoss
	e.best, e.secondBest = best, second
	e.Unlock()
	return nil
}
