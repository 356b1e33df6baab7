package jinx

import (
	"math/rand"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorgonia/jinx/metrics"
	nn "github.com/gorgonia/jinx/neuralnet"
)

func testNetwork(t *testing.T, conf nn.Config, seed int64) *nn.Network {
	n, err := nn.New(conf)
	require.NoError(t, err)
	n.Randomize(rand.New(rand.NewSource(seed)), nn.Range{MinBias: -0.5, MaxBias: 0.5, MinWeight: -1, MaxWeight: 1})
	return n
}

func xorData() Data {
	return Data{
		Inputs:  [][]float32{{0, 0}, {0, 1}, {1, 0}, {1, 1}},
		Targets: [][]float32{{0}, {1}, {1}, {0}},
	}
}

func recurringConf() nn.Config {
	return nn.Config{
		Input: nn.Layer{Neurons: 2},
		Hidden: []nn.Layer{
			{Neurons: 3, Recurring: true, Activation: nn.Sigmoid},
			{Neurons: 2, Activation: nn.Sigmoid},
		},
		Output: nn.Layer{Neurons: 2, Activation: nn.Sigmoid},
	}
}

func sequenceData(n int) Data {
	var d Data
	for i := 0; i < n; i++ {
		x := float32(i%3) / 2
		d.Inputs = append(d.Inputs, []float32{x, 1 - x})
		d.Targets = append(d.Targets, []float32{float32(i % 2), float32((i + 1) % 2)})
	}
	return d
}

func TestTrainerConfigValidate(t *testing.T) {
	mod := func(fn func(*TrainerConfig)) TrainerConfig {
		conf := DefaultTrainerConfig()
		fn(&conf)
		return conf
	}
	cases := []struct {
		name string
		conf TrainerConfig
		ok   bool
	}{
		{"default", DefaultTrainerConfig(), true},
		{"zero unroll", mod(func(c *TrainerConfig) { c.MaxUnroll = 0 }), false},
		{"zero learning rate", mod(func(c *TrainerConfig) { c.LearningRate = 0 }), false},
		{"smoothing above 1", mod(func(c *TrainerConfig) { c.LossSmoothing = 1.5 }), false},
		{"negative shuffle", mod(func(c *TrainerConfig) { c.ShuffleChance = -0.1 }), false},
		{"unknown loss", mod(func(c *TrainerConfig) { c.LossType = 9 }), false},
		{"cross entropy", mod(func(c *TrainerConfig) { c.LossType = nn.LossCrossEntropy }), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.ok, c.conf.IsValid())
		})
	}
}

func TestNewTrainerRejectsData(t *testing.T) {
	n := testNetwork(t, nn.DefaultConf(2, 1, 4), 1)
	cases := []struct {
		name string
		data Data
	}{
		{"empty", Data{}},
		{"unpaired", Data{Inputs: [][]float32{{0, 0}}, Targets: [][]float32{{0}, {1}}}},
		{"wide input", Data{Inputs: [][]float32{{0, 0, 0}}, Targets: [][]float32{{0}}}},
		{"wide target", Data{Inputs: [][]float32{{0, 0}}, Targets: [][]float32{{0, 1}}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewTrainer(n, c.data, DefaultTrainerConfig())
			assert.Error(t, err)
		})
	}
}

func TestTrainerStates(t *testing.T) {
	tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 1, 4), 1), xorData(), DefaultTrainerConfig())
	require.NoError(t, err)

	assert.Equal(t, Uninitialized, tr.State())
	err = tr.Learn()
	assert.True(t, errors.Is(err, ErrNotStarted))

	require.NoError(t, tr.StartInit())
	assert.Equal(t, Ready, tr.State())
	assert.True(t, tr.Running())
	assert.Equal(t, float32(1), tr.Loss())

	require.NoError(t, tr.Learn())
	assert.Equal(t, Running, tr.State())

	tr.Stop()
	assert.Equal(t, Stopped, tr.State())
	assert.False(t, tr.Running())
	assert.NoError(t, tr.Learn())
	assert.True(t, tr.Join(time.Millisecond))
}

func TestTrainerXOR(t *testing.T) {
	conf := DefaultTrainerConfig()
	conf.LearningRate = 0.5
	conf.DesiredLoss = 0.1
	conf.ShuffleChance = 0.5

	var best float32 = 1
	for seed := int64(1); seed <= 5; seed++ {
		conf.Seed = seed
		tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 1, 8), seed), xorData(), conf)
		require.NoError(t, err)
		require.NoError(t, tr.StartInit())
		for i := 0; i < 4*5000 && tr.Running(); i++ {
			require.NoError(t, tr.Learn())
		}
		if l := tr.Loss(); l < best {
			best = l
		}
		if tr.State() == Stopped {
			break
		}
	}
	assert.True(t, best < 0.1, "best loss %v", best)
}

func TestTrainerEpochs(t *testing.T) {
	cases := []struct {
		name      string
		conf      nn.Config
		unroll    int
		examples  int
		skipping  bool
		lossType  nn.LossType
		derivMode nn.DerivativeMode
	}{
		{"feedforward", nn.DefaultConf(2, 2, 3), 4, 5, false, nn.LossAverage, nn.Analytic},
		{"recurring", recurringConf(), 3, 5, false, nn.LossAverage, nn.Analytic},
		{"recurring exact windows", recurringConf(), 3, 6, false, nn.LossMax, nn.TanhApprox},
		{"recurring skipping", recurringConf(), 3, 7, true, nn.LossAverage, nn.Analytic},
		{"recurring cross entropy", recurringConf(), 2, 5, true, nn.LossCrossEntropy, nn.Analytic},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			conf := DefaultTrainerConfig()
			conf.MaxUnroll = c.unroll
			conf.StochasticSkipping = c.skipping
			conf.LossType = c.lossType
			conf.Derivative = c.derivMode
			conf.DesiredLoss = -1
			conf.Seed = 7
			conf.Statistics = NewStatistics()

			tr, err := NewTrainer(testNetwork(t, c.conf, 3), sequenceData(c.examples), conf)
			require.NoError(t, err)
			require.NoError(t, tr.StartInit())
			for i := 0; i < 10*c.examples; i++ {
				require.NoError(t, tr.Learn())
			}
			assert.Equal(t, int64(10), tr.Iterations())
			assert.Equal(t, 10, conf.Statistics.Len())
			for _, l := range conf.Statistics.Losses {
				assert.False(t, math32.IsNaN(l))
				assert.True(t, l >= 0)
			}
			assert.True(t, tr.Loss() <= tr.SmoothLoss()+1)
		})
	}
}

func TestTrainerStream(t *testing.T) {
	conf := DefaultTrainerConfig()
	conf.MaxUnroll = 3
	conf.DesiredLoss = -1

	tr, err := NewTrainer(testNetwork(t, recurringConf(), 3), sequenceData(5), conf)
	require.NoError(t, err)
	var calls int
	tr.OnStream = func(d *Data) bool {
		calls++
		*d = sequenceData(5 + calls)
		return calls%2 == 0
	}
	require.NoError(t, tr.StartInit())
	assert.Equal(t, 1, calls)

	// the first epoch runs over the data streamed by StartInit
	for i := 0; i < 6; i++ {
		require.NoError(t, tr.Learn())
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1), tr.Iterations())
	for i := 0; i < 7; i++ {
		require.NoError(t, tr.Learn())
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), tr.Iterations())

	tr.OnStream = func(d *Data) bool {
		d.Inputs = d.Inputs[:1]
		return true
	}
	var last error
	for i := 0; i < 8 && last == nil; i++ {
		last = tr.Learn()
	}
	assert.Error(t, last)
}

func TestTrainerRejectsStreamedData(t *testing.T) {
	cases := []struct {
		name   string
		stream StreamFunc
	}{
		{"empty", func(d *Data) bool { *d = Data{}; return true }},
		{"wrong width", func(d *Data) bool {
			*d = Data{Inputs: [][]float32{{1, 2, 3}}, Targets: [][]float32{{1}}}
			return true
		}},
		{"mismatched lengths", func(d *Data) bool { d.Targets = d.Targets[:1]; return true }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 1, 4), 1), xorData(), DefaultTrainerConfig())
			require.NoError(t, err)
			tr.OnStream = c.stream

			assert.Error(t, tr.StartInit())
			assert.Equal(t, Uninitialized, tr.State())
			assert.True(t, errors.Is(tr.Learn(), ErrNotStarted))

			assert.Error(t, tr.Start())
			assert.True(t, tr.Join(time.Second))
			assert.Equal(t, Uninitialized, tr.State())
		})
	}
}

func TestTrainerGoal(t *testing.T) {
	conf := DefaultTrainerConfig()
	conf.DesiredLoss = 1
	tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 1, 4), 1), xorData(), conf)
	require.NoError(t, err)
	var goals int
	tr.OnGoal = func() { goals++ }
	require.NoError(t, tr.StartInit())
	for i := 0; i < 12; i++ {
		require.NoError(t, tr.Learn())
	}
	assert.Equal(t, 1, goals)
	assert.Equal(t, Stopped, tr.State())
	assert.Equal(t, int64(1), tr.Iterations())
}

func TestTrainerCrossEntropyInitialLoss(t *testing.T) {
	conf := DefaultTrainerConfig()
	conf.LossType = nn.LossCrossEntropy
	data := Data{
		Inputs:  [][]float32{{1, 0}, {0, 1}},
		Targets: [][]float32{{1, 0, 0, 0}, {0, 0, 1, 0}},
	}
	tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 4, 3), 1), data, conf)
	require.NoError(t, err)
	require.NoError(t, tr.StartInit())
	assert.InDelta(t, math32.Log(4), tr.Loss(), 1e-6)
	assert.Equal(t, []int{0, 2}, tr.classes)
}

func TestTrainerBackground(t *testing.T) {
	m := metrics.New()
	conf := DefaultTrainerConfig()
	conf.Name = "background"
	conf.DesiredLoss = -1
	conf.Metrics = m
	tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 1, 4), 1), xorData(), conf)
	require.NoError(t, err)

	require.NoError(t, tr.Start())
	assert.Eventually(t, func() bool { return tr.Iterations() > 3 }, 5*time.Second, time.Millisecond)
	assert.True(t, errors.Is(tr.Start(), ErrAlreadyRunning))
	tr.Stop()
	require.True(t, tr.Join(5*time.Second))
	assert.Equal(t, Stopped, tr.State())

	epochs := testutil.ToFloat64(m.Collectors().TrainerEpochs.WithLabelValues("background"))
	assert.Equal(t, float64(tr.Iterations()), epochs)
}

func TestTrainerRestart(t *testing.T) {
	conf := DefaultTrainerConfig()
	conf.DesiredLoss = -1
	tr, err := NewTrainer(testNetwork(t, nn.DefaultConf(2, 1, 4), 1), xorData(), conf)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, tr.Start())
		assert.Eventually(t, func() bool { return tr.Iterations() > 0 }, 5*time.Second, time.Millisecond)
		tr.Stop()
		require.True(t, tr.Join(5*time.Second))
	}
	assert.Equal(t, Stopped, tr.State())
}
