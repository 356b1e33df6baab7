package jinx

import (
	"bytes"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nn "github.com/gorgonia/jinx/neuralnet"
)

func testEvolver(t *testing.T, conf EvolverConfig) *Evolver {
	e, err := NewEvolver(testNetwork(t, nn.DefaultConf(2, 1, 3), 1), xorData(), conf)
	require.NoError(t, err)
	return e
}

func filled(t *testing.T, v float32) *nn.Network {
	n, err := nn.New(nn.DefaultConf(2, 1, 3))
	require.NoError(t, err)
	n.Randomize(rand.New(rand.NewSource(1)), nn.Range{MinBias: v, MaxBias: v, MinWeight: v, MaxWeight: v})
	return n
}

func waitFor(t *testing.T, e *Evolver) {
	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		e.Stop()
		t.Fatal("evolver did not finish")
	}
}

func TestEvolverConfigValidate(t *testing.T) {
	mod := func(fn func(*EvolverConfig)) EvolverConfig {
		conf := DefaultEvolverConfig()
		fn(&conf)
		return conf
	}
	cases := []struct {
		name string
		conf EvolverConfig
		ok   bool
	}{
		{"default", DefaultEvolverConfig(), true},
		{"empty population", mod(func(c *EvolverConfig) { c.Population = 0 }), false},
		{"inverted mutation rates", mod(func(c *EvolverConfig) { c.MinMutationRate = 2 }), false},
		{"cross entropy", mod(func(c *EvolverConfig) { c.LossType = nn.LossCrossEntropy }), false},
		{"max", mod(func(c *EvolverConfig) { c.LossType = nn.LossMax }), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.ok, c.conf.IsValid())
		})
	}
}

func TestEvolverRecordOrdering(t *testing.T) {
	for _, breeding := range []bool{true, false} {
		conf := DefaultEvolverConfig()
		conf.Breeding = breeding
		conf.MinMutationRate = 0.01
		conf.MaxMutationRate = 0.5
		conf.MutationIncrease = 0.05
		e := testEvolver(t, conf)

		r := rand.New(rand.NewSource(42))
		var min float32 = 1
		for i := 0; i < 500; i++ {
			loss := r.Float32() * 1.5
			e.Record(filled(t, 0), loss)
			if loss < min {
				min = loss
			}

			assert.Equal(t, min, e.Loss())
			assert.True(t, e.Loss() <= e.SecondBestLoss())
			rate := e.MutationRate()
			assert.True(t, rate >= conf.MinMutationRate && rate <= conf.MaxMutationRate, "mutation rate %v", rate)
		}
		assert.Equal(t, int64(500), e.Generations())
		assert.Equal(t, breeding, e.HasBestAndSecondBest())
		if !breeding {
			assert.Equal(t, float32(1), e.SecondBestLoss())
		}
	}
}

func TestEvolverRecordSameNetwork(t *testing.T) {
	conf := DefaultEvolverConfig()
	conf.Breeding = true
	e := testEvolver(t, conf)

	n := filled(t, 0)
	e.Record(n, 0.5)
	e.Record(n, 0.3)
	e.Record(n, 0.4)
	assert.Equal(t, float32(0.3), e.Loss())
	assert.Equal(t, float32(1), e.SecondBestLoss())
	assert.False(t, e.HasBestAndSecondBest())

	other := filled(t, 1)
	e.Record(other, 0.4)
	assert.True(t, e.HasBestAndSecondBest())
	assert.Equal(t, float32(0.4), e.SecondBestLoss())
	e.Record(other, 0.2)
	assert.Equal(t, float32(0.3), e.SecondBestLoss())
	assert.True(t, e.HasBestAndSecondBest())
}

func TestEvolverRecordIgnoresLargeLoss(t *testing.T) {
	e := testEvolver(t, DefaultEvolverConfig())
	e.Record(filled(t, 0), 1.5)
	assert.Nil(t, e.Best())
	assert.Equal(t, float32(1), e.Loss())
	assert.Equal(t, int64(1), e.Generations())
}

func TestEvolverNextGeneration(t *testing.T) {
	conf := DefaultEvolverConfig()
	conf.MutationIncrease = 0
	conf.Range = nn.Range{MinBias: 2, MaxBias: 2, MinWeight: 2, MaxWeight: 2}
	e := testEvolver(t, conf)
	r := rand.New(rand.NewSource(1))

	first := e.NextGeneration(r)
	assert.Equal(t, e.source.Weights(0), first.Weights(0))
	assert.False(t, &e.source.Weights(0)[0] == &first.Weights(0)[0])

	random := e.NextGeneration(r)
	for _, w := range random.Weights(1) {
		assert.Equal(t, float32(2), w)
	}

	best, second := filled(t, 0.5), filled(t, 0.5)
	e.Record(best, 0.2)
	e.Record(second, 0.3)
	require.True(t, e.HasBestAndSecondBest())
	child := e.NextGeneration(r)
	assert.False(t, child == best)
	for level := 0; level < child.Levels(); level++ {
		for _, w := range child.Weights(level) {
			assert.InDelta(t, 0.5, w, 1e-6)
		}
	}
	for _, w := range best.Weights(0) {
		assert.Equal(t, float32(0.5), w)
	}

	conf.MaxBreedingLoss = 0.1
	e.EvolverConfig = conf
	for _, w := range e.NextGeneration(r).Weights(0) {
		assert.Equal(t, float32(2), w)
	}
}

func TestEvolverReset(t *testing.T) {
	e := testEvolver(t, DefaultEvolverConfig())
	e.Record(filled(t, 0), 0.2)
	e.Record(filled(t, 0), 0.3)
	e.Reset()
	assert.Equal(t, float32(1), e.Loss())
	assert.Equal(t, float32(1), e.SecondBestLoss())
	assert.NotNil(t, e.Best())
}

func TestEvolverSaveLoad(t *testing.T) {
	e := testEvolver(t, DefaultEvolverConfig())
	var buf bytes.Buffer
	err := e.Save(&buf)
	assert.True(t, errors.Is(err, ErrNoBest))

	best, second := filled(t, 0.25), filled(t, 0.75)
	e.Record(best, 0.2)
	e.Record(second, 0.3)
	require.NoError(t, e.Save(&buf))

	loaded := testEvolver(t, DefaultEvolverConfig())
	require.NoError(t, loaded.Load(&buf))
	assert.Equal(t, float32(0.2), loaded.Loss())
	assert.Equal(t, float32(0.3), loaded.SecondBestLoss())
	assert.Equal(t, int64(0), loaded.Generations())
	require.True(t, loaded.HasBestAndSecondBest())
	for level := 0; level < best.Levels(); level++ {
		assert.Equal(t, best.Weights(level), loaded.Best().Weights(level))
		assert.Equal(t, best.Biases(level), loaded.Best().Biases(level))
	}
	assert.Equal(t, 0, buf.Len())

	err = loaded.Load(bytes.NewReader([]byte{0, 0}))
	assert.Error(t, err)
}

func TestEvolverGoal(t *testing.T) {
	conf := DefaultEvolverConfig()
	conf.Population = 3
	conf.DesiredLoss = 1
	conf.Seed = 3
	e := testEvolver(t, conf)
	var goals int32
	e.OnGoal = func() { atomic.AddInt32(&goals, 1) }

	e.Start()
	waitFor(t, e)
	assert.False(t, e.Running())
	assert.Equal(t, int32(1), atomic.LoadInt32(&goals))
	assert.True(t, e.Generations() >= 1)
	assert.NotNil(t, e.Best())
}

func TestEvolverCustomStep(t *testing.T) {
	conf := DefaultEvolverConfig()
	conf.Population = 2
	conf.DesiredLoss = 0.05
	var steps int64
	step := func(s *Subject) bool {
		n := atomic.AddInt64(&steps, 1)
		if s.State < 0 {
			s.State = 0
			return false
		}
		s.State = -1
		s.Loss, s.Total = 1/float32(n), 1
		return true
	}
	e, err := NewCustomEvolver(testNetwork(t, nn.DefaultConf(2, 1, 3), 1), conf, step)
	require.NoError(t, err)

	e.Start()
	waitFor(t, e)
	assert.True(t, e.Loss() <= 0.05)
	assert.True(t, e.Generations() >= 9)

	_, err = NewCustomEvolver(e.source, conf, nil)
	assert.Error(t, err)
}

func TestEvolverStreamBarrier(t *testing.T) {
	conf := DefaultEvolverConfig()
	conf.Population = 3
	conf.DesiredLoss = -1
	e := testEvolver(t, conf)
	var streams int32
	e.OnStream = func(d *Data) bool {
		atomic.AddInt32(&streams, 1)
		return true
	}

	e.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&streams) >= 3 }, 10*time.Second, time.Millisecond)
	e.Stop()
	assert.False(t, e.Running())
	gens := e.Generations()
	assert.True(t, gens >= 2*int64(conf.Population), "generations %d", gens)
}

func TestEvolverStreamRejected(t *testing.T) {
	conf := DefaultEvolverConfig()
	conf.Population = 3
	conf.DesiredLoss = -1
	e := testEvolver(t, conf)
	e.OnStream = func(d *Data) bool {
		*d = Data{}
		return true
	}

	e.Start()
	waitFor(t, e)
	assert.False(t, e.Running())
}
