// Command jinx trains, verifies and evolves networks over dataset files.
//
//	jinx train -data xor.txt -hidden 8:sigmoid -out xor.model
//	jinx verify -data xor.txt -model xor.model
//	jinx evolve -data xor.txt -population 8 -out xor.model
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorgonia.org/vecf32"

	"github.com/gorgonia/jinx"
	"github.com/gorgonia/jinx/dataset"
	"github.com/gorgonia/jinx/metrics"
	nn "github.com/gorgonia/jinx/neuralnet"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s train|verify|evolve [flags]\n", os.Args[0])
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var err error
	switch os.Args[1] {
	case "train":
		err = train(os.Args[2:])
	case "verify":
		err = verify(os.Args[2:])
	case "evolve":
		err = evolve(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

type common struct {
	data    string
	hidden  string
	output  string
	out     string
	stats   string
	metrics string
	level   string
	seed    int64
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.data, "data", "", "dataset file")
	fs.StringVar(&c.hidden, "hidden", "", "hidden layers, e.g. 8:sigmoid,4r:tanh (default: one sigmoid layer sized by the dataset header)")
	fs.StringVar(&c.output, "output", "sigmoid", "output activation")
	fs.StringVar(&c.out, "out", "", "file to save the model to")
	fs.StringVar(&c.stats, "stats", "", "file to dump loss statistics to as CSV")
	fs.StringVar(&c.metrics, "metrics", "", "address to serve Prometheus metrics on, e.g. :9100")
	fs.StringVar(&c.level, "log", "info", "log level")
	fs.Int64Var(&c.seed, "seed", 0, "random seed, 0 for time based")
}

// setup configures logging and metrics and loads the dataset.
func (c *common) setup() (*dataset.Set, *metrics.Metrics, string, error) {
	lvl, err := zerolog.ParseLevel(c.level)
	if err != nil {
		return nil, nil, "", err
	}
	zerolog.SetGlobalLevel(lvl)

	run := uuid.New().String()
	log.Logger = log.With().Str("run", run).Logger()

	var m *metrics.Metrics
	if c.metrics != "" {
		m = metrics.New()
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			return nil, nil, "", err
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info().Str("addr", c.metrics).Msg("serving metrics")
			if err := http.ListenAndServe(c.metrics, mux); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if c.data == "" {
		return nil, nil, "", errors.New("no dataset given")
	}
	set, err := dataset.LoadFile(c.data)
	if err != nil {
		return nil, nil, "", err
	}
	log.Info().Str("file", c.data).Int("examples", set.Len()).Int("inputs", set.InputSize()).Int("outputs", set.OutputSize()).Msg("dataset loaded")
	return set, m, run, nil
}

func (c *common) network(set *dataset.Set) (*nn.Network, error) {
	hidden, err := parseHidden(c.hidden)
	if err != nil {
		return nil, err
	}
	if hidden == nil {
		hidden = []nn.Layer{{Neurons: set.Hidden, Activation: nn.Sigmoid}}
	}
	out, err := nn.ParseActivation(c.output)
	if err != nil {
		return nil, err
	}
	return nn.New(nn.Config{
		Input:  nn.Layer{Neurons: set.InputSize()},
		Hidden: hidden,
		Output: nn.Layer{Neurons: set.OutputSize(), Activation: out},
	})
}

func data(set *dataset.Set) (jinx.Data, error) {
	xs, ys, err := set.Rows()
	return jinx.Data{Inputs: xs, Targets: ys}, err
}

func (c *common) finish(n *nn.Network, stats *jinx.Statistics) error {
	if c.stats != "" {
		if err := stats.Dump(c.stats); err != nil {
			return err
		}
	}
	if c.out == "" {
		return nil
	}
	if err := saveModel(c.out, n); err != nil {
		return err
	}
	log.Info().Str("file", c.out).Msg("model saved")
	return nil
}

func train(args []string) error {
	var c common
	conf := jinx.DefaultTrainerConfig()
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	c.register(fs)
	lr := fs.Float64("lr", float64(conf.LearningRate), "learning rate")
	desired := fs.Float64("loss", float64(conf.DesiredLoss), "desired loss")
	epochs := fs.Int64("epochs", 10000, "maximum number of epochs, 0 for no limit")
	fs.IntVar(&conf.MaxUnroll, "unroll", 8, "max unroll length for recurring layers")
	fs.BoolVar(&conf.StochasticSkipping, "skip", false, "stochastically skip examples at the start of each epoch")
	shuffle := fs.Float64("shuffle", 0, "chance to shuffle the data after each epoch")
	model := fs.String("model", "", "model file to continue training, with its .adagrad memory if present")
	fs.Parse(args)

	set, m, run, err := c.setup()
	if err != nil {
		return err
	}
	var n *nn.Network
	if *model != "" {
		n, err = loadModel(*model)
	} else {
		if n, err = c.network(set); err == nil {
			n.Randomize(newRand(c.seed), n.AdaGradRange())
		}
	}
	if err != nil {
		return err
	}
	d, err := data(set)
	if err != nil {
		return err
	}

	conf.Name = run
	conf.LearningRate = float32(*lr)
	conf.DesiredLoss = float32(*desired)
	conf.ShuffleChance = float32(*shuffle)
	conf.Seed = c.seed
	conf.Metrics = m
	conf.Statistics = jinx.NewStatistics()
	t, err := jinx.NewTrainer(n, d, conf)
	if err != nil {
		return err
	}
	if *model != "" {
		loaded, err := loadAdaGrad(adagradFile(*model), t.AdaGrad())
		if err != nil {
			return err
		}
		log.Debug().Bool("adagrad", loaded).Str("model", *model).Msg("continuing training")
	}

	if err := t.Start(); err != nil {
		return err
	}
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for range tick.C {
		log.Info().Int64("epochs", t.Iterations()).Float32("loss", t.Loss()).Float32("smooth", t.SmoothLoss()).Msg("training")
		if !t.Running() || (*epochs > 0 && t.Iterations() >= *epochs) {
			break
		}
	}
	t.Stop()
	if !t.Join(10 * time.Second) {
		log.Warn().Msg("trainer did not stop in time")
	}
	mean, std := conf.Statistics.Summary()
	log.Info().Int64("epochs", t.Iterations()).Float32("loss", t.Loss()).Float64("mean", mean).Float64("std", std).Msg("training done")
	if err := c.finish(n, conf.Statistics); err != nil {
		return err
	}
	if c.out == "" {
		return nil
	}
	return saveAdaGrad(adagradFile(c.out), t.AdaGrad())
}

func verify(args []string) error {
	var c common
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	c.register(fs)
	model := fs.String("model", "", "model file")
	fs.Parse(args)

	set, _, _, err := c.setup()
	if err != nil {
		return err
	}
	n, err := loadModel(*model)
	if err != nil {
		return err
	}
	d, err := data(set)
	if err != nil {
		return err
	}
	if n.Inputs() != set.InputSize() || n.Outputs() != set.OutputSize() {
		return errors.Errorf("model takes %d inputs and produces %d outputs, dataset has %d and %d",
			n.Inputs(), n.Outputs(), set.InputSize(), set.OutputSize())
	}

	ctx := nn.NewContext(n)
	var loss float32
	var correct int
	for i := range d.Inputs {
		copy(ctx.Input, d.Inputs[i])
		n.Execute(ctx)
		for j, o := range ctx.Output {
			diff := o - d.Targets[i][j]
			if diff < 0 {
				diff = -diff
			}
			loss += diff / float32(len(ctx.Output))
		}
		if vecf32.Argmax(ctx.Output) == vecf32.Argmax(d.Targets[i]) {
			correct++
		}
	}
	log.Info().
		Float32("loss", loss/float32(len(d.Inputs))).
		Float64("accuracy", float64(correct)/float64(len(d.Inputs))).
		Msg("verified")
	return nil
}

func evolve(args []string) error {
	var c common
	conf := jinx.DefaultEvolverConfig()
	fs := flag.NewFlagSet("evolve", flag.ExitOnError)
	c.register(fs)
	fs.IntVar(&conf.Population, "population", 8, "population size")
	desired := fs.Float64("loss", 0.01, "desired loss")
	generations := fs.Int64("generations", 100000, "maximum number of generations, 0 for no limit")
	fs.BoolVar(&conf.Breeding, "breed", true, "breed the best networks")
	fs.Parse(args)

	set, m, run, err := c.setup()
	if err != nil {
		return err
	}
	n, err := c.network(set)
	if err != nil {
		return err
	}
	d, err := data(set)
	if err != nil {
		return err
	}

	conf.Name = run
	conf.DesiredLoss = float32(*desired)
	conf.Range = nn.Range{MinBias: -1, MaxBias: 1, MinWeight: -1, MaxWeight: 1}
	conf.Seed = c.seed
	conf.Metrics = m
	conf.Statistics = jinx.NewStatistics()
	n.Randomize(newRand(c.seed), conf.Range)
	e, err := jinx.NewEvolver(n, d, conf)
	if err != nil {
		return err
	}

	e.Start()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for range tick.C {
		log.Info().Int64("generations", e.Generations()).Float32("loss", e.Loss()).Float32("mutation", e.MutationRate()).Msg("evolving")
		if !e.Running() || (*generations > 0 && e.Generations() >= *generations) {
			break
		}
	}
	e.Stop()

	best := e.Best()
	if best == nil {
		return errors.New("no network was scored")
	}
	log.Info().Int64("generations", e.Generations()).Float32("loss", e.Loss()).Msg("evolution done")
	return c.finish(best, conf.Statistics)
}
