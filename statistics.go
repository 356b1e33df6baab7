package jinx

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Statistics records the loss of every epoch (Trainer) or generation (Evolver).
type Statistics struct {
	sync.Mutex
	Steps  []int64
	Losses []float32
}

// NewStatistics creates an empty recorder.
func NewStatistics() *Statistics {
	return &Statistics{
		Steps:  make([]int64, 0, 64),
		Losses: make([]float32, 0, 64),
	}
}

func (s *Statistics) record(step int64, loss float32) {
	s.Lock()
	s.Steps = append(s.Steps, step)
	s.Losses = append(s.Losses, loss)
	s.Unlock()
}

// Len is the number of records.
func (s *Statistics) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.Losses)
}

// Summary returns the mean and standard deviation of the recorded losses.
func (s *Statistics) Summary() (mean, std float64) {
	s.Lock()
	xs := make([]float64, len(s.Losses))
	for i, l := range s.Losses {
		xs[i] = float64(l)
	}
	s.Unlock()
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// Dump writes the records to filename as CSV.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	s.Lock()
	records := make([][]string, 0, len(s.Losses)+1)
	records = append(records, []string{"step", "loss"})
	for i, loss := range s.Losses {
		records = append(records, []string{
			strconv.FormatInt(s.Steps[i], 10),
			strconv.FormatFloat(float64(loss), 'f', 6, 32),
		})
	}
	s.Unlock()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
