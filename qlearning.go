package jinx

import (
	"io"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/gorgonia/jinx/internal/binio"
	"github.com/gorgonia/jinx/metrics"
	nn "github.com/gorgonia/jinx/neuralnet"
)

// ErrSessionNotStarted is returned when decisions are taken or rewarded before Start.
var ErrSessionNotStarted = errors.New("no learning session has been started")

// QLearningConfig configures a QLearning driver.
type QLearningConfig struct {
	Name      string // identifies the run in logs and metrics
	Path      string // session log
	MaxUnroll int    // truncated BPTT window for networks with recurring layers
	Seed      int64  // 0 seeds from the clock

	Metrics *metrics.Metrics
}

// Validate returns a descriptive error for an unusable configuration.
func (conf QLearningConfig) Validate() error {
	switch {
	case conf.Path == "":
		return errors.New("no session log path")
	case conf.MaxUnroll < 1:
		return errors.Errorf("max unroll length must be at least 1, got %d", conf.MaxUnroll)
	}
	return nil
}

// QLearning picks actions by sampling the network's output, logs every decision to a session
// file, and later replays the rewarded sessions to reinforce the actions taken.
//
// The session log is a sequence of sessions. A session is the recurrent state at its start
// (one float32 block per recurring layer, empty for networks without recurrence), a record per
// decision (int32 action followed by the float32 input block) and a float32 reward.
type QLearning struct {
	QLearningConfig
	OnReplayAction func(action int)

	net    *nn.Network
	grads  *nn.Gradients
	ctxs   []*nn.Context
	fulls  []*nn.FullContext
	states []*nn.PropagationState
	r      *rand.Rand

	f        *os.File
	sessions []int
	current  int
	began    bool
}

// NewQLearning creates a QLearning driver for net.
func NewQLearning(net *nn.Network, conf QLearningConfig) (*QLearning, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	q := &QLearning{
		QLearningConfig: conf,
		net:             net,
		grads:           nn.NewGradients(net),
		r:               newRand(conf.Seed),
	}
	slots := 1
	if net.HasRecurring() {
		slots = conf.MaxUnroll
	}
	for i := 0; i < slots; i++ {
		c, f := nn.NewContext(net), nn.NewFullContext(net)
		q.ctxs = append(q.ctxs, c)
		q.fulls = append(q.fulls, f)
		q.states = append(q.states, nn.NewPropagationState(net, c, f, q.grads))
	}
	return q, nil
}

// Context is the context used to take decisions. Callers fill its Input before Execute.
func (q *QLearning) Context() *nn.Context { return q.ctxs[0] }

// Sessions returns the number of decisions of every rewarded session.
func (q *QLearning) Sessions() []int { return q.sessions }

// RecordSize is the size in bytes of one logged decision.
func (q *QLearning) RecordSize() int64 { return 4 + 4*int64(q.net.Inputs()) }

func (q *QLearning) preambleSize() int64 { return 4 * int64(q.ctxs[0].RecurrentSize()) }

// Start opens the session log for appending and begins a new session.
func (q *QLearning) Start() error {
	if q.f == nil {
		f, err := os.OpenFile(q.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
		if err != nil {
			return errors.WithStack(err)
		}
		q.f = f
	}
	if err := q.ClearSession(); err != nil {
		return err
	}
	return q.begin()
}

func (q *QLearning) begin() error {
	q.current = 0
	w := binio.NewWriter(q.f)
	for _, r := range q.ctxs[0].Recurrent {
		w.Floats(r)
	}
	if err := w.Err(); err != nil {
		return errors.WithMessage(err, "writing session preamble")
	}
	q.began = true
	return nil
}

// Execute runs the network over Context().Input, picks an action with probability
// proportional to the normalized output and logs the decision.
func (q *QLearning) Execute() (int, error) {
	if q.f == nil || !q.began {
		return -1, errors.WithStack(ErrSessionNotStarted)
	}
	c := q.ctxs[0]
	q.net.Execute(c)
	Normalize(c.Output)
	action := RandomChoice(q.r, c.Output)

	w := binio.NewWriter(q.f)
	w.Int32(int32(action))
	w.Floats(c.Input)
	if err := w.Err(); err != nil {
		return action, errors.WithMessage(err, "logging decision")
	}
	q.current++
	q.Metrics.Decision(q.Name)
	return action, nil
}

// Reward ends the current session with the given reward and begins a new one.
func (q *QLearning) Reward(reward float32) error {
	if q.f == nil || !q.began {
		return errors.WithStack(ErrSessionNotStarted)
	}
	w := binio.NewWriter(q.f)
	w.Float32(reward)
	if err := w.Err(); err != nil {
		return errors.WithMessage(err, "logging reward")
	}
	q.sessions = append(q.sessions, q.current)
	q.began = false
	q.Metrics.Session(q.Name)
	return q.begin()
}

// ClearSession removes the unrewarded session in progress from the log.
func (q *QLearning) ClearSession() error {
	if !q.began || q.f == nil {
		return nil
	}
	fi, err := q.f.Stat()
	if err != nil {
		return errors.WithStack(err)
	}
	size := fi.Size() - (int64(q.current)*q.RecordSize() + q.preambleSize())
	if size < 0 {
		return errors.Errorf("session log is shorter (%d bytes) than the session in progress", fi.Size())
	}
	if err := q.f.Truncate(size); err != nil {
		return errors.WithStack(err)
	}
	q.current = 0
	q.began = false
	return nil
}

// RestartSession discards the session in progress and begins a new one.
func (q *QLearning) RestartSession() error {
	if q.f == nil {
		return errors.WithStack(ErrSessionNotStarted)
	}
	if err := q.ClearSession(); err != nil {
		return err
	}
	return q.begin()
}

// ClearAllSessions empties the log and forgets every session. Call RestartSession or Start
// before taking new decisions.
func (q *QLearning) ClearAllSessions() error {
	q.sessions = q.sessions[:0]
	q.current = 0
	q.began = false
	if q.f != nil {
		return errors.WithStack(q.f.Truncate(0))
	}
	return errors.WithStack(os.WriteFile(q.Path, nil, 0644))
}

// Save writes the list of session lengths.
func (q *QLearning) Save(w io.Writer) error {
	bw := binio.NewWriter(w)
	bw.Int32(int32(len(q.sessions)))
	for _, s := range q.sessions {
		bw.Int32(int32(s))
	}
	return errors.WithMessage(bw.Err(), "saving sessions")
}

// Load reads a list of session lengths written by Save.
func (q *QLearning) Load(r io.Reader) error {
	br := binio.NewReader(r)
	n := br.Int32()
	if n < 0 {
		return errors.Errorf("invalid session count %d", n)
	}
	var sessions []int
	for i := int32(0); i < n && br.Err() == nil; i++ {
		sessions = append(sessions, int(br.Int32()))
	}
	if err := br.Err(); err != nil {
		return errors.WithMessage(err, "loading sessions")
	}
	q.sessions = sessions
	return nil
}

// Close discards the session in progress and closes the log.
func (q *QLearning) Close() error {
	if q.f == nil {
		return nil
	}
	var errs manyErr
	if err := q.ClearSession(); err != nil {
		errs = append(errs, err)
	}
	if err := q.f.Close(); err != nil {
		errs = append(errs, errors.WithStack(err))
	}
	q.f = nil
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Learn replays every rewarded session iterations times. Each decision is reinforced by a
// flat step of reward*rate towards the action taken. The log is closed for writing; call Start
// to take further decisions.
func (q *QLearning) Learn(rate float32, iterations int) error {
	if err := q.Close(); err != nil {
		return err
	}
	f, err := os.Open(q.Path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	log.Debug().Str("run", q.Name).Int("sessions", len(q.sessions)).Int("iterations", iterations).Msg("replaying sessions")
	r := binio.NewReader(f)
	actions := make([]int, len(q.ctxs))
	for it := 0; it < iterations; it++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		for s, steps := range q.sessions {
			if err := q.replay(f, r, actions, steps, rate); err != nil {
				return errors.WithMessagef(err, "replaying session %d", s)
			}
		}
	}
	return nil
}

func (q *QLearning) replay(f *os.File, r *binio.Reader, actions []int, steps int, rate float32) error {
	q.grads.Reset()
	for i := range q.ctxs {
		q.ctxs[i].Reset(true)
		q.fulls[i].Reset()
		q.states[i].Reset()
	}
	for _, rec := range q.ctxs[0].Recurrent {
		r.Floats(rec)
	}

	// the reward follows the decisions
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := f.Seek(pos+int64(steps)*q.RecordSize(), io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	reward := r.Float32() * rate
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}

	outputs := q.net.Outputs()
	unroll := 0
	for i := 0; i < steps; i++ {
		c := q.ctxs[unroll]
		action := int(r.Int32())
		r.Floats(c.Input)
		if err := r.Err(); err != nil {
			return err
		}
		if action < 0 || action >= outputs {
			return errors.Errorf("decision %d has action %d, the network has %d outputs", i, action, outputs)
		}
		actions[unroll] = action
		q.net.ExecuteFull(c, q.fulls[unroll])
		if q.OnReplayAction != nil {
			q.OnReplayAction(action)
		}

		unroll++
		if unroll < len(q.ctxs) && i+1 < steps {
			c.CopyRecurrent(q.ctxs[unroll])
			continue
		}
		for u := unroll - 1; u >= 0; u-- {
			target := borrowFloats(outputs)
			copy(target, q.ctxs[u].Output)
			target[actions[u]] = 1
			q.net.Backward(target, q.states[u], nn.LossAverage, -1)
			returnFloats(target)
		}
		nn.ApplyNoMemory(q.net, q.grads, reward)
		q.grads.Reset()
		if i+1 < steps && unroll > 1 {
			q.ctxs[unroll-1].CopyRecurrent(q.ctxs[0])
		}
		unroll = 0
	}
	if _, err := f.Seek(4, io.SeekCurrent); err != nil {
		return errors.WithStack(err)
	}
	return r.Err()
}
