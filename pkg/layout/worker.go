package layout

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStable
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStable:
		return "STABLE"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type WorkerOption func(*Worker)

// WithClock replaces time.Now for emission pacing.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// WithBuffer sets how many snapshots may queue before TICKs are dropped.
func WithBuffer(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.buffer = n
		}
	}
}

type command struct {
	sim  *Simulation
	opts *Options
}

// Worker runs a Simulation on its own goroutine and publishes snapshots.
// TICKs are paced by EmitInterval and dropped when the consumer lags; the
// single STABLE of each run is always delivered.
type Worker struct {
	logger zerolog.Logger
	now    func() time.Time
	buffer int

	state atomic.Int32

	mu      sync.Mutex
	started bool
	cmds    chan command
	out     chan Snapshot
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	dropped atomic.Uint64

	// stepHook runs after every step; tests use it to inject failures.
	stepHook func(*Simulation)
}

func NewWorker(logger zerolog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		logger: logger,
		now:    time.Now,
		buffer: 8,
		cmds:   make(chan command, 4),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.out = make(chan Snapshot, w.buffer)
	return w
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	for {
		cur := w.state.Load()
		if State(cur) == StateTerminated {
			return
		}
		if w.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Snapshots is closed once the worker stops.
func (w *Worker) Snapshots() <-chan Snapshot {
	return w.out
}

// Dropped counts TICKs skipped because the consumer was behind.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Init starts a new run with the given graph, replacing any current run.
func (w *Worker) Init(nodes []NodeInput, links []LinkInput, opts Options) error {
	sim, err := NewSimulation(nodes, links, opts)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.State() == StateTerminated {
		return ErrTerminated
	}
	if !w.started {
		w.started = true
		w.setState(StateRunning)
		w.wg.Add(1)
		go w.run(sim)
		return nil
	}
	select {
	case w.cmds <- command{sim: sim}:
		return nil
	case <-w.done:
		return ErrTerminated
	}
}

// UpdateOptions adjusts forces on the current run without restarting it.
func (w *Worker) UpdateOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.State() {
	case StateTerminated:
		return ErrTerminated
	case StateIdle:
		return ErrNotRunning
	}
	select {
	case w.cmds <- command{opts: &opts}:
		return nil
	case <-w.done:
		return ErrTerminated
	}
}

// Terminate stops the worker and waits for it to exit. It is safe to call
// at any time, any number of times. Snapshots still queued are discarded.
func (w *Worker) Terminate() {
	w.once.Do(func() {
		w.mu.Lock()
		w.state.Store(int32(StateTerminated))
		close(w.done)
		started := w.started
		w.mu.Unlock()

		if started {
			w.wg.Wait()
		} else {
			close(w.out)
		}
		for range w.out {
		}
		w.logger.Debug().Msg("Layout worker terminated")
	})
}

func (w *Worker) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *Worker) run(sim *Simulation) {
	defer w.wg.Done()
	defer close(w.out)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("Layout simulation failed, stopping worker")
			w.state.Store(int32(StateTerminated))
		}
	}()

	var (
		runID      = uuid.New()
		seq        uint64
		lastEmit   time.Time
		stableSent bool
		settled    bool
		total      time.Duration
		last       time.Duration
	)
	w.logger.Info().Str("run", runID.String()).Int("nodes", len(sim.nodes)).Int("links", len(sim.links)).Msg("Layout run started")

	snapshot := func(t SnapshotType) Snapshot {
		nodes, links := sim.Positions()
		seq++
		var mean time.Duration
		if sim.Ticks() > 0 {
			mean = total / time.Duration(sim.Ticks())
		}
		return Snapshot{
			Type:      t,
			RunID:     runID,
			Seq:       seq,
			Nodes:     nodes,
			Links:     links,
			Stats:     Stats{Ticks: sim.Ticks(), MeanTick: mean, LastTick: last, Alpha: sim.Alpha()},
			Timestamp: w.now(),
		}
	}
	// deliver blocks until the consumer takes snap or the worker stops.
	deliver := func(snap Snapshot) bool {
		select {
		case w.out <- snap:
			return true
		case <-w.done:
			return false
		}
	}
	apply := func(c command) {
		if c.sim != nil {
			sim = c.sim
			runID = uuid.New()
			seq, total, last = 0, 0, 0
			lastEmit = time.Time{}
			stableSent, settled = false, false
			w.setState(StateRunning)
			w.logger.Info().Str("run", runID.String()).Int("nodes", len(sim.nodes)).Msg("Layout run restarted")
			return
		}
		if c.opts != nil {
			if err := sim.SetOptions(*c.opts); err != nil {
				w.logger.Warn().Err(err).Msg("Rejected layout options")
				return
			}
			settled = false
			w.logger.Debug().Float64("alpha", sim.Alpha()).Msg("Layout options updated")
		}
	}

	for {
		select {
		case <-w.done:
			return
		case c := <-w.cmds:
			apply(c)
		default:
		}

		if sim.Alpha() < sim.opts.AlphaMin {
			if !settled {
				settled = true
				if !deliver(snapshot(TypeTick)) {
					return
				}
				w.logger.Debug().Uint64("ticks", sim.Ticks()).Msg("Layout settled")
			}
			select {
			case <-w.done:
				return
			case c := <-w.cmds:
				apply(c)
			}
			continue
		}

		last = sim.Step()
		total += last
		if w.stepHook != nil {
			w.stepHook(sim)
		}
		if w.stopped() {
			return
		}

		now := w.now()
		if !stableSent && sim.Alpha() < sim.opts.StableThreshold {
			stableSent = true
			w.setState(StateStable)
			if !deliver(snapshot(TypeStable)) {
				return
			}
			lastEmit = now
			w.logger.Info().Str("run", runID.String()).Uint64("ticks", sim.Ticks()).Msg("Layout stable")
			continue
		}
		if sim.Alpha() < sim.opts.AlphaMin {
			// The settled TICK at the top of the loop covers this step.
			continue
		}
		if lastEmit.IsZero() || now.Sub(lastEmit) >= sim.opts.EmitInterval {
			// This goroutine is the only sender, so a free slot cannot vanish.
			if len(w.out) < cap(w.out) {
				w.out <- snapshot(TypeTick)
				lastEmit = now
			} else {
				w.dropped.Add(1)
			}
		}
	}
}
