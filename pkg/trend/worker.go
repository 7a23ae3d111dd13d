package trend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Result is the outcome of one submitted computation.
type Result struct {
	Token    uint64
	Points   []Point
	Err      error
	Duration time.Duration
}

type request struct {
	token  uint64
	points []Point
	opts   Options
}

// Worker runs Smooth off the caller's goroutine. Only the newest pending
// request is computed; older ones are dropped before they start.
type Worker struct {
	logger zerolog.Logger

	mu      sync.Mutex
	pending *request

	latest  atomic.Uint64
	wake    chan struct{}
	results chan Result

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(logger zerolog.Logger) *Worker {
	return &Worker{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		results: make(chan Result, 1),
	}
}

// Start launches the background loop. It must be called once.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		w.mu.Lock()
		req := w.pending
		w.pending = nil
		w.mu.Unlock()
		if req == nil {
			continue
		}
		if req.token != w.latest.Load() {
			continue
		}

		start := time.Now()
		pts, err := Smooth(req.points, req.opts)
		res := Result{Token: req.token, Points: pts, Err: err, Duration: time.Since(start)}
		if err != nil {
			w.logger.Warn().Err(err).Uint64("token", req.token).Msg("Trend computation failed")
			res.Points = []Point{}
		} else {
			w.logger.Debug().Uint64("token", req.token).Int("points", len(pts)).Dur("took", res.Duration).Msg("Trend computed")
		}

		select {
		case w.results <- res:
		case <-ctx.Done():
			return
		}
	}
}

// Submit queues a computation and returns its token. Any pending request
// that has not started yet is replaced.
func (w *Worker) Submit(points []Point, opts Options) uint64 {
	cp := make([]Point, len(points))
	copy(cp, points)

	w.mu.Lock()
	token := w.latest.Add(1)
	w.pending = &request{token: token, points: cp, opts: opts}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return token
}

// Results delivers finished computations, possibly stale ones.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Latest returns the most recently issued token.
func (w *Worker) Latest() uint64 {
	return w.latest.Load()
}

// Accept reports whether res answers the most recent request.
func (w *Worker) Accept(res Result) bool {
	return res.Token == w.latest.Load()
}

// Stop cancels the loop and waits for it to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
