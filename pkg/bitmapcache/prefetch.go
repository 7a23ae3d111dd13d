package bitmapcache

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Request asks for key to be warmed. X and Y are the marker's screen
// position, used to prioritise what is closest to the viewport center.
type Request struct {
	Key   string
	URL   string
	Label string
	X, Y  float64
}

// IdleGate tracks user interaction. Wait blocks until there has been none for
// the quiet period.
type IdleGate struct {
	quiet time.Duration
	last  atomic.Int64
}

func NewIdleGate(quiet time.Duration) *IdleGate {
	return &IdleGate{quiet: quiet}
}

// Touch records an interaction.
func (g *IdleGate) Touch() {
	g.last.Store(time.Now().UnixNano())
}

func (g *IdleGate) Idle() bool {
	return time.Since(time.Unix(0, g.last.Load())) >= g.quiet
}

func (g *IdleGate) Wait(ctx context.Context) error {
	for {
		remaining := g.quiet - time.Since(time.Unix(0, g.last.Load()))
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Prefetcher warms the cache in the background, one key at a time, only
// while the user is idle and no faster than the limiter allows.
type Prefetcher struct {
	cache   *Cache
	limiter *rate.Limiter
	gate    *IdleGate
	logger  zerolog.Logger

	mu    sync.Mutex
	queue []Request
	wake  chan struct{}

	warmed atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPrefetcher(cache *Cache, limiter *rate.Limiter, gate *IdleGate, logger zerolog.Logger) *Prefetcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if gate == nil {
		gate = NewIdleGate(0)
	}
	return &Prefetcher{
		cache:   cache,
		limiter: limiter,
		gate:    gate,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

func (p *Prefetcher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

// Schedule replaces the pending queue with reqs, nearest to (cx, cy) first.
// Keys that are already resolved are skipped.
func (p *Prefetcher) Schedule(reqs []Request, cx, cy float64) {
	queue := make([]Request, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if seen[r.Key] {
			continue
		}
		seen[r.Key] = true
		if _, ok := p.cache.Peek(r.Key); ok {
			continue
		}
		queue = append(queue, r)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return math.Hypot(queue[i].X-cx, queue[i].Y-cy) < math.Hypot(queue[j].X-cx, queue[j].Y-cy)
	})

	p.mu.Lock()
	p.queue = queue
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued requests.
func (p *Prefetcher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Warmed is the number of keys resolved by the prefetcher.
func (p *Prefetcher) Warmed() uint64 {
	return p.warmed.Load()
}

func (p *Prefetcher) next() (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Request{}, false
	}
	r := p.queue[0]
	p.queue = p.queue[1:]
	return r, true
}

func (p *Prefetcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for {
			if err := p.gate.Wait(ctx); err != nil {
				return
			}
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			req, ok := p.next()
			if !ok {
				break
			}
			if _, ok := p.cache.Peek(req.Key); ok {
				continue
			}
			if _, err := p.cache.Get(ctx, req.Key, req.URL, req.Label); err != nil {
				return
			}
			p.warmed.Add(1)
		}
		p.logger.Debug().Uint64("warmed", p.warmed.Load()).Msg("Prefetch queue drained")
	}
}

// Stop cancels pending prefetches and waits for the worker to exit.
func (p *Prefetcher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
