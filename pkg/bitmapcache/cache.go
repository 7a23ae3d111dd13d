// Package bitmapcache resolves fighter headshots into small circular bitmaps.
// Every key is resolved at most once per session: a successful decode or a
// placeholder is cached permanently, and concurrent requests share a flight.
package bitmapcache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sudorandom/fightscope/pkg/utils"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const DefaultSize = 64

var ErrEmptyURL = errors.New("no source url")

// Bitmap is a resolved marker image. Placeholder is set when the source
// could not be fetched or decoded.
type Bitmap struct {
	Image       image.Image
	Placeholder bool
}

// Fetcher retrieves raw image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store persists raw image bytes across sessions. Get returns nil, nil for
// unknown keys. Entries that no longer decode are deleted and refetched.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
}

// HTTPFetcher fetches over HTTP with a bounded timeout per request.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return utils.FetchBytes(ctx, f.Client, url)
}

type Option func(*Cache)

func WithStore(s Store) Option { return func(c *Cache) { c.store = s } }

func WithSize(px int) Option {
	return func(c *Cache) {
		if px > 0 {
			c.size = px
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithOnReady registers a hook called once per key when it resolves.
func WithOnReady(fn func(key string)) Option { return func(c *Cache) { c.onReady = fn } }

// Cache is a session-scoped bitmap cache. Create one per viewer and pass it
// to the components that need it.
type Cache struct {
	fetcher Fetcher
	store   Store
	size    int
	logger  zerolog.Logger
	onReady func(key string)

	mu        sync.RWMutex
	resolved  map[string]Bitmap
	requested map[string]bool
	group     singleflight.Group

	fetches atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:   fetcher,
		size:      DefaultSize,
		logger:    zerolog.Nop(),
		resolved:  make(map[string]Bitmap),
		requested: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Peek returns the bitmap for key if it has already resolved.
func (c *Cache) Peek(key string) (Bitmap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bm, ok := c.resolved[key]
	return bm, ok
}

// Len is the number of resolved keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resolved)
}

// Fetches is the number of network fetches issued so far.
func (c *Cache) Fetches() uint64 {
	return c.fetches.Load()
}

// Get resolves key, joining an in-flight resolution if there is one. Failures
// resolve to a placeholder built from label. The only error returned is ctx's,
// in which case the flight carries on for other callers.
func (c *Cache) Get(ctx context.Context, key, url, label string) (Bitmap, error) {
	if bm, ok := c.Peek(key); ok {
		return bm, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(key, url, label), nil
	})
	select {
	case <-ctx.Done():
		return Bitmap{}, ctx.Err()
	case res := <-ch:
		return res.Val.(Bitmap), nil
	}
}

// Request starts resolving key in the background without waiting.
func (c *Cache) Request(key, url, label string) {
	c.mu.Lock()
	if _, ok := c.resolved[key]; ok || c.requested[key] || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.requested[key] = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if _, err := c.Get(c.ctx, key, url, label); err != nil {
			c.mu.Lock()
			delete(c.requested, key)
			c.mu.Unlock()
		}
	}()
}

// Close cancels in-flight work and waits for background requests.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) load(key, url, label string) Bitmap {
	// A flight that finished just before this one started has already stored
	// the result.
	if bm, ok := c.Peek(key); ok {
		return bm
	}

	bm, err := c.resolve(key, url)
	if err != nil {
		if c.ctx.Err() != nil {
			// Shutting down; do not pin a placeholder for a key that never got a chance.
			return Bitmap{Image: Placeholder(label, c.size), Placeholder: true}
		}
		c.logger.Debug().Err(err).Str("key", key).Msg("Using placeholder bitmap")
		bm = Bitmap{Image: Placeholder(label, c.size), Placeholder: true}
	}

	c.mu.Lock()
	c.resolved[key] = bm
	delete(c.requested, key)
	c.mu.Unlock()

	if c.onReady != nil {
		c.onReady(key)
	}
	return bm
}

func (c *Cache) resolve(key, url string) (Bitmap, error) {
	if c.store != nil {
		stored, err := c.store.Get(key)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("key", key).Msg("Bitmap store read failed")
		case len(stored) > 0:
			img, _, err := image.Decode(bytes.NewReader(stored))
			if err == nil {
				return Bitmap{Image: Circular(img, c.size)}, nil
			}
			c.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable stored bitmap")
			if err := c.store.Delete(key); err != nil {
				c.logger.Warn().Err(err).Str("key", key).Msg("Bitmap store delete failed")
			}
		}
	}

	if url == "" {
		return Bitmap{}, ErrEmptyURL
	}
	c.fetches.Add(1)
	data, err := c.fetcher.Fetch(c.ctx, url)
	if err != nil {
		return Bitmap{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Bitmap{}, err
	}

	if c.store != nil {
		if err := c.store.Put(key, data); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Bitmap store write failed")
		}
	}
	return Bitmap{Image: Circular(img, c.size)}, nil
}

// Circular scales src to cover a size x size square and masks it to a circle.
func Circular(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	// Center-crop to a square before scaling.
	side := min(b.Dx(), b.Dy())
	crop := image.Rect(0, 0, side, side).Add(image.Pt(b.Min.X+(b.Dx()-side)/2, b.Min.Y+(b.Dy()-side)/2))

	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, crop, draw.Src, nil)

	out := image.NewRGBA(scaled.Bounds())
	draw.DrawMask(out, out.Bounds(), scaled, image.Point{}, &circle{r: float64(size) / 2}, image.Point{}, draw.Over)
	return out
}

// circle is an alpha mask with a soft one-pixel edge.
type circle struct {
	r float64
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle {
	d := int(c.r * 2)
	return image.Rect(0, 0, d, d)
}

func (c *circle) At(x, y int) color.Color {
	dx := float64(x) + 0.5 - c.r
	dy := float64(y) + 0.5 - c.r
	d := c.r - math.Sqrt(dx*dx+dy*dy)
	switch {
	case d >= 1:
		return color.Alpha{A: 255}
	case d <= 0:
		return color.Alpha{}
	default:
		return color.Alpha{A: uint8(d * 255)}
	}
}
