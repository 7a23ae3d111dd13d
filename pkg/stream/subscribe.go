package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/layout"
)

type subscribeConfig struct {
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	dialer     *websocket.Dialer
}

type SubscribeOption func(*subscribeConfig)

func WithSubscribeLogger(l zerolog.Logger) SubscribeOption {
	return func(c *subscribeConfig) { c.logger = l }
}

// WithBackoff sets the reconnect delay bounds. The delay doubles after
// every failed attempt and resets once a connection succeeds.
func WithBackoff(lo, hi time.Duration) SubscribeOption {
	return func(c *subscribeConfig) { c.minBackoff, c.maxBackoff = lo, hi }
}

// Subscribe connects to a snapshot stream and calls fn for every snapshot
// until ctx is cancelled, reconnecting with exponential backoff. The
// stream's format comes from the URL's format query parameter.
func Subscribe(ctx context.Context, rawURL string, fn func(layout.Snapshot), opts ...SubscribeOption) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	format := ParseFormat(u.Query().Get("format"))

	cfg := subscribeConfig{
		logger:     zerolog.Nop(),
		minBackoff: time.Second,
		maxBackoff: 60 * time.Second,
		dialer:     websocket.DefaultDialer,
	}
	for _, o := range opts {
		o(&cfg)
	}

	backoff := cfg.minBackoff
	for {
		cfg.logger.Info().Str("url", rawURL).Msg("Connecting to snapshot stream")
		conn, _, err := cfg.dialer.DialContext(ctx, rawURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cfg.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Dial error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, cfg.maxBackoff)
			continue
		}
		backoff = cfg.minBackoff

		err = readLoop(ctx, conn, format, fn, cfg.logger)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cfg.logger.Warn().Err(err).Msg("Stream read error, reconnecting")
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, format Format, fn func(layout.Snapshot), logger zerolog.Logger) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s, err := Decode(msg, format)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				logger.Debug().Err(err).Msg("Skipping malformed frame")
				continue
			}
			return err
		}
		fn(s)
	}
}
