package stream

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/layout"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type client struct {
	conn   *websocket.Conn
	remote string
	format Format
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Broadcaster fans snapshots out to websocket clients. Each client has a
// bounded queue; a client whose queue is full is disconnected rather than
// slowing down the others.
type Broadcaster struct {
	logger   zerolog.Logger
	buffer   int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *layout.Snapshot

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewBroadcaster(buffer int, logger zerolog.Logger) *Broadcaster {
	if buffer < 1 {
		buffer = 16
	}
	return &Broadcaster{
		logger:  logger,
		buffer:  buffer,
		clients: map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler upgrades requests to websocket connections. New clients receive
// the latest snapshot straight away.
func (b *Broadcaster) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
			return
		}
		c := &client{conn: conn, remote: r.RemoteAddr, format: ParseFormat(r.URL.Query().Get("format")), send: make(chan []byte, b.buffer)}

		b.mu.Lock()
		if b.last != nil {
			if msg, err := Encode(*b.last, c.format); err == nil {
				c.send <- msg
			}
		}
		b.clients[c] = struct{}{}
		n := len(b.clients)
		b.mu.Unlock()
		b.logger.Info().Str("remote", r.RemoteAddr).Str("format", c.format.String()).Int("clients", n).Msg("Client connected")

		go b.writePump(c)
		b.readPump(c)
	})
}

// Publish queues s for every connected client.
func (b *Broadcaster) Publish(s layout.Snapshot) {
	var (
		encoded [2][]byte
		failed  bool
	)
	for _, f := range []Format{FormatJSON, FormatBinary} {
		msg, err := Encode(s, f)
		if err != nil {
			b.logger.Error().Err(err).Str("format", f.String()).Uint64("seq", s.Seq).Msg("Error encoding snapshot")
			failed = true
			continue
		}
		encoded[f] = msg
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// New clients only ever get a snapshot every format can carry.
	if !failed {
		b.last = &s
	}
	b.published.Add(1)

	for c := range b.clients {
		msg := encoded[c.format]
		if msg == nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			b.dropped.Add(1)
			b.logger.Warn().Str("remote", c.remote).Msg("Client too slow, disconnecting")
			b.removeLocked(c)
		}
	}
}

// Run publishes every snapshot from ch until it closes.
func (b *Broadcaster) Run(ch <-chan layout.Snapshot) {
	for s := range ch {
		b.Publish(s)
	}
}

func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped counts clients disconnected for falling behind.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

func (b *Broadcaster) Published() uint64 { return b.published.Load() }

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.removeLocked(c)
	}
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	c.close()
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

// readPump only exists to notice the peer going away and to answer pings.
func (b *Broadcaster) readPump(c *client) {
	defer func() {
		b.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug().Err(err).Msg("Client read error")
			}
			return
		}
	}
}

func (b *Broadcaster) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	msgType := websocket.TextMessage
	if c.format == FormatBinary {
		msgType = websocket.BinaryMessage
	}
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(msgType, msg); err != nil {
				b.logger.Debug().Err(err).Msg("Client write error")
				b.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.remove(c)
				return
			}
		}
	}
}
