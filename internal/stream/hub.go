package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/san-kum/bouncesim/internal/sim"
)

const (
	DefaultMaxClients = 100
	sendBuffer        = 2
	writeWait         = 5 * time.Second
)

// Info is sent as a JSON text message when a client connects.
type Info struct {
	Device    string  `json:"device"`
	Particles int     `json:"particles"`
	Width     float32 `json:"width"`
	Height    float32 `json:"height"`
	Dt        float32 `json:"dt"`
}

type HubOptions struct {
	MaxClients int
	// FPS caps broadcasts per second. Zero forwards every frame.
	FPS    int
	Logger *zap.Logger
}

// Hub fans simulation frames out to websocket clients. Each client has a
// small send queue; a client that falls behind loses frames rather than
// stalling the simulation. Hub implements sim.Observer and http.Handler.
type Hub struct {
	info       Info
	maxClients int
	interval   time.Duration
	log        *zap.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    time.Time
	closed  bool
	wg      sync.WaitGroup

	sent    uint64
	dropped uint64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(info Info, opts HubOptions) *Hub {
	h := &Hub{
		info:       info,
		maxClients: opts.MaxClients,
		log:        opts.Logger,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if h.maxClients <= 0 {
		h.maxClients = DefaultMaxClients
	}
	if opts.FPS > 0 {
		h.interval = time.Second / time.Duration(opts.FPS)
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	hello, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(h.info)
	if err != nil {
		conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- hello

	h.mu.Lock()
	if h.closed || len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.log.Warn("rejecting client", zap.String("remote", r.RemoteAddr), zap.Int("clients", h.maxClients))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.log.Info("client connected", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	go h.readPump(c)
}

// writePump owns all writes to the connection. The first queued message is
// the JSON hello; everything after is a binary frame.
func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	first := true
	for msg := range c.send {
		mt := websocket.BinaryMessage
		if first {
			mt, first = websocket.TextMessage, false
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(mt, msg); err != nil {
			h.log.Debug("client write failed", zap.Error(err))
			c.conn.Close()
			h.drop(c)
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.conn.Close()
}

// readPump discards client input and unregisters the client when the
// connection ends.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
	h.log.Info("client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
}

// drop unregisters c and closes its queue exactly once.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// OnFrame encodes f once and queues it for every client.
func (h *Hub) OnFrame(f sim.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 || h.closed {
		return nil
	}
	now := time.Now()
	if h.interval > 0 && now.Sub(h.last) < h.interval {
		return nil
	}
	h.last = now

	data := EncodeFrame(f)
	for c := range h.clients {
		select {
		case c.send <- data:
			h.sent++
		default:
			h.dropped++
		}
	}
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats returns frames queued and frames dropped on full queues.
func (h *Hub) Stats() (sent, dropped uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent, h.dropped
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.wg.Wait()
}
