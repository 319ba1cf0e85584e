package web

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gnssd/internal/parser"
	"gnssd/internal/sink"
)

const defaultSendBuf = 256

// Stream pushes every parsed message to websocket clients as one JSON text
// frame each. Slow clients lose messages rather than stall the sensor.
type Stream struct {
	sendBuf int
	log     zerolog.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}

	dropped atomic.Uint64
}

type streamClient struct {
	conn  *websocket.Conn
	types map[string]bool // nil = all

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewStream(sendBuf int) *Stream {
	if sendBuf <= 0 {
		sendBuf = defaultSendBuf
	}
	return &Stream{
		sendBuf: sendBuf,
		log:     log.With().Str("component", "stream").Logger(),
		clients: make(map[*streamClient]struct{}),
	}
}

// Publish fans msgs out to every connected client.
func (s *Stream) Publish(at time.Time, msgs []parser.ParsedMessage) {
	clients := s.snapshotClients()
	if len(clients) == 0 {
		return
	}
	for _, m := range msgs {
		b, err := sink.Marshal(at, m)
		if err != nil {
			s.log.Debug().Err(err).Stringer("type", m.Type).Msg("marshal failed")
			continue
		}
		name := m.Type.String()
		for _, c := range clients {
			if c.types != nil && !c.types[name] {
				continue
			}
			if !c.trySend(b) {
				s.dropped.Add(1)
			}
		}
	}
}

func (s *Stream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Handler upgrades the request. ?type=heading,ins limits the stream to those
// message types.
func (s *Stream) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := &streamClient{
			conn:  conn,
			types: parseTypes(r.URL.Query().Get("type")),
			send:  make(chan []byte, s.sendBuf),
		}
		s.addClient(c)
		s.log.Debug().Str("remote", r.RemoteAddr).Msg("stream client connected")

		go c.writeLoop()
		c.readLoop()

		c.close()
		s.removeClient(c)
		s.log.Debug().Str("remote", r.RemoteAddr).Msg("stream client disconnected")
	})
}

func parseTypes(q string) map[string]bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	types := map[string]bool{}
	for _, t := range strings.Split(q, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types[t] = true
		}
	}
	return types
}

func (s *Stream) addClient(c *streamClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Stream) removeClient(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Stream) snapshotClients() []*streamClient {
	s.mu.RLock()
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

// readLoop discards client input and returns once the peer goes away.
func (c *streamClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *streamClient) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
