package wsbridge

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mesh-learning/tileboard/pkg/store"
)

// Server exposes a store over websocket connections. Each accepted
// connection gets its own session from the factory; when the
// connection ends the session is closed, which fires its registered
// disconnect writes.
type Server struct {
	sessions func() store.Store
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer returns a handler serving sessions from the factory.
func NewServer(sessions func() store.Store, log zerolog.Logger) *Server {
	return &Server{
		sessions: sessions,
		log:      log.With().Str("component", "wsbridge").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	go s.serveConn(conn)
}

// conn wraps one websocket connection with its session state.
type serverConn struct {
	ws      *websocket.Conn
	session store.Store
	log     zerolog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	subs    map[int64]store.Subscription
	handles map[int64]store.DisconnectHandle
}

func (s *Server) serveConn(ws *websocket.Conn) {
	c := &serverConn{
		ws:      ws,
		session: s.sessions(),
		log:     s.log.With().Str("remote", ws.RemoteAddr().String()).Logger(),
		subs:    make(map[int64]store.Subscription),
		handles: make(map[int64]store.DisconnectHandle),
	}
	c.log.Debug().Msg("client connected")
	defer c.teardown()

	for {
		var req frame
		if err := ws.ReadJSON(&req); err != nil {
			c.log.Debug().Err(err).Msg("client gone")
			return
		}
		c.handle(req)
	}
}

// teardown closes the session first so disconnect writes fire before
// the connection resources go away.
func (c *serverConn) teardown() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	if err := c.session.Close(); err != nil {
		c.log.Warn().Err(err).Msg("session close failed")
	}
	c.ws.Close()
}

func (c *serverConn) handle(req frame) {
	switch req.Op {
	case opOnce:
		value, err := c.session.Once(req.Path)
		c.respond(req.ID, value, err)
	case opSet:
		c.respond(req.ID, nil, c.session.Set(req.Path, req.Value))
	case opUpdate:
		c.respond(req.ID, nil, c.session.Update(req.Path, req.Merge))
	case opDelete:
		c.respond(req.ID, nil, c.session.Delete(req.Path))
	case opWatch:
		c.watch(req)
	case opUnwatch:
		c.mu.Lock()
		sub := c.subs[req.Sub]
		delete(c.subs, req.Sub)
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		c.respond(req.ID, nil, nil)
	case opOnDisconnect:
		handle, err := c.session.OnDisconnect(req.Path, req.Value)
		if err == nil {
			c.mu.Lock()
			c.handles[req.Sub] = handle
			c.mu.Unlock()
		}
		c.respond(req.ID, nil, err)
	case opCancel:
		c.mu.Lock()
		handle := c.handles[req.Sub]
		delete(c.handles, req.Sub)
		c.mu.Unlock()
		if handle != nil {
			handle.Cancel()
		}
		c.respond(req.ID, nil, nil)
	default:
		c.respond(req.ID, nil, store.ErrInvalidPath)
	}
}

func (c *serverConn) watch(req frame) {
	subID := req.Sub
	sub, err := c.session.Watch(req.Path, func(value any) {
		c.send(frame{Event: true, Sub: subID, Value: value})
	})
	if err != nil {
		c.respond(req.ID, nil, err)
		return
	}
	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		sub.Close()
		return
	}
	c.subs[subID] = sub
	c.mu.Unlock()
	c.respond(req.ID, nil, nil)
}

func (c *serverConn) respond(id int64, value any, err error) {
	resp := frame{ID: id, Value: value}
	if err != nil {
		resp.Error = err.Error()
	}
	c.send(resp)
}

func (c *serverConn) send(f frame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(f); err != nil {
		c.log.Debug().Err(err).Msg("write failed")
	}
}
