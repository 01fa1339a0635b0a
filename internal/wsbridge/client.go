package wsbridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mesh-learning/tileboard/pkg/store"
)

// Client is a store session over a websocket connection. Watch events
// are delivered on the single reader goroutine, preserving the
// server's event order.
type Client struct {
	ws  *websocket.Conn
	log zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	closed  bool
	pending map[int64]chan frame
	subs    map[int64]func(any)

	done chan struct{}
}

var _ store.Store = (*Client)(nil)

// Dial connects to a bridge server at url (ws:// or wss://).
func Dial(url string, log zerolog.Logger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		ws:      ws,
		log:     log.With().Str("component", "wsclient").Logger(),
		pending: make(map[int64]chan frame),
		subs:    make(map[int64]func(any)),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.shutdown()
			return
		}
		if f.Event {
			c.mu.Lock()
			fn := c.subs[f.Sub]
			c.mu.Unlock()
			if fn != nil {
				fn(f.Value)
			}
			continue
		}
		c.mu.Lock()
		ch := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- f
		}
	}
}

// call sends one request and waits for its response.
func (c *Client) call(req frame) (frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return frame{}, store.ErrClosed
	}
	req.ID = c.nextID.Add(1)
	ch := make(chan frame, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return frame{}, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return frame{}, errors.New(resp.Error)
		}
		return resp, nil
	case <-c.done:
		return frame{}, store.ErrClosed
	}
}

// Once implements store.Store.
func (c *Client) Once(path string) (any, error) {
	resp, err := c.call(frame{Op: opOnce, Path: path})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Set implements store.Store.
func (c *Client) Set(path string, value any) error {
	_, err := c.call(frame{Op: opSet, Path: path, Value: value})
	return err
}

// Update implements store.Store.
func (c *Client) Update(path string, children map[string]any) error {
	_, err := c.call(frame{Op: opUpdate, Path: path, Merge: children})
	return err
}

// Delete implements store.Store.
func (c *Client) Delete(path string) error {
	_, err := c.call(frame{Op: opDelete, Path: path})
	return err
}

// Watch implements store.Store.
func (c *Client) Watch(path string, fn func(any)) (store.Subscription, error) {
	subID := c.nextID.Add(1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.ErrClosed
	}
	c.subs[subID] = fn
	c.mu.Unlock()

	if _, err := c.call(frame{Op: opWatch, Path: path, Sub: subID}); err != nil {
		c.mu.Lock()
		delete(c.subs, subID)
		c.mu.Unlock()
		return nil, err
	}
	return &clientSub{client: c, id: subID}, nil
}

type clientSub struct {
	client *Client
	id     int64
}

func (s *clientSub) Close() {
	s.client.mu.Lock()
	delete(s.client.subs, s.id)
	s.client.mu.Unlock()
	// Best effort; the server also cleans up on connection close.
	s.client.call(frame{Op: opUnwatch, Sub: s.id})
}

// OnDisconnect implements store.Store.
func (c *Client) OnDisconnect(path string, value any) (store.DisconnectHandle, error) {
	handleID := c.nextID.Add(1)
	if _, err := c.call(frame{Op: opOnDisconnect, Path: path, Value: value, Sub: handleID}); err != nil {
		return nil, err
	}
	return &clientHandle{client: c, id: handleID}, nil
}

type clientHandle struct {
	client *Client
	id     int64
}

func (h *clientHandle) Cancel() {
	h.client.call(frame{Op: opCancel, Sub: h.id})
}

// Close implements store.Store: it drops the connection, which makes
// the server close this client's session and fire its disconnect
// writes.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subs = make(map[int64]func(any))
	c.mu.Unlock()
	close(c.done)
	c.ws.Close()
}
