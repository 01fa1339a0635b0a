package memstore

import (
	"sync"

	"github.com/mesh-learning/tileboard/pkg/store"
)

// Session is one client's connection to a hub, implementing the store
// contract. Closing the session fires its registered disconnect writes
// (the native disconnect-detection primitive) and detaches every
// subscription it opened.
type Session struct {
	hub *Hub

	mu          sync.Mutex
	closed      bool
	subs        map[int]store.Subscription
	nextSubID   int
	disconnects map[int]*disconnectReg
	nextDiscID  int
}

type disconnectReg struct {
	session   *Session
	id        int
	path      string
	value     any
	cancelled bool
}

// NewSession opens a client session on the hub.
func (h *Hub) NewSession() *Session {
	return &Session{
		hub:         h,
		subs:        make(map[int]store.Subscription),
		disconnects: make(map[int]*disconnectReg),
	}
}

// Once implements store.Store.
func (s *Session) Once(path string) (any, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	return s.hub.Once(path)
}

// Watch implements store.Store.
func (s *Session) Watch(path string, fn func(any)) (store.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	id := s.nextSubID
	s.nextSubID++
	s.mu.Unlock()

	sub, err := s.hub.Watch(path, fn)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return nil, store.ErrClosed
	}
	s.subs[id] = sub
	s.mu.Unlock()
	return &sessionSub{session: s, id: id, sub: sub}, nil
}

type sessionSub struct {
	session *Session
	id      int
	sub     store.Subscription
}

func (ss *sessionSub) Close() {
	ss.session.mu.Lock()
	delete(ss.session.subs, ss.id)
	ss.session.mu.Unlock()
	ss.sub.Close()
}

// Set implements store.Store.
func (s *Session) Set(path string, value any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.hub.Set(path, value)
}

// Update implements store.Store.
func (s *Session) Update(path string, children map[string]any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.hub.Update(path, children)
}

// Delete implements store.Store.
func (s *Session) Delete(path string) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.hub.Delete(path)
}

// OnDisconnect implements store.Store: value is written at path when
// the session closes, cleanly or not.
func (s *Session) OnDisconnect(path string, value any) (store.DisconnectHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	reg := &disconnectReg{session: s, id: s.nextDiscID, path: path, value: value}
	s.nextDiscID++
	s.disconnects[reg.id] = reg
	return reg, nil
}

// Cancel implements store.DisconnectHandle.
func (r *disconnectReg) Cancel() {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	r.cancelled = true
	delete(r.session.disconnects, r.id)
}

// Close implements store.Store: fires pending disconnect writes, then
// detaches the session's subscriptions. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	regs := make([]*disconnectReg, 0, len(s.disconnects))
	for _, reg := range s.disconnects {
		regs = append(regs, reg)
	}
	subs := make([]store.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.disconnects = make(map[int]*disconnectReg)
	s.subs = make(map[int]store.Subscription)
	s.mu.Unlock()

	for _, reg := range regs {
		_ = s.hub.Set(reg.path, reg.value)
	}
	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
