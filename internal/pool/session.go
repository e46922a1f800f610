package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const logoutTimeout = 5 * time.Second

// Session is one authenticated IMAP connection owned by the pool. Commands
// that depend on the connection's selected mailbox run through Do, which
// serializes them.
type Session struct {
	server string
	client *imapclient.Client

	mu     sync.Mutex
	closed atomic.Bool
}

// NewSession wraps an authenticated client for the given server.
func NewSession(server string, client *imapclient.Client) *Session {
	return &Session{server: server, client: client}
}

// Server returns the server identity this session is connected to.
func (s *Session) Server() string {
	return s.server
}

// Alive reports whether the session is still usable. A session that was
// closed locally or whose connection reached the logout state is dead and
// must be replaced.
func (s *Session) Alive() bool {
	if s.closed.Load() {
		return false
	}
	if s.client == nil {
		return true
	}
	return s.client.State() != imap.ConnStateLogout
}

// Do runs fn with exclusive use of the connection. The selected mailbox is
// per-connection state, so sequences like select-then-fetch must not
// interleave across callers.
func (s *Session) Do(fn func(c *imapclient.Client) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Alive() {
		return ErrSessionClosed
	}
	return fn(s.client)
}

// Close logs out politely, capped by a short timeout, then tears the
// connection down. Closing an already-closed session is a no-op.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.client == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.client.Logout().Wait()
	}()
	select {
	case <-done:
	case <-time.After(logoutTimeout):
	}
	_ = s.client.Close()
}
