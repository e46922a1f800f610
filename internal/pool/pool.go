package pool

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DialFunc establishes a new session for a server. The context is the
// pool's own, not a caller's: a connection attempt keeps running even when
// the request that triggered it goes away, so every waiter can share its
// outcome.
type DialFunc func(ctx context.Context, server string) (*Session, error)

// Pool caches one IMAP session per server and deduplicates concurrent
// connection attempts. All callers asking for the same server while an
// attempt is in flight observe that attempt's result.
type Pool struct {
	dial DialFunc
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	flight singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// New returns an empty pool. Connection attempts run under ctx; canceling
// it aborts them along with the pool.
func New(ctx context.Context, dial DialFunc, log zerolog.Logger) *Pool {
	pctx, cancel := context.WithCancel(ctx)
	return &Pool{
		dial:     dial,
		log:      log,
		ctx:      pctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns a live session for the server, reusing the cached one
// when possible and dialing otherwise. Canceling ctx abandons the wait but
// not the attempt itself.
func (p *Pool) Acquire(ctx context.Context, server string) (*Session, error) {
	p.mu.RLock()
	s, closed := p.sessions[server], p.closed
	p.mu.RUnlock()

	if closed {
		return nil, ErrPoolClosed
	}
	if s != nil && s.Alive() {
		return s, nil
	}
	return p.connect(ctx, server)
}

// ForceReconnect discards the server's current session and establishes a
// fresh one. Operations call this after a mid-command connection failure.
func (p *Pool) ForceReconnect(ctx context.Context, server string) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if s := p.sessions[server]; s != nil {
		delete(p.sessions, server)
		go s.Close()
	}
	p.mu.Unlock()

	// Waiters on an attempt that started before this call keep its result;
	// only attempts starting from here dial anew.
	p.flight.Forget(server)
	return p.connect(ctx, server)
}

func (p *Pool) connect(ctx context.Context, server string) (*Session, error) {
	ch := p.flight.DoChan(server, func() (interface{}, error) {
		p.mu.RLock()
		s := p.sessions[server]
		p.mu.RUnlock()
		if s != nil {
			if s.Alive() {
				return s, nil
			}
			s.Close()
		}

		p.log.Debug().Str("server", server).Msg("establishing pool connection")
		ns, err := p.dial(p.ctx, server)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			ns.Close()
			return nil, ErrPoolClosed
		}
		p.sessions[server] = ns
		p.mu.Unlock()
		return ns, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Connected reports whether a live session is cached for the server.
// It never dials.
func (p *Pool) Connected(server string) bool {
	p.mu.RLock()
	s := p.sessions[server]
	p.mu.RUnlock()
	return s != nil && s.Alive()
}

// ShutdownAll closes every pooled session and rejects further acquisitions.
// Logouts run in parallel, each capped by the session's logout timeout.
func (p *Pool) ShutdownAll() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	p.cancel()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()

	p.log.Debug().Int("sessions", len(sessions)).Msg("pool shut down")
}
