package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// blockingDialer counts dial attempts and can hold them open until released.
type blockingDialer struct {
	dials   atomic.Int32
	release chan struct{}
	err     error
}

func newBlockingDialer() *blockingDialer {
	return &blockingDialer{release: make(chan struct{})}
}

func (d *blockingDialer) dial(ctx context.Context, server string) (*Session, error) {
	d.dials.Add(1)
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return NewSession(server, nil), nil
}

func instantDialer() (*blockingDialer, DialFunc) {
	d := newBlockingDialer()
	close(d.release)
	return d, d.dial
}

func TestAcquireSingleFlight(t *testing.T) {
	d := newBlockingDialer()
	p := New(context.Background(), d.dial, zerolog.Nop())
	defer p.ShutdownAll()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Session, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Acquire(context.Background(), "work")
		}(i)
	}

	// Let every caller pile onto the in-flight attempt before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(d.release)
	wg.Wait()

	if got := d.dials.Load(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different session", i)
		}
	}
}

func TestAcquireReusesLiveSession(t *testing.T) {
	d, dial := instantDialer()
	p := New(context.Background(), dial, zerolog.Nop())
	defer p.ShutdownAll()

	first, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	second, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if first != second {
		t.Errorf("expected cached session to be reused")
	}
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestAcquireRedialsDeadSession(t *testing.T) {
	d, dial := instantDialer()
	p := New(context.Background(), dial, zerolog.Nop())
	defer p.ShutdownAll()

	first, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first.Close()

	second, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("Acquire after close: %v", err)
	}
	if first == second {
		t.Errorf("expected a fresh session after the old one died")
	}
	if got := d.dials.Load(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestAcquirePerServerSessions(t *testing.T) {
	d, dial := instantDialer()
	p := New(context.Background(), dial, zerolog.Nop())
	defer p.ShutdownAll()

	work, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("Acquire(work): %v", err)
	}
	personal, err := p.Acquire(context.Background(), "personal")
	if err != nil {
		t.Fatalf("Acquire(personal): %v", err)
	}
	if work == personal {
		t.Errorf("servers must not share sessions")
	}
	if got := d.dials.Load(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestAcquireCallerCancelKeepsAttempt(t *testing.T) {
	d := newBlockingDialer()
	p := New(context.Background(), d.dial, zerolog.Nop())
	defer p.ShutdownAll()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, "work")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller got %v, want context.Canceled", err)
	}

	// The attempt itself is bound to the pool, not the caller: once it
	// completes, the session is there for the next acquirer for free.
	close(d.release)
	s, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("Acquire after cancel: %v", err)
	}
	if s == nil {
		t.Fatal("expected a session")
	}
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
}

func TestAcquireDialErrorSharedByWaiters(t *testing.T) {
	d := newBlockingDialer()
	dialErr := errors.New("server on fire")
	d.err = dialErr
	p := New(context.Background(), d.dial, zerolog.Nop())
	defer p.ShutdownAll()

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Acquire(context.Background(), "work")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(d.release)
	wg.Wait()

	if got := d.dials.Load(); got != 1 {
		t.Fatalf("dial count = %d, want 1", got)
	}
	for i, err := range errs {
		if !errors.Is(err, dialErr) {
			t.Errorf("caller %d got %v, want the shared dial error", i, err)
		}
	}
}

func TestForceReconnect(t *testing.T) {
	d, dial := instantDialer()
	p := New(context.Background(), dial, zerolog.Nop())
	defer p.ShutdownAll()

	first, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	second, err := p.ForceReconnect(context.Background(), "work")
	if err != nil {
		t.Fatalf("ForceReconnect: %v", err)
	}
	if first == second {
		t.Errorf("ForceReconnect must replace the session")
	}
	if got := d.dials.Load(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}

	// The discarded session dies shortly after; the replacement stays.
	deadline := time.After(2 * time.Second)
	for first.Alive() {
		select {
		case <-deadline:
			t.Fatal("old session never closed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !second.Alive() {
		t.Errorf("replacement session should be alive")
	}
}

func TestShutdownAll(t *testing.T) {
	d, dial := instantDialer()
	p := New(context.Background(), dial, zerolog.Nop())

	s, err := p.Acquire(context.Background(), "work")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	p.ShutdownAll()

	if s.Alive() {
		t.Errorf("session should be closed after shutdown")
	}
	if _, err := p.Acquire(context.Background(), "work"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire after shutdown = %v, want ErrPoolClosed", err)
	}
	if _, err := p.ForceReconnect(context.Background(), "work"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("ForceReconnect after shutdown = %v, want ErrPoolClosed", err)
	}
	if got := d.dials.Load(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}

	// Idempotent.
	p.ShutdownAll()
}
