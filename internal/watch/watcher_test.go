package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/mailops"
)

type fakeIdle struct {
	mu     sync.Mutex
	closed bool
	done   chan error
}

func newFakeIdle() *fakeIdle {
	return &fakeIdle{done: make(chan error, 1)}
}

func (f *fakeIdle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.done <- nil
	}
	return nil
}

func (f *fakeIdle) Wait() error {
	return <-f.done
}

// fail ends the cycle from the server side.
func (f *fakeIdle) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.done <- err
	}
}

type fakeSession struct {
	mu            sync.Mutex
	uidNext       uint32
	selectErr     error
	statusUIDNext uint32
	statusErr     error
	pool          []uint32
	details       map[uint32]*mailops.MessageDetail

	updates chan Update
	idles   chan *fakeIdle
	closed  atomic.Bool
}

func newFakeSession(uidNext uint32, uids ...uint32) *fakeSession {
	return &fakeSession{
		uidNext: uidNext,
		pool:    append([]uint32(nil), uids...),
		updates: make(chan Update, 8),
		idles:   make(chan *fakeIdle, 8),
	}
}

func (f *fakeSession) SelectMailbox(ctx context.Context, mailbox string) (uint32, error) {
	if f.selectErr != nil {
		return 0, f.selectErr
	}
	return f.uidNext, nil
}

func (f *fakeSession) StatusUIDNext(ctx context.Context, mailbox string) (uint32, error) {
	return f.statusUIDNext, f.statusErr
}

func (f *fakeSession) UIDsAbove(ctx context.Context, cursor uint32) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint32
	for _, uid := range f.pool {
		if uid > cursor {
			out = append(out, uid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *fakeSession) FetchDetail(ctx context.Context, mailbox string, uid uint32) (*mailops.MessageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.details[uid]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no detail for uid %d", uid)
}

func (f *fakeSession) Updates() <-chan Update {
	return f.updates
}

func (f *fakeSession) Idle() (IdleCycle, error) {
	idle := newFakeIdle()
	f.idles <- idle
	return idle, nil
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

// addMessage appends a UID to the mailbox and pushes an exists update,
// the way a server announces new mail during IDLE.
func (f *fakeSession) addMessage(uid uint32) {
	f.mu.Lock()
	f.pool = append(f.pool, uid)
	count := uint32(len(f.pool))
	f.mu.Unlock()
	f.updates <- Update{Kind: KindExists, Num: count}
}

// scriptedFactory hands out sessions (or dial errors) in order,
// repeating the last entry once the script runs out.
type scriptedFactory struct {
	mu     sync.Mutex
	script []sessionResult
	dials  int
}

type sessionResult struct {
	sess Session
	err  error
}

func (f *scriptedFactory) WatchSession(ctx context.Context, server string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return nil, errors.New("no session scripted")
	}
	idx := f.dials
	f.dials++
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	r := f.script[idx]
	return r.sess, r.err
}

func (f *scriptedFactory) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func testSpec() config.WatchSpec {
	return config.WatchSpec{Server: "work", Mailbox: "INBOX"}
}

// startWatcher runs a watcher against the factory and returns its
// event stream plus an idempotent stop function.
func startWatcher(t *testing.T, factory Factory) (<-chan Event, func()) {
	t.Helper()

	events := make(chan Event, 64)
	w := newWatcher(testSpec(), factory, nil, nil, func(ev Event) { events <- ev }, zerolog.Nop())
	w.backoff = 10 * time.Millisecond
	w.idleCycle = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.run(ctx)
		close(done)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Error("watcher did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return events, stop
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitIdle(t *testing.T, sess *fakeSession) *fakeIdle {
	t.Helper()
	select {
	case idle := <-sess.idles:
		return idle
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an idle cycle")
		return nil
	}
}

func TestWatcherCatchUpEmitsAboveBaseline(t *testing.T) {
	sess := newFakeSession(11, 9, 10, 11, 12)
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	first := waitEvent(t, events)
	if first.Kind != KindExists || first.UID != 11 {
		t.Fatalf("first event = %+v, want exists uid 11", first)
	}
	second := waitEvent(t, events)
	if second.Kind != KindExists || second.UID != 12 {
		t.Fatalf("second event = %+v, want exists uid 12", second)
	}
	if first.Server != "work" || first.Mailbox != "INBOX" {
		t.Errorf("event identity = %s/%s", first.Server, first.Mailbox)
	}
	expectNoEvent(t, events)
}

func TestWatcherPushNotifications(t *testing.T) {
	sess := newFakeSession(6, 5)
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	waitIdle(t, sess)
	sess.addMessage(6)
	ev := waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 6 {
		t.Fatalf("event = %+v, want exists uid 6", ev)
	}

	sess.addMessage(7)
	ev = waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 7 {
		t.Fatalf("event = %+v, want exists uid 7", ev)
	}
	expectNoEvent(t, events)
}

func TestWatcherPushAfterCatchUpNotDuplicated(t *testing.T) {
	sess := newFakeSession(11, 11)
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	ev := waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 11 {
		t.Fatalf("catch-up event = %+v, want exists uid 11", ev)
	}

	// The server may push an exists for the same message the catch-up
	// already announced; the cursor absorbs it.
	waitIdle(t, sess)
	sess.updates <- Update{Kind: KindExists, Num: 1}
	expectNoEvent(t, events)
}

func TestWatcherExpungeLeavesCursorAlone(t *testing.T) {
	sess := newFakeSession(6, 5)
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	waitIdle(t, sess)
	sess.updates <- Update{Kind: KindExpunge, Num: 2}
	ev := waitEvent(t, events)
	if ev.Kind != KindExpunge {
		t.Fatalf("event = %+v, want expunge", ev)
	}
	if ev.UID != 0 {
		t.Errorf("expunge event carries uid %d, want none", ev.UID)
	}

	// A message arriving afterwards still reconciles from the old
	// cursor.
	sess.addMessage(6)
	ev = waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 6 {
		t.Fatalf("event = %+v, want exists uid 6", ev)
	}
}

func TestWatcherIdleFailureReconnects(t *testing.T) {
	sess1 := newFakeSession(6, 5)
	sess2 := newFakeSession(8, 5, 7)
	factory := &scriptedFactory{script: []sessionResult{{sess: sess1}, {sess: sess2}}}
	events, _ := startWatcher(t, factory)

	idle := waitIdle(t, sess1)
	idle.fail(errors.New("connection reset by peer"))

	ev := waitEvent(t, events)
	if ev.Kind != KindBye {
		t.Fatalf("event = %+v, want bye", ev)
	}
	if ev.Description == "" {
		t.Error("bye event has no description")
	}

	// The next session re-baselines at uidNext-1, so only pushes after
	// the new baseline are announced.
	waitIdle(t, sess2)
	if !sess1.closed.Load() {
		t.Error("failed session was not closed")
	}
	if got := factory.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}

	sess2.addMessage(8)
	ev = waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 8 {
		t.Fatalf("event = %+v, want exists uid 8", ev)
	}
}

func TestWatcherStreamEndReconnects(t *testing.T) {
	sess1 := newFakeSession(6, 5)
	sess2 := newFakeSession(6, 5)
	factory := &scriptedFactory{script: []sessionResult{{sess: sess1}, {sess: sess2}}}
	events, _ := startWatcher(t, factory)

	waitIdle(t, sess1)
	close(sess1.updates)

	ev := waitEvent(t, events)
	if ev.Kind != KindBye {
		t.Fatalf("event = %+v, want bye", ev)
	}
	waitIdle(t, sess2)
	if got := factory.dialCount(); got != 2 {
		t.Errorf("dial count = %d, want 2", got)
	}
}

func TestWatcherDialFailureRetriesWithoutBye(t *testing.T) {
	sess := newFakeSession(11, 11)
	factory := &scriptedFactory{script: []sessionResult{
		{err: errors.New("connection refused")},
		{sess: sess},
	}}
	events, _ := startWatcher(t, factory)

	ev := waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 11 {
		t.Fatalf("first event = %+v, want the catch-up exists, not a bye", ev)
	}
	if got := factory.dialCount(); got < 2 {
		t.Errorf("dial count = %d, want at least 2", got)
	}
}

func TestWatcherSelectFailureReconnects(t *testing.T) {
	sess1 := newFakeSession(0)
	sess1.selectErr = errors.New("mailbox gone")
	sess2 := newFakeSession(6, 5)
	factory := &scriptedFactory{script: []sessionResult{{sess: sess1}, {sess: sess2}}}
	_, _ = startWatcher(t, factory)

	waitIdle(t, sess2)
	if !sess1.closed.Load() {
		t.Error("session with failed select was not closed")
	}
}

func TestWatcherBaselineFallsBackToStatus(t *testing.T) {
	sess := newFakeSession(0, 5, 6)
	sess.statusUIDNext = 6
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	ev := waitEvent(t, events)
	if ev.Kind != KindExists || ev.UID != 6 {
		t.Fatalf("event = %+v, want exists uid 6 from the status baseline", ev)
	}
	expectNoEvent(t, events)
}

func TestWatcherBaselineFailureTreatsAllAsNew(t *testing.T) {
	sess := newFakeSession(0, 1, 2)
	sess.statusErr = errors.New("status unsupported")
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	first := waitEvent(t, events)
	second := waitEvent(t, events)
	if first.UID != 1 || second.UID != 2 {
		t.Fatalf("got uids %d, %d, want 1, 2", first.UID, second.UID)
	}
}

func TestWatcherEventDescriptionFromDetail(t *testing.T) {
	sess := newFakeSession(11, 11)
	sess.details = map[uint32]*mailops.MessageDetail{
		11: {MessageHeader: mailops.MessageHeader{
			UID:     11,
			From:    "Ann <ann@example.com>",
			Subject: "build broken",
		}},
	}
	events, _ := startWatcher(t, &scriptedFactory{script: []sessionResult{{sess: sess}}})

	ev := waitEvent(t, events)
	want := "Ann <ann@example.com>: build broken"
	if ev.Description != want {
		t.Errorf("description = %q, want %q", ev.Description, want)
	}
}
