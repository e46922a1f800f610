package watch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/hook"
	"github.com/nhle/mailmux/internal/journal"
)

// subscriberBuffer bounds queued events per live subscriber. A
// subscriber that falls behind loses events rather than stalling the
// watchers.
const subscriberBuffer = 64

// Engine supervises one watcher per watched server and fans their
// events out to live subscribers. An engine runs once: Start then
// Stop; configuration reloads build a fresh engine.
type Engine struct {
	factory Factory
	hooks   *hook.Runner
	journal *journal.Journal
	log     zerolog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	specs   []config.WatchSpec
	subs    map[int]chan Event
	nextSub int
	done    chan struct{}
	stopped bool
}

// NewEngine returns an engine dialing watch sessions through factory.
// The journal may be nil to disable recording.
func NewEngine(factory Factory, hooks *hook.Runner, jnl *journal.Journal, log zerolog.Logger) *Engine {
	return &Engine{
		factory: factory,
		hooks:   hooks,
		journal: jnl,
		log:     log,
		subs:    make(map[int]chan Event),
		done:    make(chan struct{}),
	}
}

// Start launches one watcher per spec and returns immediately. The
// watchers run until Stop or until ctx ends.
func (e *Engine) Start(ctx context.Context, specs []config.WatchSpec) {
	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)

	e.mu.Lock()
	e.cancel = cancel
	e.group = group
	e.specs = append([]config.WatchSpec(nil), specs...)
	e.mu.Unlock()

	for _, spec := range specs {
		w := newWatcher(spec, e.factory, e.hooks, e.journal, e.broadcast, e.log)
		group.Go(func() error {
			w.run(runCtx)
			return nil
		})
	}
	e.log.Info().Int("watchers", len(specs)).Msg("watch engine started")
}

// Stop cancels every watcher, waits for them to exit, and closes all
// subscriber channels. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancel, group := e.cancel, e.group
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}

	e.mu.Lock()
	close(e.done)
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.mu.Unlock()
	e.log.Info().Msg("watch engine stopped")
}

// Watched reports the configurations this engine supervises.
func (e *Engine) Watched() []config.WatchSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]config.WatchSpec(nil), e.specs...)
}

// Subscribe returns a merged event channel across every watcher. Each
// watcher's own ordering is preserved; there is no cross-watcher
// guarantee. The channel closes when ctx ends or the engine stops.
func (e *Engine) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(id)
		case <-e.done:
			// Stop already closed every subscriber channel.
		}
	}()

	return ch
}

func (e *Engine) unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
}

// broadcast delivers one event to every subscriber without blocking a
// watcher on a slow consumer.
func (e *Engine) broadcast(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
