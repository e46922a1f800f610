// Package daemon composes the configuration, credential store,
// connection pool, dispatcher, watch engine, journal, and RPC server
// into one runnable process. Reload swaps the config-bound pieces as a
// whole generation; long-lived pieces (credential store, journal, hook
// runner, RPC listeners) survive across reloads.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/credential"
	"github.com/nhle/mailmux/internal/hook"
	"github.com/nhle/mailmux/internal/journal"
	"github.com/nhle/mailmux/internal/mailops"
	"github.com/nhle/mailmux/internal/pool"
	"github.com/nhle/mailmux/internal/rpc"
	"github.com/nhle/mailmux/internal/watch"
)

const (
	// journalKeep is how many journal entries survive a prune pass.
	journalKeep = 2000

	// pruneInterval spaces the periodic journal prune passes.
	pruneInterval = time.Hour

	// subscriberBuffer bounds the bridge channel handed to RPC
	// subscribers.
	subscriberBuffer = 64
)

// generation is the config-bound slice of the daemon. Reload builds a
// fresh one and tears the old one down; nothing inside a generation is
// mutated after construction.
type generation struct {
	cfg      *config.Config
	resolver *credential.Resolver
	pool     *pool.Pool
	ops      *mailops.Dispatcher
	engine   *watch.Engine

	// changed closes when the next generation has replaced this one,
	// letting event subscribers roll over to the new engine.
	changed chan struct{}
}

// Daemon is the composition root.
type Daemon struct {
	configPath string
	store      *credential.Store
	hooks      *hook.Runner
	log        zerolog.Logger

	jnl    *journal.Journal
	server *rpc.Server

	runCtx context.Context

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	reloadMu sync.Mutex

	mu  sync.RWMutex
	gen *generation
}

// New returns an unstarted daemon reading its configuration from
// configPath and its secrets from store.
func New(configPath string, store *credential.Store, log zerolog.Logger) *Daemon {
	return &Daemon{
		configPath: configPath,
		store:      store,
		hooks:      hook.NewRunner(log),
		log:        log,
		shutdownCh: make(chan struct{}),
	}
}

// Run starts every component and blocks until ctx ends or Shutdown is
// called, then tears the daemon down in order: stop accepting RPC,
// stop the watchers, close the pool, drain hooks, close the journal.
func (d *Daemon) Run(ctx context.Context) error {
	d.runCtx = ctx

	cfg, err := config.Load(d.configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}
	jnl, err := journal.Open(filepath.Join(cfg.DataDir, "journal.db"))
	if err != nil {
		return err
	}
	d.jnl = jnl

	gen := d.buildGeneration(ctx, cfg)
	d.mu.Lock()
	d.gen = gen
	d.mu.Unlock()

	d.server = rpc.NewServer(d, d, d.store, d, d.log.With().Str("component", "rpc").Logger())
	if err := d.server.ListenUnix(cfg.Socket); err != nil {
		return err
	}
	if cfg.TCPPort != 0 {
		if err := d.server.ListenTCP(cfg.TCPPort); err != nil {
			return err
		}
	}
	d.server.Start(ctx)

	gen.engine.Start(ctx, cfg.WatchSpecs())

	go d.pruneLoop(ctx)

	d.log.Info().Str("config", d.configPath).Int("servers", len(cfg.Servers)).Msg("daemon running")

	select {
	case <-ctx.Done():
	case <-d.shutdownCh:
	}

	d.log.Info().Msg("daemon shutting down")
	d.server.Close()

	d.mu.RLock()
	gen = d.gen
	d.mu.RUnlock()
	gen.engine.Stop()
	gen.pool.ShutdownAll()

	d.hooks.Wait()
	if err := d.jnl.Close(); err != nil {
		d.log.Warn().Err(err).Msg("closing journal")
	}
	return nil
}

// buildGeneration wires the config-bound components for one
// configuration generation. The engine is returned unstarted.
func (d *Daemon) buildGeneration(ctx context.Context, cfg *config.Config) *generation {
	resolver := credential.NewResolver(d.store, cfg)
	dialer := pool.NewDialer(resolver, d.log.With().Str("component", "dialer").Logger())
	p := pool.New(ctx, dialer.DialSession, d.log.With().Str("component", "pool").Logger())
	ops := mailops.New(cfg, p, d.log.With().Str("component", "dispatch").Logger())
	factory := watch.NewIMAPFactory(dialer)
	engine := watch.NewEngine(factory, d.hooks, d.jnl, d.log.With().Str("component", "watch").Logger())

	return &generation{
		cfg:      cfg,
		resolver: resolver,
		pool:     p,
		ops:      ops,
		engine:   engine,
		changed:  make(chan struct{}),
	}
}

// current returns the live generation.
func (d *Daemon) current() *generation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gen
}

// Reload loads a fresh configuration and rebuilds the config-bound
// components: watchers are cancelled, pooled connections closed, then a
// new generation starts. A config that fails to load leaves the running
// generation untouched.
func (d *Daemon) Reload(ctx context.Context) error {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	cfg, err := config.Load(d.configPath)
	if err != nil {
		d.log.Error().Err(err).Msg("reload rejected, keeping current configuration")
		return err
	}

	d.log.Info().Int("servers", len(cfg.Servers)).Msg("reloading configuration")

	old := d.current()
	old.engine.Stop()
	old.pool.ShutdownAll()

	gen := d.buildGeneration(d.runCtx, cfg)
	d.mu.Lock()
	d.gen = gen
	d.mu.Unlock()

	gen.engine.Start(d.runCtx, cfg.WatchSpecs())
	close(old.changed)

	d.log.Info().Msg("reload complete")
	return nil
}

// Shutdown asks Run to exit. It returns immediately; Run performs the
// ordered teardown.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

// ServerList reports every configured server with its pooled-connection
// and watch state. Hosts and usernames come from the credential sources
// without touching the network.
func (d *Daemon) ServerList(ctx context.Context) ([]rpc.ServerStatus, error) {
	gen := d.current()

	statuses := make([]rpc.ServerStatus, 0, len(gen.cfg.Servers))
	for _, id := range gen.cfg.ServerIDs() {
		sc, _ := gen.cfg.Server(id)
		status := rpc.ServerStatus{
			Server:    id,
			Connected: gen.pool.Connected(id),
			Watching:  sc.Watch,
		}
		if sc.Watch {
			status.WatchMailbox = sc.WatchMailbox
		}
		if creds, err := gen.resolver.Resolve(id); err == nil {
			status.Host = creds.Host
			status.Username = creds.Username
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Subscribe bridges a caller onto the live event stream. The bridge
// follows generation swaps, so a subscription survives reloads and ends
// only with the caller's context or daemon shutdown.
func (d *Daemon) Subscribe(ctx context.Context) <-chan watch.Event {
	out := make(chan watch.Event, subscriberBuffer)

	go func() {
		defer close(out)
		for {
			gen := d.current()
			in := gen.engine.Subscribe(ctx)
			for ev := range in {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			// The engine stopped under us. Wait for its replacement or
			// for the daemon to go away.
			select {
			case <-gen.changed:
			case <-d.shutdownCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Recent returns the newest recorded change events.
func (d *Daemon) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	return d.jnl.Recent(ctx, limit)
}

// pruneLoop keeps the journal bounded.
func (d *Daemon) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdownCh:
			return
		case <-ticker.C:
			removed, err := d.jnl.Prune(ctx, journalKeep)
			if err != nil {
				d.log.Warn().Err(err).Msg("pruning journal")
			} else if removed > 0 {
				d.log.Debug().Int64("removed", removed).Msg("pruned journal")
			}
		}
	}
}
