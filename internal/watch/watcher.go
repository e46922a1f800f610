package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/hook"
	"github.com/nhle/mailmux/internal/journal"
	"github.com/nhle/mailmux/internal/mailops"
)

const (
	// reconnectDelay is the fixed sleep between watch sessions.
	reconnectDelay = 15 * time.Second

	// idleCycleLength restarts IDLE well inside the protocol's
	// half-hour limit; each restart doubles as a liveness re-check.
	idleCycleLength = 5 * time.Minute
)

var errStreamEnded = errors.New("watch event stream ended")

// watcher runs the monitoring loop for one watched mailbox. The cursor
// is owned exclusively by the loop goroutine.
type watcher struct {
	spec    config.WatchSpec
	factory Factory
	hooks   *hook.Runner
	journal *journal.Journal
	publish func(Event)
	log     zerolog.Logger

	backoff   time.Duration
	idleCycle time.Duration

	cursor uint32
}

func newWatcher(spec config.WatchSpec, factory Factory, hooks *hook.Runner, jnl *journal.Journal, publish func(Event), log zerolog.Logger) *watcher {
	return &watcher{
		spec:      spec,
		factory:   factory,
		hooks:     hooks,
		journal:   jnl,
		publish:   publish,
		log:       log.With().Str("server", spec.Server).Str("mailbox", spec.Mailbox).Logger(),
		backoff:   reconnectDelay,
		idleCycle: idleCycleLength,
	}
}

// run cycles through watch sessions until ctx ends. Each failed or
// exhausted session is followed by a fixed backoff sleep.
func (w *watcher) run(ctx context.Context) {
	for {
		if err := w.watchOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("watch session ended, reconnecting")
		}
		if ctx.Err() != nil {
			w.log.Debug().Msg("watch loop terminated")
			return
		}
		select {
		case <-time.After(w.backoff):
		case <-ctx.Done():
			w.log.Debug().Msg("watch loop terminated")
			return
		}
	}
}

// watchOnce drives one session: connect, baseline, catch up, then idle
// until the stream dies or ctx ends.
func (w *watcher) watchOnce(ctx context.Context) error {
	w.log.Debug().Msg("connecting watch session")
	sess, err := w.factory.WatchSession(ctx, w.spec.Server)
	if err != nil {
		return fmt.Errorf("connecting watch session: %w", err)
	}
	defer sess.Close()

	if err := w.establishBaseline(ctx, sess); err != nil {
		return err
	}

	// Catch-up covers the gap between baseline computation and the
	// push subscription going live.
	if err := w.reconcile(ctx, sess); err != nil {
		return fmt.Errorf("catch-up: %w", err)
	}

	w.log.Debug().Uint32("cursor", w.cursor).Msg("watching")
	for {
		if err := w.idleOnce(ctx, sess); err != nil {
			if ctx.Err() == nil {
				w.publish(Event{
					Server:      w.spec.Server,
					Mailbox:     w.spec.Mailbox,
					Kind:        KindBye,
					Description: err.Error(),
				})
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// establishBaseline selects the mailbox and sets the cursor to the
// highest known UID. A missing UIDNext falls back to STATUS; total
// failure degrades to cursor zero, which treats everything as new.
func (w *watcher) establishBaseline(ctx context.Context, sess Session) error {
	uidNext, err := sess.SelectMailbox(ctx, w.spec.Mailbox)
	if err != nil {
		return fmt.Errorf("selecting watch mailbox: %w", err)
	}

	if uidNext == 0 {
		uidNext, err = sess.StatusUIDNext(ctx, w.spec.Mailbox)
		if err != nil || uidNext == 0 {
			w.cursor = 0
			w.log.Warn().Err(err).Msg("baseline unavailable, treating all messages as new")
			return nil
		}
	}

	w.cursor = uidNext - 1
	w.log.Debug().Uint32("cursor", w.cursor).Msg("established baseline")
	return nil
}

// reconcile finds every UID above the cursor and notifies for each,
// advancing the cursor before the notification goes out so a crash
// mid-batch never replays an already-announced message.
func (w *watcher) reconcile(ctx context.Context, sess Session) error {
	uids, err := sess.UIDsAbove(ctx, w.cursor)
	if err != nil {
		return err
	}
	for _, uid := range uids {
		if uid <= w.cursor {
			continue
		}
		w.cursor = uid
		w.notify(ctx, sess, uid)
	}
	return nil
}

// notify fires the hook, records the journal entry, and publishes the
// live event for one new message. Fetch failures degrade the payload,
// never suppress the notification.
func (w *watcher) notify(ctx context.Context, sess Session, uid uint32) {
	detail, err := sess.FetchDetail(ctx, w.spec.Mailbox, uid)
	if err != nil {
		w.log.Warn().Err(err).Uint32("uid", uid).Msg("fetching new message for notification")
	}

	desc := "new message"
	payload := hook.Payload{Server: w.spec.Server, Mailbox: w.spec.Mailbox, UID: uid}
	if detail != nil {
		payload = hook.FromDetail(w.spec.Server, *detail)
		desc = summaryLine(detail)
	}

	if w.spec.HookCommand != "" && w.hooks != nil {
		w.hooks.Fire(ctx, w.spec.HookCommand, payload)
	}

	if w.journal != nil {
		err := w.journal.Record(ctx, journal.Entry{
			Server:  w.spec.Server,
			Mailbox: w.spec.Mailbox,
			UID:     uid,
			Kind:    journal.KindNewMessage,
			Summary: desc,
		})
		if err != nil {
			w.log.Warn().Err(err).Uint32("uid", uid).Msg("recording journal entry")
		}
	}

	w.publish(Event{
		Server:      w.spec.Server,
		Mailbox:     w.spec.Mailbox,
		Kind:        KindExists,
		Description: desc,
		UID:         uid,
	})
}

// idleOnce runs a single idle cycle. A nil return means the cycle
// ended normally and should be restarted; an error means the session
// is done.
func (w *watcher) idleOnce(ctx context.Context, sess Session) error {
	idle, err := sess.Idle()
	if err != nil {
		return err
	}

	cycleDone := make(chan error, 1)
	go func() { cycleDone <- idle.Wait() }()

	endCycle := func() error {
		_ = idle.Close()
		return <-cycleDone
	}

	timer := time.NewTimer(w.idleCycle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = endCycle()
			return nil

		case err := <-cycleDone:
			// The server ended the cycle on its own.
			if err != nil {
				return fmt.Errorf("idle ended: %w", err)
			}
			return errStreamEnded

		case <-timer.C:
			if err := endCycle(); err != nil {
				return fmt.Errorf("closing idle cycle: %w", err)
			}
			// Re-check on every cycle boundary in case a push was
			// dropped.
			return w.reconcile(ctx, sess)

		case u, ok := <-sess.Updates():
			if !ok {
				_ = endCycle()
				return errStreamEnded
			}
			switch u.Kind {
			case KindExists:
				if err := endCycle(); err != nil {
					return fmt.Errorf("closing idle cycle: %w", err)
				}
				return w.reconcile(ctx, sess)
			case KindExpunge:
				// Sequence numbers shift on expunge; the UID cursor
				// stays valid untouched.
				w.publish(Event{
					Server:      w.spec.Server,
					Mailbox:     w.spec.Mailbox,
					Kind:        KindExpunge,
					Description: fmt.Sprintf("expunged sequence %d", u.Num),
				})
			}
		}
	}
}

// summaryLine renders the one-line description used for journal
// entries and live events.
func summaryLine(d *mailops.MessageDetail) string {
	switch {
	case d.From != "" && d.Subject != "":
		return fmt.Sprintf("%s: %s", d.From, d.Subject)
	case d.Subject != "":
		return d.Subject
	case d.From != "":
		return fmt.Sprintf("%s: (no subject)", d.From)
	default:
		return "new message"
	}
}
