package watch

import (
	"context"

	"github.com/nhle/mailmux/internal/mailops"
)

// Update is a raw server push received while idling. Num carries the
// message count for exists updates and the sequence number for expunge
// updates.
type Update struct {
	Kind Kind
	Num  uint32
}

// Session is the protocol surface one watcher drives. Production
// sessions wrap a dedicated IMAP connection; tests substitute fakes.
type Session interface {
	// SelectMailbox opens the mailbox and returns its next UID, or zero
	// when the server did not report one.
	SelectMailbox(ctx context.Context, mailbox string) (uint32, error)

	// StatusUIDNext reads the mailbox's next UID via STATUS.
	StatusUIDNext(ctx context.Context, mailbox string) (uint32, error)

	// UIDsAbove returns all UIDs strictly greater than cursor in the
	// selected mailbox, ascending.
	UIDsAbove(ctx context.Context, cursor uint32) ([]uint32, error)

	// FetchDetail downloads one message from the selected mailbox.
	FetchDetail(ctx context.Context, mailbox string, uid uint32) (*mailops.MessageDetail, error)

	// Updates is the stream of server pushes. It is never closed by
	// production sessions; a closed channel means the stream ended.
	Updates() <-chan Update

	// Idle starts one idle cycle on the selected mailbox.
	Idle() (IdleCycle, error)

	Close() error
}

// IdleCycle is a single in-flight IDLE command.
type IdleCycle interface {
	// Close ends the cycle so other commands can run.
	Close() error
	// Wait blocks until the cycle ends, returning an error when the
	// connection died underneath it.
	Wait() error
}

// Factory dials dedicated watch sessions, one per watcher.
type Factory interface {
	WatchSession(ctx context.Context, server string) (Session, error)
}
