package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailmux/internal/mailops"
	"github.com/nhle/mailmux/internal/pool"
)

const (
	// updateBuffer bounds pending server pushes per session. Overflow
	// drops are safe: any exists push triggers the same above-cursor
	// search, which re-checks everything.
	updateBuffer = 32

	closeTimeout = 5 * time.Second
)

// IMAPFactory dials dedicated watch connections through the shared
// dialer, separate from the interactive pool's sessions.
type IMAPFactory struct {
	dialer *pool.Dialer
}

// NewIMAPFactory returns a factory dialing through dialer.
func NewIMAPFactory(dialer *pool.Dialer) *IMAPFactory {
	return &IMAPFactory{dialer: dialer}
}

// WatchSession dials an authenticated connection whose unilateral data
// feeds the session's update channel.
func (f *IMAPFactory) WatchSession(ctx context.Context, server string) (Session, error) {
	s := &imapSession{updates: make(chan Update, updateBuffer)}

	handler := &imapclient.UnilateralDataHandler{
		Mailbox: func(data *imapclient.UnilateralDataMailbox) {
			if data.NumMessages != nil {
				s.push(Update{Kind: KindExists, Num: *data.NumMessages})
			}
		},
		Expunge: func(seqNum uint32) {
			s.push(Update{Kind: KindExpunge, Num: seqNum})
		},
	}

	client, err := f.dialer.Dial(ctx, server, handler)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

// imapSession drives one dedicated watch connection.
type imapSession struct {
	client  *imapclient.Client
	updates chan Update
}

// push hands an update to the watcher without ever blocking the
// client's read loop.
func (s *imapSession) push(u Update) {
	select {
	case s.updates <- u:
	default:
	}
}

func (s *imapSession) SelectMailbox(ctx context.Context, mailbox string) (uint32, error) {
	data, err := s.client.Select(mailbox, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting %s: %w", mailbox, err)
	}
	return uint32(data.UIDNext), nil
}

func (s *imapSession) StatusUIDNext(ctx context.Context, mailbox string) (uint32, error) {
	data, err := s.client.Status(mailbox, &imap.StatusOptions{UIDNext: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("statting %s: %w", mailbox, err)
	}
	return uint32(data.UIDNext), nil
}

func (s *imapSession) UIDsAbove(ctx context.Context, cursor uint32) ([]uint32, error) {
	var set imap.UIDSet
	set.AddRange(imap.UID(cursor+1), 0)

	data, err := s.client.UIDSearch(&imap.SearchCriteria{UID: []imap.UIDSet{set}}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching above uid %d: %w", cursor, err)
	}

	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (s *imapSession) FetchDetail(ctx context.Context, mailbox string, uid uint32) (*mailops.MessageDetail, error) {
	return mailops.FetchOne(s.client, mailbox, uid)
}

func (s *imapSession) Updates() <-chan Update {
	return s.updates
}

func (s *imapSession) Idle() (IdleCycle, error) {
	cmd, err := s.client.Idle()
	if err != nil {
		return nil, fmt.Errorf("starting idle: %w", err)
	}
	return cmd, nil
}

// Close logs out best-effort, then tears the connection down.
func (s *imapSession) Close() error {
	done := make(chan struct{})
	go func() {
		_ = s.client.Logout().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
	}
	return s.client.Close()
}
