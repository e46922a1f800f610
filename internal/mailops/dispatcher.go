package mailops

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/pool"
)

// defaultSearchLimit bounds search results when the caller does not give a
// limit of its own.
const defaultSearchLimit = 50

// Acquirer is the slice of the connection pool the dispatcher needs.
type Acquirer interface {
	Acquire(ctx context.Context, server string) (*pool.Session, error)
	ForceReconnect(ctx context.Context, server string) (*pool.Session, error)
}

// Dispatcher executes mailbox operations over pooled connections. Every
// operation follows the same shape: validate inputs locally, acquire the
// server's session, run the protocol exchange, and retry exactly once over
// a fresh connection when the failure smells like a dead link rather than
// a server verdict.
type Dispatcher struct {
	cfg  *config.Config
	pool Acquirer
	log  zerolog.Logger
}

// New returns a Dispatcher bound to one configuration generation.
func New(cfg *config.Config, pool Acquirer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg, pool: pool, log: log}
}

// withSession acquires a session for the server and runs op on it,
// applying the one-shot reconnect retry.
func (d *Dispatcher) withSession(ctx context.Context, server string, op func(c *imapclient.Client) error) error {
	if _, err := d.cfg.Server(server); err != nil {
		return err
	}

	sess, err := d.pool.Acquire(ctx, server)
	if err != nil {
		return err
	}

	opErr := sess.Do(op)
	if opErr == nil || !pool.IsReconnectWorthy(opErr) {
		return opErr
	}

	d.log.Warn().Err(opErr).Str("server", server).
		Msg("connection fault mid-operation, retrying once on a fresh connection")

	sess, err = d.pool.ForceReconnect(ctx, server)
	if err != nil {
		return err
	}
	return sess.Do(op)
}

func normalizeMailbox(mailbox string) string {
	if strings.TrimSpace(mailbox) == "" {
		return "INBOX"
	}
	return mailbox
}

// ListMessages returns headers for the limit newest messages in the
// mailbox, newest first.
func (d *Dispatcher) ListMessages(ctx context.Context, server, mailbox string, limit int) ([]MessageHeader, error) {
	if limit <= 0 {
		return nil, &InvalidInputError{Field: "limit", Reason: "must be positive"}
	}
	mailbox = normalizeMailbox(mailbox)

	var headers []MessageHeader
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		hs, err := searchHeaders(c, mailbox, &imap.SearchCriteria{}, limit)
		if err != nil {
			return err
		}
		headers = hs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// SearchMessages returns headers for messages matching the query, newest
// first. An empty query matches the whole mailbox. A non-positive limit
// falls back to the default.
func (d *Dispatcher) SearchMessages(ctx context.Context, server, mailbox string, query SearchQuery, limit int) ([]MessageHeader, error) {
	criteria, err := query.Criteria()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	mailbox = normalizeMailbox(mailbox)

	var headers []MessageHeader
	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		hs, err := searchHeaders(c, mailbox, criteria, limit)
		if err != nil {
			return err
		}
		headers = hs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// FetchMessages returns full details for the messages named by the id-set,
// oldest first. List views read newest first, but fetch preserves reading
// order within a set.
func (d *Dispatcher) FetchMessages(ctx context.Context, server, mailbox, set string) ([]MessageDetail, error) {
	ids, err := ParseIDSet(set)
	if err != nil {
		return nil, err
	}
	mailbox = normalizeMailbox(mailbox)

	var details []MessageDetail
	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}

		section := &imap.FetchItemBodySection{Peek: true}
		fetchCmd := c.Fetch(ids.UIDSet(), &imap.FetchOptions{
			Envelope:    true,
			Flags:       true,
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{section},
		})
		defer fetchCmd.Close()

		details = details[:0]
		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}
			buf, err := msg.Collect()
			if err != nil {
				continue
			}
			details = append(details, detailFromBuffer(buf, mailbox, section))
		}
		if err := fetchCmd.Close(); err != nil {
			return fmt.Errorf("fetching messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortDetailsOldestFirst(details)
	return details, nil
}

// FetchMessage returns the full detail view of a single message.
func (d *Dispatcher) FetchMessage(ctx context.Context, server, mailbox string, uid uint32) (*MessageDetail, error) {
	details, err := d.FetchMessages(ctx, server, mailbox, strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, &MessageNotFoundError{UID: uid, Mailbox: normalizeMailbox(mailbox)}
	}
	return &details[0], nil
}

// DownloadRaw returns the raw RFC 822 bytes of a message.
func (d *Dispatcher) DownloadRaw(ctx context.Context, server, mailbox string, uid uint32) ([]byte, error) {
	mailbox = normalizeMailbox(mailbox)

	var raw []byte
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		data, err := fetchRawMessage(c, mailbox, uid)
		if err != nil {
			return err
		}
		raw = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// DownloadAttachment returns the decoded content of one attachment. An
// empty filename selects the message's only attachment.
func (d *Dispatcher) DownloadAttachment(ctx context.Context, server, mailbox string, uid uint32, filename string) (*AttachmentData, error) {
	mailbox = normalizeMailbox(mailbox)

	var raw []byte
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		data, err := fetchRawMessage(c, mailbox, uid)
		if err != nil {
			return err
		}
		raw = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return extractAttachment(raw, uid, filename)
}

// searchHeaders runs select + UID search + header fetch for the limit
// newest matches and returns them newest first.
func searchHeaders(c *imapclient.Client, mailbox string, criteria *imap.SearchCriteria, limit int) ([]MessageHeader, error) {
	if _, err := c.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	searchData, err := c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", mailbox, err)
	}

	uids := latestUIDs(searchData.AllUIDs(), limit)
	if len(uids) == 0 {
		return nil, nil
	}

	fetchCmd := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var headers []MessageHeader
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		headers = append(headers, headerFromBuffer(buf, mailbox))
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching headers: %w", err)
	}

	sortHeadersNewestFirst(headers)
	return headers, nil
}

// FetchOne downloads a single message from the currently selected
// mailbox and returns its full detail view. The mailbox name is used
// for labeling only; callers must have selected it already.
func FetchOne(c *imapclient.Client, mailbox string, uid uint32) (*MessageDetail, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, &MessageNotFoundError{UID: uid, Mailbox: mailbox}
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", uid, err)
	}

	detail := detailFromBuffer(buf, mailbox, section)
	return &detail, nil
}

// fetchRawMessage fetches the unparsed message body for one UID.
func fetchRawMessage(c *imapclient.Client, mailbox string, uid uint32) ([]byte, error) {
	if _, err := c.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, &MessageNotFoundError{UID: uid, Mailbox: mailbox}
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %d: %w", uid, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, &MessageNotFoundError{UID: uid, Mailbox: mailbox}
	}
	return raw, nil
}
