package mailops

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// specialFolder describes a special-use mailbox role: the SPECIAL-USE
// attribute to look for and the conventional names to fall back on.
type specialFolder struct {
	role       string
	attr       imap.MailboxAttr
	candidates []string
	flag       imap.Flag
}

var (
	trashFolder = specialFolder{
		role:       "trash",
		attr:       imap.MailboxAttrTrash,
		candidates: []string{"Trash", "Deleted Items", "INBOX.Trash", "[Gmail]/Trash"},
	}
	archiveFolder = specialFolder{
		role:       "archive",
		attr:       imap.MailboxAttrArchive,
		candidates: []string{"Archive", "Archives", "INBOX.Archive", "[Gmail]/All Mail"},
	}
	junkFolder = specialFolder{
		role:       "junk",
		attr:       imap.MailboxAttrJunk,
		candidates: []string{"Junk", "Spam", "INBOX.Junk", "INBOX.Spam", "[Gmail]/Spam"},
		flag:       imap.FlagJunk,
	}
	draftsFolder = specialFolder{
		role:       "drafts",
		attr:       imap.MailboxAttrDrafts,
		candidates: []string{"Drafts", "INBOX.Drafts", "[Gmail]/Drafts"},
	}
)

// Move moves the messages in the id-set to the target mailbox.
func (d *Dispatcher) Move(ctx context.Context, server, mailbox, set, target string) (string, error) {
	ids, err := ParseIDSet(set)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(target) == "" {
		return "", &InvalidInputError{Field: "target", Reason: "must name a mailbox"}
	}
	mailbox = normalizeMailbox(mailbox)

	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}
		if _, err := c.Move(ids.UIDSet(), target).Wait(); err != nil {
			return fmt.Errorf("moving to %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %d message(s) (set %s) from %s to %s", ids.Count(), ids, mailbox, target), nil
}

// Copy copies the messages in the id-set to the target mailbox.
func (d *Dispatcher) Copy(ctx context.Context, server, mailbox, set, target string) (string, error) {
	ids, err := ParseIDSet(set)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(target) == "" {
		return "", &InvalidInputError{Field: "target", Reason: "must name a mailbox"}
	}
	mailbox = normalizeMailbox(mailbox)

	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}
		if _, err := c.Copy(ids.UIDSet(), target).Wait(); err != nil {
			return fmt.Errorf("copying to %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Copied %d message(s) (set %s) from %s to %s", ids.Count(), ids, mailbox, target), nil
}

// Flag adds or removes flags on the messages in the id-set with a single
// STORE command.
func (d *Dispatcher) Flag(ctx context.Context, server, mailbox, set, flagSpec, opName string) (string, error) {
	ids, err := ParseIDSet(set)
	if err != nil {
		return "", err
	}
	flags, err := ParseFlags(flagSpec)
	if err != nil {
		return "", err
	}
	op, err := ParseFlagOp(opName)
	if err != nil {
		return "", err
	}
	mailbox = normalizeMailbox(mailbox)

	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}
		storeCmd := c.Store(ids.UIDSet(), &imap.StoreFlags{
			Op:     op.storeOp(),
			Silent: true,
			Flags:  flags,
		}, nil)
		if err := storeCmd.Close(); err != nil {
			return fmt.Errorf("storing flags: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return flagConfirmation(op, flags, ids, mailbox), nil
}

func flagConfirmation(op FlagOp, flags []imap.Flag, ids *IDSet, mailbox string) string {
	verb := "Added"
	if op == FlagOpRemove {
		verb = "Removed"
	}
	return fmt.Sprintf("%s %s on %d message(s) (set %s) in %s",
		verb, formatFlags(flags), ids.Count(), ids, mailbox)
}

// Trash moves the messages to the server's trash folder.
func (d *Dispatcher) Trash(ctx context.Context, server, mailbox, set string) (string, error) {
	return d.moveToSpecial(ctx, server, mailbox, set, trashFolder)
}

// Archive moves the messages to the server's archive folder.
func (d *Dispatcher) Archive(ctx context.Context, server, mailbox, set string) (string, error) {
	return d.moveToSpecial(ctx, server, mailbox, set, archiveFolder)
}

// Junk flags the messages as junk and moves them to the junk folder.
func (d *Dispatcher) Junk(ctx context.Context, server, mailbox, set string) (string, error) {
	return d.moveToSpecial(ctx, server, mailbox, set, junkFolder)
}

func (d *Dispatcher) moveToSpecial(ctx context.Context, server, mailbox, set string, folder specialFolder) (string, error) {
	ids, err := ParseIDSet(set)
	if err != nil {
		return "", err
	}
	mailbox = normalizeMailbox(mailbox)

	var target string
	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		t, err := findSpecialFolder(c, folder)
		if err != nil {
			return err
		}
		target = t

		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}
		if folder.flag != "" {
			storeCmd := c.Store(ids.UIDSet(), &imap.StoreFlags{
				Op:     imap.StoreFlagsAdd,
				Silent: true,
				Flags:  []imap.Flag{folder.flag},
			}, nil)
			if err := storeCmd.Close(); err != nil {
				return fmt.Errorf("flagging as %s: %w", folder.role, err)
			}
		}
		if _, err := c.Move(ids.UIDSet(), target).Wait(); err != nil {
			return fmt.Errorf("moving to %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %d message(s) (set %s) from %s to %s", ids.Count(), ids, mailbox, target), nil
}

// Expunge permanently removes deleted messages from the mailbox.
func (d *Dispatcher) Expunge(ctx context.Context, server, mailbox string) (string, error) {
	mailbox = normalizeMailbox(mailbox)

	var count int
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		if _, err := c.Select(mailbox, nil).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", mailbox, err)
		}
		seqNums, err := c.Expunge().Collect()
		if err != nil {
			return fmt.Errorf("expunging %s: %w", mailbox, err)
		}
		count = len(seqNums)
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Expunged %d message(s) from %s", count, mailbox), nil
}

// findSpecialFolder locates a special-use mailbox: first by SPECIAL-USE
// attribute, then by conventional names.
func findSpecialFolder(c *imapclient.Client, folder specialFolder) (string, error) {
	boxes, err := c.List("", "*", nil).Collect()
	if err != nil {
		return "", fmt.Errorf("listing folders: %w", err)
	}

	for _, mb := range boxes {
		for _, attr := range mb.Attrs {
			if attr == folder.attr {
				return mb.Mailbox, nil
			}
		}
	}

	existing := make(map[string]string, len(boxes))
	for _, mb := range boxes {
		existing[strings.ToLower(mb.Mailbox)] = mb.Mailbox
	}
	for _, cand := range folder.candidates {
		if name, ok := existing[strings.ToLower(cand)]; ok {
			return name, nil
		}
	}

	return "", &FolderNotFoundError{Role: folder.role, Tried: folder.candidates}
}

func formatFlags(flags []imap.Flag) string {
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
