package mailops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// ListFolders returns every mailbox on the server, sorted by name.
func (d *Dispatcher) ListFolders(ctx context.Context, server string) ([]FolderInfo, error) {
	var folders []FolderInfo
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		boxes, err := c.List("", "*", nil).Collect()
		if err != nil {
			return fmt.Errorf("listing folders: %w", err)
		}

		folders = folders[:0]
		for _, mb := range boxes {
			info := FolderInfo{Name: mb.Mailbox}
			if mb.Delim != 0 {
				info.Delim = string(mb.Delim)
			}
			for _, attr := range mb.Attrs {
				info.Attrs = append(info.Attrs, string(attr))
			}
			folders = append(folders, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

// CreateFolder creates a mailbox.
func (d *Dispatcher) CreateFolder(ctx context.Context, server, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &InvalidInputError{Field: "folder", Reason: "must not be empty"}
	}

	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		if err := c.Create(name, nil).Wait(); err != nil {
			return fmt.Errorf("creating folder %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created folder %s", name), nil
}

// MailboxStatus returns a STATUS snapshot of the mailbox.
func (d *Dispatcher) MailboxStatus(ctx context.Context, server, mailbox string) (*MailboxStatusInfo, error) {
	mailbox = normalizeMailbox(mailbox)

	var info *MailboxStatusInfo
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		data, err := c.Status(mailbox, &imap.StatusOptions{
			NumMessages: true,
			NumUnseen:   true,
			UIDNext:     true,
			UIDValidity: true,
		}).Wait()
		if err != nil {
			return fmt.Errorf("statusing %s: %w", mailbox, err)
		}

		info = &MailboxStatusInfo{
			Mailbox:     data.Mailbox,
			UIDNext:     uint32(data.UIDNext),
			UIDValidity: data.UIDValidity,
		}
		if data.NumMessages != nil {
			info.Messages = *data.NumMessages
		}
		if data.NumUnseen != nil {
			info.Unseen = *data.NumUnseen
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Quota returns the quota of the mailbox's first quota root. Servers
// without the QUOTA extension yield a protocol error, which passes
// through untouched.
func (d *Dispatcher) Quota(ctx context.Context, server, mailbox string) (*QuotaInfo, error) {
	mailbox = normalizeMailbox(mailbox)

	var info *QuotaInfo
	err := d.withSession(ctx, server, func(c *imapclient.Client) error {
		quotas, err := c.GetQuotaRoot(mailbox).Wait()
		if err != nil {
			return fmt.Errorf("fetching quota for %s: %w", mailbox, err)
		}
		if len(quotas) == 0 {
			info = &QuotaInfo{}
			return nil
		}

		q := quotas[0]
		info = &QuotaInfo{Root: q.Root}

		names := make([]string, 0, len(q.Resources))
		for name := range q.Resources {
			names = append(names, string(name))
		}
		sort.Strings(names)
		for _, name := range names {
			res := q.Resources[imap.QuotaResourceType(name)]
			info.Resources = append(info.Resources, QuotaResource{
				Name:  name,
				Usage: res.Usage,
				Limit: res.Limit,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
