package mailops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// CreateDraft composes a message and appends it to the drafts mailbox
// with the draft and seen flags set. An empty Draft.Mailbox falls back to
// the server's drafts folder.
func (d *Dispatcher) CreateDraft(ctx context.Context, server string, draft Draft) (string, error) {
	if len(draft.To) == 0 && draft.Subject == "" && draft.Body == "" {
		return "", &InvalidInputError{Field: "draft", Reason: "needs at least a recipient, subject, or body"}
	}

	raw, err := composeDraft(draft)
	if err != nil {
		return "", err
	}

	var target string
	err = d.withSession(ctx, server, func(c *imapclient.Client) error {
		target = draft.Mailbox
		if target == "" {
			t, err := findSpecialFolder(c, draftsFolder)
			if err != nil {
				return err
			}
			target = t
		}

		appendCmd := c.Append(target, int64(len(raw)), &imap.AppendOptions{
			Flags: []imap.Flag{imap.FlagDraft, imap.FlagSeen},
			Time:  time.Now(),
		})
		if _, err := appendCmd.Write(raw); err != nil {
			_ = appendCmd.Close()
			return fmt.Errorf("writing draft: %w", err)
		}
		if err := appendCmd.Close(); err != nil {
			return fmt.Errorf("closing draft append: %w", err)
		}
		if _, err := appendCmd.Wait(); err != nil {
			return fmt.Errorf("appending draft to %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Draft %q saved to %s", draft.Subject, target), nil
}

// composeDraft renders the draft as an RFC 822 message with a plain-text
// body and file attachments.
func composeDraft(draft Draft) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(draft.Subject)
	h.Set("Message-Id", fmt.Sprintf("<%s@mailmux>", uuid.NewString()))
	if draft.From != "" {
		h.SetAddressList("From", toAddressList([]string{draft.From}))
	}
	if len(draft.To) > 0 {
		h.SetAddressList("To", toAddressList(draft.To))
	}
	if len(draft.Cc) > 0 {
		h.SetAddressList("Cc", toAddressList(draft.Cc))
	}
	if len(draft.Bcc) > 0 {
		h.SetAddressList("Bcc", toAddressList(draft.Bcc))
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating draft writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating draft body: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := tw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating draft text part: %w", err)
	}
	if _, err := io.WriteString(pw, draft.Body); err != nil {
		return nil, fmt.Errorf("writing draft body: %w", err)
	}
	_ = pw.Close()
	_ = tw.Close()

	for _, path := range draft.AttachmentPaths {
		if err := attachFile(mw, path); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finishing draft: %w", err)
	}
	return buf.Bytes(), nil
}

func attachFile(mw *mail.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	var ah mail.AttachmentHeader
	ah.SetFilename(filepath.Base(path))
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ah.SetContentType(contentType, nil)

	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("creating attachment part: %w", err)
	}
	defer aw.Close()

	if _, err := io.Copy(aw, f); err != nil {
		return fmt.Errorf("writing attachment %s: %w", path, err)
	}
	return nil
}

func toAddressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}
