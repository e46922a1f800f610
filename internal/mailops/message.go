package mailops

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mailmux/internal/render"
)

// headerFromBuffer extracts the summary view from fetched message data.
func headerFromBuffer(buf *imapclient.FetchMessageBuffer, mailbox string) MessageHeader {
	h := MessageHeader{
		UID:     uint32(buf.UID),
		Mailbox: mailbox,
	}

	if env := buf.Envelope; env != nil {
		h.MessageID = env.MessageID
		h.Subject = env.Subject
		h.Date = env.Date
		h.From = formatSender(env.From)
		h.To = formatAddresses(env.To)
	}

	for _, flag := range buf.Flags {
		h.Flags = append(h.Flags, string(flag))
	}
	return h
}

// detailFromBuffer extracts the full view, parsing the body section when
// one was fetched.
func detailFromBuffer(buf *imapclient.FetchMessageBuffer, mailbox string, section *imap.FetchItemBodySection) MessageDetail {
	d := MessageDetail{
		MessageHeader: headerFromBuffer(buf, mailbox),
	}
	if env := buf.Envelope; env != nil {
		d.Cc = formatAddresses(env.Cc)
		d.ReplyTo = formatAddresses(env.ReplyTo)
	}

	if raw := buf.FindBodySection(section); raw != nil {
		textBody, htmlBody, attachments := parseMIMEBody(raw)
		d.TextBody = textBody
		d.HTMLBody = htmlBody
		d.Attachments = attachments
	}
	d.Body = render.MarkdownBody(d.TextBody, d.HTMLBody)
	return d
}

// formatSender renders the first address, preferring the display name.
func formatSender(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	if addrs[0].Name != "" {
		return addrs[0].Name
	}
	return addrs[0].Addr()
}

func formatAddresses(addrs []imap.Address) []string {
	var out []string
	for _, a := range addrs {
		out = append(out, a.Addr())
	}
	return out
}

// parseMIMEBody walks the MIME structure with go-message and extracts the
// plain-text body, the HTML body, and attachment metadata. A message that
// does not parse as MIME is treated as one plain-text blob.
func parseMIMEBody(raw []byte) (textBody, htmlBody string, attachments []AttachmentInfo) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if textBody == "" {
					textBody = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			attachments = append(attachments, AttachmentInfo{
				Filename: filename,
				MIMEType: contentType,
				Size:     int64(len(body)),
			})
		}
	}

	return textBody, htmlBody, attachments
}

// extractAttachment walks the MIME structure and returns the content of
// the attachment matching filename. An empty filename selects the only
// attachment, and is an error when there are several.
func extractAttachment(raw []byte, uid uint32, filename string) (*AttachmentData, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &NoAttachmentsError{UID: uid}
	}
	defer mr.Close()

	var found []*AttachmentData
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		name, _ := h.Filename()
		contentType, _, _ := h.ContentType()

		if filename != "" && !strings.EqualFold(name, filename) {
			found = append(found, &AttachmentData{Filename: name, MIMEType: contentType})
			continue
		}

		data, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		found = append(found, &AttachmentData{
			Filename: name,
			MIMEType: contentType,
			Data:     data,
		})
		if filename != "" {
			return found[len(found)-1], nil
		}
	}

	switch {
	case len(found) == 0:
		return nil, &NoAttachmentsError{UID: uid}
	case filename != "":
		names := make([]string, 0, len(found))
		for _, a := range found {
			names = append(names, a.Filename)
		}
		return nil, &AttachmentNotFoundError{UID: uid, Filename: filename, Available: names}
	case len(found) == 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, a := range found {
			names = append(names, a.Filename)
		}
		return nil, &AmbiguousAttachmentError{UID: uid, Available: names}
	}
}
