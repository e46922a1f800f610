package mailops

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/nhle/mailmux/internal/pdfexport"
)

// ExportMessagePDF renders a message to a PDF file on the daemon's host.
// HTML bodies render as-is; plain-text messages get a minimal HTML frame.
func (d *Dispatcher) ExportMessagePDF(ctx context.Context, server, mailbox string, uid uint32, outPath string) (string, error) {
	if strings.TrimSpace(outPath) == "" {
		return "", &InvalidInputError{Field: "out_path", Reason: "must name the output file"}
	}

	detail, err := d.FetchMessage(ctx, server, mailbox, uid)
	if err != nil {
		return "", err
	}

	doc := detail.HTMLBody
	if doc == "" {
		doc = plainTextDocument(detail)
	}

	if err := pdfexport.Export(ctx, doc, outPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("Exported message %d from %s to %s", uid, detail.Mailbox, outPath), nil
}

func plainTextDocument(detail *MessageDetail) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body>")
	fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(detail.Subject))
	fmt.Fprintf(&b, "<p><b>From:</b> %s<br><b>Date:</b> %s</p>",
		html.EscapeString(detail.From), detail.Date.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "<pre>%s</pre>", html.EscapeString(detail.TextBody))
	b.WriteString("</body></html>")
	return b.String()
}
