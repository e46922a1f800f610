package daemon

import (
	"context"

	"github.com/nhle/mailmux/internal/mailops"
)

// The daemon forwards every mailbox operation to the live generation's
// dispatcher, so RPC handlers always run against the current
// configuration even right after a reload.

func (d *Daemon) ListMessages(ctx context.Context, server, mailbox string, limit int) ([]mailops.MessageHeader, error) {
	return d.current().ops.ListMessages(ctx, server, mailbox, limit)
}

func (d *Daemon) SearchMessages(ctx context.Context, server, mailbox string, query mailops.SearchQuery, limit int) ([]mailops.MessageHeader, error) {
	return d.current().ops.SearchMessages(ctx, server, mailbox, query, limit)
}

func (d *Daemon) FetchMessages(ctx context.Context, server, mailbox, set string) ([]mailops.MessageDetail, error) {
	return d.current().ops.FetchMessages(ctx, server, mailbox, set)
}

func (d *Daemon) DownloadRaw(ctx context.Context, server, mailbox string, uid uint32) ([]byte, error) {
	return d.current().ops.DownloadRaw(ctx, server, mailbox, uid)
}

func (d *Daemon) DownloadAttachment(ctx context.Context, server, mailbox string, uid uint32, filename string) (*mailops.AttachmentData, error) {
	return d.current().ops.DownloadAttachment(ctx, server, mailbox, uid, filename)
}

func (d *Daemon) Move(ctx context.Context, server, mailbox, set, target string) (string, error) {
	return d.current().ops.Move(ctx, server, mailbox, set, target)
}

func (d *Daemon) Copy(ctx context.Context, server, mailbox, set, target string) (string, error) {
	return d.current().ops.Copy(ctx, server, mailbox, set, target)
}

func (d *Daemon) Flag(ctx context.Context, server, mailbox, set, flagSpec, opName string) (string, error) {
	return d.current().ops.Flag(ctx, server, mailbox, set, flagSpec, opName)
}

func (d *Daemon) Trash(ctx context.Context, server, mailbox, set string) (string, error) {
	return d.current().ops.Trash(ctx, server, mailbox, set)
}

func (d *Daemon) Archive(ctx context.Context, server, mailbox, set string) (string, error) {
	return d.current().ops.Archive(ctx, server, mailbox, set)
}

func (d *Daemon) Junk(ctx context.Context, server, mailbox, set string) (string, error) {
	return d.current().ops.Junk(ctx, server, mailbox, set)
}

func (d *Daemon) Expunge(ctx context.Context, server, mailbox string) (string, error) {
	return d.current().ops.Expunge(ctx, server, mailbox)
}

func (d *Daemon) ListFolders(ctx context.Context, server string) ([]mailops.FolderInfo, error) {
	return d.current().ops.ListFolders(ctx, server)
}

func (d *Daemon) CreateFolder(ctx context.Context, server, name string) (string, error) {
	return d.current().ops.CreateFolder(ctx, server, name)
}

func (d *Daemon) MailboxStatus(ctx context.Context, server, mailbox string) (*mailops.MailboxStatusInfo, error) {
	return d.current().ops.MailboxStatus(ctx, server, mailbox)
}

func (d *Daemon) Quota(ctx context.Context, server, mailbox string) (*mailops.QuotaInfo, error) {
	return d.current().ops.Quota(ctx, server, mailbox)
}

func (d *Daemon) CreateDraft(ctx context.Context, server string, draft mailops.Draft) (string, error) {
	return d.current().ops.CreateDraft(ctx, server, draft)
}

func (d *Daemon) ExportMessagePDF(ctx context.Context, server, mailbox string, uid uint32, outPath string) (string, error) {
	return d.current().ops.ExportMessagePDF(ctx, server, mailbox, uid, outPath)
}
