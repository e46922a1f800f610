package rpc

import (
	"context"

	"github.com/nhle/mailmux/internal/credential"
	"github.com/nhle/mailmux/internal/journal"
	"github.com/nhle/mailmux/internal/mailops"
	"github.com/nhle/mailmux/internal/watch"
)

// Operations is the mailbox-operation surface, satisfied by
// *mailops.Dispatcher.
type Operations interface {
	ListMessages(ctx context.Context, server, mailbox string, limit int) ([]mailops.MessageHeader, error)
	SearchMessages(ctx context.Context, server, mailbox string, query mailops.SearchQuery, limit int) ([]mailops.MessageHeader, error)
	FetchMessages(ctx context.Context, server, mailbox, set string) ([]mailops.MessageDetail, error)
	DownloadRaw(ctx context.Context, server, mailbox string, uid uint32) ([]byte, error)
	DownloadAttachment(ctx context.Context, server, mailbox string, uid uint32, filename string) (*mailops.AttachmentData, error)
	Move(ctx context.Context, server, mailbox, set, target string) (string, error)
	Copy(ctx context.Context, server, mailbox, set, target string) (string, error)
	Flag(ctx context.Context, server, mailbox, set, flagSpec, opName string) (string, error)
	Trash(ctx context.Context, server, mailbox, set string) (string, error)
	Archive(ctx context.Context, server, mailbox, set string) (string, error)
	Junk(ctx context.Context, server, mailbox, set string) (string, error)
	Expunge(ctx context.Context, server, mailbox string) (string, error)
	ListFolders(ctx context.Context, server string) ([]mailops.FolderInfo, error)
	CreateFolder(ctx context.Context, server, name string) (string, error)
	MailboxStatus(ctx context.Context, server, mailbox string) (*mailops.MailboxStatusInfo, error)
	Quota(ctx context.Context, server, mailbox string) (*mailops.QuotaInfo, error)
	CreateDraft(ctx context.Context, server string, draft mailops.Draft) (string, error)
	ExportMessagePDF(ctx context.Context, server, mailbox string, uid uint32, outPath string) (string, error)
}

// EventSource feeds live change events and the recorded history.
type EventSource interface {
	Subscribe(ctx context.Context) <-chan watch.Event
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// CredentialManager is the credential surface, satisfied by
// *credential.Store.
type CredentialManager interface {
	Save(server string, creds *credential.Credentials) error
	Delete(server string) error
	Describe() ([]credential.Info, error)
}

// Controller is the daemon-lifecycle surface.
type Controller interface {
	// ServerList reports every configured server with its connection
	// and watch state.
	ServerList(ctx context.Context) ([]ServerStatus, error)
	// Reload swaps in a fresh configuration generation.
	Reload(ctx context.Context) error
	// Shutdown stops the daemon. It may return before the process
	// exits.
	Shutdown()
}

// ServerStatus is one entry of the servers.list result.
type ServerStatus struct {
	Server       string `json:"server"`
	Host         string `json:"host,omitempty"`
	Username     string `json:"username,omitempty"`
	Connected    bool   `json:"connected"`
	Watching     bool   `json:"watching"`
	WatchMailbox string `json:"watch_mailbox,omitempty"`
}
