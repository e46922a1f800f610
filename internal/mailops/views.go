package mailops

import "time"

// MessageHeader is the summary view returned by list and search
// operations.
type MessageHeader struct {
	UID       uint32    `json:"uid"`
	Mailbox   string    `json:"mailbox"`
	From      string    `json:"from"`
	To        []string  `json:"to,omitempty"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Flags     []string  `json:"flags,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
}

// MessageDetail is the full view returned by fetch operations: header
// fields plus bodies and attachment metadata.
type MessageDetail struct {
	MessageHeader
	Cc          []string         `json:"cc,omitempty"`
	ReplyTo     []string         `json:"reply_to,omitempty"`
	Body        string           `json:"body"`
	TextBody    string           `json:"text_body,omitempty"`
	HTMLBody    string           `json:"html_body,omitempty"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
}

// AttachmentInfo describes one attachment without its content.
type AttachmentInfo struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// AttachmentData is a downloaded attachment.
type AttachmentData struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// FolderInfo describes one mailbox from a LIST response.
type FolderInfo struct {
	Name  string   `json:"name"`
	Delim string   `json:"delim,omitempty"`
	Attrs []string `json:"attrs,omitempty"`
}

// MailboxStatusInfo is a STATUS snapshot of one mailbox.
type MailboxStatusInfo struct {
	Mailbox     string `json:"mailbox"`
	Messages    uint32 `json:"messages"`
	Unseen      uint32 `json:"unseen"`
	UIDNext     uint32 `json:"uid_next"`
	UIDValidity uint32 `json:"uid_validity"`
}

// QuotaResource is one resource line of a quota root, usage and limit in
// the server's units.
type QuotaResource struct {
	Name  string `json:"name"`
	Usage int64  `json:"usage"`
	Limit int64  `json:"limit"`
}

// QuotaInfo is the quota for one root.
type QuotaInfo struct {
	Root      string          `json:"root"`
	Resources []QuotaResource `json:"resources"`
}

// Draft describes a message to be composed and stored in a drafts
// mailbox. AttachmentPaths name local files to attach.
type Draft struct {
	Mailbox         string   `json:"mailbox,omitempty"`
	From            string   `json:"from"`
	To              []string `json:"to"`
	Cc              []string `json:"cc,omitempty"`
	Bcc             []string `json:"bcc,omitempty"`
	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
	AttachmentPaths []string `json:"attachment_paths,omitempty"`
}
