package rpc

import (
	"context"
	"encoding/json"

	"github.com/nhle/mailmux/internal/credential"
	"github.com/nhle/mailmux/internal/mailops"
)

// targetParams addresses one mailbox on one server. Most methods start
// from this shape.
type targetParams struct {
	Server  string `json:"server"`
	Mailbox string `json:"mailbox"`
}

type listParams struct {
	targetParams
	Limit int `json:"limit"`
}

type searchParams struct {
	targetParams
	Query mailops.SearchQuery `json:"query"`
	Limit int                 `json:"limit"`
}

type idSetParams struct {
	targetParams
	IDs string `json:"ids"`
}

type moveParams struct {
	idSetParams
	Target string `json:"target"`
}

type flagParams struct {
	idSetParams
	Flags     string `json:"flags"`
	Operation string `json:"operation"`
}

type uidParams struct {
	targetParams
	UID uint32 `json:"uid"`
}

type attachmentParams struct {
	uidParams
	Filename string `json:"filename"`
}

type exportParams struct {
	uidParams
	OutPath string `json:"out_path"`
}

type folderParams struct {
	Server string `json:"server"`
	Name   string `json:"name"`
}

type draftParams struct {
	Server string        `json:"server"`
	Draft  mailops.Draft `json:"draft"`
}

type recentParams struct {
	Limit int `json:"limit"`
}

type credentialParams struct {
	Server   string `json:"server"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// confirmation is the uniform result of mutating methods.
type confirmation struct {
	Status string `json:"status"`
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "method requires params"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "decoding params: " + err.Error()}
	}
	return nil
}

// call dispatches one request to its handler. Errors returned here are
// translated to wire errors by classifyError.
func (s *Server) call(ctx context.Context, state *connState, req Request) (interface{}, error) {
	switch req.Method {
	case "daemon.ping":
		return confirmation{Status: "pong"}, nil

	case "servers.list":
		return s.ctrl.ServerList(ctx)

	case "messages.list":
		var p listParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.ListMessages(ctx, p.Server, p.Mailbox, p.Limit)

	case "messages.search":
		var p searchParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.SearchMessages(ctx, p.Server, p.Mailbox, p.Query, p.Limit)

	case "messages.fetch":
		var p idSetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.FetchMessages(ctx, p.Server, p.Mailbox, p.IDs)

	case "messages.move":
		var p moveParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Move(ctx, p.Server, p.Mailbox, p.IDs, p.Target))

	case "messages.copy":
		var p moveParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Copy(ctx, p.Server, p.Mailbox, p.IDs, p.Target))

	case "messages.flag":
		var p flagParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Flag(ctx, p.Server, p.Mailbox, p.IDs, p.Flags, p.Operation))

	case "messages.trash":
		var p idSetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Trash(ctx, p.Server, p.Mailbox, p.IDs))

	case "messages.archive":
		var p idSetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Archive(ctx, p.Server, p.Mailbox, p.IDs))

	case "messages.junk":
		var p idSetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Junk(ctx, p.Server, p.Mailbox, p.IDs))

	case "messages.raw":
		var p uidParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		raw, err := s.ops.DownloadRaw(ctx, p.Server, p.Mailbox, p.UID)
		if err != nil {
			return nil, err
		}
		// []byte marshals as base64.
		return map[string]interface{}{"uid": p.UID, "data": raw}, nil

	case "messages.exportpdf":
		var p exportParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.ExportMessagePDF(ctx, p.Server, p.Mailbox, p.UID, p.OutPath))

	case "attachments.download":
		var p attachmentParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.DownloadAttachment(ctx, p.Server, p.Mailbox, p.UID, p.Filename)

	case "folders.list":
		var p folderParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.ListFolders(ctx, p.Server)

	case "folders.create":
		var p folderParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.CreateFolder(ctx, p.Server, p.Name))

	case "mailbox.status":
		var p targetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.MailboxStatus(ctx, p.Server, p.Mailbox)

	case "mailbox.expunge":
		var p targetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.Expunge(ctx, p.Server, p.Mailbox))

	case "mailbox.quota":
		var p targetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.ops.Quota(ctx, p.Server, p.Mailbox)

	case "drafts.create":
		var p draftParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.confirm(s.ops.CreateDraft(ctx, p.Server, p.Draft))

	case "events.subscribe":
		return s.subscribe(ctx, state)

	case "events.unsubscribe":
		return s.unsubscribe(state)

	case "events.recent":
		var p recentParams
		if len(req.Params) > 0 {
			if err := decode(req.Params, &p); err != nil {
				return nil, err
			}
		}
		if p.Limit <= 0 {
			p.Limit = 50
		}
		return s.events.Recent(ctx, p.Limit)

	case "credentials.store":
		var p credentialParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		err := s.creds.Save(p.Server, &credential.Credentials{
			Host:     p.Host,
			Port:     p.Port,
			Username: p.Username,
			Password: p.Password,
		})
		if err != nil {
			return nil, err
		}
		return confirmation{Status: "stored credentials for " + p.Server}, nil

	case "credentials.delete":
		var p credentialParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		if err := s.creds.Delete(p.Server); err != nil {
			return nil, err
		}
		return confirmation{Status: "deleted credentials for " + p.Server}, nil

	case "credentials.list":
		return s.creds.Describe()

	case "daemon.reload":
		if err := s.ctrl.Reload(ctx); err != nil {
			return nil, err
		}
		return confirmation{Status: "configuration reloaded"}, nil

	case "daemon.shutdown":
		s.ctrl.Shutdown()
		return confirmation{Status: "shutting down"}, nil

	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "unknown method " + req.Method}
	}
}

// confirm wraps the dispatcher's confirmation string into a result
// object, passing failures through unchanged.
func (s *Server) confirm(status string, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return confirmation{Status: status}, nil
}

// subscribe starts streaming change events to this connection as
// events.change notifications. One subscription per connection.
func (s *Server) subscribe(ctx context.Context, state *connState) (interface{}, error) {
	if state.subscribed {
		return nil, &Error{Code: CodeInvalidRequest, Message: "connection is already subscribed"}
	}

	subCtx, cancel := context.WithCancel(ctx)
	state.subscribed = true
	state.subCancel = cancel

	ch := s.events.Subscribe(subCtx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ev := range ch {
			note := Notification{JSONRPC: jsonrpcVersion, Method: eventMethod, Params: ev}
			if err := state.writer.send(note); err != nil {
				cancel()
				return
			}
		}
	}()

	return confirmation{Status: "subscribed"}, nil
}

// unsubscribe ends this connection's event stream, if any.
func (s *Server) unsubscribe(state *connState) (interface{}, error) {
	if !state.subscribed {
		return nil, &Error{Code: CodeInvalidRequest, Message: "connection is not subscribed"}
	}
	state.subCancel()
	state.subscribed = false
	state.subCancel = nil
	return confirmation{Status: "unsubscribed"}, nil
}
