// Package hook runs user-configured shell commands in response to new
// mail. The payload reaches the command two ways at once: as a single
// JSON line on stdin and as MAILMUX_* environment variables, so both
// jq-style scripts and plain shell scripts work without argument
// parsing.
package hook

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/mailops"
)

// runTimeout bounds a single hook invocation.
const runTimeout = 30 * time.Second

// Payload is the message metadata handed to a hook command.
type Payload struct {
	Server      string                   `json:"server"`
	Mailbox     string                   `json:"mailbox"`
	UID         uint32                   `json:"uid"`
	From        string                   `json:"from,omitempty"`
	Subject     string                   `json:"subject,omitempty"`
	Date        time.Time                `json:"date"`
	To          []string                 `json:"to,omitempty"`
	ReplyTo     []string                 `json:"reply_to,omitempty"`
	Cc          []string                 `json:"cc,omitempty"`
	Headers     map[string]string        `json:"headers,omitempty"`
	Body        string                   `json:"body,omitempty"`
	Attachments []mailops.AttachmentInfo `json:"attachments,omitempty"`
}

// FromDetail builds the payload for a newly detected message.
func FromDetail(server string, d mailops.MessageDetail) Payload {
	headers := map[string]string{
		"From":    d.From,
		"Subject": d.Subject,
	}
	if !d.Date.IsZero() {
		headers["Date"] = d.Date.Format(time.RFC1123Z)
	}
	if len(d.To) > 0 {
		headers["To"] = strings.Join(d.To, ", ")
	}
	if len(d.Cc) > 0 {
		headers["Cc"] = strings.Join(d.Cc, ", ")
	}
	if len(d.ReplyTo) > 0 {
		headers["Reply-To"] = strings.Join(d.ReplyTo, ", ")
	}
	if d.MessageID != "" {
		headers["Message-Id"] = d.MessageID
	}
	return Payload{
		Server:      server,
		Mailbox:     d.Mailbox,
		UID:         d.UID,
		From:        d.From,
		Subject:     d.Subject,
		Date:        d.Date,
		To:          d.To,
		ReplyTo:     d.ReplyTo,
		Cc:          d.Cc,
		Headers:     headers,
		Body:        d.Body,
		Attachments: d.Attachments,
	}
}

// Runner executes hook commands without blocking its callers.
type Runner struct {
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner returns a runner that logs command outcomes to log.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log, timeout: runTimeout}
}

// Fire launches command via "sh -c" in the background and returns
// immediately. The run inherits ctx and is additionally bounded by the
// runner's timeout; completion and failure are logged, never returned.
func (r *Runner) Fire(ctx context.Context, command string, payload Payload) {
	if strings.TrimSpace(command) == "" {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, command, payload)
	}()
}

// Wait blocks until every in-flight hook command has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, command string, payload Payload) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	line, err := json.Marshal(payload)
	if err != nil {
		r.log.Error().Err(err).
			Str("server", payload.Server).
			Uint32("uid", payload.UID).
			Msg("hook payload encoding failed")
		return
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Stdin = strings.NewReader(string(line) + "\n")
	cmd.Env = append(os.Environ(), payloadEnv(payload)...)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.log.Error().Err(err).
			Str("server", payload.Server).
			Str("mailbox", payload.Mailbox).
			Uint32("uid", payload.UID).
			Str("output", strings.TrimSpace(string(output))).
			Msg("hook command failed")
		return
	}
	r.log.Debug().
		Str("server", payload.Server).
		Str("mailbox", payload.Mailbox).
		Uint32("uid", payload.UID).
		Dur("elapsed", time.Since(start)).
		Msg("hook command completed")
}

// payloadEnv renders the scalar payload fields as MAILMUX_* variables.
func payloadEnv(p Payload) []string {
	env := []string{
		"MAILMUX_SERVER=" + p.Server,
		"MAILMUX_MAILBOX=" + p.Mailbox,
		"MAILMUX_UID=" + strconv.FormatUint(uint64(p.UID), 10),
		"MAILMUX_FROM=" + p.From,
		"MAILMUX_SUBJECT=" + p.Subject,
	}
	if !p.Date.IsZero() {
		env = append(env, "MAILMUX_DATE="+p.Date.Format(time.RFC3339))
	}
	return env
}
