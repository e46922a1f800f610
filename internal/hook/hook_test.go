package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/mailops"
)

func TestFireDeliversStdinAndEnv(t *testing.T) {
	dir := t.TempDir()
	stdinFile := filepath.Join(dir, "stdin")
	envFile := filepath.Join(dir, "env")
	command := fmt.Sprintf(
		"cat > %s; printf '%%s\\n' \"$MAILMUX_SERVER\" \"$MAILMUX_UID\" \"$MAILMUX_SUBJECT\" > %s",
		stdinFile, envFile,
	)

	payload := Payload{
		Server:  "work",
		Mailbox: "INBOX",
		UID:     1204,
		From:    "Ann Chovey <ann@example.com>",
		Subject: "quarterly report",
		Date:    time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		To:      []string{"team@example.com"},
		Body:    "see attached",
	}

	r := NewRunner(zerolog.Nop())
	r.Fire(context.Background(), command, payload)
	r.Wait()

	raw, err := os.ReadFile(stdinFile)
	if err != nil {
		t.Fatalf("reading captured stdin: %v", err)
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Contains(trimmed, []byte("\n")) {
		t.Errorf("stdin payload spans multiple lines: %q", trimmed)
	}
	var got Payload
	if err := json.Unmarshal(trimmed, &got); err != nil {
		t.Fatalf("decoding stdin payload: %v", err)
	}
	if got.Server != payload.Server || got.UID != payload.UID || got.Subject != payload.Subject {
		t.Errorf("stdin payload = %+v, want fields from %+v", got, payload)
	}
	if got.Body != payload.Body {
		t.Errorf("stdin body = %q, want %q", got.Body, payload.Body)
	}

	env, err := os.ReadFile(envFile)
	if err != nil {
		t.Fatalf("reading captured env: %v", err)
	}
	want := "work\n1204\nquarterly report\n"
	if string(env) != want {
		t.Errorf("env capture = %q, want %q", env, want)
	}
}

func TestFireEmptyCommandIsNoop(t *testing.T) {
	r := NewRunner(zerolog.Nop())
	r.Fire(context.Background(), "   ", Payload{Server: "work"})
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return for an empty command")
	}
}

func TestFireTimeoutKillsCommand(t *testing.T) {
	r := NewRunner(zerolog.Nop())
	r.timeout = 100 * time.Millisecond

	start := time.Now()
	r.Fire(context.Background(), "sleep 10", Payload{Server: "work"})
	r.Wait()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("hook ran for %v, expected the timeout to end it", elapsed)
	}
}

func TestFireCommandFailureDoesNotBlock(t *testing.T) {
	r := NewRunner(zerolog.Nop())
	r.Fire(context.Background(), "exit 3", Payload{Server: "work"})
	r.Wait()
}

func TestFromDetail(t *testing.T) {
	detail := mailops.MessageDetail{
		MessageHeader: mailops.MessageHeader{
			UID:       77,
			Mailbox:   "INBOX",
			From:      "Bob <bob@example.com>",
			To:        []string{"me@example.com"},
			Subject:   "hello",
			Date:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			MessageID: "<abc@example.com>",
		},
		Cc:      []string{"cc@example.com"},
		ReplyTo: []string{"replies@example.com"},
		Body:    "body text",
		Attachments: []mailops.AttachmentInfo{
			{Filename: "a.pdf", MIMEType: "application/pdf", Size: 10},
		},
	}

	p := FromDetail("personal", detail)
	if p.Server != "personal" || p.UID != 77 || p.Mailbox != "INBOX" {
		t.Errorf("payload identity = %s/%s/%d", p.Server, p.Mailbox, p.UID)
	}
	if p.Body != "body text" || len(p.Attachments) != 1 {
		t.Errorf("payload body/attachments not carried over: %+v", p)
	}
	for key, want := range map[string]string{
		"From":       "Bob <bob@example.com>",
		"Subject":    "hello",
		"To":         "me@example.com",
		"Cc":         "cc@example.com",
		"Reply-To":   "replies@example.com",
		"Message-Id": "<abc@example.com>",
	} {
		if got := p.Headers[key]; got != want {
			t.Errorf("Headers[%q] = %q, want %q", key, got, want)
		}
	}
	if _, ok := p.Headers["Date"]; !ok {
		t.Error("Headers missing Date")
	}
}
