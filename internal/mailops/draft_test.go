package mailops

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
)

func TestComposeDraft(t *testing.T) {
	attPath := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(attPath, []byte("alpha beta"), 0o600); err != nil {
		t.Fatalf("writing attachment fixture: %v", err)
	}

	draft := Draft{
		From:            "me@example.com",
		To:              []string{"you@example.com", "them@example.com"},
		Cc:              []string{"cc@example.com"},
		Subject:         "Hello there",
		Body:            "Body text here.",
		AttachmentPaths: []string{attPath},
	}

	raw, err := composeDraft(draft)
	if err != nil {
		t.Fatalf("composeDraft: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parsing composed draft: %v", err)
	}
	defer mr.Close()

	subject, err := mr.Header.Subject()
	if err != nil || subject != "Hello there" {
		t.Errorf("Subject = %q, %v", subject, err)
	}
	to, err := mr.Header.AddressList("To")
	if err != nil || len(to) != 2 || to[0].Address != "you@example.com" {
		t.Errorf("To = %v, %v", to, err)
	}
	if msgID := mr.Header.Get("Message-Id"); !strings.Contains(msgID, "@mailmux") {
		t.Errorf("Message-Id = %q, want generated id", msgID)
	}

	var bodyText string
	var attNames []string
	var attContent string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("walking draft parts: %v", err)
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			data, _ := io.ReadAll(part.Body)
			bodyText += string(data)
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			attNames = append(attNames, name)
			data, _ := io.ReadAll(part.Body)
			attContent = string(data)
		}
	}

	if !strings.Contains(bodyText, "Body text here.") {
		t.Errorf("body = %q", bodyText)
	}
	if len(attNames) != 1 || attNames[0] != "notes.txt" {
		t.Errorf("attachments = %v, want [notes.txt]", attNames)
	}
	if attContent != "alpha beta" {
		t.Errorf("attachment content = %q", attContent)
	}
}

func TestComposeDraftMissingAttachment(t *testing.T) {
	draft := Draft{
		To:              []string{"you@example.com"},
		Subject:         "x",
		AttachmentPaths: []string{filepath.Join(t.TempDir(), "missing.bin")},
	}
	if _, err := composeDraft(draft); err == nil {
		t.Fatal("composeDraft succeeded with a missing attachment file")
	}
}

func TestCreateDraftValidatesEmpty(t *testing.T) {
	fake := &fakeAcquirer{}
	d := testDispatcher(fake)

	_, err := d.CreateDraft(context.Background(), "work", Draft{})
	if !IsValidationError(err) {
		t.Fatalf("CreateDraft(empty) = %v, want validation error", err)
	}
	if fake.acquires != 0 {
		t.Errorf("acquires = %d, want 0", fake.acquires)
	}
}
