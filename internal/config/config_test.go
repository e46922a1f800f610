package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
servers:
  Work:
    watch: true
    hook_command: "notify-send new-mail"
    credentials:
      host: imap.example.com
      port: 993
      username: me@example.com
      password: hunter2
  personal:
    watch: true
    watch_mailbox: Lists
tcp_port: 7465
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.ServerIDs(); !reflect.DeepEqual(got, []string{"personal", "work"}) {
		t.Errorf("ServerIDs = %v, want [personal work]", got)
	}
	if cfg.TCPPort != 7465 {
		t.Errorf("TCPPort = %d, want 7465", cfg.TCPPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Socket == "" || cfg.DataDir == "" {
		t.Errorf("expected socket and data_dir defaults, got %q / %q", cfg.Socket, cfg.DataDir)
	}

	work, err := cfg.Server("WORK")
	if err != nil {
		t.Fatalf("Server(WORK): %v", err)
	}
	if work.WatchMailbox != "INBOX" {
		t.Errorf("WatchMailbox default = %q, want INBOX", work.WatchMailbox)
	}
	if work.Credentials == nil || work.Credentials.Host != "imap.example.com" {
		t.Errorf("inline credentials not parsed: %+v", work.Credentials)
	}

	personal, err := cfg.Server("personal")
	if err != nil {
		t.Fatalf("Server(personal): %v", err)
	}
	if personal.WatchMailbox != "Lists" {
		t.Errorf("WatchMailbox = %q, want Lists", personal.WatchMailbox)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestLoadNoServers(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	_, err := Load(path)
	if !errors.Is(err, ErrNoServers) {
		t.Fatalf("expected ErrNoServers, got %v", err)
	}
}

func TestLoadLegacyListFormat(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: work
    watch: true
`)
	_, err := Load(path)
	if !errors.Is(err, ErrLegacyFormat) {
		t.Fatalf("expected ErrLegacyFormat, got %v", err)
	}
}

func TestUnknownServer(t *testing.T) {
	path := writeConfig(t, `
servers:
  work:
    watch: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = cfg.Server("other")
	if !IsUnknownServer(err) {
		t.Fatalf("expected UnknownServerError, got %v", err)
	}
	var use *UnknownServerError
	if errors.As(err, &use) && use.ID != "other" {
		t.Errorf("UnknownServerError.ID = %q, want other", use.ID)
	}
}

func TestWatchSpecs(t *testing.T) {
	path := writeConfig(t, `
servers:
  b:
    watch: true
    watch_mailbox: Archive
    hook_command: "touch /tmp/mark"
  a:
    watch: true
  c:
    watch: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	specs := cfg.WatchSpecs()
	want := []WatchSpec{
		{Server: "a", Mailbox: "INBOX"},
		{Server: "b", Mailbox: "Archive", HookCommand: "touch /tmp/mark"},
	}
	if !reflect.DeepEqual(specs, want) {
		t.Errorf("WatchSpecs = %+v, want %+v", specs, want)
	}
}
