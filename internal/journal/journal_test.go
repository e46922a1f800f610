package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/mailmux/internal/journal"
	"github.com/nhle/mailmux/tests/testutil"
)

func recordAt(t *testing.T, j *journal.Journal, ts time.Time, uid uint32, summary string) {
	t.Helper()

	err := j.Record(context.Background(), journal.Entry{
		Server:    "work",
		Mailbox:   "INBOX",
		UID:       uid,
		Kind:      journal.KindNewMessage,
		Summary:   summary,
		CreatedAt: ts,
	})
	if err != nil {
		t.Fatalf("recording entry %q: %v", summary, err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := testutil.NewTestJournal(t)
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	recordAt(t, j, base, 101, "first")
	recordAt(t, j, base.Add(time.Minute), 102, "second")
	recordAt(t, j, base.Add(2*time.Minute), 103, "third")

	entries, err := j.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"third", "second", "first"} {
		if entries[i].Summary != want {
			t.Errorf("entries[%d].Summary = %q, want %q", i, entries[i].Summary, want)
		}
	}

	got := entries[0]
	if got.ID == "" {
		t.Error("entry ID was not filled in")
	}
	if got.Server != "work" || got.Mailbox != "INBOX" || got.UID != 103 {
		t.Errorf("entry fields = %s/%s/%d", got.Server, got.Mailbox, got.UID)
	}
	if got.Kind != journal.KindNewMessage {
		t.Errorf("entry kind = %q, want %q", got.Kind, journal.KindNewMessage)
	}
}

func TestRecentLimit(t *testing.T) {
	j := testutil.NewTestJournal(t)
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		recordAt(t, j, base.Add(time.Duration(i)*time.Minute), uint32(i+1), "entry")
	}

	entries, err := j.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].UID != 5 || entries[1].UID != 4 {
		t.Errorf("got UIDs %d, %d, want 5, 4", entries[0].UID, entries[1].UID)
	}
}

func TestRecordFillsDefaults(t *testing.T) {
	j := testutil.NewTestJournal(t)

	err := j.Record(context.Background(), journal.Entry{
		Server:  "work",
		Mailbox: "INBOX",
		Kind:    journal.KindExpunge,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := j.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("ID was not generated")
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt was not filled in")
	}
}

func TestPrune(t *testing.T) {
	j := testutil.NewTestJournal(t)
	base := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		recordAt(t, j, base.Add(time.Duration(i)*time.Minute), uint32(i+1), "entry")
	}

	removed, err := j.Prune(context.Background(), 2)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed %d entries, want 3", removed)
	}

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries after prune, want 2", len(entries))
	}
	if entries[0].UID != 5 || entries[1].UID != 4 {
		t.Errorf("prune kept UIDs %d, %d, want the newest 5, 4", entries[0].UID, entries[1].UID)
	}
}

func TestPruneKeepsEverythingWhenUnderLimit(t *testing.T) {
	j := testutil.NewTestJournal(t)

	recordAt(t, j, time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC), 1, "only")

	removed, err := j.Prune(context.Background(), 10)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed %d entries, want 0", removed)
	}
}
