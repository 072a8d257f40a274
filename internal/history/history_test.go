package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_RecordAndRecent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	at := time.UnixMilli(1_700_000_000_000)
	entries := []Entry{
		{Command: "git status", Risk: "low", Outcome: "success", Duration: 40 * time.Millisecond, Workdir: "/src", Transcript: "check status", At: at},
		{Command: "git push", Risk: "medium", Outcome: "failure", ExitCode: 1, At: at.Add(time.Minute)},
		{Command: "git reset --hard HEAD", Risk: "high", Outcome: "timeout", ExitCode: -1, At: at.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Command != "git reset --hard HEAD" || got[1].Command != "git push" {
		t.Fatalf("order = %q, %q", got[0].Command, got[1].Command)
	}
	if got[0].ExitCode != -1 || got[0].Outcome != "timeout" {
		t.Errorf("entry = %+v", got[0])
	}

	all, _ := s.Recent(ctx, 0)
	first := all[len(all)-1]
	if first.Duration != 40*time.Millisecond || first.Transcript != "check status" || !first.At.Equal(at) {
		t.Errorf("roundtrip = %+v", first)
	}
}

func TestStore_Memory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Record(context.Background(), Entry{Command: "git log -1", Risk: "low", Outcome: "success"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Recent(context.Background(), 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent = %v, %v", got, err)
	}
	if got[0].At.IsZero() {
		t.Error("At not defaulted")
	}
}
