package notify

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDesktop_Announce(t *testing.T) {
	var got []string
	d := NewDesktop("voxgit", nil).WithRunner(func(_ context.Context, name string, args ...string) error {
		got = append([]string{name}, args...)
		return nil
	})

	d.Announce(context.Background(), Alert, "Confirm", "git reset --hard HEAD")
	want := []string{"notify-send", "--app-name", "voxgit", "--urgency", "critical", "Confirm", "git reset --hard HEAD"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %q\nwant   %q", got, want)
	}

	d.Announce(context.Background(), Info, "Listening", "")
	if got[len(got)-1] != "Listening" {
		t.Errorf("empty body passed: %q", got)
	}
}

func TestDesktop_AnnounceIgnoresFailure(t *testing.T) {
	d := NewDesktop("voxgit", nil).WithRunner(func(context.Context, string, ...string) error {
		return errors.New("notify-send: not found")
	})
	d.Announce(context.Background(), Info, "x", "y")
}

func TestChime_MissingFile(t *testing.T) {
	c := NewChime(filepath.Join(t.TempDir(), "none.mp3"))
	if err := c.Play(context.Background()); err == nil {
		t.Fatal("want error for missing chime")
	}
}
