package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func write(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestScanReportsContentChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.env")
	base := time.Now().Add(-time.Hour)
	write(t, a, "one", base)

	w := New(time.Millisecond, a, b, "")
	if got := w.Scan(); len(got) != 0 {
		t.Fatalf("nothing changed yet, got %+v", got)
	}

	write(t, a, "one", base.Add(time.Minute))
	if got := w.Scan(); len(got) != 0 {
		t.Fatalf("a touch with identical content is not a change, got %+v", got)
	}

	write(t, a, "two", base.Add(2*time.Minute))
	write(t, b, "k=v", base)
	got := w.Scan()
	if len(got) != 2 || got[0].Path != a || got[1].Path != b || got[0].Missing || got[1].Missing {
		t.Fatalf("unexpected changes %+v", got)
	}

	if err := os.Remove(b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got = w.Scan()
	if len(got) != 1 || got[0].Path != b || !got[0].Missing {
		t.Fatalf("expected b to be reported missing, got %+v", got)
	}
	if got := w.Scan(); len(got) != 0 {
		t.Fatalf("a missing file is reported once, got %+v", got)
	}
}

func TestWaitReturnsOnChangeOrCancel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	base := time.Now().Add(-time.Hour)
	write(t, path, "{}", base)
	w := New(5*time.Millisecond, path)

	go func() {
		time.Sleep(20 * time.Millisecond)
		if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
			t.Errorf("rewrite: %v", err)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	changes, err := w.Wait(ctx)
	if err != nil || len(changes) != 1 || changes[0].Path != path {
		t.Fatalf("unexpected wait result %+v %v", changes, err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, err := w.Wait(short); err == nil {
		t.Fatalf("expected the context error when nothing changes")
	}
}
