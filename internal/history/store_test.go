package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
)

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func openStores(t *testing.T, max int) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	file := NewFileStore(filepath.Join(dir, "history.json"), max)
	db, err := OpenSQLite(context.Background(), filepath.Join(dir, "history.db"), max)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return map[string]Store{"json": file, "sqlite": db}
}

func TestStoresSortNewestFirstAndTrim(t *testing.T) {
	t.Parallel()
	for name, store := range openStores(t, 2) {
		t.Run(name, func(t *testing.T) {
			for i, at := range []time.Time{base, base.Add(2 * time.Minute), base.Add(time.Minute)} {
				entry := Entry{ID: string(rune('a' + i)), ExecutedAt: at, RequestName: "r"}
				if err := store.Append(entry); err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}
			got, err := store.Entries()
			if err != nil {
				t.Fatalf("entries: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected trim to 2, got %d", len(got))
			}
			if got[0].ID != "b" || got[1].ID != "c" {
				t.Fatalf("expected newest-first b,c got %q,%q", got[0].ID, got[1].ID)
			}
			if !got[0].ExecutedAt.Equal(base.Add(2 * time.Minute)) {
				t.Fatalf("timestamp did not round-trip: %v", got[0].ExecutedAt)
			}
		})
	}
}

func TestStoresByRequest(t *testing.T) {
	t.Parallel()
	for name, store := range openStores(t, 10) {
		t.Run(name, func(t *testing.T) {
			entries := []Entry{
				{ID: "1", ExecutedAt: base, RequestID: "login", RequestName: "Login", URL: "http://x/login"},
				{ID: "2", ExecutedAt: base.Add(time.Second), RequestID: "me", RequestName: "Me", URL: "http://x/me"},
				{ID: "3", ExecutedAt: base.Add(2 * time.Second), RequestID: "login", RequestName: "Login", URL: "http://x/login", StatusCode: 401, Duration: 15 * time.Millisecond},
			}
			for _, e := range entries {
				if err := store.Append(e); err != nil {
					t.Fatalf("append: %v", err)
				}
			}
			for _, ident := range []string{"login", "Login", "http://x/login"} {
				got, err := store.ByRequest(ident)
				if err != nil {
					t.Fatalf("by request: %v", err)
				}
				if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
					t.Fatalf("%s: unexpected entries %+v", ident, got)
				}
				if got[0].StatusCode != 401 || got[0].Duration != 15*time.Millisecond {
					t.Fatalf("fields did not round-trip: %+v", got[0])
				}
			}
			all, err := store.ByRequest("  ")
			if err != nil || len(all) != 3 {
				t.Fatalf("blank identifier should list everything, got %d (%v)", len(all), err)
			}
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	store := NewFileStore(path, 10)
	if err := store.Append(Entry{ID: "1", ExecutedAt: base, RequestName: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(Entry{ID: "2", ExecutedAt: base.Add(time.Second), RequestName: "b"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be renamed away, stat err=%v", err)
	}

	reloaded := NewFileStore(path, 10)
	got, err := reloaded.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" {
		t.Fatalf("unexpected reloaded entries %+v", got)
	}

	deleted, err := reloaded.Delete("1")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if deleted, _ := reloaded.Delete("missing"); deleted {
		t.Fatalf("deleting an unknown id should report false")
	}
	got, _ = NewFileStore(path, 10).Entries()
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("delete was not persisted: %+v", got)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := NewFileStore(path, 10).Load()
	if errdef.CodeOf(err) != errdef.CodeHistory {
		t.Fatalf("expected history error, got %v", err)
	}
}

func TestOpenBackends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := Open(context.Background(), "", filepath.Join(dir, "h.json"), 0)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Fatalf("expected file store, got %T", store)
	}
	store, err = Open(context.Background(), "SQLite", filepath.Join(dir, "h.db"), 0)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	_ = store.Close()
	if _, err := Open(context.Background(), "redis", "x", 0); errdef.CodeOf(err) != errdef.CodeConfig {
		t.Fatalf("expected config error for unknown backend, got %v", err)
	}
}

func TestNewEntryFromSuccess(t *testing.T) {
	t.Parallel()
	data, _ := jsonval.Parse(`{"token":"abc"}`)
	req := &restfile.Request{ID: "login", Name: " Login ", Method: "post", URL: "{{base}}/login"}
	ex := httpclient.Exchange{
		Prepared: &httpclient.Prepared{Method: "POST", URL: "http://api.test/login"},
		Result: &restfile.Success{
			Status: 201, StatusText: "Created", Time: 42, Size: 15, Data: data,
			TestResults: []restfile.TestResult{{Passed: true}, {Passed: false}},
		},
	}
	entry := NewEntry(req, ex, "dev", base)

	id, err := ulid.Parse(entry.ID)
	if err != nil {
		t.Fatalf("id is not a ulid: %v", err)
	}
	if ulid.Time(id.Time()).UnixMilli() != base.UnixMilli() {
		t.Fatalf("ulid time %v does not match execution time", ulid.Time(id.Time()))
	}
	if entry.RequestName != "Login" || entry.RequestID != "login" || entry.Environment != "dev" {
		t.Fatalf("unexpected identity %+v", entry)
	}
	if entry.Method != "POST" || entry.URL != "http://api.test/login" {
		t.Fatalf("prepared request should win: %s %s", entry.Method, entry.URL)
	}
	if entry.Status != "201 Created" || entry.Duration != 42*time.Millisecond || entry.Size != 15 {
		t.Fatalf("unexpected response fields %+v", entry)
	}
	if entry.BodySnippet != "{\n  \"token\": \"abc\"\n}" {
		t.Fatalf("unexpected snippet %q", entry.BodySnippet)
	}
	if entry.TestsPassed != 1 || entry.TestsFailed != 1 {
		t.Fatalf("unexpected test counts %d/%d", entry.TestsPassed, entry.TestsFailed)
	}
}

func TestNewEntryFromFailureAndTruncation(t *testing.T) {
	t.Parallel()
	entry := NewEntry(&restfile.Request{URL: "http://x"}, httpclient.Exchange{
		Result: &restfile.Failure{Message: "dial tcp: refused"},
	}, "", base)
	if entry.Error != "dial tcp: refused" || entry.BodySnippet != entry.Error || entry.StatusCode != 0 {
		t.Fatalf("unexpected failure entry %+v", entry)
	}
	if entry.RequestName != "http://x" || entry.Method != "" {
		t.Fatalf("unexpected identity %+v", entry)
	}

	long := jsonval.StringValue(strings.Repeat("é", snippetLimit))
	entry = NewEntry(nil, httpclient.Exchange{Result: &restfile.Success{Status: 200, Data: long}}, "", base)
	if len(entry.BodySnippet) > snippetLimit {
		t.Fatalf("snippet not truncated: %d bytes", len(entry.BodySnippet))
	}
	if !strings.HasPrefix(entry.BodySnippet, "\"éé") {
		t.Fatalf("unexpected snippet start %q", entry.BodySnippet[:8])
	}

	if got := NewEntry(nil, httpclient.Exchange{}, "", base).BodySnippet; got != "No response captured" {
		t.Fatalf("unexpected empty snippet %q", got)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	a, _ := jsonval.Parse(`{"a":1,"b":true}`)
	b, _ := jsonval.Parse(`{"a":2,"b":true}`)
	prev := &restfile.Success{Status: 200, StatusText: "OK", Data: a}
	next := &restfile.Success{Status: 200, StatusText: "OK", Data: b}

	if got := Diff(prev, prev); got != "" {
		t.Fatalf("identical responses should not diff, got %q", got)
	}
	diff := Diff(prev, next)
	for _, want := range []string{"--- previous", "+++ latest", "-  \"a\": 1,", "+  \"a\": 2,"} {
		if !strings.Contains(diff, want) {
			t.Fatalf("diff missing %q:\n%s", want, diff)
		}
	}
	if strings.Contains(diff, "-200 OK") {
		t.Fatalf("unchanged status line should be context:\n%s", diff)
	}

	failed := Diff(prev, &restfile.Failure{Message: "timeout"})
	if !strings.Contains(failed, "+error: timeout") {
		t.Fatalf("failure should render as an error line:\n%s", failed)
	}
}
