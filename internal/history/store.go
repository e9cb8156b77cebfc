package history

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/reqflow/internal/errdef"
)

const DefaultMaxEntries = 200

type Entry struct {
	ID          string        `json:"id"`
	ExecutedAt  time.Time     `json:"executedAt"`
	Environment string        `json:"environment,omitempty"`
	Collection  string        `json:"collection,omitempty"`
	RequestID   string        `json:"requestId,omitempty"`
	RequestName string        `json:"requestName"`
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	Status      string        `json:"status"`
	StatusCode  int           `json:"statusCode"`
	Duration    time.Duration `json:"duration"`
	Size        int64         `json:"size"`
	BodySnippet string        `json:"bodySnippet"`
	Error       string        `json:"error,omitempty"`
	TestsPassed int           `json:"testsPassed,omitempty"`
	TestsFailed int           `json:"testsFailed,omitempty"`
}

// Store persists entries newest-first.
type Store interface {
	Append(Entry) error
	Entries() ([]Entry, error)
	ByRequest(identifier string) ([]Entry, error)
	Close() error
}

// FileStore keeps the whole history in one JSON file, rewritten atomically
// on every change.
type FileStore struct {
	path       string
	maxEntries int
	entries    []Entry
	mu         sync.RWMutex
	loaded     bool
}

func NewFileStore(path string, maxEntries int) *FileStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &FileStore{path: path, maxEntries: maxEntries}
}

func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoadedLocked()
}

func (s *FileStore) Append(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return err
	}

	s.entries = append([]Entry{entry}, s.entries...)
	sortEntries(s.entries)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}
	return s.persist()
}

func (s *FileStore) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	copies := make([]Entry, len(s.entries))
	copy(copies, s.entries)
	return copies, nil
}

func (s *FileStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(); err != nil {
		return false, err
	}

	idx := -1
	for i, entry := range s.entries {
		if entry.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}

	copy(s.entries[idx:], s.entries[idx+1:])
	s.entries = s.entries[:len(s.entries)-1]
	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

// ByRequest matches on request id, then name, then URL.
func (s *FileStore) ByRequest(identifier string) ([]Entry, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return entries, nil
	}
	var matched []Entry
	for _, entry := range entries {
		if matchesRequest(entry, identifier) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create history dir")
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "encode history")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write history tmp")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "replace history file")
	}
	return nil
}

func (s *FileStore) ensureLoadedLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.entries = []Entry{}
			s.loaded = true
			return nil
		}
		return errdef.Wrap(errdef.CodeHistory, err, "read history")
	}

	if len(data) == 0 {
		s.entries = []Entry{}
		s.loaded = true
		return nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "parse history")
	}

	sortEntries(s.entries)
	s.loaded = true
	return nil
}

func matchesRequest(e Entry, identifier string) bool {
	return e.RequestID == identifier || e.RequestName == identifier || e.URL == identifier
}

func sortEntries(entries []Entry) {
	if len(entries) < 2 {
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return newerFirst(entries[i], entries[j])
	})
}

func newerFirst(a, b Entry) bool {
	ai := a.ExecutedAt
	bi := b.ExecutedAt
	switch {
	case ai.IsZero() && bi.IsZero():
		return a.ID > b.ID
	case ai.IsZero():
		return false
	case bi.IsZero():
		return true
	case ai.Equal(bi):
		// ULIDs sort by time, then randomness.
		return a.ID > b.ID
	default:
		return ai.After(bi)
	}
}
