// Package watcher polls a fixed set of files for content changes.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const defaultInterval = 500 * time.Millisecond

type Change struct {
	Path    string
	Missing bool
}

type fingerprint struct {
	mod     time.Time
	size    int64
	hash    string
	missing bool
}

type Watcher struct {
	interval time.Duration

	mu    sync.Mutex
	files map[string]fingerprint
}

// New records the current state of paths. Files that do not exist yet are
// tracked as missing and reported once they appear.
func New(interval time.Duration, paths ...string) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	w := &Watcher{interval: interval, files: make(map[string]fingerprint, len(paths))}
	for _, p := range paths {
		if p == "" {
			continue
		}
		clean := filepath.Clean(p)
		w.files[clean] = take(clean)
	}
	return w
}

// Scan returns the files whose content changed, appeared or disappeared
// since the previous scan, sorted by path. A touch that keeps the content
// identical is not a change.
func (w *Watcher) Scan() []Change {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []Change
	for path, prev := range w.files {
		if !prev.missing && statSame(path, prev) {
			continue
		}
		next := take(path)
		w.files[path] = next
		switch {
		case next.missing && prev.missing:
		case next.missing:
			changes = append(changes, Change{Path: path, Missing: true})
		case prev.missing || next.hash != prev.hash:
			changes = append(changes, Change{Path: path})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Wait polls until at least one change is seen or ctx ends.
func (w *Watcher) Wait(ctx context.Context) ([]Change, error) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
			if changes := w.Scan(); len(changes) > 0 {
				return changes, nil
			}
		}
	}
}

func statSame(path string, fp fingerprint) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Equal(fp.mod) && info.Size() == fp.size
}

func take(path string) fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{missing: true}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fingerprint{missing: true}
	}
	sum := sha256.Sum256(data)
	return fingerprint{
		mod:  info.ModTime(),
		size: info.Size(),
		hash: hex.EncodeToString(sum[:]),
	}
}
