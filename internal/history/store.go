// Package history tracks which Gmail message IDs have already been
// delivered to a chat, preventing duplicate notifications.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/mailherald/mailherald/internal/errors"
)

// Store persists per-user sets of notified message IDs as flat JSON files.
// Records are keyed by chat ID, with an optional mailbox subkey for users
// that link more than one Gmail account.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a history store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing access to one record. Different
// records never share a lock, so users cannot block each other.
func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[path]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[path] = l
	return l
}

func (s *Store) path(chatID int64, mailbox string) string {
	id := strconv.FormatInt(chatID, 10)
	if mailbox != "" {
		return filepath.Join(s.dir, id, mailbox+".json")
	}
	return filepath.Join(s.dir, id+".json")
}

// Load returns the set of message IDs already notified for the given chat
// and optional mailbox. A missing or unreadable record yields an empty set:
// re-notifying is the accepted failure mode, crashing is not.
func (s *Store) Load(chatID int64, mailbox string) map[string]bool {
	path := s.path(chatID, mailbox)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return make(map[string]bool)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return make(map[string]bool)
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Save persists the full set for the given chat and optional mailbox,
// replacing any prior record. The write is a single atomic overwrite.
func (s *Store) Save(chatID int64, ids map[string]bool, mailbox string) error {
	path := s.path(chatID, mailbox)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &errors.ErrDirectoryCreate{Path: filepath.Dir(path), Err: err}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return &errors.ErrFileWrite{Path: path, Err: err}
	}

	return atomicWrite(path, data)
}

// atomicWrite writes data to a sibling temp file and renames it over path,
// so readers never observe a partial record.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &errors.ErrFileWrite{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &errors.ErrFileWrite{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &errors.ErrFileWrite{Path: path, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &errors.ErrFileWrite{Path: path, Err: err}
	}
	return nil
}
