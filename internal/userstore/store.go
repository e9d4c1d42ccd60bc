// Package userstore persists per-user OAuth credentials and authorization
// metadata as flat JSON files, one user per chat ID.
package userstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mailherald/mailherald/internal/errors"
)

// Credential is a stored per-user OAuth credential. The on-disk layout
// mirrors Google's authorized-user file so records stay portable.
type Credential struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURL     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Valid reports whether the access token can be used as-is.
func (c *Credential) Valid() bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return time.Now().Before(c.Expiry)
}

// Refreshable reports whether an expired credential can be renewed.
func (c *Credential) Refreshable() bool {
	return c != nil && c.RefreshToken != ""
}

// Meta records when a user completed authorization. The timestamp seeds the
// poll cursor so the user's pre-existing unread backlog is never replayed.
type Meta struct {
	AuthorizedAt int64 `json:"start_time"`
}

// Store manages per-user credential and meta files under one directory.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewStore creates a user store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		locks: make(map[int64]*sync.Mutex),
	}
}

func (s *Store) lockFor(chatID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[chatID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[chatID] = l
	return l
}

func (s *Store) credentialPath(chatID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(chatID, 10)+".json")
}

func (s *Store) metaPath(chatID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(chatID, 10)+"_meta.json")
}

// SaveCredential persists a credential for the chat, replacing any prior
// one. The write is a single atomic overwrite.
func (s *Store) SaveCredential(chatID int64, cred *Credential) error {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return &errors.ErrFileWrite{Path: s.credentialPath(chatID), Err: err}
	}
	return s.atomicWrite(s.credentialPath(chatID), data)
}

// LoadCredential returns the stored credential for the chat, or nil when no
// credential exists. A corrupt record is treated as absent.
func (s *Store) LoadCredential(chatID int64) *Credential {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.credentialPath(chatID))
	if err != nil {
		return nil
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil
	}
	return &cred
}

// SaveMeta persists authorization metadata for the chat.
func (s *Store) SaveMeta(chatID int64, meta *Meta) error {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(meta)
	if err != nil {
		return &errors.ErrFileWrite{Path: s.metaPath(chatID), Err: err}
	}
	return s.atomicWrite(s.metaPath(chatID), data)
}

// LoadMeta returns the stored metadata for the chat, or nil when absent or
// unreadable.
func (s *Store) LoadMeta(chatID int64) *Meta {
	lock := s.lockFor(chatID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.metaPath(chatID))
	if err != nil {
		return nil
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

// ListUsers returns the chat IDs of all users with a stored credential,
// sorted ascending.
func (s *Store) ListUsers() []int64 {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var ids []int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, "_meta.json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &errors.ErrDirectoryCreate{Path: filepath.Dir(path), Err: err}
	}

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
