// Package localstore persists the whole store as a single JSON blob under a
// well-known slot in the data directory. It is the anonymous-mode substrate;
// the session controller never writes it while authenticated.
package localstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/model"
)

const (
	storeFile = "store.json"
	tokenFile = "token.json"
)

// Adapter reads and writes the local slot files.
type Adapter struct {
	dir string
}

// New returns an adapter rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Adapter { return &Adapter{dir: dir} }

func (a *Adapter) storePath() string { return filepath.Join(a.dir, storeFile) }
func (a *Adapter) tokenPath() string { return filepath.Join(a.dir, tokenFile) }

// Load reads the store slot. Missing fields are defaulted by unmarshalling
// over a canonical default store, so snapshots written by older versions
// never crash newer code. Returns errs.ErrNotFound when no slot exists.
func (a *Adapter) Load() (*model.Store, error) {
	b, err := os.ReadFile(a.storePath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	store := model.DefaultStore()
	if err := json.Unmarshal(b, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

// Save writes the store slot atomically (temp file + rename), so a crash
// mid-write never leaves a truncated snapshot behind.
func (a *Adapter) Save(store *model.Store) error {
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}
	tmp := a.storePath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, a.storePath())
}

// Token is the persisted session: it lets the controller resume an
// authenticated state across restarts.
type Token struct {
	AccessToken string    `json:"access_token"`
	UserID      uuid.UUID `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SaveToken persists the current session token.
func (a *Adapter) SaveToken(t Token) error {
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.tokenPath(), b, 0o600)
}

// LoadToken returns the persisted session token, or errs.ErrNotFound when
// there is none or it has expired.
func (a *Adapter) LoadToken() (Token, error) {
	b, err := os.ReadFile(a.tokenPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Token{}, errs.ErrNotFound
		}
		return Token{}, err
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return Token{}, err
	}
	if t.AccessToken == "" || time.Now().After(t.ExpiresAt) {
		return Token{}, errs.ErrNotFound
	}
	return t, nil
}

// ClearToken removes the persisted session.
func (a *Adapter) ClearToken() error {
	err := os.Remove(a.tokenPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
