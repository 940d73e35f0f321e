package tokencache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"farmfield/pkg/logging"
	"farmfield/pkg/oauth"
)

const subsystem = "TokenCache"

const lockFileName = ".lock"

// fileNames maps each kind to its fixed file name.
var fileNames = map[oauth.Kind]string{
	oauth.KindUser:              "user_token.json",
	oauth.KindClientCredentials: "client_credentials_token.json",
}

// Config configures the cache.
type Config struct {
	// Dir is the storage directory. Defaults to ~/.config/farmfield/tokens.
	Dir string
}

// Cache is a durable token store keyed by token kind. It is safe for
// concurrent use and may be shared by several auth clients.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// record is the on-disk JSON shape.
type record struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        []string  `json:"scope"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// New creates a cache rooted at cfg.Dir, creating the directory if needed.
func New(cfg Config) (*Cache, error) {
	dir := cfg.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, oauth.DefaultTokenStorageDir)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	return &Cache{dir: dir}, nil
}

// Dir returns the storage directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file backing kind, or "" for an unknown kind.
func (c *Cache) Path(kind oauth.Kind) string {
	name, ok := fileNames[kind]
	if !ok {
		return ""
	}
	return filepath.Join(c.dir, name)
}

// Get returns the cached token for kind. Expiry is not checked here; that is
// the caller's policy. Missing or malformed entries report false.
func (c *Cache) Get(kind oauth.Kind) (*oauth.Token, bool) {
	path := c.Path(kind)
	if path == "" {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	unlock, err := lockDir(c.dir, false)
	if err != nil {
		logging.Debug(subsystem, "Shared lock unavailable for %s, reading anyway: %v", kind, err)
	} else {
		defer unlock()
	}

	// #nosec G304 -- path is built from a fixed file name table
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Debug(subsystem, "Unreadable %s token file treated as miss: %v", kind, err)
		}
		return nil, false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil || rec.AccessToken == "" {
		logging.Debug(subsystem, "Malformed %s token file treated as miss", kind)
		return nil, false
	}

	return &oauth.Token{
		Kind:         kind,
		AccessToken:  rec.AccessToken,
		TokenType:    rec.TokenType,
		ExpiresAt:    rec.ExpiresAt,
		Scope:        rec.Scope,
		RefreshToken: rec.RefreshToken,
	}, true
}

// Put atomically replaces the cached token for kind.
func (c *Cache) Put(kind oauth.Kind, token *oauth.Token) error {
	path := c.Path(kind)
	if path == "" {
		return fmt.Errorf("unknown token kind %q", kind)
	}
	if token == nil || token.AccessToken == "" {
		return errors.New("refusing to cache empty token")
	}

	data, err := json.MarshalIndent(record{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.ExpiresAt,
		Scope:        oauth.NormalizeScopes(token.Scope),
		RefreshToken: token.RefreshToken,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := lockDir(c.dir, true)
	if err != nil {
		return fmt.Errorf("failed to lock token directory: %w", err)
	}
	defer unlock()

	if err := writeFileAtomic(c.dir, path, data); err != nil {
		logging.Warn(subsystem, "Failed to persist %s token: %v", kind, err)
		return err
	}

	logging.Info(subsystem, "Stored %s token (expires %s, %d scopes, refresh=%t)",
		kind, token.ExpiresAt.Format(time.RFC3339), len(token.Scope), token.RefreshToken != "")
	return nil
}

// Clear removes the cached token for kind. Clearing a missing entry is not
// an error.
func (c *Cache) Clear(kind oauth.Kind) error {
	path := c.Path(kind)
	if path == "" {
		return fmt.Errorf("unknown token kind %q", kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := lockDir(c.dir, true)
	if err != nil {
		return fmt.Errorf("failed to lock token directory: %w", err)
	}
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s token: %w", kind, err)
	}

	logging.Info(subsystem, "Cleared %s token", kind)
	return nil
}

// ClearAll removes every cached token, forcing full re-authentication.
func (c *Cache) ClearAll() error {
	var errs []error
	for _, kind := range oauth.Kinds() {
		if err := c.Clear(kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writeFileAtomic writes data to a temp file in dir, syncs it and renames
// it over path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting temp token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp token file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming token file into place: %w", err)
	}

	success = true
	return nil
}
