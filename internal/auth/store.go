package auth

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrTokenNotFound indicates no persisted token pair exists for the account.
var ErrTokenNotFound = errors.New("token pair not found")

// TokenPair is the persisted bearer credential set for one account. It is
// replaced wholesale on login and refresh, never partially updated.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenStore persists token pairs keyed by account identity so logins
// survive process restarts.
type TokenStore interface {
	Load(account string) (TokenPair, error)
	Save(account string, pair TokenPair) error
}

// FileTokenStore keeps one JSON file per account under a base directory.
// File names carry a hash of the account identifier rather than the
// identifier itself.
type FileTokenStore struct {
	baseDir string
}

// NewFileTokenStore creates a store rooted at dir. The directory is created
// on first save.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{baseDir: dir}
}

// Load reads the token pair for account. Returns ErrTokenNotFound if no
// file exists.
func (s *FileTokenStore) Load(account string) (TokenPair, error) {
	data, err := os.ReadFile(s.path(account))
	if err != nil {
		if os.IsNotExist(err) {
			return TokenPair{}, ErrTokenNotFound
		}
		return TokenPair{}, fmt.Errorf("token store read: %w", err)
	}

	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("token store parse: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, ErrTokenNotFound
	}

	return pair, nil
}

// Save writes the token pair for account, creating the base directory if
// needed. Token files are readable by the owner only.
func (s *FileTokenStore) Save(account string, pair TokenPair) error {
	if s.baseDir != "" {
		if err := os.MkdirAll(s.baseDir, 0o700); err != nil {
			return fmt.Errorf("token store mkdir: %w", err)
		}
	}

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("token store marshal: %w", err)
	}
	if err := os.WriteFile(s.path(account), data, 0o600); err != nil {
		return fmt.Errorf("token store write: %w", err)
	}

	return nil
}

func (s *FileTokenStore) path(account string) string {
	sum := md5.Sum([]byte(account))
	name := fmt.Sprintf("tokens_%s.json", hex.EncodeToString(sum[:]))
	return filepath.Join(s.baseDir, name)
}
