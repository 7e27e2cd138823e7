package sessions

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/laagencias/go-panel-auth/users"
)

var _ Store = (*FileStore)(nil)

// scrypt parameters for the at-rest encryption key. Interactive-use cost,
// matching the recommendation in the scrypt package docs.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	saltLength   = 16
	keyLength    = 32
	nonceLength  = 24
	sessionPerms = 0o600
)

// FileStore persists the session as a JSON document on disk, the durable
// equivalent of the browser's localStorage keys access_token, refresh_token
// and current_user. All reads are served from memory; every mutation writes
// the whole document via a temp-file rename so a crash never leaves a
// half-written session behind.
type FileStore struct {
	mu         sync.RWMutex
	path       string
	passphrase []byte // empty means plaintext
	session    Session
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithEncryption seals the persisted document with a secretbox key derived
// from the passphrase. The refresh token is the long-lived credential here,
// so an at-rest option is worth the extra bytes on disk.
func WithEncryption(passphrase string) FileStoreOption {
	return func(fs *FileStore) {
		fs.passphrase = []byte(passphrase)
	}
}

// NewFileStore loads (or initialises) a session document at path.
func NewFileStore(path string, options ...FileStoreOption) (*FileStore, error) {
	fs := &FileStore{path: path}
	for _, opt := range options {
		opt(fs)
	}

	if err := fs.load(); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] load")
	}
	return fs, nil
}

func (fs *FileStore) SetTokens(accessToken, refreshToken string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.session.AccessToken = accessToken
	fs.session.RefreshToken = refreshToken
	return fs.persist()
}

func (fs *FileStore) AccessToken() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.session.AccessToken
}

func (fs *FileStore) RefreshToken() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.session.RefreshToken
}

func (fs *FileStore) SetUser(user *users.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.session.User = user
	return fs.persist()
}

func (fs *FileStore) User() *users.User {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.session.User
}

func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.session = Session{}
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] remove session file")
	}
	return nil
}

func (fs *FileStore) load() error {
	raw, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read session file")
	}

	if len(fs.passphrase) > 0 {
		raw, err = fs.open(raw)
		if err != nil {
			return errors.Wrap(err, "decrypt session file")
		}
	}

	if err := json.Unmarshal(raw, &fs.session); err != nil {
		return errors.Wrap(err, "unmarshal session file")
	}
	return nil
}

// persist writes the document atomically. Callers hold the write lock.
func (fs *FileStore) persist() error {
	raw, err := json.Marshal(fs.session)
	if err != nil {
		return errors.Wrap(err, "[FileStore.persist] marshal session")
	}

	if len(fs.passphrase) > 0 {
		raw, err = fs.seal(raw)
		if err != nil {
			return errors.Wrap(err, "[FileStore.persist] encrypt session")
		}
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.persist] create session dir")
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, raw, sessionPerms); err != nil {
		return errors.Wrap(err, "[FileStore.persist] write temp file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.persist] rename temp file")
	}
	return nil
}

// seal produces salt || nonce || secretbox(payload).
func (fs *FileStore) seal(payload []byte) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "generate salt")
	}

	key, err := fs.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}

	out := make([]byte, 0, saltLength+nonceLength+len(payload)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, payload, &nonce, key), nil
}

func (fs *FileStore) open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltLength+nonceLength+secretbox.Overhead {
		return nil, errors.New("sealed session too short")
	}

	key, err := fs.deriveKey(sealed[:saltLength])
	if err != nil {
		return nil, err
	}

	var nonce [nonceLength]byte
	copy(nonce[:], sealed[saltLength:saltLength+nonceLength])

	payload, ok := secretbox.Open(nil, sealed[saltLength+nonceLength:], &nonce, key)
	if !ok {
		return nil, errors.New("session passphrase mismatch or corrupt file")
	}
	return payload, nil
}

func (fs *FileStore) deriveKey(salt []byte) (*[keyLength]byte, error) {
	derived, err := scrypt.Key(fs.passphrase, salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, errors.Wrap(err, "derive key")
	}
	key := new([keyLength]byte)
	copy(key[:], derived)
	return key, nil
}
