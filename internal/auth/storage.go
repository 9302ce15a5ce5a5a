package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// credentialKey addresses one stored session. A Graph and a Google login
// may share a profile name without overwriting each other.
type credentialKey struct {
	Provider string `json:"provider"`
	Profile  string `json:"profile"`
}

// unscoped stands in for an empty provider on disk
const unscoped = "default"

func (k credentialKey) String() string {
	if k.Provider == "" {
		return k.Profile
	}
	return k.Provider + ":" + k.Profile
}

func (k credentialKey) validate() error {
	for _, part := range []string{k.Provider, k.Profile} {
		if strings.ContainsAny(part, `/\:`) || part == "." || part == ".." {
			return fmt.Errorf("invalid profile name %q", k.String())
		}
	}
	if k.Profile == "" {
		return fmt.Errorf("profile name is empty")
	}
	return nil
}

// credentialStore persists serialized credentials
type credentialStore interface {
	Put(key credentialKey, data []byte) error
	Get(key credentialKey) ([]byte, error)
	Remove(key credentialKey) error
	Keys() ([]credentialKey, error)
	Name() string
}

func notFound(key credentialKey) error {
	return fmt.Errorf("no stored session for profile '%s'", key.String())
}

// keyringStore keeps secrets in the OS keyring. The keyring cannot be
// enumerated portably, so the keys are mirrored to an index file.
type keyringStore struct {
	service string
	index   string
	mu      sync.Mutex
}

func newKeyringStore(service, configDir string) *keyringStore {
	return &keyringStore{
		service: service,
		index:   filepath.Join(configDir, "keyring-index.json"),
	}
}

func (s *keyringStore) Put(key credentialKey, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}
	if err := keyring.Set(s.service, key.String(), string(data)); err != nil {
		return err
	}
	return s.updateIndex(func(keys []credentialKey) []credentialKey {
		for _, k := range keys {
			if k == key {
				return keys
			}
		}
		return append(keys, key)
	})
}

func (s *keyringStore) Get(key credentialKey) ([]byte, error) {
	data, err := keyring.Get(s.service, key.String())
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (s *keyringStore) Remove(key credentialKey) error {
	if err := keyring.Delete(s.service, key.String()); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return s.updateIndex(func(keys []credentialKey) []credentialKey {
		kept := keys[:0]
		for _, k := range keys {
			if k != key {
				kept = append(kept, k)
			}
		}
		return kept
	})
}

func (s *keyringStore) Keys() ([]credentialKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

func (s *keyringStore) Name() string { return "system-keyring" }

func (s *keyringStore) readIndex() ([]credentialKey, error) {
	data, err := os.ReadFile(s.index)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []credentialKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("corrupt keyring index %s: %w", s.index, err)
	}
	return keys, nil
}

func (s *keyringStore) updateIndex(fn func([]credentialKey) []credentialKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.readIndex()
	if err != nil {
		return err
	}
	data, err := json.Marshal(fn(keys))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.index), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.index, data, 0600)
}

// fileStore writes one file per session under
// <configDir>/credentials/<provider>/<profile><ext>. The codec decides
// whether the payload is sealed.
type fileStore struct {
	root  string
	ext   string
	name  string
	codec fileCodec
}

type fileCodec interface {
	seal(plaintext []byte) ([]byte, error)
	open(sealed []byte) ([]byte, error)
}

type plainCodec struct{}

func (plainCodec) seal(b []byte) ([]byte, error) { return b, nil }
func (plainCodec) open(b []byte) ([]byte, error) { return b, nil }

// gcmCodec seals with AES-256-GCM; the nonce is prepended to the ciphertext
type gcmCodec struct {
	aead cipher.AEAD
}

func newGCMCodec(key []byte) (*gcmCodec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &gcmCodec{aead: aead}, nil
}

func (c *gcmCodec) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *gcmCodec) open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("credential file is truncated")
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

func newPlainFileStore(configDir string) *fileStore {
	return &fileStore{
		root:  filepath.Join(configDir, "credentials"),
		ext:   ".json",
		name:  "plain-file",
		codec: plainCodec{},
	}
}

func newEncryptedFileStore(configDir string) (*fileStore, error) {
	key, err := loadOrCreateFileKey(filepath.Join(configDir, ".keyfile"))
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	codec, err := newGCMCodec(key)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		root:  filepath.Join(configDir, "credentials"),
		ext:   ".enc",
		name:  "encrypted-file",
		codec: codec,
	}, nil
}

func (s *fileStore) path(key credentialKey) string {
	provider := key.Provider
	if provider == "" {
		provider = unscoped
	}
	return filepath.Join(s.root, provider, key.Profile+s.ext)
}

func (s *fileStore) Put(key credentialKey, data []byte) error {
	if err := key.validate(); err != nil {
		return err
	}
	sealed, err := s.codec.seal(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	return os.WriteFile(p, sealed, 0600)
}

func (s *fileStore) Get(key credentialKey) ([]byte, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	sealed, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, err
	}
	return s.codec.open(sealed)
}

func (s *fileStore) Remove(key credentialKey) error {
	if err := key.validate(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists sessions written with this store's extension. Files left by
// the other file store are ignored.
func (s *fileStore) Keys() ([]credentialKey, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*"+s.ext))
	if err != nil {
		return nil, err
	}
	keys := make([]credentialKey, 0, len(matches))
	for _, m := range matches {
		provider := filepath.Base(filepath.Dir(m))
		if provider == unscoped {
			provider = ""
		}
		keys = append(keys, credentialKey{
			Provider: provider,
			Profile:  strings.TrimSuffix(filepath.Base(m), s.ext),
		})
	}
	return keys, nil
}

func (s *fileStore) Name() string { return s.name }

// loadOrCreateFileKey reads the base64 AES key, creating it on first use.
// A key of the wrong length is replaced, which orphans files sealed with it.
func loadOrCreateFileKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		if key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data))); err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// ListProfiles returns the profiles with a stored session for the current
// provider
func (m *Manager) ListProfiles() ([]string, error) {
	keys, err := m.storage.Keys()
	if err != nil {
		return nil, err
	}
	provider := m.key("").Provider
	profiles := []string{}
	for _, k := range keys {
		if k.Provider == provider {
			profiles = append(profiles, k.Profile)
		}
	}
	sort.Strings(profiles)
	return profiles, nil
}

func (m *Manager) key(profile string) credentialKey {
	k := credentialKey{Profile: profile}
	if m.provider != nil {
		k.Provider = m.provider.Name
	}
	return k
}
