// Package vault manages the encrypted snapshot file holding secret
// key-value entries, the salt that anchors key derivation, and the
// derivation itself.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
)

var ErrSecretNotFound = errors.New("secret not found")

// envelope is the on-disk snapshot form: an AES-256-GCM sealed JSON map of
// entries.
type envelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Vault is the unlocked snapshot. There is no locked state: the vault is
// opened once per process run and closed at shutdown.
type Vault struct {
	path string

	mu      sync.Mutex
	key     []byte
	entries map[string]string
}

// Open unlocks the snapshot at path with key, creating an empty snapshot
// file when none exists. The key must have come from a KeyDeriver; Open
// keeps its own copy, so the caller should scrub theirs.
func Open(path string, key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes", KeySize)
	}

	v := &Vault{
		path:    path,
		key:     append([]byte(nil), key...),
		entries: map[string]string{},
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := v.save(); err != nil {
			return nil, err
		}
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	entries, err := openEnvelope(v.key, raw)
	if err != nil {
		return nil, err
	}
	v.entries = entries
	return v, nil
}

func (v *Vault) Get(name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	value, ok := v.entries[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (v *Vault) Put(name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name is empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[name] = value
	return v.save()
}

func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[name]; !ok {
		return ErrSecretNotFound
	}
	delete(v.entries, name)
	return v.save()
}

func (v *Vault) Names() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	names := make([]string, 0, len(v.entries))
	for name := range v.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close scrubs the held key. The vault is unusable afterwards.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	Zero(v.key)
	v.key = nil
	v.entries = nil
}

func (v *Vault) save() error {
	raw, err := sealEnvelope(v.key, v.entries)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(v.path, raw); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func sealEnvelope(key []byte, entries map[string]string) ([]byte, error) {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	env := envelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return raw, nil
}

func openEnvelope(key, raw []byte) (map[string]string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt snapshot: %w", err)
	}

	entries := map[string]string{}
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal entries: %w", err)
	}
	return entries, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
