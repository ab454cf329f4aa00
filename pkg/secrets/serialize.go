package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Mode selects how a secret's value is rendered when the registry is
// serialized for persistence.
type Mode string

const (
	// ModeMasked writes "<secret:NAME>" in place of the value — the
	// default for any persisted event content.
	ModeMasked Mode = "masked"
	// ModePlaintext writes the raw value — used only for in-memory
	// transfer within a single trusted process (e.g. handing the env map
	// to a tool subprocess), never to disk.
	ModePlaintext Mode = "plaintext"
	// ModeCipher writes an AES-GCM-encrypted value under a registry-wide
	// key, for the persistence store's base_state.json so a resumed
	// conversation can recover secret values without storing them in
	// plaintext on disk.
	ModeCipher Mode = "cipher"
)

// ErrNoCipherKey is returned by Serialize(ModeCipher, ...) when no key
// has been set via SetCipherKey.
var ErrNoCipherKey = errors.New("secrets: cipher mode requires a key, call SetCipherKey first")

// record is the wire shape of one serialized secret entry.
type record struct {
	Name   string `json:"name"`
	EnvVar string `json:"env_var"`
	Mode   Mode   `json:"mode"`
	Value  string `json:"value"`
}

// SetCipherKey installs the 32-byte AES-256 key used by ModeCipher.
func (r *Registry) SetCipherKey(key [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cipherKey = key
	r.hasCipherKey = true
}

// Serialize renders every registered secret under mode, resolving each
// source's current value once. ModePlaintext and ModeCipher round-trip
// through Load; ModeMasked is write-only (Load cannot recover a value
// from "<secret:NAME>").
func (r *Registry) Serialize(ctx context.Context, mode Mode) ([]byte, error) {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	hasKey := r.hasCipherKey
	key := r.cipherKey
	r.mu.RUnlock()

	if mode == ModeCipher && !hasKey {
		return nil, ErrNoCipherKey
	}

	records := make([]record, 0, len(entries))
	for _, e := range entries {
		val, err := e.source.Value(ctx)
		if err != nil {
			return nil, err
		}
		rec := record{Name: e.name, EnvVar: e.envVar, Mode: mode}
		switch mode {
		case ModeMasked:
			rec.Value = "<secret:" + e.name + ">"
		case ModePlaintext:
			rec.Value = val
		case ModeCipher:
			enc, err := encryptValue(key, val)
			if err != nil {
				return nil, fmt.Errorf("secrets: encrypt %s: %w", e.name, err)
			}
			rec.Value = enc
		default:
			return nil, fmt.Errorf("secrets: unknown mode %q", mode)
		}
		records = append(records, rec)
	}
	return json.Marshal(records)
}

// Load replaces the registry's contents from data previously produced by
// Serialize(ModePlaintext|ModeCipher, ...). Loading a ModeMasked payload
// fails — masked values are not recoverable.
func (r *Registry) Load(data []byte, key *[32]byte) error {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("secrets: decode: %w", err)
	}

	entries := make(map[string]entry, len(records))
	for _, rec := range records {
		var val string
		switch rec.Mode {
		case ModePlaintext:
			val = rec.Value
		case ModeCipher:
			if key == nil {
				return fmt.Errorf("secrets: %s was serialized with %s, no key provided", rec.Name, ModeCipher)
			}
			dec, err := decryptValue(*key, rec.Value)
			if err != nil {
				return fmt.Errorf("secrets: decrypt %s: %w", rec.Name, err)
			}
			val = dec
		case ModeMasked:
			return fmt.Errorf("secrets: cannot load %s: %s values are not recoverable", rec.Name, ModeMasked)
		default:
			return fmt.Errorf("secrets: %s: unknown mode %q", rec.Name, rec.Mode)
		}
		entries[rec.Name] = entry{name: rec.Name, envVar: rec.EnvVar, source: StaticSource(val)}
	}

	r.mu.Lock()
	r.entries = entries
	if key != nil {
		r.cipherKey = *key
		r.hasCipherKey = true
	}
	r.mu.Unlock()
	return nil
}

// encryptValue/decryptValue use AES-256-GCM with a random nonce prepended
// to the ciphertext, base64-encoded for JSON transport. This is the one
// component in the registry with no library grounding in the retrieval
// pack — see DESIGN.md.
func encryptValue(key [32]byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptValue(key [32]byte, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("secrets: ciphertext too short")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
