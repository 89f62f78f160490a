// Package crypto encrypts tenant binding credentials at rest. Ciphertext
// carries a one-byte key-version prefix so keys can rotate without a
// flag day: old ciphertexts keep decrypting under their original key
// version while new writes use the current one.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32 // AES-256

// KeyRing derives per-version AES-256-GCM keys from a single master secret
// via HKDF, and encrypts/decrypts with a version-prefixed envelope.
type KeyRing struct {
	current byte
	keys    map[byte][]byte
}

// NewKeyRing derives exactly one key, version 1, from master. Call
// AddVersion to register older master secrets after a rotation so existing
// ciphertexts keep decrypting.
func NewKeyRing(master []byte) (*KeyRing, error) {
	kr := &KeyRing{current: 1, keys: map[byte][]byte{}}
	if err := kr.AddVersion(1, master); err != nil {
		return nil, err
	}
	return kr, nil
}

// AddVersion registers (or re-derives) the key for a given version and
// marks it current if it is the highest version registered so far.
func (kr *KeyRing) AddVersion(version byte, master []byte) error {
	key, err := deriveKey(master, version)
	if err != nil {
		return err
	}
	kr.keys[version] = key
	if version >= kr.current {
		kr.current = version
	}
	return nil
}

func deriveKey(master []byte, version byte) ([]byte, error) {
	h := hkdf.New(sha256.New, master, []byte{version}, []byte("corehub/credential-encryption"))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("crypto: derive key v%d: %w", version, err)
	}
	return key, nil
}

// Encrypt seals plaintext under the current key version, prefixing the
// returned ciphertext with that version byte.
func (kr *KeyRing) Encrypt(plaintext []byte) ([]byte, error) {
	key, ok := kr.keys[kr.current]
	if !ok {
		return nil, fmt.Errorf("crypto: no key for current version %d", kr.current)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	out := make([]byte, 0, len(sealed)+1)
	out = append(out, kr.current)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt opens ciphertext produced by Encrypt, using whichever key version
// its prefix byte names.
func (kr *KeyRing) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 1 {
		return nil, fmt.Errorf("crypto: ciphertext too short")
	}
	version := ciphertext[0]
	key, ok := kr.keys[version]
	if !ok {
		return nil, fmt.Errorf("crypto: no key registered for version %d", version)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	body := ciphertext[1:]
	if len(body) < gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: ciphertext truncated")
	}
	nonce, sealed := body[:gcm.NonceSize()], body[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return plaintext, nil
}
