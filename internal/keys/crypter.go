package keys

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Crypter is an in-process key vault. Key material lives only inside it,
// addressed by opaque handles; EncryptionKey rows carry the handle, never
// the bytes. A production deployment would back this with a KMS, the
// interface stays the same.
type Crypter struct {
	mu    sync.RWMutex
	vault map[string][]byte
}

func NewCrypter() *Crypter {
	return &Crypter{vault: make(map[string][]byte)}
}

// Mint generates fresh key material and returns its handle.
func (c *Crypter) Mint() (string, error) {
	material := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(material); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	handle := make([]byte, 16)
	if _, err := rand.Read(handle); err != nil {
		return "", fmt.Errorf("generate key handle: %w", err)
	}
	ref := hex.EncodeToString(handle)

	c.mu.Lock()
	c.vault[ref] = material
	c.mu.Unlock()
	return ref, nil
}

// Seal encrypts plaintext under the handled key. The nonce is prepended to
// the returned ciphertext.
func (c *Crypter) Seal(handle string, plaintext, aad []byte) ([]byte, error) {
	aead, err := c.aead(handle)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts ciphertext produced by Seal.
func (c *Crypter) Open(handle string, ciphertext, aad []byte) ([]byte, error) {
	aead, err := c.aead(handle)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return plaintext, nil
}

// Has reports whether the vault holds material for the handle.
func (c *Crypter) Has(handle string) bool {
	c.mu.RLock()
	_, ok := c.vault[handle]
	c.mu.RUnlock()
	return ok
}

func (c *Crypter) aead(handle string) (cipher.AEAD, error) {
	c.mu.RLock()
	material, ok := c.vault[handle]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no key material for handle %s", handle)
	}
	return chacha20poly1305.NewX(material)
}
