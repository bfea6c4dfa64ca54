// Package vault seals provider tokens at rest with XChaCha20-Poly1305.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/ringboard/ringboard/internal/domain"
)

// keyInfo binds derived keys to this use so the same master secret can be
// reused elsewhere without producing interchangeable ciphertexts.
var keyInfo = []byte("ringboard/token-vault/v1")

// Vault is a symmetric sealer for credential material. The associated data
// passed to Encrypt and Decrypt ties each ciphertext to its owning profile,
// so a token can never be decrypted detached from its owner.
type Vault struct {
	aead cipher.AEAD
}

// New derives an XChaCha20-Poly1305 AEAD from the process-wide secret key
// using HKDF-SHA256. The key must be 32 bytes.
func New(key []byte) (*Vault, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}

	hk := hkdf.New(sha256.New, key, nil, keyInfo)
	derived := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hk, derived); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}

	// XChaCha20 so random nonces are safe.
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// EncryptString seals plaintext and returns base64(nonce || ciphertext).
func (v *Vault) EncryptString(plaintext string, aad []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), aad)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// DecryptString reverses EncryptString. It fails with domain.ErrDecryption
// when the ciphertext was produced under a different key, the associated
// data does not match, or the input is corrupted. Callers must treat that
// as a dead credential, never as plaintext.
func (v *Vault) DecryptString(encoded string, aad []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", domain.ErrDecryption, err)
	}

	ns := v.aead.NonceSize()
	if len(raw) < ns+v.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short (%d bytes)", domain.ErrDecryption, len(raw))
	}

	nonce, ciphertext := raw[:ns], raw[ns:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	return string(plaintext), nil
}
