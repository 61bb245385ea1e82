package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/opsledger/webhooks-backend/pkg/config"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrCiphertextInvalid signals a sealed value that is truncated or tampered.
var ErrCiphertextInvalid = fmt.Errorf("invalid sealed secret")

// Sealer encrypts subscription signing secrets at rest with NaCl secretbox
// under the 32-byte service key. The nonce is prepended to each sealed value.
type Sealer struct {
	key [32]byte
}

// NewSealer decodes the base64 service key and validates its length.
func NewSealer(cfg config.SecretsConfig) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("decode secrets key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secrets key must be 32 bytes, got %d", len(raw))
	}
	sealer := &Sealer{}
	copy(sealer.key[:], raw)
	return sealer, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextInvalid
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrCiphertextInvalid
	}
	return plaintext, nil
}

// ConstantTimeEquals compares two strings without leaking length or content
// through timing. Both sides are hashed first so unequal lengths still take
// the same time.
func ConstantTimeEquals(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
