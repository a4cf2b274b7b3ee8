// Package seal encrypts values that must be recoverable later, such as OAuth
// access and refresh tokens, with AES-256-GCM.
//
// A stored value is either [Plain] (legacy rows written before encryption was
// enabled) or [Encrypted]. [Value] is a closed union over those two types so
// callers handle both cases explicitly; [Encode] and [Decode] map it to and
// from the single string column used by storage adapters.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize       = 32
	nonceSize     = 12
	tagSize       = 16
	encodedPrefix = "enc:v1:"
	hkdfInfo      = "zen/seal/v1"
)

var (
	// ErrEmptySecret is returned by NewCipher for an empty secret.
	ErrEmptySecret = errors.New("seal: empty secret")
	// ErrDecrypt is returned when a ciphertext fails authentication, which
	// includes decrypting with the wrong secret.
	ErrDecrypt = errors.New("seal: decryption failed")
	// ErrMalformed is returned by Decode for a tagged value that cannot be parsed.
	ErrMalformed = errors.New("seal: malformed encrypted value")
)

// Value is either Plain or Encrypted.
type Value interface {
	sealed()
}

// Plain is an unencrypted legacy value. It is returned unchanged by Open.
type Plain string

func (Plain) sealed() {}

// Encrypted is an AES-GCM ciphertext with its 96-bit nonce.
type Encrypted struct {
	Nonce      []byte
	Ciphertext []byte
}

func (Encrypted) sealed() {}

// Encode renders v for storage. A nil Value encodes to the empty string.
func Encode(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case Plain:
		return string(t)
	case Encrypted:
		raw := make([]byte, 0, len(t.Nonce)+len(t.Ciphertext))
		raw = append(raw, t.Nonce...)
		raw = append(raw, t.Ciphertext...)
		return encodedPrefix + base64.RawURLEncoding.EncodeToString(raw)
	default:
		return ""
	}
}

// Decode parses a stored string. The empty string decodes to nil; strings
// without the encryption tag decode to Plain.
func Decode(s string) (Value, error) {
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, encodedPrefix) {
		return Plain(s), nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, encodedPrefix))
	if err != nil {
		return nil, ErrMalformed
	}
	if len(raw) < nonceSize+tagSize {
		return nil, ErrMalformed
	}

	return Encrypted{
		Nonce:      append([]byte(nil), raw[:nonceSize]...),
		Ciphertext: append([]byte(nil), raw[nonceSize:]...),
	}, nil
}

// Cipher seals and opens values under one secret.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit AES key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext with a fresh random nonce.
func (c *Cipher) Seal(plaintext string) (Encrypted, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Encrypted{}, err
	}

	return Encrypted{
		Nonce:      nonce,
		Ciphertext: c.aead.Seal(nil, nonce, []byte(plaintext), nil),
	}, nil
}

// SealOptional seals plaintext, or returns nil for the empty string so absent
// tokens stay absent.
func (c *Cipher) SealOptional(plaintext string) (Value, error) {
	if plaintext == "" {
		return nil, nil
	}
	enc, err := c.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// Open returns the plaintext of v. Plain values pass through unchanged and a
// nil Value opens to the empty string.
func (c *Cipher) Open(v Value) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case Plain:
		return string(t), nil
	case Encrypted:
		if len(t.Nonce) != nonceSize {
			return "", ErrMalformed
		}
		out, err := c.aead.Open(nil, t.Nonce, t.Ciphertext, nil)
		if err != nil {
			return "", ErrDecrypt
		}
		return string(out), nil
	default:
		return "", ErrMalformed
	}
}
