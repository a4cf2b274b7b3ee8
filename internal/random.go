package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	tokenSize        = 32
	codeVerifierSize = 32
	stateSize        = 32

	// CodeLength is the number of characters in a verification code.
	CodeLength = 8
	// CodeAlphabet has 32 symbols so a random byte masked with 31 maps onto it
	// without bias. 0, O, 1 and I are excluded.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateToken returns 256 random bits, hex encoded.
func GenerateToken() (string, error) {
	var raw [tokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// Hash returns the hex SHA-256 digest of secret. Stored tokens and codes are
// only ever compared through this digest.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// GenerateCode returns a CodeLength character code drawn from an alphabet
// without look-alike characters.
func GenerateCode() (string, error) {
	var raw [CodeLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}

	out := make([]byte, CodeLength)
	for i, b := range raw {
		out[i] = CodeAlphabet[b&31]
	}
	return string(out), nil
}

// GenerateState returns an unguessable OAuth state parameter.
func GenerateState() (string, error) {
	var raw [stateSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// GenerateCodeVerifier returns a PKCE verifier: 256 random bits, base64url
// without padding (43 characters).
func GenerateCodeVerifier() (string, error) {
	var raw [codeVerifierSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// CodeChallenge derives the S256 PKCE challenge for verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
