package crm

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	secretPrefix    = "enc:v1:"
	kdfSalt         = "crm-integration-salt"
	kdfIterations   = 100_000
	nonceSize       = 24
	redactedDisplay = "********"
)

var ErrDecrypt = errors.New("secret does not decrypt")

// Box encrypts CRM credentials at rest with XSalsa20-Poly1305.
type Box struct {
	key [32]byte
}

// NewBox derives the box key from a passphrase with PBKDF2-SHA256.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("integration secrets key is empty")
	}
	b := &Box{}
	copy(b.key[:], pbkdf2.Key([]byte(passphrase), []byte(kdfSalt), kdfIterations, 32, sha256.New))
	return b, nil
}

// Encrypt returns the stored form. Empty input and values this box already sealed come back
// unchanged; anything else is sealed, including plaintext that merely carries the prefix.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}
	if IsEncrypted(plaintext) {
		if _, err := b.Decrypt(plaintext); err == nil {
			return plaintext, nil
		}
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return secretPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned as stored.
func (b *Box) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, secretPrefix))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func IsEncrypted(v string) bool { return strings.HasPrefix(v, secretPrefix) }

// RedactedSecret is how a stored secret is shown to clients.
type RedactedSecret struct {
	Configured bool   `json:"configured"`
	Display    string `json:"display"`
}

func Redact(stored string) RedactedSecret {
	if stored == "" {
		return RedactedSecret{}
	}
	return RedactedSecret{Configured: true, Display: redactedDisplay}
}
