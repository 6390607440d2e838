// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
	scheme  = "argon2id"
)

var b64 = base64.RawStdEncoding

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword verifies password against expected Argon2id hash and salt.
func VerifyPassword(password, salt, expected []byte) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}

// Hasher produces storable note password digests.
// Every digest gets its own random salt; the pepper is a process-wide secret
// mixed into the password and never stored.
type Hasher struct {
	pepper []byte
}

// NewHasher constructs a Hasher with the configured pepper (may be empty).
func NewHasher(pepper []byte) *Hasher {
	return &Hasher{pepper: append([]byte(nil), pepper...)}
}

// Digest returns "argon2id$<salt>$<hash>" for password.
func (h *Hasher) Digest(password string) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	sum := HashPassword(h.peppered(password), salt)
	return scheme + "$" + b64.EncodeToString(salt) + "$" + b64.EncodeToString(sum), nil
}

// Verify reports whether password matches the stored digest.
// A malformed digest never verifies.
func (h *Hasher) Verify(password, stored string) bool {
	salt, sum, err := parseDigest(stored)
	if err != nil {
		return false
	}
	return VerifyPassword(h.peppered(password), salt, sum)
}

func (h *Hasher) peppered(password string) []byte {
	out := make([]byte, 0, len(h.pepper)+len(password))
	out = append(out, h.pepper...)
	return append(out, password...)
}

var errBadDigest = errors.New("malformed password digest")

func parseDigest(s string) (salt, sum []byte, err error) {
	parts := strings.Split(s, "$")
	if len(parts) != 3 || parts[0] != scheme {
		return nil, nil, errBadDigest
	}
	if salt, err = b64.DecodeString(parts[1]); err != nil || len(salt) == 0 {
		return nil, nil, errBadDigest
	}
	if sum, err = b64.DecodeString(parts[2]); err != nil || len(sum) != int(argonKeyLen) {
		return nil, nil, errBadDigest
	}
	return salt, sum, nil
}
