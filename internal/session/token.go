// Package session issues and validates path-scoped note session tokens.
//
// A token is an HS256 JWT whose subject is the note path. It also carries a
// short fingerprint of the password digest it was issued against, so changing
// or clearing a note's password invalidates every outstanding token for it
// without any server-side session state.
package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL matches the lifetime of the auth cookie.
const DefaultTTL = 7 * 24 * time.Hour

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	PwFingerprint string `json:"pwf"`
}

// Issuer signs and validates session tokens with a process-wide key.
type Issuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewIssuer constructs an Issuer. A non-positive ttl selects DefaultTTL.
func NewIssuer(signKey []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{signKey: signKey, ttl: ttl, now: time.Now}
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a signed token for path bound to the note's current password digest.
func (i *Issuer) Issue(path, pwDigest string) (string, time.Time, error) {
	if len(i.signKey) == 0 {
		return "", time.Time{}, errors.New("session: empty signing key")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   path,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		PwFingerprint: fingerprint(pwDigest),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.signKey)
	return signed, exp, err
}

// Validate reports whether token authorizes access to path whose current
// password digest is pwDigest. It fails closed on any defect.
func (i *Issuer) Validate(token, path, pwDigest string) bool {
	if token == "" || path == "" || pwDigest == "" || len(i.signKey) == 0 {
		return false
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.signKey, nil
	},
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil || !parsed.Valid {
		return false
	}
	if claims.Subject != path {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(claims.PwFingerprint), []byte(fingerprint(pwDigest))) == 1
}

// fingerprint is a short non-reversible tag of the stored digest.
func fingerprint(pwDigest string) string {
	sum := sha256.Sum256([]byte(pwDigest))
	return hex.EncodeToString(sum[:8])
}
