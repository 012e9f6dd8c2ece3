// Package tokenvault issues and verifies admission tokens. Only a keyed hash
// of a token is ever persisted; the raw value is handed out once.
package tokenvault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	// TokenBytes is the entropy of a raw token.
	TokenBytes = 32
	// PrefixLen is the number of leading raw token characters stored in clear
	// to narrow lookups.
	PrefixLen = 8
	// DefaultTTL is the validity window of an issued token.
	DefaultTTL = 24 * time.Hour

	keyInfo = "fanzone-tickets admission token v1"
)

var ErrEmptySecret = errors.New("tokenvault: empty secret")

// Issued carries a freshly generated token. Raw must be returned to the holder
// and then discarded.
type Issued struct {
	Raw       string
	Hash      string
	Prefix    string
	ExpiresAt time.Time
}

type Vault struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

type Option func(*Vault)

func WithTTL(ttl time.Duration) Option {
	return func(v *Vault) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// New derives the hashing key from secret with HKDF-SHA256 so the token key
// never equals any other configured secret.
func New(secret string, opts ...Option) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("tokenvault: derive key: %w", err)
	}

	v := &Vault{key: key, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issue generates a new random token.
func (v *Vault) Issue() (*Issued, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("tokenvault: read random: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(b)

	return &Issued{
		Raw:       raw,
		Hash:      v.Hash(raw),
		Prefix:    Prefix(raw),
		ExpiresAt: v.now().Add(v.ttl).UTC(),
	}, nil
}

// Hash returns the hex HMAC-SHA256 of raw under the vault key.
func (v *Vault) Hash(raw string) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether raw hashes to storedHash. The comparison is constant
// time.
func (v *Vault) Verify(raw, storedHash string) bool {
	if raw == "" || storedHash == "" {
		return false
	}
	want, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(raw))
	return hmac.Equal(mac.Sum(nil), want)
}

// Expired reports whether a token with the given expiry is no longer valid.
// A token is valid up to and including its expiry instant.
func (v *Vault) Expired(expiresAt time.Time) bool {
	return v.now().After(expiresAt)
}

// Prefix returns the clear lookup prefix of a raw token.
func Prefix(raw string) string {
	if len(raw) <= PrefixLen {
		return raw
	}
	return raw[:PrefixLen]
}
