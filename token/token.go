// Package token implements the split-token credential scheme used for
// sessions and one-time tokens.
//
// A split token is "selector:verifier". The selector is a non-secret lookup
// key; the verifier is the secret. Only the SHA-256 hash of the verifier is
// ever persisted, so a leaked datastore does not yield usable credentials,
// and the selector lookup never compares secret material against stored rows.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	selectorBytes = 16
	verifierBytes = 32

	// SelectorHexLen and VerifierHexLen describe the wire format
	// "<32 hex>:<64 hex>" that crosses process boundaries in URLs and
	// cookies.
	SelectorHexLen = selectorBytes * 2
	VerifierHexLen = verifierBytes * 2

	rawTokenLen = SelectorHexLen + 1 + VerifierHexLen
)

// SplitToken carries the persistable halves of a freshly generated token.
// Raw is the only place the verifier appears in plaintext; callers hand it
// to the end user and must not store it.
type SplitToken struct {
	Selector     string
	VerifierHash string
	Raw          string
}

// Generate creates a new split token from crypto/rand.
func Generate() (SplitToken, error) {
	var buf [selectorBytes + verifierBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return SplitToken{}, err
	}

	selector := hex.EncodeToString(buf[:selectorBytes])
	verifier := hex.EncodeToString(buf[selectorBytes:])

	return SplitToken{
		Selector:     selector,
		VerifierHash: HashVerifier(verifier),
		Raw:          selector + ":" + verifier,
	}, nil
}

// Parse splits a raw token into selector and verifier. It returns false
// unless the input is exactly lowercase "<32 hex>:<64 hex>".
func Parse(raw string) (selector, verifier string, ok bool) {
	if len(raw) != rawTokenLen {
		return "", "", false
	}
	if raw[SelectorHexLen] != ':' {
		return "", "", false
	}

	selector = raw[:SelectorHexLen]
	verifier = raw[SelectorHexLen+1:]
	if !isLowerHex(selector) || !isLowerHex(verifier) {
		return "", "", false
	}

	return selector, verifier, true
}

// HashVerifier returns the hex-encoded SHA-256 digest of a verifier.
func HashVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}

// MatchesVerifier reports whether candidate hashes to storedHash.
// The comparison is constant-time over the digest.
func MatchesVerifier(candidate, storedHash string) bool {
	computed := sha256.Sum256([]byte(candidate))

	stored, err := hex.DecodeString(storedHash)
	if err != nil || len(stored) != sha256.Size {
		return false
	}

	return subtle.ConstantTimeCompare(computed[:], stored) == 1
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
