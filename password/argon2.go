// Package password provides memory-hard password hashing for the engine.
//
// Hashes are Argon2id in PHC string format
// ($argon2id$v=19$m=...,t=...,p=...$salt$key), so stored hashes are
// self-describing and parameters can be raised without invalidating old
// credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// ErrMalformedHash is returned when a stored hash cannot be parsed as a
// supported PHC string.
var ErrMalformedHash = errors.New("malformed password hash")

// Params tunes the Argon2id cost. Memory is in KiB.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams mirrors the OWASP interactive profile.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords with a fixed parameter set.
type Hasher struct {
	params Params

	// dummyHash is verified against on the user-not-found path so the
	// latency of "unknown email" matches "wrong password".
	dummyHash string
}

// NewHasher validates params and pre-computes the dummy hash used by
// DummyVerify.
func NewHasher(p Params) (*Hasher, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}

	h := &Hasher{params: p}

	dummy, err := h.Hash("fortress-dummy-password-cycle")
	if err != nil {
		return nil, err
	}
	h.dummyHash = dummy

	return h, nil
}

// Hash derives an Argon2id hash of plaintext with a fresh random salt and
// returns it in PHC string format. Plaintext bytes are used exactly as
// provided; no Unicode normalization is applied.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches encodedHash. Derived keys are
// compared in constant time.
func (h *Hasher) Verify(encodedHash, plaintext string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// DummyVerify burns one full hash-verify cycle against a throwaway hash.
// Callers invoke it when no account was found so that response latency does
// not reveal account existence.
func (h *Hasher) DummyVerify(plaintext string) {
	_, _ = h.Verify(h.dummyHash, plaintext)
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the hasher is configured with.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	switch {
	case h.params.Memory > parsed.memory:
		return true, nil
	case h.params.Time > parsed.time:
		return true, nil
	case h.params.Parallelism > parsed.parallelism:
		return true, nil
	case h.params.KeyLength != parsed.keyLength:
		return true, nil
	}

	return false, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
	keyLength   uint32
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm", ErrMalformedHash)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedHash)
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	parsed := &parsedPHC{}
	if err := parseCostParams(parts[3], parsed); err != nil {
		return nil, err
	}

	parsed.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(parsed.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}

	parsed.key, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(parsed.key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	parsed.keyLength = uint32(len(parsed.key))

	return parsed, nil
}

func parseCostParams(part string, out *parsedPHC) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return fmt.Errorf("%w: bad cost parameters", ErrMalformedHash)
	}

	var haveM, haveT, haveP bool
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad cost parameter entry", ErrMalformedHash)
		}

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return fmt.Errorf("%w: bad memory cost", ErrMalformedHash)
			}
			out.memory = uint32(n)
			haveM = true
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return fmt.Errorf("%w: bad time cost", ErrMalformedHash)
			}
			out.time = uint32(n)
			haveT = true
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return fmt.Errorf("%w: bad parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(n)
			haveP = true
		default:
			return fmt.Errorf("%w: unknown cost parameter %q", ErrMalformedHash, k)
		}
	}

	if !haveM || !haveT || !haveP {
		return fmt.Errorf("%w: missing cost parameters", ErrMalformedHash)
	}
	return nil
}

func validateParams(p Params) error {
	if p.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KiB")
	}
	if p.Time < minTimeCost {
		return errors.New("password time cost must be >= 1")
	}
	if p.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if p.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if p.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	return nil
}
