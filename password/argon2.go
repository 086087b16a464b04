// Package password hashes and verifies user credentials with Argon2id.
// The authentication ceremony itself is an out-of-scope collaborator;
// this package exists so provisioning and password rotation can write
// hashes the collaborator will later verify.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash is returned when a stored hash does not parse as the
// PHC string format this package writes.
var ErrMalformedHash = errors.New("malformed password hash")

// Params tune the Argon2id cost. The defaults follow the OWASP
// recommendation for interactive logins.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams are the costs used unless a caller overrides them.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes passwords using Argon2id and the PHC string format.
//
// Purpose: Write path for User.PasswordHash.
// Domain: Identity
type Hasher struct {
	params Params
}

// NewHasher creates a hasher with DefaultParams.
func NewHasher() *Hasher {
	return &Hasher{params: DefaultParams}
}

// NewHasherWithParams creates a hasher with explicit costs, for tests
// that want cheap hashing.
func NewHasherWithParams(p Params) *Hasher {
	return &Hasher{params: p}
}

// Hash derives an Argon2id hash of password under a fresh random salt,
// encoded as $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash, re-deriving the
// key under the costs recorded in the hash itself so parameter changes
// never invalidate existing credentials.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrMalformedHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedHash
	}

	actual := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}
