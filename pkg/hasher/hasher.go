package hasher

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes low-entropy secrets such as security question answers.
type PasswordHasher interface {
	// Hash hashes a value with a fresh random salt
	Hash(value string) (string, error)

	// Verify reports whether value matches the stored hash. A mismatch is not an error.
	Verify(value, hashed string) (bool, error)
}

// Argon2Params are the Argon2id cost parameters.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns 64MB, 3 iterations, 2 lanes.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher implements PasswordHasher using Argon2id
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher creates a new Argon2Hasher with default parameters
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{params: DefaultArgon2Params()}
}

// NewArgon2HasherWithParams creates an Argon2Hasher with explicit cost parameters.
func NewArgon2HasherWithParams(params Argon2Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

// Hash produces $argon2id$v=19$m=<m>,t=<t>,p=<p>$<salt>$<hash>
func (h *Argon2Hasher) Hash(value string) (string, error) {
	if value == "" {
		return "", errors.New("value cannot be empty")
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(value), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encodedHash.
func (h *Argon2Hasher) Verify(value, encodedHash string) (bool, error) {
	if value == "" || encodedHash == "" {
		return false, errors.New("value and hash cannot be empty")
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, errors.New("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, errors.New("incompatible hash algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, errors.New("invalid hash format")
	}
	if version != argon2.Version {
		return false, errors.New("incompatible argon2id version")
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, errors.New("invalid hash format")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errors.New("invalid salt encoding")
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errors.New("invalid hash encoding")
	}

	computed := argon2.IDKey([]byte(value), salt, iterations, memory, parallelism, uint32(len(decodedHash)))
	return subtle.ConstantTimeCompare(decodedHash, computed) == 1, nil
}

// BcryptHasher implements PasswordHasher with bcrypt. Values longer than 72 bytes are rejected by bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using bcrypt.DefaultCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (h *BcryptHasher) Hash(value string) (string, error) {
	if value == "" {
		return "", errors.New("value cannot be empty")
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(value), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(value, hashed string) (bool, error) {
	if value == "" || hashed == "" {
		return false, errors.New("value and hash cannot be empty")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(value))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MultiHasher hashes with the first hasher and verifies with whichever hasher
// recognises the stored format, so bcrypt hashes keep working after a switch to argon2id.
type MultiHasher struct {
	current PasswordHasher
	bcrypt  PasswordHasher
	argon2  PasswordHasher
}

// NewMultiHasher returns a MultiHasher that writes with current.
func NewMultiHasher(current PasswordHasher) *MultiHasher {
	return &MultiHasher{
		current: current,
		bcrypt:  NewBcryptHasher(),
		argon2:  NewArgon2Hasher(),
	}
}

func (m *MultiHasher) Hash(value string) (string, error) {
	return m.current.Hash(value)
}

func (m *MultiHasher) Verify(value, hashed string) (bool, error) {
	switch {
	case strings.HasPrefix(hashed, "$argon2id$"):
		return m.argon2.Verify(value, hashed)
	case strings.HasPrefix(hashed, "$2a$"), strings.HasPrefix(hashed, "$2b$"), strings.HasPrefix(hashed, "$2y$"):
		return m.bcrypt.Verify(value, hashed)
	default:
		return false, errors.New("unrecognised hash format")
	}
}
